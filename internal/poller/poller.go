// Package poller runs the two background tasks: the periodic
// fetch-match-credit cycle and the portal session refresh. Every failure
// inside a cycle is logged and the cycle skipped; nothing here is ever
// fatal to the scheduler.
package poller

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/otpearn/otpearn-server/internal/matcher"
	"github.com/otpearn/otpearn-server/internal/service"
)

const cycleTimeout = 60 * time.Second

// InboxSource is the remote portal capability the poller consumes
type InboxSource interface {
	EnsureSession(ctx context.Context) error
	FetchInbox(ctx context.Context) (string, error)
	Login(ctx context.Context) error
}

// Poller drives the periodic background tasks
type Poller struct {
	source          InboxSource
	svc             service.Service
	log             *logrus.Logger
	otpInterval     time.Duration
	sessionInterval time.Duration
}

// New creates a poller
func New(
	source InboxSource,
	svc service.Service,
	log *logrus.Logger,
	otpInterval, sessionInterval time.Duration,
) *Poller {
	return &Poller{
		source:          source,
		svc:             svc,
		log:             log,
		otpInterval:     otpInterval,
		sessionInterval: sessionInterval,
	}
}

// Run starts both background loops and blocks until ctx is cancelled
func (p *Poller) Run(ctx context.Context) {
	go p.runOTPLoop(ctx)
	go p.runSessionLoop(ctx)
	<-ctx.Done()
}

func (p *Poller) runOTPLoop(ctx context.Context) {
	ticker := time.NewTicker(p.otpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("stopping otp poll loop")
			return
		case <-ticker.C:
			p.PollOnce(ctx)
		}
	}
}

func (p *Poller) runSessionLoop(ctx context.Context) {
	ticker := time.NewTicker(p.sessionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info("stopping session refresh loop")
			return
		case <-ticker.C:
			p.refreshSession(ctx)
		}
	}
}

// PollOnce runs one fetch-match-credit cycle. Exposed so startup and
// tests can drive a cycle directly.
func (p *Poller) PollOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	if err := p.source.EnsureSession(ctx); err != nil {
		p.log.WithError(err).Warn("portal session unavailable, skipping cycle")
		return
	}

	text, err := p.source.FetchInbox(ctx)
	if err != nil {
		p.log.WithError(err).Warn("inbox fetch failed, skipping cycle")
		return
	}

	matches := matcher.Scan(text, func(number, otp string) bool {
		return p.svc.OTPSeen(ctx, number, otp)
	})
	if len(matches) == 0 {
		return
	}

	events, err := p.svc.ProcessMatches(ctx, matches)
	if err != nil {
		// Partial application is fine: each credit is its own
		// transaction, and unprocessed matches recur next cycle.
		p.log.WithError(err).Error("failed to process matches")
	}

	if len(events) > 0 {
		p.log.WithFields(logrus.Fields{
			"matches":  len(matches),
			"credited": len(events),
		}).Info("poll cycle completed")
	}
}

// SyncInventoryOnce fetches a snapshot and feeds it to the inventory sync.
// Used at startup and by the admin sync endpoint.
func (p *Poller) SyncInventoryOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	if err := p.source.EnsureSession(ctx); err != nil {
		return 0, err
	}

	text, err := p.source.FetchInbox(ctx)
	if err != nil {
		return 0, err
	}

	return p.svc.SyncInventory(ctx, text)
}

func (p *Poller) refreshSession(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()

	if err := p.source.Login(ctx); err != nil {
		p.log.WithError(err).Warn("session refresh failed")
		return
	}
	p.log.Info("portal session refreshed")
}
