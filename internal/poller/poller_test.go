package poller_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otpearn/otpearn-server/internal/notify"
	"github.com/otpearn/otpearn-server/internal/poller"
	"github.com/otpearn/otpearn-server/internal/repository"
	"github.com/otpearn/otpearn-server/internal/service"
)

// fakeInbox serves canned snapshots and counts calls
type fakeInbox struct {
	text       string
	sessionErr error
	fetchErr   error
	fetches    int
	logins     int
}

func (f *fakeInbox) EnsureSession(ctx context.Context) error { return f.sessionErr }

func (f *fakeInbox) FetchInbox(ctx context.Context) (string, error) {
	f.fetches++
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	return f.text, nil
}

func (f *fakeInbox) Login(ctx context.Context) error {
	f.logins++
	return nil
}

func newPollerEnv(t *testing.T, inbox *fakeInbox) (*poller.Poller, service.Service) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	repo := repository.NewMemoryRepository()
	svc := service.NewDefaultService(
		repo, notify.NewLogNotifier(log), log,
		"test-secret", "admin-key",
		decimal.NewFromFloat(1.0), decimal.NewFromFloat(250.0))

	p := poller.New(inbox, svc, log, time.Minute, time.Hour)
	return p, svc
}

func TestPollOnceCreditsOwner(t *testing.T) {
	inbox := &fakeInbox{text: "1555000111 Your WhatsApp code is 9321"}
	p, svc := newPollerEnv(t, inbox)
	ctx := context.Background()

	_, err := svc.SyncInventory(ctx, "1555000111")
	require.NoError(t, err)
	num, err := svc.AssignNumber(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, num)

	p.PollOnce(ctx)

	balance, err := svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(1.0)), "balance is %s", balance)

	// The snapshot doesn't change; the next cycle credits nothing.
	p.PollOnce(ctx)

	balance, err = svc.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromFloat(1.0)))
	assert.Equal(t, 2, inbox.fetches)
}

func TestPollOnceSkipsCycleOnSessionFailure(t *testing.T) {
	inbox := &fakeInbox{sessionErr: errors.New("portal down")}
	p, _ := newPollerEnv(t, inbox)

	// Never panics or fetches; the failure is absorbed.
	p.PollOnce(context.Background())
	assert.Equal(t, 0, inbox.fetches)
}

func TestPollOnceSkipsCycleOnFetchFailure(t *testing.T) {
	inbox := &fakeInbox{fetchErr: errors.New("timeout")}
	p, _ := newPollerEnv(t, inbox)

	p.PollOnce(context.Background())
	assert.Equal(t, 1, inbox.fetches)
}

func TestSyncInventoryOnce(t *testing.T) {
	inbox := &fakeInbox{text: "numbers: 1555000111, 1555000222"}
	p, svc := newPollerEnv(t, inbox)
	ctx := context.Background()

	synced, err := p.SyncInventoryOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, synced)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalNumbers)
}

func TestSyncInventoryOncePropagatesFailure(t *testing.T) {
	inbox := &fakeInbox{fetchErr: errors.New("timeout")}
	p, _ := newPollerEnv(t, inbox)

	_, err := p.SyncInventoryOnce(context.Background())
	assert.Error(t, err)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	inbox := &fakeInbox{text: ""}
	p, _ := newPollerEnv(t, inbox)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}
