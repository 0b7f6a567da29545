package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/otpearn/otpearn-server/internal/matcher"
	"github.com/otpearn/otpearn-server/internal/models"
	"github.com/otpearn/otpearn-server/internal/notify"
	"github.com/otpearn/otpearn-server/internal/repository"
)

var (
	// ErrInvalidAdminKey is returned when the admin API key doesn't match.
	ErrInvalidAdminKey = errors.New("invalid admin key")

	// ErrBelowMinimum is returned for withdrawal requests under the
	// configured minimum.
	ErrBelowMinimum = errors.New("amount below minimum withdrawal")

	// ErrMalformedCommand is returned for withdrawal command text that
	// doesn't parse. No state is created.
	ErrMalformedCommand = errors.New("malformed withdrawal command, use: method,target,amount")
)

var withdrawalMethods = map[string]bool{
	"bkash":  true,
	"nagad":  true,
	"rocket": true,
	"bank":   true,
}

// Service defines all the business logic operations
type Service interface {
	// Admin authentication
	IssueAdminToken(ctx context.Context, apiKey string) (string, int, error)

	// User operations
	Register(ctx context.Context, userID int64, handle string) error
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
	AssignNumber(ctx context.Context, userID int64) (*models.Number, error)
	AssignedNumbers(ctx context.Context, userID int64) ([]models.Number, error)

	// Inventory operations
	SyncInventory(ctx context.Context, rawText string) (int, error)
	Stats(ctx context.Context) (*models.InventoryStats, error)

	// Crediting engine
	OTPSeen(ctx context.Context, number, otp string) bool
	ProcessMatches(ctx context.Context, matches []matcher.Match) ([]models.CreditEvent, error)

	// Withdrawal workflow
	MinWithdrawal() decimal.Decimal
	SubmitWithdrawal(ctx context.Context, userID int64, amount decimal.Decimal, method, target string) (*models.Withdrawal, error)
	PendingWithdrawals(ctx context.Context) ([]models.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, id int64) (*models.Withdrawal, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	notifier      notify.Notifier
	log           *logrus.Logger
	jwtSecret     []byte
	adminKeyHash  []byte
	tokenDuration time.Duration
	earnPerSMS    decimal.Decimal
	minWithdrawal decimal.Decimal
}

// NewDefaultService creates a new DefaultService. adminKey is hashed once
// here and only the hash is kept.
func NewDefaultService(
	repo repository.Repository,
	notifier notify.Notifier,
	log *logrus.Logger,
	jwtSecret string,
	adminKey string,
	earnPerSMS decimal.Decimal,
	minWithdrawal decimal.Decimal,
) Service {
	var hash []byte
	if adminKey != "" {
		hash, _ = bcrypt.GenerateFromPassword([]byte(adminKey), bcrypt.DefaultCost)
	}
	return &DefaultService{
		repo:          repo,
		notifier:      notifier,
		log:           log,
		jwtSecret:     []byte(jwtSecret),
		adminKeyHash:  hash,
		tokenDuration: 24 * time.Hour,
		earnPerSMS:    earnPerSMS,
		minWithdrawal: minWithdrawal,
	}
}

// Admin authentication

// IssueAdminToken exchanges the configured admin API key for a short-lived
// JWT carrying the admin role.
func (s *DefaultService) IssueAdminToken(ctx context.Context, apiKey string) (string, int, error) {
	if len(s.adminKeyHash) == 0 {
		return "", 0, ErrInvalidAdminKey
	}
	if err := bcrypt.CompareHashAndPassword(s.adminKeyHash, []byte(apiKey)); err != nil {
		return "", 0, ErrInvalidAdminKey
	}

	expirationTime := time.Now().Add(s.tokenDuration)
	claims := jwt.MapClaims{
		"sub":  "admin",
		"role": "admin",
		"exp":  expirationTime.Unix(),
		"iat":  time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, fmt.Errorf("error signing token: %w", err)
	}

	return signed, int(s.tokenDuration.Seconds()), nil
}

// User operations

// Register creates the user and their zero balance on first interaction.
func (s *DefaultService) Register(ctx context.Context, userID int64, handle string) error {
	if err := s.repo.EnsureUser(ctx, userID, handle); err != nil {
		return fmt.Errorf("error ensuring user: %w", err)
	}
	return nil
}

func (s *DefaultService) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("error getting balance: %w", err)
	}
	return balance, nil
}

// AssignNumber claims the next free number for the user. A nil number
// means the pool is empty; ownership, once recorded, is permanent.
func (s *DefaultService) AssignNumber(ctx context.Context, userID int64) (*models.Number, error) {
	if err := s.repo.EnsureUser(ctx, userID, ""); err != nil {
		return nil, fmt.Errorf("error ensuring user: %w", err)
	}

	num, err := s.repo.AssignFreeNumber(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error assigning number: %w", err)
	}
	return num, nil
}

func (s *DefaultService) AssignedNumbers(ctx context.Context, userID int64) ([]models.Number, error) {
	numbers, err := s.repo.NumbersByOwner(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing numbers: %w", err)
	}
	return numbers, nil
}

// Inventory operations

// SyncInventory extracts every number-shaped substring from the snapshot
// and inserts the missing ones as unowned. Idempotent: re-running on the
// same text adds nothing new. Returns the count of numbers touched.
func (s *DefaultService) SyncInventory(ctx context.Context, rawText string) (int, error) {
	numbers := matcher.ExtractNumbers(rawText)

	touched := 0
	for _, num := range numbers {
		if _, err := s.repo.AddNumber(ctx, num, "UNKNOWN"); err != nil {
			return touched, fmt.Errorf("error adding number: %w", err)
		}
		touched++
	}

	return touched, nil
}

func (s *DefaultService) Stats(ctx context.Context) (*models.InventoryStats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting stats: %w", err)
	}
	return stats, nil
}

// Crediting engine

// OTPSeen reports whether the (number, otp) pair is already in history.
// Lookup errors are treated as unseen; the transactional re-check in
// ProcessMatches is the authoritative guard.
func (s *DefaultService) OTPSeen(ctx context.Context, number, otp string) bool {
	exists, err := s.repo.OTPExists(ctx, number, otp)
	if err != nil {
		s.log.WithError(err).Warn("otp history lookup failed")
		return false
	}
	return exists
}

// ProcessMatches turns matcher output into durable OTP records and
// credits. Per match: the (number, otp) pair is re-checked inside the
// store transaction (two poll cycles may overlap), the history row is
// always written, and the owner — if any — is credited atomically with it.
// Notification dispatch is fire-and-forget after the ledger commit.
func (s *DefaultService) ProcessMatches(ctx context.Context, matches []matcher.Match) ([]models.CreditEvent, error) {
	var events []models.CreditEvent

	for _, m := range matches {
		rec := &models.OTPRecord{
			Number:  m.Number,
			OTP:     m.OTP,
			FullMsg: m.Snippet,
			Service: m.Service,
			Country: m.Country,
		}

		owner, err := s.repo.RecordOTPAndCredit(ctx, rec, s.earnPerSMS)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateOTP) {
				// Already recorded by an overlapping cycle; not an error.
				continue
			}
			return events, fmt.Errorf("error recording otp: %w", err)
		}

		event := models.CreditEvent{
			Number:  m.Number,
			OTP:     m.OTP,
			Snippet: m.Snippet,
			Service: m.Service,
			Country: m.Country,
			OwnerID: owner,
			Reward:  s.earnPerSMS,
		}
		events = append(events, event)

		s.dispatchCreditEvent(event)
	}

	return events, nil
}

func (s *DefaultService) dispatchCreditEvent(event models.CreditEvent) {
	msg := notify.FormatOTPMessage(event)
	s.notifier.NotifyGroup(msg)
	s.notifier.NotifyAdmin(fmt.Sprintf("New OTP for %s: %s", event.Number, event.OTP))
	if event.OwnerID != nil {
		s.notifier.NotifyUser(*event.OwnerID, msg)
	}
}

// Withdrawal workflow

// ParseWithdrawalCommand parses the "method,target,amount" text collected
// by the chat gateway. The method must be one of the supported payout
// channels.
func ParseWithdrawalCommand(text string) (string, string, decimal.Decimal, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 3 {
		return "", "", decimal.Zero, ErrMalformedCommand
	}

	method := strings.ToLower(strings.TrimSpace(parts[0]))
	target := strings.TrimSpace(parts[1])
	amountStr := strings.TrimSpace(parts[2])

	if !withdrawalMethods[method] || target == "" {
		return "", "", decimal.Zero, ErrMalformedCommand
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil || !amount.IsPositive() {
		return "", "", decimal.Zero, ErrMalformedCommand
	}

	return method, target, amount, nil
}

// MinWithdrawal returns the configured minimum withdrawal amount
func (s *DefaultService) MinWithdrawal() decimal.Decimal {
	return s.minWithdrawal
}

// SubmitWithdrawal records a pending request. The balance is checked at
// submission but not reserved; approval re-checks it. A user can therefore
// hold several pending requests whose sum exceeds their balance — the
// later approvals simply fail the re-check.
func (s *DefaultService) SubmitWithdrawal(
	ctx context.Context,
	userID int64,
	amount decimal.Decimal,
	method, target string,
) (*models.Withdrawal, error) {
	if amount.LessThan(s.minWithdrawal) {
		return nil, ErrBelowMinimum
	}

	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error getting balance: %w", err)
	}
	if balance.LessThan(amount) {
		return nil, repository.ErrInsufficientBalance
	}

	w := &models.Withdrawal{
		UserID: userID,
		Amount: amount,
		Method: method,
		Target: target,
	}
	if err := s.repo.CreateWithdrawal(ctx, w); err != nil {
		return nil, fmt.Errorf("error creating withdrawal: %w", err)
	}

	s.notifier.NotifyAdmin(notify.FormatWithdrawalRequest(w))
	return w, nil
}

func (s *DefaultService) PendingWithdrawals(ctx context.Context) ([]models.Withdrawal, error) {
	withdrawals, err := s.repo.PendingWithdrawals(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing withdrawals: %w", err)
	}
	return withdrawals, nil
}

// ApproveWithdrawal transitions the request to approved and debits the
// balance. Fails — leaving the request pending — when the id is unknown,
// already approved, or the current balance no longer covers the amount.
func (s *DefaultService) ApproveWithdrawal(ctx context.Context, id int64) (*models.Withdrawal, error) {
	w, err := s.repo.ApproveWithdrawal(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrWithdrawalNotFound) ||
			errors.Is(err, repository.ErrInsufficientBalance) {
			return nil, err
		}
		return nil, fmt.Errorf("error approving withdrawal: %w", err)
	}

	s.notifier.NotifyUser(w.UserID, notify.FormatWithdrawalApproved(w))
	return w, nil
}
