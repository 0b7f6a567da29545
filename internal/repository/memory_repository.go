package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/otpearn/otpearn-server/internal/models"
)

// MemoryRepository is an in-memory Repository implementation. It backs the
// test suite and small single-process deployments that don't need Postgres.
type MemoryRepository struct {
	mu sync.Mutex

	users       map[int64]models.User
	balances    map[int64]decimal.Decimal
	numbers     map[string]*models.Number
	numberOrder []string // insertion order, drives assignment order
	otps        map[string]models.OTPRecord
	withdrawals map[int64]*models.Withdrawal
	nextWID     int64
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:       make(map[int64]models.User),
		balances:    make(map[int64]decimal.Decimal),
		numbers:     make(map[string]*models.Number),
		otps:        make(map[string]models.OTPRecord),
		withdrawals: make(map[int64]*models.Withdrawal),
		nextWID:     1,
	}
}

func otpKey(number, otp string) string {
	return number + "|" + otp
}

func (r *MemoryRepository) EnsureUser(ctx context.Context, id int64, handle string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		r.users[id] = models.User{ID: id, Handle: handle, CreatedAt: time.Now().UTC()}
	}
	if _, ok := r.balances[id]; !ok {
		r.balances[id] = decimal.Zero
	}
	return nil
}

func (r *MemoryRepository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *MemoryRepository) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bal, ok := r.balances[userID]
	if !ok {
		return decimal.Zero, ErrUserNotFound
	}
	return bal, nil
}

func (r *MemoryRepository) AddNumber(ctx context.Context, number, country string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.numbers[number]; ok {
		return false, nil
	}
	r.numbers[number] = &models.Number{
		Number:  number,
		Country: country,
		AddedAt: time.Now().UTC(),
	}
	r.numberOrder = append(r.numberOrder, number)
	return true, nil
}

func (r *MemoryRepository) AssignFreeNumber(ctx context.Context, userID int64) (*models.Number, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range r.numberOrder {
		num := r.numbers[key]
		if num.AssignedTo == nil {
			owner := userID
			num.AssignedTo = &owner
			copied := *num
			return &copied, nil
		}
	}
	return nil, nil // No free numbers
}

func (r *MemoryRepository) OwnerOf(ctx context.Context, number string) (*int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	num, ok := r.numbers[number]
	if !ok || num.AssignedTo == nil {
		return nil, nil
	}
	owner := *num.AssignedTo
	return &owner, nil
}

func (r *MemoryRepository) NumbersByOwner(ctx context.Context, userID int64) ([]models.Number, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var numbers []models.Number
	for _, key := range r.numberOrder {
		num := r.numbers[key]
		if num.AssignedTo != nil && *num.AssignedTo == userID {
			numbers = append(numbers, *num)
		}
	}
	return numbers, nil
}

func (r *MemoryRepository) Stats(ctx context.Context) (*models.InventoryStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &models.InventoryStats{
		TotalNumbers: len(r.numbers),
		UserCount:    len(r.users),
	}
	for _, num := range r.numbers {
		if num.AssignedTo == nil {
			stats.FreeNumbers++
		}
	}
	return stats, nil
}

func (r *MemoryRepository) OTPExists(ctx context.Context, number, otp string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.otps[otpKey(number, otp)]
	return ok, nil
}

func (r *MemoryRepository) RecordOTPAndCredit(
	ctx context.Context,
	rec *models.OTPRecord,
	reward decimal.Decimal,
) (*int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := otpKey(rec.Number, rec.OTP)
	if _, ok := r.otps[key]; ok {
		return nil, ErrDuplicateOTP
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now().UTC()
	}
	r.otps[key] = *rec

	num, ok := r.numbers[rec.Number]
	if !ok || num.AssignedTo == nil {
		return nil, nil
	}

	owner := *num.AssignedTo
	r.balances[owner] = r.balances[owner].Add(reward)
	return &owner, nil
}

func (r *MemoryRepository) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.Status == "" {
		w.Status = models.WithdrawalPending
	}
	if w.RequestedAt.IsZero() {
		w.RequestedAt = time.Now().UTC()
	}
	w.ID = r.nextWID
	r.nextWID++

	copied := *w
	r.withdrawals[w.ID] = &copied
	return nil
}

func (r *MemoryRepository) GetWithdrawal(ctx context.Context, id int64) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.withdrawals[id]
	if !ok {
		return nil, nil
	}
	copied := *w
	return &copied, nil
}

func (r *MemoryRepository) PendingWithdrawals(ctx context.Context) ([]models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []models.Withdrawal
	for id := int64(1); id < r.nextWID; id++ {
		if w, ok := r.withdrawals[id]; ok && w.Status == models.WithdrawalPending {
			pending = append(pending, *w)
		}
	}
	return pending, nil
}

func (r *MemoryRepository) ApproveWithdrawal(ctx context.Context, id int64) (*models.Withdrawal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.withdrawals[id]
	if !ok || w.Status != models.WithdrawalPending {
		return nil, ErrWithdrawalNotFound
	}

	balance := r.balances[w.UserID]
	if balance.LessThan(w.Amount) {
		return nil, ErrInsufficientBalance
	}

	r.balances[w.UserID] = balance.Sub(w.Amount)
	w.Status = models.WithdrawalApproved

	copied := *w
	return &copied, nil
}
