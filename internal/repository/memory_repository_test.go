package repository_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otpearn/otpearn-server/internal/models"
	"github.com/otpearn/otpearn-server/internal/repository"
)

func TestAddNumberDedupes(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	added, err := repo.AddNumber(ctx, "1555000111", "UNKNOWN")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = repo.AddNumber(ctx, "1555000111", "UNKNOWN")
	require.NoError(t, err)
	assert.False(t, added)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalNumbers)
}

func TestAssignFreeNumberFollowsInsertionOrder(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	for _, n := range []string{"1555000111", "1555000222", "1555000333"} {
		_, err := repo.AddNumber(ctx, n, "UNKNOWN")
		require.NoError(t, err)
	}

	first, err := repo.AssignFreeNumber(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "1555000111", first.Number)

	second, err := repo.AssignFreeNumber(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "1555000222", second.Number)

	owner, err := repo.OwnerOf(ctx, "1555000111")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, int64(1), *owner)

	// The remaining free number is the third one.
	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FreeNumbers)
}

func TestRecordOTPAndCredit(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	reward := decimal.NewFromFloat(1.0)

	require.NoError(t, repo.EnsureUser(ctx, 42, "alice"))
	_, err := repo.AddNumber(ctx, "1555000111", "UNKNOWN")
	require.NoError(t, err)
	_, err = repo.AssignFreeNumber(ctx, 42)
	require.NoError(t, err)

	owner, err := repo.RecordOTPAndCredit(ctx,
		&models.OTPRecord{Number: "1555000111", OTP: "9321"}, reward)
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, int64(42), *owner)

	balance, err := repo.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(reward))

	// The same pair again is a duplicate, not a second credit.
	_, err = repo.RecordOTPAndCredit(ctx,
		&models.OTPRecord{Number: "1555000111", OTP: "9321"}, reward)
	assert.ErrorIs(t, err, repository.ErrDuplicateOTP)

	// A different code on the same number credits again.
	_, err = repo.RecordOTPAndCredit(ctx,
		&models.OTPRecord{Number: "1555000111", OTP: "7777"}, reward)
	require.NoError(t, err)

	balance, err = repo.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(2)))
}

func TestRecordOTPUnownedNumber(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.AddNumber(ctx, "1555000111", "UNKNOWN")
	require.NoError(t, err)

	owner, err := repo.RecordOTPAndCredit(ctx,
		&models.OTPRecord{Number: "1555000111", OTP: "9321"}, decimal.NewFromFloat(1.0))
	require.NoError(t, err)
	assert.Nil(t, owner)

	// The history entry exists even without an owner.
	exists, err := repo.OTPExists(ctx, "1555000111", "9321")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestApproveWithdrawalTransitions(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.EnsureUser(ctx, 42, "alice"))
	_, err := repo.AddNumber(ctx, "1555000111", "UNKNOWN")
	require.NoError(t, err)
	_, err = repo.AssignFreeNumber(ctx, 42)
	require.NoError(t, err)
	_, err = repo.RecordOTPAndCredit(ctx,
		&models.OTPRecord{Number: "1555000111", OTP: "9321"}, decimal.NewFromInt(300))
	require.NoError(t, err)

	w := &models.Withdrawal{UserID: 42, Amount: decimal.NewFromInt(250), Method: "bkash", Target: "017000"}
	require.NoError(t, repo.CreateWithdrawal(ctx, w))
	assert.Equal(t, models.WithdrawalPending, w.Status)

	pending, err := repo.PendingWithdrawals(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	approved, err := repo.ApproveWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalApproved, approved.Status)

	balance, err := repo.GetBalance(ctx, 42)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(50)))

	// Already approved: treated as not found.
	_, err = repo.ApproveWithdrawal(ctx, w.ID)
	assert.ErrorIs(t, err, repository.ErrWithdrawalNotFound)

	_, err = repo.ApproveWithdrawal(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrWithdrawalNotFound)
}

func TestApproveWithdrawalInsufficientBalance(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.EnsureUser(ctx, 42, "alice"))

	w := &models.Withdrawal{UserID: 42, Amount: decimal.NewFromInt(250), Method: "bkash", Target: "017000"}
	require.NoError(t, repo.CreateWithdrawal(ctx, w))

	_, err := repo.ApproveWithdrawal(ctx, w.ID)
	assert.ErrorIs(t, err, repository.ErrInsufficientBalance)

	// The failed approval leaves the request pending.
	stored, err := repo.GetWithdrawal(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalPending, stored.Status)
}

func TestGetBalanceUnknownUser(t *testing.T) {
	repo := repository.NewMemoryRepository()

	_, err := repo.GetBalance(context.Background(), 999)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}
