package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/otpearn/otpearn-server/internal/models"
)

// Repository interface defines the methods that any repository implementation must satisfy
type Repository interface {
	// User operations
	EnsureUser(ctx context.Context, id int64, handle string) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)

	// Inventory operations
	AddNumber(ctx context.Context, number, country string) (bool, error)
	AssignFreeNumber(ctx context.Context, userID int64) (*models.Number, error)
	OwnerOf(ctx context.Context, number string) (*int64, error)
	NumbersByOwner(ctx context.Context, userID int64) ([]models.Number, error)
	Stats(ctx context.Context) (*models.InventoryStats, error)

	// OTP history operations
	OTPExists(ctx context.Context, number, otp string) (bool, error)
	RecordOTPAndCredit(ctx context.Context, rec *models.OTPRecord, reward decimal.Decimal) (*int64, error)

	// Withdrawal operations
	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	GetWithdrawal(ctx context.Context, id int64) (*models.Withdrawal, error)
	PendingWithdrawals(ctx context.Context) ([]models.Withdrawal, error)
	ApproveWithdrawal(ctx context.Context, id int64) (*models.Withdrawal, error)
}

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// GetDB returns the underlying database connection
func (r *PostgresRepository) GetDB() *sqlx.DB {
	return r.db
}

// User repository methods

// EnsureUser creates the user and their zero balance if they don't exist
// yet. Safe to call on every interaction.
func (r *PostgresRepository) EnsureUser(ctx context.Context, id int64, handle string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, handle, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		id, handle, now)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO balances (user_id, amount, updated_at) VALUES ($1, 0, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		id, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresRepository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT * FROM users WHERE id = $1`

	var user models.User
	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, err
	}

	return &user, nil
}

func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	query := `SELECT amount FROM balances WHERE user_id = $1`

	var amount decimal.Decimal
	err := r.db.GetContext(ctx, &amount, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrUserNotFound
		}
		return decimal.Zero, err
	}

	return amount, nil
}

// Inventory repository methods

// AddNumber inserts the number as unowned if absent. Returns true when a
// new row was created.
func (r *PostgresRepository) AddNumber(ctx context.Context, number, country string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO numbers (number, country, added_at) VALUES ($1, $2, $3)
		 ON CONFLICT (number) DO NOTHING`,
		number, country, time.Now().UTC())
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// AssignFreeNumber atomically claims the oldest unowned number for the
// user. SKIP LOCKED guarantees two concurrent callers never receive the
// same number. Returns nil when the pool is empty, which is a normal
// outcome, not a failure.
func (r *PostgresRepository) AssignFreeNumber(ctx context.Context, userID int64) (*models.Number, error) {
	query := `
		UPDATE numbers SET assigned_to = $1
		WHERE number = (
			SELECT number FROM numbers
			WHERE assigned_to IS NULL
			ORDER BY added_at, number
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING number, country, assigned_to, added_at
	`

	var num models.Number
	err := r.db.GetContext(ctx, &num, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No free numbers
		}
		return nil, err
	}

	return &num, nil
}

func (r *PostgresRepository) OwnerOf(ctx context.Context, number string) (*int64, error) {
	query := `SELECT assigned_to FROM numbers WHERE number = $1`

	var owner sql.NullInt64
	err := r.db.GetContext(ctx, &owner, query, number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Unknown number
		}
		return nil, err
	}

	if !owner.Valid {
		return nil, nil
	}

	return &owner.Int64, nil
}

func (r *PostgresRepository) NumbersByOwner(ctx context.Context, userID int64) ([]models.Number, error) {
	query := `SELECT * FROM numbers WHERE assigned_to = $1 ORDER BY added_at, number`

	var numbers []models.Number
	err := r.db.SelectContext(ctx, &numbers, query, userID)
	if err != nil {
		return nil, err
	}

	return numbers, nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*models.InventoryStats, error) {
	var stats models.InventoryStats

	if err := r.db.GetContext(ctx, &stats.TotalNumbers,
		`SELECT COUNT(*) FROM numbers`); err != nil {
		return nil, err
	}
	if err := r.db.GetContext(ctx, &stats.FreeNumbers,
		`SELECT COUNT(*) FROM numbers WHERE assigned_to IS NULL`); err != nil {
		return nil, err
	}
	if err := r.db.GetContext(ctx, &stats.UserCount,
		`SELECT COUNT(*) FROM users`); err != nil {
		return nil, err
	}

	return &stats, nil
}

// OTP history repository methods

func (r *PostgresRepository) OTPExists(ctx context.Context, number, otp string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM otps WHERE number = $1 AND otp = $2)`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, number, otp)
	if err != nil {
		return false, err
	}

	return exists, nil
}

// RecordOTPAndCredit persists the OTP record and credits the number's
// owner by reward in one transaction. The history row is written whether
// or not the number is owned; the credit happens only for owned numbers.
// Returns the credited owner id, or nil when the number was unassigned.
// Returns ErrDuplicateOTP when the (number, otp) pair was already
// recorded; nothing is written in that case.
func (r *PostgresRepository) RecordOTPAndCredit(
	ctx context.Context,
	rec *models.OTPRecord,
	reward decimal.Decimal,
) (*int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	// Generate a new UUID if not provided
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now().UTC()
	}

	// The unique (number, otp) index is the authoritative dedup check;
	// a conflict means another poll cycle already recorded this pair.
	res, err := tx.ExecContext(ctx,
		`INSERT INTO otps (id, number, otp, full_msg, service, country, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (number, otp) DO NOTHING`,
		rec.ID, rec.Number, rec.OTP, rec.FullMsg, rec.Service, rec.Country, rec.FetchedAt)
	if err != nil {
		return nil, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		err = ErrDuplicateOTP
		return nil, err
	}

	// Look up the current owner inside the same transaction so the
	// history write and the credit commit or roll back together.
	var owner sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT assigned_to FROM numbers WHERE number = $1`,
		rec.Number).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// OTP for a number outside the inventory: record history only.
			err = nil
			return nil, tx.Commit()
		}
		return nil, err
	}

	if !owner.Valid {
		return nil, tx.Commit()
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE balances SET amount = amount + $1, updated_at = $2 WHERE user_id = $3`,
		reward, time.Now().UTC(), owner.Int64)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return &owner.Int64, nil
}

// Withdrawal repository methods

func (r *PostgresRepository) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	if w.Status == "" {
		w.Status = models.WithdrawalPending
	}
	if w.RequestedAt.IsZero() {
		w.RequestedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO withdrawals (user_id, amount, method, target, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	return r.db.QueryRowContext(ctx, query,
		w.UserID, w.Amount, w.Method, w.Target, w.Status, w.RequestedAt).Scan(&w.ID)
}

func (r *PostgresRepository) GetWithdrawal(ctx context.Context, id int64) (*models.Withdrawal, error) {
	query := `SELECT * FROM withdrawals WHERE id = $1`

	var w models.Withdrawal
	err := r.db.GetContext(ctx, &w, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Withdrawal not found
		}
		return nil, err
	}

	return &w, nil
}

func (r *PostgresRepository) PendingWithdrawals(ctx context.Context) ([]models.Withdrawal, error) {
	query := `SELECT * FROM withdrawals WHERE status = $1 ORDER BY requested_at, id`

	var withdrawals []models.Withdrawal
	err := r.db.SelectContext(ctx, &withdrawals, query, models.WithdrawalPending)
	if err != nil {
		return nil, err
	}

	return withdrawals, nil
}

// ApproveWithdrawal debits the balance and marks the request approved in
// one transaction. The balance is re-checked under lock at approval time
// because it may have drifted since submission; a failed check leaves the
// request pending and mutates nothing.
func (r *PostgresRepository) ApproveWithdrawal(ctx context.Context, id int64) (*models.Withdrawal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
			return
		}
	}()

	var w models.Withdrawal
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, amount, method, target, status, requested_at
		 FROM withdrawals
		 WHERE id = $1 AND status = $2
		 FOR UPDATE`,
		id, models.WithdrawalPending).Scan(
		&w.ID, &w.UserID, &w.Amount, &w.Method, &w.Target, &w.Status, &w.RequestedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrWithdrawalNotFound
		}
		return nil, err
	}

	var balance decimal.Decimal
	err = tx.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE user_id = $1 FOR UPDATE`,
		w.UserID).Scan(&balance)
	if err != nil {
		return nil, err
	}

	if balance.LessThan(w.Amount) {
		err = ErrInsufficientBalance
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE balances SET amount = amount - $1, updated_at = $2 WHERE user_id = $3`,
		w.Amount, time.Now().UTC(), w.UserID)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE withdrawals SET status = $1 WHERE id = $2`,
		models.WithdrawalApproved, w.ID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	w.Status = models.WithdrawalApproved
	return &w, nil
}
