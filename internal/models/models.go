package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Withdrawal statuses. There is no rejected state: a failed approval leaves
// the request pending for retry or manual resolution.
const (
	WithdrawalPending  = "pending"
	WithdrawalApproved = "approved"
)

// User represents a participant identified by their chat id
type User struct {
	ID        int64     `db:"id" json:"id"`
	Handle    string    `db:"handle" json:"handle"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Balance represents a user's accumulated credit
type Balance struct {
	UserID    int64           `db:"user_id" json:"userId"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	UpdatedAt time.Time       `db:"updated_at" json:"updatedAt"`
}

// Number represents a phone number in the shared inventory.
// AssignedTo is nil until a user claims it; ownership is permanent.
type Number struct {
	Number     string     `db:"number" json:"number"`
	Country    string     `db:"country" json:"country"`
	AssignedTo *int64     `db:"assigned_to" json:"assignedTo,omitempty"`
	AddedAt    time.Time  `db:"added_at" json:"addedAt"`
}

// OTPRecord is one extracted passcode. The (Number, OTP) pair is unique
// across all history and is the sole deduplication key.
type OTPRecord struct {
	ID        string    `db:"id" json:"id"`
	Number    string    `db:"number" json:"number"`
	OTP       string    `db:"otp" json:"otp"`
	FullMsg   string    `db:"full_msg" json:"fullMsg"`
	Service   string    `db:"service" json:"service"`
	Country   string    `db:"country" json:"country"`
	FetchedAt time.Time `db:"fetched_at" json:"fetchedAt"`
}

// Withdrawal represents a cash-out request
type Withdrawal struct {
	ID          int64           `db:"id" json:"id"`
	UserID      int64           `db:"user_id" json:"userId"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Method      string          `db:"method" json:"method"`
	Target      string          `db:"target" json:"target"`
	Status      string          `db:"status" json:"status"`
	RequestedAt time.Time       `db:"requested_at" json:"requestedAt"`
}

// CreditEvent describes one processed OTP, emitted for notification
// dispatch. OwnerID is nil when the number was unassigned at credit time.
type CreditEvent struct {
	Number  string          `json:"number"`
	OTP     string          `json:"otp"`
	Snippet string          `json:"snippet"`
	Service string          `json:"service"`
	Country string          `json:"country"`
	OwnerID *int64          `json:"ownerId,omitempty"`
	Reward  decimal.Decimal `json:"reward"`
}

// InventoryStats summarizes the number pool for the admin
type InventoryStats struct {
	TotalNumbers int `json:"totalNumbers"`
	FreeNumbers  int `json:"freeNumbers"`
	UserCount    int `json:"userCount"`
}
