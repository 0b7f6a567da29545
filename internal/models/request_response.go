package models

// Request models
type RegisterRequest struct {
	UserID int64  `json:"userId" binding:"required"`
	Handle string `json:"handle"`
}

type AdminTokenRequest struct {
	APIKey string `json:"apiKey" binding:"required"`
}

type SubmitWithdrawalRequest struct {
	// Raw command text in the "method,target,amount" format the chat
	// gateway collects from the user, e.g. "bkash,017XXXXXXXX,500".
	Command string `json:"command" binding:"required"`
}

type SyncInventoryRequest struct {
	// Optional raw snapshot; when empty the server fetches one from the
	// portal itself.
	RawText string `json:"rawText"`
}

// Response models
type BeginWithdrawalResponse struct {
	Status string `json:"status"`
	Prompt string `json:"prompt"`
}

type AdminTokenResponse struct {
	Status    string `json:"status"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expiresIn,omitempty"`
}

type RegisterResponse struct {
	Status string `json:"status"`
	UserID int64  `json:"userId"`
	Handle string `json:"handle,omitempty"`
}

type BalanceResponse struct {
	Status  string `json:"status"`
	UserID  int64  `json:"userId"`
	Balance string `json:"balance"`
}

type AssignNumberResponse struct {
	Status  string `json:"status"`
	Number  string `json:"number,omitempty"`
	Country string `json:"country,omitempty"`
}

type NumbersResponse struct {
	Status  string   `json:"status"`
	UserID  int64    `json:"userId"`
	Numbers []string `json:"numbers"`
}

type WithdrawalResponse struct {
	Status       string `json:"status"`
	WithdrawalID int64  `json:"withdrawalId,omitempty"`
	Amount       string `json:"amount,omitempty"`
	Method       string `json:"method,omitempty"`
	Target       string `json:"target,omitempty"`
}

type PendingWithdrawalsResponse struct {
	Status      string       `json:"status"`
	Withdrawals []Withdrawal `json:"withdrawals"`
}

type ApproveWithdrawalResponse struct {
	Status       string `json:"status"`
	WithdrawalID int64  `json:"withdrawalId"`
	UserID       int64  `json:"userId,omitempty"`
	Amount       string `json:"amount,omitempty"`
}

type SyncInventoryResponse struct {
	Status string `json:"status"`
	Synced int    `json:"synced"`
}

type StatsResponse struct {
	Status string         `json:"status"`
	Stats  InventoryStats `json:"stats"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
