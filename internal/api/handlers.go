package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/otpearn/otpearn-server/internal/models"
	"github.com/otpearn/otpearn-server/internal/repository"
	"github.com/otpearn/otpearn-server/internal/service"
	"github.com/otpearn/otpearn-server/internal/state"
)

const withdrawalPrompt = "Send withdrawal info in the format: method,target,amount " +
	"(methods: bkash, nagad, rocket, bank). Example: bkash,017XXXXXXXX,500"

// InventorySyncer fetches a fresh snapshot from the portal and syncs the
// number inventory from it. Nil when the server runs without a portal.
type InventorySyncer interface {
	SyncInventoryOnce(ctx context.Context) (int, error)
}

// Handler holds the API dependencies
type Handler struct {
	svc    service.Service
	states *state.Store
	syncer InventorySyncer
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service, states *state.Store, syncer InventorySyncer) *Handler {
	return &Handler{
		svc:    svc,
		states: states,
		syncer: syncer,
	}
}

// SetupRoutes registers all API routes on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/auth/token", h.IssueAdminToken)

		apiGroup.POST("/users", h.Register)
		apiGroup.GET("/users/:id/balance", h.GetBalance)
		apiGroup.GET("/users/:id/numbers", h.GetNumbers)
		apiGroup.POST("/users/:id/numbers", h.AssignNumber)
		apiGroup.POST("/users/:id/withdrawals/begin", h.BeginWithdrawal)
		apiGroup.POST("/users/:id/withdrawals", h.SubmitWithdrawal)

		admin := apiGroup.Group("/admin", AdminAuthMiddleware())
		{
			admin.GET("/withdrawals", h.PendingWithdrawals)
			admin.POST("/withdrawals/:id/approve", h.ApproveWithdrawal)
			admin.POST("/inventory/sync", h.SyncInventory)
			admin.GET("/stats", h.Stats)
		}
	}
}

// IssueAdminToken exchanges the admin API key for a JWT
func (h *Handler) IssueAdminToken(c *gin.Context) {
	var req models.AdminTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	token, expiresIn, err := h.svc.IssueAdminToken(c.Request.Context(), req.APIKey)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAdminKey) {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{
				Status:  "error",
				Code:    "UNAUTHORIZED",
				Message: "Invalid admin key",
			})
			return
		}
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.AdminTokenResponse{
		Status:    "success",
		Token:     token,
		ExpiresIn: expiresIn,
	})
}

// Register creates a user on first interaction
func (h *Handler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	if err := h.svc.Register(c.Request.Context(), req.UserID, req.Handle); err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.RegisterResponse{
		Status: "success",
		UserID: req.UserID,
		Handle: req.Handle,
	})
}

// GetBalance returns the user's current balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	balance, err := h.svc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			notFound(c, "USER_NOT_FOUND", "Unknown user")
			return
		}
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.BalanceResponse{
		Status:  "success",
		UserID:  userID,
		Balance: balance.StringFixed(2),
	})
}

// GetNumbers lists the numbers assigned to the user
func (h *Handler) GetNumbers(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	numbers, err := h.svc.AssignedNumbers(c.Request.Context(), userID)
	if err != nil {
		internalError(c, err)
		return
	}

	list := make([]string, 0, len(numbers))
	for _, n := range numbers {
		list = append(list, n.Number)
	}

	c.JSON(http.StatusOK, models.NumbersResponse{
		Status:  "success",
		UserID:  userID,
		Numbers: list,
	})
}

// AssignNumber claims a free number for the user. An empty pool is a
// normal outcome reported with status "empty".
func (h *Handler) AssignNumber(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	num, err := h.svc.AssignNumber(c.Request.Context(), userID)
	if err != nil {
		internalError(c, err)
		return
	}

	if num == nil {
		c.JSON(http.StatusOK, models.AssignNumberResponse{Status: "empty"})
		return
	}

	c.JSON(http.StatusOK, models.AssignNumberResponse{
		Status:  "success",
		Number:  num.Number,
		Country: num.Country,
	})
}

// BeginWithdrawal arms the withdrawal conversation for the user after a
// minimum-balance precheck
func (h *Handler) BeginWithdrawal(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	balance, err := h.svc.GetBalance(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			notFound(c, "USER_NOT_FOUND", "Unknown user")
			return
		}
		internalError(c, err)
		return
	}
	if balance.LessThan(h.svc.MinWithdrawal()) {
		badRequest(c, "BELOW_MINIMUM",
			"Minimum withdrawal is "+h.svc.MinWithdrawal().StringFixed(2)+
				", your balance is "+balance.StringFixed(2))
		return
	}

	h.states.Set(userID, state.AwaitingWithdrawalDetails)

	c.JSON(http.StatusOK, models.BeginWithdrawalResponse{
		Status: "success",
		Prompt: withdrawalPrompt,
	})
}

// SubmitWithdrawal accepts the raw command text collected by the gateway.
// Requires the conversation to be armed by BeginWithdrawal first.
func (h *Handler) SubmitWithdrawal(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	if h.states.Get(userID) != state.AwaitingWithdrawalDetails {
		badRequest(c, "NOT_AWAITING", "No withdrawal in progress; begin one first")
		return
	}

	var req models.SubmitWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	method, target, amount, err := service.ParseWithdrawalCommand(req.Command)
	if err != nil {
		// Malformed input creates no state; the conversation stays armed
		// so the user can retry.
		badRequest(c, "MALFORMED_COMMAND", withdrawalPrompt)
		return
	}

	w, err := h.svc.SubmitWithdrawal(c.Request.Context(), userID, amount, method, target)
	if err != nil {
		h.states.Clear(userID)
		switch {
		case errors.Is(err, service.ErrBelowMinimum):
			badRequest(c, "BELOW_MINIMUM", "Amount is below the minimum withdrawal")
		case errors.Is(err, repository.ErrInsufficientBalance):
			badRequest(c, "INSUFFICIENT_BALANCE", "Insufficient balance")
		default:
			internalError(c, err)
		}
		return
	}

	h.states.Clear(userID)

	c.JSON(http.StatusCreated, models.WithdrawalResponse{
		Status:       "success",
		WithdrawalID: w.ID,
		Amount:       w.Amount.StringFixed(2),
		Method:       w.Method,
		Target:       w.Target,
	})
}

// PendingWithdrawals lists pending requests for the admin
func (h *Handler) PendingWithdrawals(c *gin.Context) {
	withdrawals, err := h.svc.PendingWithdrawals(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}

	if withdrawals == nil {
		withdrawals = []models.Withdrawal{}
	}

	c.JSON(http.StatusOK, models.PendingWithdrawalsResponse{
		Status:      "success",
		Withdrawals: withdrawals,
	})
}

// ApproveWithdrawal approves a pending request. A failed precondition
// leaves the request pending and is reported as a failure.
func (h *Handler) ApproveWithdrawal(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "INVALID_ID", "Withdrawal id must be numeric")
		return
	}

	w, err := h.svc.ApproveWithdrawal(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrWithdrawalNotFound):
			notFound(c, "WITHDRAWAL_NOT_FOUND", "Unknown or already approved withdrawal")
		case errors.Is(err, repository.ErrInsufficientBalance):
			c.JSON(http.StatusConflict, models.ErrorResponse{
				Status:  "error",
				Code:    "INSUFFICIENT_BALANCE",
				Message: "User balance no longer covers the amount; request left pending",
			})
		default:
			internalError(c, err)
		}
		return
	}

	c.JSON(http.StatusOK, models.ApproveWithdrawalResponse{
		Status:       "success",
		WithdrawalID: w.ID,
		UserID:       w.UserID,
		Amount:       w.Amount.StringFixed(2),
	})
}

// SyncInventory syncs the number pool, from the supplied snapshot or from
// a fresh portal fetch
func (h *Handler) SyncInventory(c *gin.Context) {
	var req models.SyncInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	var synced int
	var err error
	if req.RawText != "" {
		synced, err = h.svc.SyncInventory(c.Request.Context(), req.RawText)
	} else if h.syncer != nil {
		synced, err = h.syncer.SyncInventoryOnce(c.Request.Context())
	} else {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Status:  "error",
			Code:    "NO_PORTAL",
			Message: "No portal configured and no snapshot supplied",
		})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SyncInventoryResponse{
		Status: "success",
		Synced: synced,
	})
}

// Stats reports inventory and user counts
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.StatsResponse{
		Status: "success",
		Stats:  *stats,
	})
}

// Helpers

func pathUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "INVALID_USER_ID", "User id must be numeric")
		return 0, false
	}
	return id, true
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

func notFound(c *gin.Context, code, message string) {
	c.JSON(http.StatusNotFound, models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Status:  "error",
		Code:    "INTERNAL_ERROR",
		Message: err.Error(),
	})
}
