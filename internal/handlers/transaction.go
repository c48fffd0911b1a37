package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/depositly-backend/internal/apierr"
	"github.com/yungbote/depositly-backend/internal/logger"
	"github.com/yungbote/depositly-backend/internal/services"
)

type TransactionHandler struct {
	log   *logger.Logger
	txSvc services.TransactionService
}

func NewTransactionHandler(log *logger.Logger, txSvc services.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		log:   log.With("handler", "TransactionHandler"),
		txSvc: txSvc,
	}
}

type openIntentRequest struct {
	ItemID      *uuid.UUID `json:"item_id"`
	Amount      int64      `json:"amount"`
	Currency    string     `json:"currency"`
	BusinessID  uuid.UUID  `json:"business_id"`
	Description string     `json:"description"`
}

// POST /transactions
// Authorize a hold and open a deposit intent.
func (h *TransactionHandler) OpenIntent(c *gin.Context) {
	var req openIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	result, err := h.txSvc.OpenIntent(c.Request.Context(), services.OpenIntentInput{
		ItemID:      req.ItemID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		BusinessID:  req.BusinessID,
		Description: req.Description,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondCreated(c, result)
}

// POST /transactions/:id/confirm
// Move a paid intent to open once its hold is capturable.
func (h *TransactionHandler) ConfirmPayment(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	tr, err := h.txSvc.ConfirmPayment(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, tr)
}

// POST /transactions/:id/close
// Release the hold and settle the deposit without charge.
func (h *TransactionHandler) CloseTransaction(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	tr, err := h.txSvc.CloseTransaction(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, tr)
}

type captureRequest struct {
	Amount      *int64 `json:"amount"`
	Description string `json:"description"`
}

// POST /transactions/:id/capture
// Capture up to the held amount and settle the deposit.
func (h *TransactionHandler) CaptureDeposit(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	var req captureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, apierr.Validation("invalid request body: %v", err))
		return
	}
	tr, err := h.txSvc.CaptureDeposit(c.Request.Context(), id, services.CaptureInput{
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, tr)
}

// DELETE /transactions/:id
// Abandon an unconfirmed intent and release its hold.
func (h *TransactionHandler) DeleteIntent(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	if err := h.txSvc.DeleteIntentTransaction(c.Request.Context(), id); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"deleted": true})
}

// GET /transactions/:id
func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	id, err := pathUUID(c, "id")
	if err != nil {
		RespondError(c, err)
		return
	}
	tr, err := h.txSvc.Get(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, tr)
}

// GET /transactions
// List the caller's transactions, newest first.
func (h *TransactionHandler) ListTransactions(c *gin.Context) {
	trs, err := h.txSvc.List(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, gin.H{"transactions": trs})
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apierr.Validation("invalid %s: %v", name, err)
	}
	return id, nil
}
