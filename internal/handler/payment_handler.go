package handler

import (
	"errors"
	"net/http"
	"time"

	"momopay/internal/domain"
	"momopay/internal/middleware"
	"momopay/internal/orchestrator"
	"momopay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	orch *orchestrator.Orchestrator
}

func NewPaymentHandler(orch *orchestrator.Orchestrator) *PaymentHandler {
	return &PaymentHandler{orch: orch}
}

type initiateRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" binding:"required"`
	Phone          string          `json:"phone" binding:"required"`
	ProviderHint   string          `json:"provider_hint"`
	CountryHint    string          `json:"country_hint"`
	Description    string          `json:"description" binding:"max=255"`
	IdempotencyKey string          `json:"idempotency_key" binding:"max=128"`
	CallbackURL    string          `json:"callback_url" binding:"omitempty,url"`
	NotifyToken    string          `json:"notify_token"`
}

type paymentView struct {
	TransactionID     string       `json:"transaction_id"`
	State             domain.State `json:"state"`
	Amount            string       `json:"amount"`
	Currency          string       `json:"currency"`
	Phone             string       `json:"phone"`
	ProviderID        string       `json:"provider_id,omitempty"`
	ProviderReference string       `json:"provider_reference,omitempty"`
	IdempotencyKey    string       `json:"idempotency_key"`
	Error             string       `json:"error,omitempty"`
	AttemptCount      int          `json:"attempt_count"`
	CancelRequested   bool         `json:"cancel_requested"`
	RetryOf           string       `json:"retry_of,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func toView(tx *domain.Transaction) paymentView {
	phone := tx.NormalizedPhone
	if phone == "" {
		phone = tx.Request.Phone
	}
	return paymentView{
		TransactionID:     tx.ID,
		State:             tx.State,
		Amount:            tx.Request.Amount.String(),
		Currency:          tx.Request.Currency,
		Phone:             domain.MaskPhone(phone),
		ProviderID:        tx.ProviderID,
		ProviderReference: tx.ProviderReference,
		IdempotencyKey:    tx.Request.IdempotencyKey,
		Error:             tx.LastError,
		AttemptCount:      tx.AttemptCount,
		CancelRequested:   tx.CancelRequested,
		RetryOf:           tx.RetryOf,
		CreatedAt:         tx.CreatedAt,
		UpdatedAt:         tx.UpdatedAt,
	}
}

// Initiate starts a collection. The Idempotency-Key header wins over the body field.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.CallbackURL != "" {
		if _, err := service.ValidateCallbackURL(req.CallbackURL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	key := req.IdempotencyKey
	if hk := c.GetHeader("Idempotency-Key"); hk != "" {
		key = hk
	}
	tx, err := h.orch.Initiate(c.Request.Context(), domain.PaymentRequest{
		Amount:         req.Amount,
		Currency:       req.Currency,
		Phone:          req.Phone,
		ProviderHint:   req.ProviderHint,
		CountryHint:    req.CountryHint,
		Description:    req.Description,
		IdempotencyKey: key,
		ClientID:       middleware.GetClientID(c),
		CallbackURL:    req.CallbackURL,
		NotifyToken:    req.NotifyToken,
	})
	if err != nil {
		if errors.Is(err, orchestrator.ErrKeyReused) && tx != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "transaction_id": tx.ID})
			return
		}
		respondError(c, err)
		return
	}
	if tx.State == domain.StateRejected {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"transaction_id": tx.ID, "state": tx.State, "error": tx.LastError})
		return
	}
	c.JSON(http.StatusAccepted, toView(tx))
}

func (h *PaymentHandler) Get(c *gin.Context) {
	tx, err := h.orch.Lookup(c.Request.Context(), middleware.GetClientID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(tx))
}

func (h *PaymentHandler) History(c *gin.Context) {
	records, err := h.orch.History(c.Request.Context(), middleware.GetClientID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	// raw provider payloads stay internal
	out := make([]gin.H, 0, len(records))
	for _, r := range records {
		out = append(out, gin.H{"from": r.From, "to": r.To, "source": r.Source, "error": r.Error, "at": r.At})
	}
	c.JSON(http.StatusOK, gin.H{"transaction_id": c.Param("id"), "events": out})
}

func (h *PaymentHandler) Cancel(c *gin.Context) {
	tx, err := h.orch.Cancel(c.Request.Context(), middleware.GetClientID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(tx))
}
