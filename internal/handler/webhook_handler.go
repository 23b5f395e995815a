package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"momopay/internal/domain"
	"momopay/internal/orchestrator"
	"momopay/pkg/payment"

	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	orch *orchestrator.Orchestrator
	log  *slog.Logger
}

func NewWebhookHandler(orch *orchestrator.Orchestrator, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{orch: orch, log: log}
}

// Handle receives a provider status callback. The provider's adapter verifies
// the signature and decodes the body; only verified outcomes reach the ledger.
func (h *WebhookHandler) Handle(c *gin.Context) {
	providerID := c.Param("provider")
	adapter, ok := h.orch.Adapter(providerID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}
	verifier, ok := adapter.(payment.WebhookVerifier)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "provider does not send callbacks"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ev, err := verifier.ParseWebhook(c.Request.Header, c.Request.URL.Query(), body)
	if err != nil {
		h.log.Warn("webhook rejected", "provider", providerID, "err", err)
		if errors.Is(err, payment.ErrInvalidSignature) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tx, err := h.orch.ApplyWebhook(c.Request.Context(), providerID, ev)
	if err != nil {
		// not found asks the provider to redeliver once dispatch has been recorded
		if !errors.Is(err, domain.ErrNotFound) {
			h.log.Error("webhook apply failed", "provider", providerID, "err", err)
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "transaction_id": tx.ID, "state": tx.State})
}
