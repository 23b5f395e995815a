package handler

import (
	"net/http"

	"momopay/internal/domain"
	"momopay/internal/orchestrator"

	"github.com/gin-gonic/gin"
)

type providerLister interface {
	ListProviders() []domain.ProviderDescriptor
}

type ProviderHandler struct {
	providers providerLister
	orch      *orchestrator.Orchestrator
}

func NewProviderHandler(providers providerLister, orch *orchestrator.Orchestrator) *ProviderHandler {
	return &ProviderHandler{providers: providers, orch: orch}
}

// List returns the catalog; available marks providers with a configured adapter.
func (h *ProviderHandler) List(c *gin.Context) {
	list := h.providers.ListProviders()
	out := make([]gin.H, 0, len(list))
	for _, p := range list {
		_, available := h.orch.Adapter(p.ID)
		out = append(out, gin.H{
			"id":           p.ID,
			"display_name": p.DisplayName,
			"prefixes":     p.Prefixes,
			"confirmation": p.Confirmation,
			"ussd_code":    p.USSDCode,
			"status_check": p.StatusCheck,
			"available":    available,
		})
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}
