package handler

import (
	"errors"
	"net/http"

	"momopay/internal/middleware"
	"momopay/internal/reconcile"

	"github.com/gin-gonic/gin"
)

type ReconcileHandler struct {
	svc *reconcile.Service
}

func NewReconcileHandler(svc *reconcile.Service) *ReconcileHandler {
	return &ReconcileHandler{svc: svc}
}

func (h *ReconcileHandler) List(c *gin.Context) {
	rep, err := h.svc.Report(c.Request.Context(), middleware.GetClientID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *ReconcileHandler) Export(c *gin.Context) {
	exp, err := h.svc.Export(c.Request.Context(), middleware.GetClientID(c))
	if err != nil {
		if errors.Is(err, reconcile.ErrArchiveDisabled) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, exp)
}
