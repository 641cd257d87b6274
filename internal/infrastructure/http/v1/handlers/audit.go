package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/infrastructure/storage/postgres"
)

// AuditHandler exposes the transition audit trail of a document.
type AuditHandler struct {
	*BaseHandler
	audit *postgres.AuditLog
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(base *BaseHandler, audit *postgres.AuditLog) *AuditHandler {
	return &AuditHandler{BaseHandler: base, audit: audit}
}

// GetByDocument handles GET /documents/:id/audit
func (h *AuditHandler) GetByDocument(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	limit := h.ParseIntQuery(c, "limit", 100)

	entries, err := h.audit.GetByDocument(c.Request.Context(), docID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": entries})
}
