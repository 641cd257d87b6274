package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/domain/transfercost"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// TransferCostHandler handles transfer cost estimation endpoints.
type TransferCostHandler struct {
	*BaseHandler
	estimator *transfercost.Estimator
}

// NewTransferCostHandler creates a new transfer cost handler.
func NewTransferCostHandler(base *BaseHandler, estimator *transfercost.Estimator) *TransferCostHandler {
	return &TransferCostHandler{BaseHandler: base, estimator: estimator}
}

// Estimate handles POST /transfer-cost/estimate
func (h *TransferCostHandler) Estimate(c *gin.Context) {
	var req dto.EstimateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	domainReq, err := req.ToRequest()
	if err != nil {
		h.Error(c, err)
		return
	}

	breakdown, err := h.estimator.Estimate(c.Request.Context(), domainReq)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, breakdown)
}

// RankSources handles POST /transfer-cost/rank-sources
func (h *TransferCostHandler) RankSources(c *gin.Context) {
	var req dto.RankSourcesRequest
	if !h.BindJSON(c, &req) {
		return
	}

	candidates, to, items, err := req.Parse()
	if err != nil {
		h.Error(c, err)
		return
	}

	ranked, err := h.estimator.RankSources(c.Request.Context(), candidates, to, items)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": ranked})
}
