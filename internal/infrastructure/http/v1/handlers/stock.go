package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/domain/balance"
	"lotledger/internal/domain/documents"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// StockHandler handles stock balance and lot queries.
type StockHandler struct {
	*BaseHandler
	facade     *documents.Facade
	aggregator *balance.Aggregator
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(base *BaseHandler, facade *documents.Facade, aggregator *balance.Aggregator) *StockHandler {
	return &StockHandler{BaseHandler: base, facade: facade, aggregator: aggregator}
}

// GetOnHand handles GET /stock/on-hand
// Returns current quantities for one or more materials in a warehouse.
func (h *StockHandler) GetOnHand(c *gin.Context) {
	var query dto.OnHandQuery
	if !h.BindQuery(c, &query) {
		return
	}

	warehouseID, materialIDs, err := query.ParseIDs()
	if err != nil {
		h.Error(c, err)
		return
	}

	quantities, err := h.facade.GetOnHand(c.Request.Context(), warehouseID, materialIDs)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]gin.H, 0, len(materialIDs))
	for _, materialID := range materialIDs {
		items = append(items, gin.H{
			"materialId": materialID.String(),
			"quantity":   quantities[materialID],
		})
	}

	h.OK(c, gin.H{
		"warehouseId": warehouseID.String(),
		"items":       items,
	})
}

// GetLots handles GET /stock/lots
// Returns the live lots for one material, FIFO ordered.
func (h *StockHandler) GetLots(c *gin.Context) {
	var query dto.LotsQuery
	if !h.BindQuery(c, &query) {
		return
	}

	warehouseID, materialID, err := query.ParseIDs()
	if err != nil {
		h.Error(c, err)
		return
	}

	onHand, err := h.facade.GetLots(c.Request.Context(), warehouseID, materialID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, onHand)
}

// GetTurnover handles GET /stock/turnover
// Sums day buckets over the inclusive date range.
func (h *StockHandler) GetTurnover(c *gin.Context) {
	var query dto.BalanceRangeQuery
	if !h.BindQuery(c, &query) {
		return
	}

	warehouseID, materialID, err := query.ParseIDs()
	if err != nil {
		h.Error(c, err)
		return
	}

	turnover, err := h.aggregator.GetTurnover(c.Request.Context(), warehouseID, materialID, query.From, query.To)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, turnover)
}

// GetDaily handles GET /stock/daily
// Returns the raw per-day buckets over the inclusive date range.
func (h *StockHandler) GetDaily(c *gin.Context) {
	var query dto.BalanceRangeQuery
	if !h.BindQuery(c, &query) {
		return
	}

	warehouseID, materialID, err := query.ParseIDs()
	if err != nil {
		h.Error(c, err)
		return
	}

	rows, err := h.aggregator.GetDaily(c.Request.Context(), warehouseID, materialID, query.From, query.To)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": rows})
}
