package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/domain/catalogs/warehouse"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// WarehouseHandler handles the warehouse catalog and transfer distances.
type WarehouseHandler struct {
	*BaseHandler
	service *warehouse.Service
}

// NewWarehouseHandler creates a new warehouse handler.
func NewWarehouseHandler(base *BaseHandler, service *warehouse.Service) *WarehouseHandler {
	return &WarehouseHandler{BaseHandler: base, service: service}
}

// Create handles POST /catalogs/warehouses
func (h *WarehouseHandler) Create(c *gin.Context) {
	var req dto.CreateWarehouseRequest
	if !h.BindJSON(c, &req) {
		return
	}

	w := req.ToWarehouse()
	if err := h.service.Create(c.Request.Context(), w); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, w.ID)
}

// Get handles GET /catalogs/warehouses/:id
func (h *WarehouseHandler) Get(c *gin.Context) {
	warehouseID, ok := h.ParamID(c)
	if !ok {
		return
	}

	w, err := h.service.GetByID(c.Request.Context(), warehouseID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, w)
}

// List handles GET /catalogs/warehouses
func (h *WarehouseHandler) List(c *gin.Context) {
	var page dto.PageQuery
	if !h.BindQuery(c, &page) {
		return
	}
	page.Defaults()

	items, err := h.service.List(c.Request.Context(), page.Limit, page.Offset)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"items": items, "limit": page.Limit, "offset": page.Offset})
}

// SetDistance handles PUT /catalogs/warehouses/distances
func (h *WarehouseHandler) SetDistance(c *gin.Context) {
	var req dto.SetDistanceRequest
	if !h.BindJSON(c, &req) {
		return
	}

	d, err := req.ToDistance()
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.SaveDistance(c.Request.Context(), d); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, d)
}
