package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/domain/catalogs/material"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// MaterialHandler handles the material catalog.
type MaterialHandler struct {
	*BaseHandler
	service *material.Service
}

// NewMaterialHandler creates a new material handler.
func NewMaterialHandler(base *BaseHandler, service *material.Service) *MaterialHandler {
	return &MaterialHandler{BaseHandler: base, service: service}
}

// Create handles POST /catalogs/materials
func (h *MaterialHandler) Create(c *gin.Context) {
	var req dto.CreateMaterialRequest
	if !h.BindJSON(c, &req) {
		return
	}

	m := req.ToMaterial()
	if err := h.service.Create(c.Request.Context(), m); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m.ID)
}

// Get handles GET /catalogs/materials/:id
func (h *MaterialHandler) Get(c *gin.Context) {
	materialID, ok := h.ParamID(c)
	if !ok {
		return
	}

	m, err := h.service.GetByID(c.Request.Context(), materialID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, m)
}

// Update handles PUT /catalogs/materials/:id
func (h *MaterialHandler) Update(c *gin.Context) {
	materialID, ok := h.ParamID(c)
	if !ok {
		return
	}

	m, err := h.service.GetByID(c.Request.Context(), materialID)
	if err != nil {
		h.Error(c, err)
		return
	}

	// Bind over the loaded material so omitted fields keep their values.
	if !h.BindJSON(c, m) {
		return
	}
	m.ID = materialID

	if err := h.service.Update(c.Request.Context(), m); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, m)
}

// List handles GET /catalogs/materials
func (h *MaterialHandler) List(c *gin.Context) {
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
