package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/domain/documents"
	"lotledger/internal/domain/documents/issue"
	"lotledger/internal/domain/documents/receipt"
	"lotledger/internal/domain/documents/transfer"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// DocumentsHandler handles document lifecycle endpoints. Creation and
// transitions go through the facade; reads hit the typed services.
type DocumentsHandler struct {
	*BaseHandler
	facade    *documents.Facade
	receipts  *receipt.Service
	issues    *issue.Service
	transfers *transfer.Service
}

// NewDocumentsHandler creates a new documents handler.
func NewDocumentsHandler(
	base *BaseHandler,
	facade *documents.Facade,
	receipts *receipt.Service,
	issues *issue.Service,
	transfers *transfer.Service,
) *DocumentsHandler {
	return &DocumentsHandler{
		BaseHandler: base,
		facade:      facade,
		receipts:    receipts,
		issues:      issues,
		transfers:   transfers,
	}
}

// Create handles POST /documents
func (h *DocumentsHandler) Create(c *gin.Context) {
	var req documents.CreateRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.facade.CreateDocument(c.Request.Context(), req)
	if err != nil {
		h.Error(c, err)
		return
	}

	c.JSON(201, res)
}

// Transition handles POST /documents/:id/transition
func (h *DocumentsHandler) Transition(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	var req dto.TransitionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.facade.Transition(c.Request.Context(), docID, req.Action)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, res)
}

// --- Receipts ---

// GetReceipt handles GET /documents/receipts/:id
func (h *DocumentsHandler) GetReceipt(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	doc, err := h.receipts.GetByID(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// ListReceipts handles GET /documents/receipts
func (h *DocumentsHandler) ListReceipts(c *gin.Context) {
	var query dto.DocumentListQuery
	if !h.BindQuery(c, &query) {
		return
	}

	filter, err := query.ToReceiptFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.receipts.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// --- Issues ---

// GetIssue handles GET /documents/issues/:id
func (h *DocumentsHandler) GetIssue(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	doc, err := h.issues.GetByID(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// ListIssues handles GET /documents/issues
func (h *DocumentsHandler) ListIssues(c *gin.Context) {
	var query dto.DocumentListQuery
	if !h.BindQuery(c, &query) {
		return
	}

	filter, err := query.ToIssueFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.issues.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// --- Transfers ---

// GetTransfer handles GET /documents/transfers/:id
func (h *DocumentsHandler) GetTransfer(c *gin.Context) {
	docID, ok := h.ParamID(c)
	if !ok {
		return
	}

	doc, err := h.transfers.GetByID(c.Request.Context(), docID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, doc)
}

// ListTransfers handles GET /documents/transfers
func (h *DocumentsHandler) ListTransfers(c *gin.Context) {
	var query dto.DocumentListQuery
	if !h.BindQuery(c, &query) {
		return
	}

	filter, err := query.ToTransferFilter()
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.transfers.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
