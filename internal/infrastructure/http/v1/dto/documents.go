package dto

import (
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain"
	"lotledger/internal/domain/documents/issue"
	"lotledger/internal/domain/documents/receipt"
	"lotledger/internal/domain/documents/transfer"
)

// DocumentListQuery contains filter parameters for document lists.
// Warehouse filters apply per document type: warehouseId matches the single
// warehouse of receipts and issues and the source of transfers.
type DocumentListQuery struct {
	PageQuery

	Search  string `form:"search"`
	OrderBy string `form:"orderBy"`

	WarehouseID   string `form:"warehouseId" binding:"omitempty,uuid"`
	ToWarehouseID string `form:"toWarehouseId" binding:"omitempty,uuid"`
	Status        *int   `form:"status"`

	DateFrom *time.Time `form:"dateFrom" time_format:"2006-01-02"`
	DateTo   *time.Time `form:"dateTo" time_format:"2006-01-02"`
}

func (q *DocumentListQuery) base() domain.ListFilter {
	q.Defaults()
	f := domain.ListFilter{
		Search: q.Search,
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	if q.OrderBy != "" {
		f.OrderBy = q.OrderBy
	}
	return f
}

func (q *DocumentListQuery) warehouseID() (*id.ID, error) {
	if q.WarehouseID == "" {
		return nil, nil
	}
	parsed, err := id.Parse(q.WarehouseID)
	if err != nil {
		return nil, apperror.NewValidation("invalid warehouse id").
			WithDetail("warehouseId", q.WarehouseID)
	}
	return &parsed, nil
}

// ToReceiptFilter converts the query to a receipt list filter.
func (q *DocumentListQuery) ToReceiptFilter() (receipt.ListFilter, error) {
	wh, err := q.warehouseID()
	if err != nil {
		return receipt.ListFilter{}, err
	}
	return receipt.ListFilter{
		ListFilter:  q.base(),
		WarehouseID: wh,
		Status:      q.Status,
		DateFrom:    q.DateFrom,
		DateTo:      q.DateTo,
	}, nil
}

// ToIssueFilter converts the query to an issue list filter.
func (q *DocumentListQuery) ToIssueFilter() (issue.ListFilter, error) {
	wh, err := q.warehouseID()
	if err != nil {
		return issue.ListFilter{}, err
	}
	return issue.ListFilter{
		ListFilter:  q.base(),
		WarehouseID: wh,
		Status:      q.Status,
		DateFrom:    q.DateFrom,
		DateTo:      q.DateTo,
	}, nil
}

// ToTransferFilter converts the query to a transfer list filter.
func (q *DocumentListQuery) ToTransferFilter() (transfer.ListFilter, error) {
	from, err := q.warehouseID()
	if err != nil {
		return transfer.ListFilter{}, err
	}

	var to *id.ID
	if q.ToWarehouseID != "" {
		parsed, err := id.Parse(q.ToWarehouseID)
		if err != nil {
			return transfer.ListFilter{}, apperror.NewValidation("invalid warehouse id").
				WithDetail("toWarehouseId", q.ToWarehouseID)
		}
		to = &parsed
	}

	return transfer.ListFilter{
		ListFilter:      q.base(),
		FromWarehouseID: from,
		ToWarehouseID:   to,
		Status:          q.Status,
		DateFrom:        q.DateFrom,
		DateTo:          q.DateTo,
	}, nil
}

// TransitionRequest names the lifecycle action to apply.
type TransitionRequest struct {
	Action string `json:"action" binding:"required,oneof=confirm post complete cancel"`
}
