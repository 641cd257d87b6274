// Package documents exposes the document-level operations consumed by the
// presentation layer: create a typed document, drive its lifecycle with
// transitions, and read on-hand balances. Everything else lives in the
// per-type packages.
package documents

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/documents/issue"
	"lotledger/internal/domain/documents/receipt"
	"lotledger/internal/domain/documents/transfer"
	"lotledger/internal/domain/ledger"
)

// Detail is one requested document line. Lot and price fields apply to
// receipts only.
type Detail struct {
	MaterialID      id.ID          `json:"materialId"`
	Quantity        types.Quantity `json:"quantity"`
	UnitPrice       types.Money    `json:"unitPrice"`
	LotNumber       string         `json:"lotNumber,omitempty"`
	ManufactureDate *time.Time     `json:"manufactureDate,omitempty"`
	ExpiryDate      *time.Time     `json:"expiryDate,omitempty"`
}

// CreateRequest describes a document to create in StatusNew.
type CreateRequest struct {
	Type string `json:"type"`

	// WarehouseID is the receipt/issue warehouse, or the transfer source
	WarehouseID id.ID `json:"warehouseId"`

	// ToWarehouseID is the transfer destination (transfers only)
	ToWarehouseID id.ID `json:"toWarehouseId,omitempty"`

	Recipient string   `json:"recipient,omitempty"`
	Supplier  string   `json:"supplier,omitempty"`
	Comment   string   `json:"comment,omitempty"`
	Details   []Detail `json:"details"`
}

// CreateResult identifies the created document.
type CreateResult struct {
	DocumentID id.ID  `json:"documentId"`
	Number     string `json:"number"`
	Type       string `json:"type"`
}

// TransitionResult reports the status after a transition.
type TransitionResult struct {
	DocumentID id.ID                 `json:"documentId"`
	Type       string                `json:"type"`
	Status     entity.DocumentStatus `json:"status"`
	StatusName string                `json:"statusName"`
}

// Facade dispatches document operations to the typed services.
type Facade struct {
	receipts  *receipt.Service
	issues    *issue.Service
	transfers *transfer.Service
	ledger    *ledger.Service
}

func NewFacade(receipts *receipt.Service, issues *issue.Service, transfers *transfer.Service, ledgerSvc *ledger.Service) *Facade {
	return &Facade{
		receipts:  receipts,
		issues:    issues,
		transfers: transfers,
		ledger:    ledgerSvc,
	}
}

// CreateDocument builds and persists a document of the requested type,
// returning its id and formatted number.
func (f *Facade) CreateDocument(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	switch req.Type {
	case receipt.DocumentType:
		doc := receipt.NewStockReceipt(req.WarehouseID)
		doc.Supplier = req.Supplier
		doc.Comment = req.Comment
		for _, d := range req.Details {
			doc.AddLine(d.MaterialID, d.LotNumber, d.ManufactureDate, d.ExpiryDate, d.Quantity, d.UnitPrice)
		}
		if err := f.receipts.Create(ctx, doc); err != nil {
			return nil, err
		}
		return &CreateResult{DocumentID: doc.ID, Number: doc.Number, Type: req.Type}, nil

	case issue.DocumentType:
		doc := issue.NewStockIssue(req.WarehouseID)
		doc.Recipient = req.Recipient
		doc.Comment = req.Comment
		for _, d := range req.Details {
			doc.AddLine(d.MaterialID, d.Quantity)
		}
		if err := f.issues.Create(ctx, doc); err != nil {
			return nil, err
		}
		return &CreateResult{DocumentID: doc.ID, Number: doc.Number, Type: req.Type}, nil

	case transfer.DocumentType:
		doc := transfer.NewStockTransfer(req.WarehouseID, req.ToWarehouseID)
		doc.Comment = req.Comment
		for _, d := range req.Details {
			doc.AddLine(d.MaterialID, d.Quantity)
		}
		if err := f.transfers.Create(ctx, doc); err != nil {
			return nil, err
		}
		return &CreateResult{DocumentID: doc.ID, Number: doc.Number, Type: req.Type}, nil

	default:
		return nil, apperror.NewValidation("unknown document type").
			WithDetail("type", req.Type)
	}
}

// Transition applies an action to a document located by id across all types.
func (f *Facade) Transition(ctx context.Context, docID id.ID, action string) (*TransitionResult, error) {
	docType, err := f.locate(ctx, docID)
	if err != nil {
		return nil, err
	}

	switch docType {
	case receipt.DocumentType:
		err = f.dispatch(ctx, action,
			func() error { return f.receipts.Confirm(ctx, docID) },
			func() error { return f.receipts.Post(ctx, docID) },
			func() error { return f.receipts.Complete(ctx, docID) },
			func() error { return f.receipts.Cancel(ctx, docID) },
		)
		if err != nil {
			return nil, err
		}
		doc, err := f.receipts.GetByID(ctx, docID)
		if err != nil {
			return nil, err
		}
		return result(docID, docType, doc.Status), nil

	case issue.DocumentType:
		err = f.dispatch(ctx, action,
			func() error { return f.issues.Confirm(ctx, docID) },
			func() error { return f.issues.Post(ctx, docID) },
			func() error { return f.issues.Complete(ctx, docID) },
			func() error { return f.issues.Cancel(ctx, docID) },
		)
		if err != nil {
			return nil, err
		}
		doc, err := f.issues.GetByID(ctx, docID)
		if err != nil {
			return nil, err
		}
		return result(docID, docType, doc.Status), nil

	default:
		err = f.dispatch(ctx, action,
			func() error { return f.transfers.Confirm(ctx, docID) },
			func() error { return f.transfers.Post(ctx, docID) },
			func() error { return f.transfers.Complete(ctx, docID) },
			func() error { return f.transfers.Cancel(ctx, docID) },
		)
		if err != nil {
			return nil, err
		}
		doc, err := f.transfers.GetByID(ctx, docID)
		if err != nil {
			return nil, err
		}
		return result(docID, docType, doc.Status), nil
	}
}

// GetOnHand returns current quantities for several materials in a warehouse.
func (f *Facade) GetOnHand(ctx context.Context, warehouseID id.ID, materialIDs []id.ID) (map[id.ID]types.Quantity, error) {
	out := make(map[id.ID]types.Quantity, len(materialIDs))
	for _, materialID := range materialIDs {
		stock, err := f.ledger.Stock(ctx, warehouseID, materialID)
		if err != nil {
			return nil, err
		}
		if stock == nil {
			out[materialID] = 0
			continue
		}
		out[materialID] = stock.Quantity
	}
	return out, nil
}

// GetLots returns the live lots for one material, FIFO ordered.
func (f *Facade) GetLots(ctx context.Context, warehouseID, materialID id.ID) (*ledger.OnHand, error) {
	return f.ledger.GetOnHand(ctx, warehouseID, materialID)
}

func (f *Facade) dispatch(ctx context.Context, action string, confirm, post, complete, cancel func() error) error {
	switch action {
	case entity.ActionConfirm:
		return confirm()
	case entity.ActionPost:
		return post()
	case entity.ActionComplete:
		return complete()
	case entity.ActionCancel:
		return cancel()
	default:
		return apperror.NewValidation("unknown action").
			WithDetail("action", action)
	}
}

// locate resolves a document id to its type by probing the typed services.
func (f *Facade) locate(ctx context.Context, docID id.ID) (string, error) {
	if _, err := f.receipts.GetByID(ctx, docID); err == nil {
		return receipt.DocumentType, nil
	} else if !apperror.IsNotFound(err) {
		return "", err
	}
	if _, err := f.issues.GetByID(ctx, docID); err == nil {
		return issue.DocumentType, nil
	} else if !apperror.IsNotFound(err) {
		return "", err
	}
	if _, err := f.transfers.GetByID(ctx, docID); err == nil {
		return transfer.DocumentType, nil
	} else if !apperror.IsNotFound(err) {
		return "", err
	}
	return "", apperror.NewNotFound("document", docID)
}

func result(docID id.ID, docType string, status entity.DocumentStatus) *TransitionResult {
	return &TransitionResult{
		DocumentID: docID,
		Type:       docType,
		Status:     status,
		StatusName: status.String(),
	}
}
