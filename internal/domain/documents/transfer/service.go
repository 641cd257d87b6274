package transfer

import (
	"context"
	"fmt"

	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/security"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain"
	"lotledger/internal/domain/balance"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/posting"
	"lotledger/internal/domain/transfercost"
	"lotledger/pkg/logger"
	"lotledger/pkg/numerator"
)

// Service provides business operations for stock transfer documents.
type Service struct {
	repo      Repository
	ledger    *ledger.Service
	balances  *balance.Aggregator
	numbers   *numerator.Service
	engine    *posting.Engine
	auth      security.Authorizer
	txm       tx.Manager
	estimator *transfercost.Estimator
}

// NewService creates a stock transfer service. The estimator is optional;
// when present, creation captures a cost estimate on the document.
func NewService(
	repo Repository,
	ledgerSvc *ledger.Service,
	balances *balance.Aggregator,
	numbers *numerator.Service,
	engine *posting.Engine,
	auth security.Authorizer,
	txm tx.Manager,
	estimator *transfercost.Estimator,
) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledgerSvc,
		balances:  balances,
		numbers:   numbers,
		engine:    engine,
		auth:      auth,
		txm:       txm,
		estimator: estimator,
	}
}

// Create validates the document, assigns a number, captures a cost estimate
// when the estimator has distance data, and persists it in StatusNew.
func (s *Service) Create(ctx context.Context, doc *StockTransfer) error {
	if err := doc.Validate(ctx); err != nil {
		return err
	}

	if doc.Number == "" {
		number, err := s.numbers.Next(ctx, DocumentType, numerator.Config{Prefix: NumberPrefix})
		if err != nil {
			return fmt.Errorf("generate number: %w", err)
		}
		doc.Number = number
	}
	doc.CreatedBy = appctx.GetActorID(ctx)

	if s.estimator != nil {
		items := make([]transfercost.Item, len(doc.Lines))
		for i, line := range doc.Lines {
			items[i] = transfercost.Item{MaterialID: line.MaterialID, Quantity: line.Quantity}
		}
		breakdown, err := s.estimator.Estimate(ctx, transfercost.Request{
			FromWarehouseID: doc.FromWarehouseID,
			ToWarehouseID:   doc.ToWarehouseID,
			Items:           items,
		})
		if err == nil {
			doc.EstimatedCost = breakdown.Total
		} else {
			logger.Debug(ctx, "transfer estimate unavailable", "error", err)
		}
	}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return s.repo.SaveLines(ctx, doc.ID, doc.Lines)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "stock transfer created", "id", doc.ID, "number", doc.Number)
	return nil
}

// GetByID retrieves a transfer with lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*StockTransfer, error) {
	doc, err := s.repo.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.GetLines(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	doc.Lines = lines
	return doc, nil
}

// Update persists body changes. Only documents in StatusNew may change.
func (s *Service) Update(ctx context.Context, doc *StockTransfer) error {
	if err := doc.CanModify(); err != nil {
		return err
	}
	if err := doc.Validate(ctx); err != nil {
		return err
	}

	doc.UpdatedBy = appctx.GetActorID(ctx)
	doc.Touch()

	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Update(ctx, doc); err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		return s.repo.SaveLines(ctx, doc.ID, doc.Lines)
	})
}

// Confirm moves New -> Confirmed. Approval only, no stock effect.
func (s *Service) Confirm(ctx context.Context, docID id.ID) error {
	return s.engine.Run(ctx, s.auth, docID, DocumentType, entity.ActionConfirm, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.GuardTransition(DocumentType, entity.ActionConfirm, entity.StatusIssued); err != nil {
			return err
		}

		doc.Status = entity.StatusConfirmed
		doc.ApprovedBy = appctx.GetActorID(ctx)
		doc.Touch()
		return s.repo.Update(ctx, doc)
	})
}

// Post moves Confirmed -> Issued and moves the stock: source lots are
// consumed FIFO and arrive at the destination under the same lot identity
// and cost basis, atomically. Stock never leaves the source without landing
// at the destination.
func (s *Service) Post(ctx context.Context, docID id.ID) error {
	return s.engine.Run(ctx, s.auth, docID, DocumentType, entity.ActionPost, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.GuardTransition(DocumentType, entity.ActionPost, entity.StatusIssued); err != nil {
			return err
		}

		lines, err := s.repo.GetLines(ctx, docID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}
		doc.Lines = lines

		ref := s.movementRef(ctx, doc.ID)
		for i := range doc.Lines {
			line := &doc.Lines[i]

			allocs, err := s.ledger.ApplyTransfer(ctx, ref, ledger.TransferMovement{
				FromWarehouseID: doc.FromWarehouseID,
				ToWarehouseID:   doc.ToWarehouseID,
				MaterialID:      line.MaterialID,
				LineID:          line.LineID,
				Quantity:        line.Quantity,
			})
			if err != nil {
				return err
			}

			cost := types.ZeroMoney()
			for _, a := range allocs {
				cost = cost.Add(a.Quantity.Decimal().Mul(a.UnitCost))
			}
			line.Cost = types.RoundMoney(cost)

			if err := s.balances.RecordTransfer(ctx, doc.FromWarehouseID, doc.ToWarehouseID, line.MaterialID, line.Quantity, line.Cost); err != nil {
				return fmt.Errorf("record balance: %w", err)
			}
		}

		doc.recalculateTotals()
		doc.MarkPosted(entity.StatusIssued)
		if err := s.repo.Update(ctx, doc); err != nil {
			return err
		}
		return s.repo.SaveLines(ctx, doc.ID, doc.Lines)
	})
}

// Complete moves Issued -> Completed. Terminal, no stock effect.
func (s *Service) Complete(ctx context.Context, docID id.ID) error {
	return s.engine.Run(ctx, s.auth, docID, DocumentType, entity.ActionComplete, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.GuardTransition(DocumentType, entity.ActionComplete, entity.StatusIssued); err != nil {
			return err
		}

		doc.Status = entity.StatusCompleted
		doc.Touch()
		return s.repo.Update(ctx, doc)
	})
}

// Cancel moves any non-terminal status to Canceled. A posted transfer is
// reversed at both ends: destination lots are drawn back down and source
// lots restored from the recorded allocations, booked on today's balance.
func (s *Service) Cancel(ctx context.Context, docID id.ID) error {
	return s.engine.Run(ctx, s.auth, docID, DocumentType, entity.ActionCancel, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.GuardTransition(DocumentType, entity.ActionCancel, entity.StatusIssued); err != nil {
			return err
		}

		if doc.IsPosted() {
			lines, err := s.repo.GetLines(ctx, docID)
			if err != nil {
				return fmt.Errorf("get lines: %w", err)
			}

			ref := s.movementRef(ctx, doc.ID)
			if err := s.ledger.ReverseTransfer(ctx, ref, doc.FromWarehouseID, doc.ToWarehouseID); err != nil {
				return err
			}
			for _, line := range lines {
				if err := s.balances.ReverseTransfer(ctx, doc.FromWarehouseID, doc.ToWarehouseID, line.MaterialID, line.Quantity, line.Cost); err != nil {
					return fmt.Errorf("reverse balance: %w", err)
				}
			}
		}

		doc.Status = entity.StatusCanceled
		doc.Touch()
		return s.repo.Update(ctx, doc)
	})
}

// List retrieves transfers with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*StockTransfer], error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) movementRef(ctx context.Context, docID id.ID) ledger.MovementRef {
	return ledger.MovementRef{
		DocumentID:   docID,
		DocumentType: DocumentType,
		ActorID:      appctx.GetActorID(ctx),
	}
}
