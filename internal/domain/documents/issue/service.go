package issue

import (
	"context"
	"fmt"

	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/security"
	"lotledger/internal/core/tx"
	"lotledger/internal/domain"
	"lotledger/internal/domain/balance"
	"lotledger/internal/domain/catalogs/material"
	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/posting"
	"lotledger/pkg/logger"
	"lotledger/pkg/numerator"
)

// Service provides business operations for stock issue documents.
type Service struct {
	repo      Repository
	ledger    *ledger.Service
	costing   *costing.Engine
	materials material.Repository
	balances  *balance.Aggregator
	numbers   *numerator.Service
	engine    *posting.Engine
	auth      security.Authorizer
	txm       tx.Manager
}

// NewService creates a stock issue service.
func NewService(
	repo Repository,
	ledgerSvc *ledger.Service,
	costingEngine *costing.Engine,
	materials material.Repository,
	balances *balance.Aggregator,
	numbers *numerator.Service,
	engine *posting.Engine,
	auth security.Authorizer,
	txm tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledgerSvc,
		costing:   costingEngine,
		materials: materials,
		balances:  balances,
		numbers:   numbers,
		engine:    engine,
		auth:      auth,
		txm:       txm,
	}
}

// Create validates the document, assigns a number and persists it in
// StatusNew. No stock is touched.
func (s *Service) Create(ctx context.Context, doc *StockIssue) error {
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

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, doc); err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return s.repo.SaveLines(ctx, doc.ID, doc.Lines)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "stock issue created", "id", doc.ID, "number", doc.Number)
	return nil
}

// GetByID retrieves an issue with lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*StockIssue, error) {
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
func (s *Service) Update(ctx context.Context, doc *StockIssue) error {
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

// Confirm moves New -> Confirmed and soft-holds lots for each line so a
// racing issue cannot consume the stock before posting.
func (s *Service) Confirm(ctx context.Context, docID id.ID) error {
	return s.engine.Run(ctx, s.auth, docID, DocumentType, entity.ActionConfirm, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.GuardTransition(DocumentType, entity.ActionConfirm, entity.StatusIssued); err != nil {
			return err
		}

		lines, err := s.repo.GetLines(ctx, docID)
		if err != nil {
			return fmt.Errorf("get lines: %w", err)
		}

		ref := s.movementRef(ctx, doc.ID)
		for _, line := range lines {
			if err := s.ledger.Reserve(ctx, ref, doc.ID, doc.WarehouseID, line.MaterialID, line.Quantity); err != nil {
				return err
			}
		}

		doc.Status = entity.StatusConfirmed
		doc.Reserved = true
		doc.ApprovedBy = appctx.GetActorID(ctx)
		doc.Touch()
		return s.repo.Update(ctx, doc)
	})
}

// Post moves Confirmed -> Issued: allocates lots FIFO per line, books the
// consumption, stamps line costs, and rolls the movement into today's
// balance. All-or-nothing; insufficient stock fails the whole posting.
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

		methods, err := s.costingMethods(ctx, doc.Lines)
		if err != nil {
			return err
		}

		ref := s.movementRef(ctx, doc.ID)
		for i := range doc.Lines {
			line := &doc.Lines[i]

			allocs, err := s.ledger.ApplyIssue(ctx, ref, ledger.IssueMovement{
				WarehouseID: doc.WarehouseID,
				MaterialID:  line.MaterialID,
				LineID:      line.LineID,
				Quantity:    line.Quantity,
			})
			if err != nil {
				return err
			}

			portions := make([]costing.Portion, len(allocs))
			for j, a := range allocs {
				portions[j] = costing.Portion{Quantity: a.Quantity, UnitCost: a.UnitCost}
			}

			cost, err := s.costing.IssueLineCost(methods[line.MaterialID], line.Quantity, portions)
			if err != nil {
				return err
			}
			line.Cost = cost

			if err := s.balances.RecordIssue(ctx, doc.WarehouseID, line.MaterialID, line.Quantity, cost); err != nil {
				return fmt.Errorf("record balance: %w", err)
			}
		}

		// Drop leftover holds on lots the posting did not fully drain.
		if doc.Reserved {
			for _, line := range doc.Lines {
				if err := s.ledger.Release(ctx, ref, doc.ID, doc.WarehouseID, line.MaterialID); err != nil {
					return err
				}
			}
			doc.Reserved = false
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

// Cancel moves any non-terminal status to Canceled. A posted issue restores
// the exact lots it consumed; a confirmed one releases its reservations.
func (s *Service) Cancel(ctx context.Context, docID id.ID) error {
	return s.engine.Run(ctx, s.auth, docID, DocumentType, entity.ActionCancel, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.GuardTransition(DocumentType, entity.ActionCancel, entity.StatusIssued); err != nil {
			return err
		}

		ref := s.movementRef(ctx, doc.ID)

		if doc.IsPosted() {
			lines, err := s.repo.GetLines(ctx, docID)
			if err != nil {
				return fmt.Errorf("get lines: %w", err)
			}

			if err := s.ledger.ReverseIssue(ctx, ref, doc.WarehouseID); err != nil {
				return err
			}
			for _, line := range lines {
				if err := s.balances.ReverseIssue(ctx, doc.WarehouseID, line.MaterialID, line.Quantity, line.Cost); err != nil {
					return fmt.Errorf("reverse balance: %w", err)
				}
			}
		} else if doc.Reserved {
			lines, err := s.repo.GetLines(ctx, docID)
			if err != nil {
				return fmt.Errorf("get lines: %w", err)
			}
			for _, line := range lines {
				if err := s.ledger.Release(ctx, ref, doc.ID, doc.WarehouseID, line.MaterialID); err != nil {
					return err
				}
			}
			doc.Reserved = false
		}

		doc.Status = entity.StatusCanceled
		doc.Touch()
		return s.repo.Update(ctx, doc)
	})
}

// List retrieves issues with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*StockIssue], error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) costingMethods(ctx context.Context, lines []Line) (map[id.ID]material.CostingMethod, error) {
	ids := make([]id.ID, 0, len(lines))
	seen := make(map[id.ID]bool, len(lines))
	for _, line := range lines {
		if !seen[line.MaterialID] {
			seen[line.MaterialID] = true
			ids = append(ids, line.MaterialID)
		}
	}

	mats, err := s.materials.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load materials: %w", err)
	}

	methods := make(map[id.ID]material.CostingMethod, len(mats))
	for _, line := range lines {
		mat, ok := mats[line.MaterialID]
		if !ok {
			return nil, apperror.NewNotFound("material", line.MaterialID)
		}
		methods[line.MaterialID] = mat.CostingMethod
	}
	return methods, nil
}

func (s *Service) movementRef(ctx context.Context, docID id.ID) ledger.MovementRef {
	return ledger.MovementRef{
		DocumentID:   docID,
		DocumentType: DocumentType,
		ActorID:      appctx.GetActorID(ctx),
	}
}
