package receipt

import (
	"context"
	"fmt"

	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/security"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain"
	"lotledger/internal/domain/balance"
	"lotledger/internal/domain/catalogs/material"
	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/posting"
	"lotledger/pkg/logger"
	"lotledger/pkg/numerator"
)

// Service provides business operations for stock receipt documents.
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

// NewService creates a stock receipt service.
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
func (s *Service) Create(ctx context.Context, doc *StockReceipt) error {
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

	logger.Info(ctx, "stock receipt created", "id", doc.ID, "number", doc.Number)
	return nil
}

// GetByID retrieves a receipt with lines.
func (s *Service) GetByID(ctx context.Context, docID id.ID) (*StockReceipt, error) {
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
func (s *Service) Update(ctx context.Context, doc *StockReceipt) error {
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
		if err := doc.GuardTransition(DocumentType, entity.ActionConfirm, entity.StatusReceived); err != nil {
			return err
		}

		doc.Status = entity.StatusConfirmed
		doc.ApprovedBy = appctx.GetActorID(ctx)
		doc.Touch()
		return s.repo.Update(ctx, doc)
	})
}

// Post moves Confirmed -> Received and books the stock: per line it stamps
// the unit cost per the material's costing method, creates or merges the
// lot, and rolls the movement into today's balance.
func (s *Service) Post(ctx context.Context, docID id.ID) error {
	return s.engine.Run(ctx, s.auth, docID, DocumentType, entity.ActionPost, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.GuardTransition(DocumentType, entity.ActionPost, entity.StatusReceived); err != nil {
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

			snapshot, err := s.snapshot(ctx, doc.WarehouseID, line.MaterialID)
			if err != nil {
				return err
			}

			stamped, err := s.costing.ReceiptUnitCost(methods[line.MaterialID], snapshot, line.Quantity, line.UnitPrice)
			if err != nil {
				return err
			}
			line.PostedUnitCost = stamped

			// The lot is stamped with the costing result; the value accrues
			// at the declared cost, so the position books what was paid.
			mv := ledger.ReceiptMovement{
				WarehouseID:     doc.WarehouseID,
				MaterialID:      line.MaterialID,
				LotNumber:       line.LotNumber,
				ManufactureDate: line.ManufactureDate,
				ExpiryDate:      line.ExpiryDate,
				Quantity:        line.Quantity,
				UnitCost:        line.UnitPrice,
			}
			if methods[line.MaterialID] == material.CostingWeightedAverage {
				stamp := stamped
				mv.StampUnitCost = &stamp
			}

			applied, err := s.ledger.ApplyReceipt(ctx, ref, mv)
			if err != nil {
				return err
			}
			line.PriorUnitCost = applied.PriorUnitCost

			value := line.Quantity.Decimal().Mul(line.UnitPrice)
			if err := s.balances.RecordReceipt(ctx, doc.WarehouseID, line.MaterialID, line.Quantity, value); err != nil {
				return fmt.Errorf("record balance: %w", err)
			}
		}

		doc.MarkPosted(entity.StatusReceived)
		if err := s.repo.Update(ctx, doc); err != nil {
			return err
		}
		return s.repo.SaveLines(ctx, doc.ID, doc.Lines)
	})
}

// Complete moves Received -> Completed. Terminal, no stock effect.
func (s *Service) Complete(ctx context.Context, docID id.ID) error {
	return s.engine.Run(ctx, s.auth, docID, DocumentType, entity.ActionComplete, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.GuardTransition(DocumentType, entity.ActionComplete, entity.StatusReceived); err != nil {
			return err
		}

		doc.Status = entity.StatusCompleted
		doc.Touch()
		return s.repo.Update(ctx, doc)
	})
}

// Cancel moves any non-terminal status to Canceled. A posted receipt is
// reversed exactly: lots are drawn back down, re-stamped to their
// pre-posting cost basis, and the reversal is booked on today's balance at
// the declared cost. Fails with INSUFFICIENT_STOCK when the received
// quantity was already consumed downstream.
func (s *Service) Cancel(ctx context.Context, docID id.ID) error {
	return s.engine.Run(ctx, s.auth, docID, DocumentType, entity.ActionCancel, func(ctx context.Context) error {
		doc, err := s.repo.GetForUpdate(ctx, docID)
		if err != nil {
			return err
		}
		if err := doc.GuardTransition(DocumentType, entity.ActionCancel, entity.StatusReceived); err != nil {
			return err
		}

		if doc.IsPosted() {
			lines, err := s.repo.GetLines(ctx, docID)
			if err != nil {
				return fmt.Errorf("get lines: %w", err)
			}

			ref := s.movementRef(ctx, doc.ID)
			for _, line := range lines {
				if err := s.ledger.ReverseReceipt(ctx, ref, ledger.ReceiptMovement{
					WarehouseID:     doc.WarehouseID,
					MaterialID:      line.MaterialID,
					LotNumber:       line.LotNumber,
					ManufactureDate: line.ManufactureDate,
					ExpiryDate:      line.ExpiryDate,
					Quantity:        line.Quantity,
					UnitCost:        line.UnitPrice,
					RestoreUnitCost: line.PriorUnitCost,
				}); err != nil {
					return err
				}

				value := line.Quantity.Decimal().Mul(line.UnitPrice)
				if err := s.balances.ReverseReceipt(ctx, doc.WarehouseID, line.MaterialID, line.Quantity, value); err != nil {
					return fmt.Errorf("reverse balance: %w", err)
				}
			}
		}

		doc.Status = entity.StatusCanceled
		doc.Touch()
		return s.repo.Update(ctx, doc)
	})
}

// List retrieves receipts with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*StockReceipt], error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) snapshot(ctx context.Context, warehouseID, materialID id.ID) (costing.StockSnapshot, error) {
	stock, err := s.ledger.Stock(ctx, warehouseID, materialID)
	if err != nil {
		return costing.StockSnapshot{}, fmt.Errorf("load stock: %w", err)
	}
	if stock == nil {
		return costing.StockSnapshot{Value: types.ZeroMoney()}, nil
	}
	return costing.StockSnapshot{Quantity: stock.Quantity, Value: stock.Value}, nil
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
