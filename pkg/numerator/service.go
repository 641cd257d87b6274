// Package numerator generates human-readable document numbers of the form
// PREFIX-YEAR-NNNNN. Counters reset each year per document type, optionally
// scoped to one warehouse. Contention is handled optimistically: the counter
// row carries a version token and generation retries a bounded number of
// times before giving up.
package numerator

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/clock"
	"lotledger/internal/core/id"
	"lotledger/pkg/logger"
)

// Numbering is the counter row for one (document type, warehouse?, year)
// key. A nil warehouse means the counter is global for the type.
type Numbering struct {
	ID id.ID `db:"id" json:"id"`

	DocumentType string `db:"document_type" json:"documentType"`
	WarehouseID  *id.ID `db:"warehouse_id" json:"warehouseId,omitempty"`
	Year         int    `db:"year" json:"year"`

	// LastNumber is the last value handed out
	LastNumber int64 `db:"last_number" json:"lastNumber"`

	// Version is the optimistic concurrency token
	Version int `db:"version" json:"version"`

	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Repository stores numbering counters.
type Repository interface {
	// GetOrCreate returns the counter for the key, inserting a zeroed row
	// when absent. warehouseID may be nil for a type-global counter.
	GetOrCreate(ctx context.Context, documentType string, warehouseID *id.ID, year int) (*Numbering, error)

	// Save persists the counter with a version check and returns
	// CONCURRENCY_CONFLICT when the row moved underneath the caller.
	Save(ctx context.Context, n *Numbering) error
}

// Config shapes the generated number.
type Config struct {
	// Prefix identifies the document type in the number (e.g. "GR")
	Prefix string

	// PadWidth is the minimum digit count, zero-padded (default 5)
	PadWidth int

	// WarehouseID scopes the counter to one warehouse; nil keeps a single
	// counter per document type
	WarehouseID *id.ID
}

// DefaultRetries bounds optimistic retry attempts per generation.
const DefaultRetries = 5

// Service hands out document numbers.
type Service struct {
	repo    Repository
	clock   clock.Clock
	retries int
}

// New creates a numbering service with the default retry bound.
func New(repo Repository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{repo: repo, clock: clk, retries: DefaultRetries}
}

// WithRetries overrides the retry bound. Values below 1 are clamped to 1.
func (s *Service) WithRetries(n int) *Service {
	if n < 1 {
		n = 1
	}
	s.retries = n
	return s
}

// Next generates the next number for the document type, formatted as
// PREFIX-YEAR-NNNNN. The counter belongs to the clock's current year and to
// cfg.WarehouseID's scope when one is set.
func (s *Service) Next(ctx context.Context, documentType string, cfg Config) (string, error) {
	if cfg.Prefix == "" {
		return "", apperror.NewValidation("numbering prefix is required")
	}

	year := s.clock.Now().UTC().Year()

	var lastErr error
	for attempt := 0; attempt < s.retries; attempt++ {
		n, err := s.repo.GetOrCreate(ctx, documentType, cfg.WarehouseID, year)
		if err != nil {
			return "", fmt.Errorf("load numbering: %w", err)
		}

		n.LastNumber++
		n.UpdatedAt = s.clock.Now()

		if err := s.repo.Save(ctx, n); err != nil {
			if apperror.IsConcurrencyConflict(err) {
				lastErr = err
				logger.Debug(ctx, "numbering conflict, retrying",
					"document_type", documentType,
					"attempt", attempt+1,
				)
				continue
			}
			return "", fmt.Errorf("save numbering: %w", err)
		}

		return Format(cfg, year, n.LastNumber), nil
	}

	logger.Warn(ctx, "numbering retries exhausted",
		"document_type", documentType,
		"retries", s.retries,
	)
	return "", lastErr
}

// Format renders a number without touching storage.
func Format(cfg Config, year int, num int64) string {
	pad := cfg.PadWidth
	if pad <= 0 {
		pad = 5
	}
	return fmt.Sprintf("%s-%d-%0*d", cfg.Prefix, year, pad, num)
}

// Parse extracts the numeric part of a formatted number, -1 when malformed.
func Parse(formatted string) int64 {
	var num int64
	if _, err := fmt.Sscanf(formatted, "%*[^-]-%*d-%d", &num); err != nil {
		return -1
	}
	return num
}
