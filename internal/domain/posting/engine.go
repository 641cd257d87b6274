// Package posting runs document state transitions. Every transition goes
// through the same pipeline: authorize, execute inside one transaction,
// retry bounded times on optimistic conflicts, then emit an audit event.
package posting

import (
	"context"
	"time"

	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/security"
	"lotledger/internal/core/tx"
	"lotledger/pkg/logger"
)

// DefaultRetries bounds transaction retries on optimistic conflicts.
const DefaultRetries = 3

// AuditEvent describes one completed (or failed) transition.
type AuditEvent struct {
	DocumentID   id.ID     `json:"documentId"`
	DocumentType string    `json:"documentType"`
	Action       string    `json:"action"`
	ActorID      string    `json:"actorId"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}

// AuditSink receives transition events. Implementations must not block the
// posting path; the engine calls Record fire-and-forget after commit.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Record(context.Context, AuditEvent) {}

// Engine coordinates authorization, transactions and auditing around
// document transitions. Document services submit their transition logic as
// a closure; the engine owns everything around it.
type Engine struct {
	txm     tx.Manager
	audit   AuditSink
	retries int
}

func NewEngine(txm tx.Manager, audit AuditSink) *Engine {
	if audit == nil {
		audit = NopSink{}
	}
	return &Engine{txm: txm, audit: audit, retries: DefaultRetries}
}

// WithRetries overrides the conflict retry bound. Values below 1 are
// clamped to 1.
func (e *Engine) WithRetries(n int) *Engine {
	if n < 1 {
		n = 1
	}
	e.retries = n
	return e
}

// Run executes one transition. The authorizer is consulted before any work;
// fn then runs inside a transaction and is retried as a whole on
// CONCURRENCY_CONFLICT. Business errors are not retried.
//
// fn must be idempotent across retries: it is re-executed from scratch with
// a fresh transaction.
func (e *Engine) Run(ctx context.Context, auth security.Authorizer, documentID id.ID, documentType, action string, fn func(ctx context.Context) error) error {
	if err := security.Require(ctx, auth, documentType, action); err != nil {
		return err
	}

	var err error
	for attempt := 0; attempt < e.retries; attempt++ {
		err = e.txm.RunInTransaction(ctx, fn)
		if err == nil {
			break
		}
		if !apperror.IsConcurrencyConflict(err) {
			break
		}
		logger.Debug(ctx, "posting conflict, retrying",
			"document_id", documentID,
			"document_type", documentType,
			"action", action,
			"attempt", attempt+1,
		)
	}

	e.emit(ctx, documentID, documentType, action, err)

	if err != nil {
		return err
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, documentID id.ID, documentType, action string, runErr error) {
	event := AuditEvent{
		DocumentID:   documentID,
		DocumentType: documentType,
		Action:       action,
		ActorID:      appctx.GetActorID(ctx),
		Success:      runErr == nil,
		OccurredAt:   time.Now().UTC(),
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}
	e.audit.Record(ctx, event)
}
