// Package cache provides runtime configuration reload via PostgreSQL
// LISTEN/NOTIFY.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lotledger/pkg/logger"
)

// policyChannel is the NOTIFY channel announcing policy changes.
const policyChannel = "lotledger_policy_changed"

// PolicySink receives recompiled authorization policies. Satisfied by
// security.CELAuthorizer.
type PolicySink interface {
	SetPolicy(expr string) error
}

// PolicyWatcher keeps the authorization policy in sync with the sys_settings
// table. On NOTIFY lotledger_policy_changed it re-reads the policy and pushes
// it into the sink, so policy edits apply without a restart.
type PolicyWatcher struct {
	pool *pgxpool.Pool
	sink PolicySink

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// NewPolicyWatcher creates a policy watcher.
func NewPolicyWatcher(pool *pgxpool.Pool, sink PolicySink) *PolicyWatcher {
	return &PolicyWatcher{pool: pool, sink: sink}
}

// Start loads the stored policy (if any) and begins listening for changes.
func (w *PolicyWatcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	w.lifecycleMu.Lock()
	if w.started {
		w.lifecycleMu.Unlock()
		return nil
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.started = true
	w.lifecycleMu.Unlock()

	if err := w.reload(w.ctx); err != nil {
		w.Stop()
		return fmt.Errorf("load policy: %w", err)
	}

	w.wg.Add(1)
	go w.listenLoop()
	logger.Info(w.ctx, "policy watcher started")
	return nil
}

// Stop gracefully stops the listener.
func (w *PolicyWatcher) Stop() {
	w.lifecycleMu.Lock()
	if !w.started {
		w.lifecycleMu.Unlock()
		return
	}
	cancel := w.cancel
	w.started = false
	w.cancel = nil
	w.lifecycleMu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	logger.Info(context.Background(), "policy watcher stopped")
}

// reload reads the policy from sys_settings and pushes it to the sink.
// A missing row means the deployment-time policy stays in effect.
func (w *PolicyWatcher) reload(ctx context.Context) error {
	var expr string
	err := w.pool.QueryRow(ctx,
		`SELECT value FROM sys_settings WHERE key = 'auth_policy'`,
	).Scan(&expr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}

	if err := w.sink.SetPolicy(expr); err != nil {
		// A broken stored policy must not take the service down; keep the
		// last good one.
		logger.Error(ctx, "stored policy rejected, keeping previous", "error", err)
		return nil
	}

	logger.Info(ctx, "authorization policy reloaded")
	return nil
}

// listenLoop listens for PostgreSQL NOTIFY events.
func (w *PolicyWatcher) listenLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		// LISTEN needs a dedicated connection
		conn, err := w.pool.Acquire(w.ctx)
		if err != nil {
			logger.Error(w.ctx, "failed to acquire connection for LISTEN", "error", err)
			time.Sleep(time.Second)
			continue
		}

		if _, err := conn.Exec(w.ctx, "LISTEN "+policyChannel); err != nil {
			logger.Error(w.ctx, "failed to LISTEN", "error", err)
			conn.Release()
			time.Sleep(time.Second)
			continue
		}

		w.waitForNotifications(conn)
		conn.Release()
	}
}

// waitForNotifications blocks waiting for NOTIFY events.
func (w *PolicyWatcher) waitForNotifications(conn *pgxpool.Conn) {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		// Timeout keeps shutdown responsive; expiry is not an error.
		ctx, cancel := context.WithTimeout(w.ctx, 30*time.Second)
		notification, err := conn.Conn().WaitForNotification(ctx)
		cancel()

		if err != nil {
			if w.ctx.Err() != nil {
				return
			}
			continue
		}

		logger.Debug(w.ctx, "received notification",
			"channel", notification.Channel,
			"payload", notification.Payload)

		if err := w.reload(w.ctx); err != nil {
			logger.Error(w.ctx, "policy reload failed", "error", err)
		}
	}
}
