// Package security provides the authorization boundary for state-changing
// calls. The core never evaluates permissions itself; it asks an Authorizer
// for a boolean decision before any transition.
package security

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	appctx "lotledger/internal/core/context"
	"lotledger/internal/core/apperror"
)

// Module names used in authorization checks.
const (
	ModuleReceipt  = "stock_receipt"
	ModuleIssue    = "stock_issue"
	ModuleTransfer = "stock_transfer"
)

// Authorizer answers whether an actor may perform an action on a module.
type Authorizer interface {
	// Allowed returns true if the actor may perform action on module.
	Allowed(ctx context.Context, actorID, module, action string) bool
}

// Require checks authorization and converts a denial into a Forbidden error.
func Require(ctx context.Context, auth Authorizer, module, action string) error {
	actorID := appctx.GetActorID(ctx)
	if actorID == "" {
		return apperror.NewUnauthorized("actor identity is required")
	}
	if auth == nil || !auth.Allowed(ctx, actorID, module, action) {
		return apperror.NewForbidden("operation is not permitted").
			WithDetail("module", module).
			WithDetail("action", action)
	}
	return nil
}

// AllowAll grants everything. For tests and trusted internal callers.
type AllowAll struct{}

func (AllowAll) Allowed(ctx context.Context, actorID, module, action string) bool { return true }

// CELAuthorizer evaluates a CEL expression per decision.
// The expression sees: actor (string), module (string), action (string),
// roles (list of string), admin (bool). Example policy:
//
//	admin || (module == "stock_receipt" && action != "cancel" && "storekeeper" in roles)
type CELAuthorizer struct {
	mu      sync.RWMutex
	program cel.Program
	source  string
}

// NewCELAuthorizer compiles the policy expression.
func NewCELAuthorizer(expr string) (*CELAuthorizer, error) {
	a := &CELAuthorizer{}
	if err := a.SetPolicy(expr); err != nil {
		return nil, err
	}
	return a, nil
}

// SetPolicy recompiles the policy at runtime.
func (a *CELAuthorizer) SetPolicy(expr string) error {
	env, err := cel.NewEnv(
		cel.Variable("actor", cel.StringType),
		cel.Variable("module", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("admin", cel.BoolType),
	)
	if err != nil {
		return fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("compile policy: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("policy must evaluate to bool, got %v", ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return fmt.Errorf("build program: %w", err)
	}

	a.mu.Lock()
	a.program = program
	a.source = expr
	a.mu.Unlock()
	return nil
}

// Allowed implements Authorizer. Evaluation errors deny access.
func (a *CELAuthorizer) Allowed(ctx context.Context, actorID, module, action string) bool {
	a.mu.RLock()
	program := a.program
	a.mu.RUnlock()
	if program == nil {
		return false
	}

	roles := []string{}
	admin := false
	if actor := appctx.GetActor(ctx); actor != nil {
		roles = actor.Roles
		admin = actor.IsAdmin
	}

	out, _, err := program.Eval(map[string]any{
		"actor":  actorID,
		"module": module,
		"action": action,
		"roles":  roles,
		"admin":  admin,
	})
	if err != nil {
		return false
	}

	allowed, ok := out.Value().(bool)
	return ok && allowed
}
