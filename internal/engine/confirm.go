package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/kazz187/permguard/internal/audit"
	"github.com/kazz187/permguard/internal/permission"
	"github.com/kazz187/permguard/internal/policy"
	"github.com/kazz187/permguard/pkg/panicerr"
)

const (
	ReasonConfirmationDenied   = "User confirmation denied"
	ReasonConfirmationRequired = "User confirmation required but no handler is registered"
)

// ConfirmationRequest is handed to the handler when a granted permission
// still requires an interactive yes or no.
type ConfirmationRequest struct {
	Permission  string          `json:"permission"`
	Risk        permission.Risk `json:"risk"`
	Description string          `json:"description,omitempty"`
	Context     policy.Context  `json:"context,omitempty"`
}

// ConfirmationHandler asks someone to approve req. It should return when ctx
// is done; the engine stops waiting at that point regardless.
type ConfirmationHandler func(ctx context.Context, req ConfirmationRequest) (bool, error)

// ConfirmationMode decides what happens when confirmation is required but no
// handler is registered.
type ConfirmationMode string

const (
	// ConfirmFailOpen skips the confirmation step.
	ConfirmFailOpen ConfirmationMode = "open"
	// ConfirmFailClosed denies the request.
	ConfirmFailClosed ConfirmationMode = "closed"
)

func ParseConfirmationMode(s string) (ConfirmationMode, error) {
	switch m := ConfirmationMode(s); m {
	case ConfirmFailOpen, ConfirmFailClosed:
		return m, nil
	}
	return "", fmt.Errorf("unknown confirmation mode %q (want open or closed)", s)
}

// runConfirmation reports gated=false when the confirmation step was skipped
// and the grant should stand.
func (e *Engine) runConfirmation(ctx context.Context, perm permission.Permission, pctx policy.Context) (res Result, gated bool) {
	e.confirmMu.RLock()
	handler := e.confirm
	e.confirmMu.RUnlock()

	if handler == nil {
		if e.confirmMode == ConfirmFailClosed {
			return Result{Reason: ReasonConfirmationRequired, Source: audit.SourceConfirmation}, true
		}
		e.logger.WarnContext(ctx, "confirmation required but no handler registered; allowing", "permission", perm.Name)
		return Result{}, false
	}

	req := ConfirmationRequest{
		Permission:  perm.Name,
		Risk:        perm.Risk,
		Description: perm.Description,
		Context:     pctx.Clone(),
	}
	ok, err := e.askConfirmation(ctx, handler, req)
	switch {
	case err != nil:
		e.logger.WarnContext(ctx, "confirmation failed", "permission", perm.Name, "error", err)
		return Result{Reason: "User confirmation failed: " + err.Error(), Source: audit.SourceConfirmation}, true
	case !ok:
		return Result{Reason: ReasonConfirmationDenied, Source: audit.SourceConfirmation}, true
	default:
		return Result{Granted: true, Source: audit.SourceConfirmation}, true
	}
}

type confirmation struct {
	ok  bool
	err error
}

func (e *Engine) askConfirmation(ctx context.Context, handler ConfirmationHandler, req ConfirmationRequest) (bool, error) {
	if e.confirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.confirmTimeout)
		defer cancel()
	}

	safe := panicerr.SafeValue(func(ctx context.Context) (bool, error) {
		return handler(ctx, req)
	})
	done := make(chan confirmation, 1)
	go func() {
		ok, err := safe(ctx)
		done <- confirmation{ok: ok, err: err}
	}()

	select {
	case c := <-done:
		// An answer that arrives after the deadline does not count.
		if c.err == nil && ctx.Err() != nil {
			return false, contextError(ctx)
		}
		return c.ok, c.err
	case <-ctx.Done():
		return false, contextError(ctx)
	}
}

func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.New("confirmation timed out")
	}
	return ctx.Err()
}
