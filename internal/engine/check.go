package engine

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/kazz187/permguard/internal/audit"
	"github.com/kazz187/permguard/internal/grant"
	"github.com/kazz187/permguard/internal/policy"
)

type Request struct {
	Permission string         `json:"permission"`
	Context    policy.Context `json:"context,omitempty"`
}

type Result = audit.Decision

// Check decides req. Grants are consulted first, then the policy rules, then
// the policy default. Every call appends exactly one audit entry, and no
// failure inside the engine surfaces as anything other than a denial.
func (e *Engine) Check(ctx context.Context, req Request) Result {
	now := e.clock.Now()
	res := e.decide(ctx, req, now)
	res.Permission = req.Permission
	res.Context = req.Context.Clone()
	res.Timestamp = now

	e.audit.Append(ctx, res)
	e.logger.DebugContext(ctx, "permission checked",
		"permission", req.Permission,
		"granted", res.Granted,
		"source", res.Source,
		"reason", res.Reason,
	)
	return res
}

// CheckAll decides every request concurrently. Results are returned in
// request order; audit entries are appended in completion order.
func (e *Engine) CheckAll(ctx context.Context, reqs []Request) []Result {
	return iter.Map(reqs, func(req *Request) Result {
		return e.Check(ctx, *req)
	})
}

func (e *Engine) decide(ctx context.Context, req Request, now time.Time) Result {
	perm, ok := e.catalog.Get(req.Permission)
	if !ok {
		return Result{Reason: "Unknown permission: " + req.Permission, Source: audit.SourceUnknown}
	}

	if m, ok := e.grants.Lookup(req.Permission); ok {
		switch m.Kind {
		case grant.KindTemporary:
			exp := m.ExpiresAt
			return Result{Granted: true, Source: audit.SourceTemporary, ExpiresAt: &exp}
		case grant.KindLimited:
			n := m.RemainingUses
			return Result{Granted: true, Source: audit.SourceLimited, RemainingUses: &n}
		default:
			if perm.RequiresConfirmation {
				if res, gated := e.runConfirmation(ctx, perm, req.Context); gated {
					return res
				}
			}
			return Result{Granted: true, Source: audit.SourceGrant}
		}
	}

	d := policy.Evaluate(e.Policy(), req.Permission, req.Context, now)
	src := audit.SourceDefault
	if d.Rule != nil {
		src = audit.SourceRule
	}
	return Result{Granted: d.Allow, Reason: d.Reason, Rule: d.Rule, Source: src}
}
