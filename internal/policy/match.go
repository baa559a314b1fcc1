package policy

import (
	"strings"
	"time"
)

const (
	ReasonTimeRestriction = "Access denied due to time restriction"
	ReasonDefaultDeny     = "denied by default policy"
)

// MatchPattern reports whether a rule pattern covers a permission name. A
// pattern matches itself, everything under a trailing "*" prefix, and every
// descendant in the dot hierarchy.
func MatchPattern(pattern, name string) bool {
	if pattern == name {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok && strings.HasPrefix(name, prefix) {
		return true
	}
	return strings.HasPrefix(name, pattern+".")
}

// Decision is the outcome of matching a request against a policy.
type Decision struct {
	Allow  bool
	Reason string
	// Rule is nil when the default policy decided.
	Rule *Rule
}

// Evaluate returns the decision of the first rule whose pattern matches name
// and whose conditions all hold, or the policy default when none does.
func Evaluate(p Policy, name string, ctx Context, now time.Time) Decision {
	for i := range p.Rules {
		rule := p.Rules[i]
		if !MatchPattern(rule.Pattern, name) || !conditionsHold(rule.Conditions, ctx, now) {
			continue
		}
		d := Decision{Allow: rule.Allow, Rule: &rule}
		if !rule.Allow {
			d.Reason = denialReason(rule)
		}
		return d
	}
	if p.DefaultAllow {
		return Decision{Allow: true}
	}
	return Decision{Reason: ReasonDefaultDeny}
}

func conditionsHold(conds []Condition, ctx Context, now time.Time) bool {
	for _, c := range conds {
		if !EvaluateCondition(c, ctx, now) {
			return false
		}
	}
	return true
}

func denialReason(r Rule) string {
	switch {
	case r.hasTimeCondition():
		return ReasonTimeRestriction
	case r.Reason != "":
		return r.Reason
	default:
		return "Denied by policy rule: " + r.Pattern
	}
}
