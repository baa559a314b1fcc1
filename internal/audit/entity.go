package audit

import (
	"fmt"
	"time"

	"github.com/kazz187/permguard/internal/policy"
)

// Source names the stage of evaluation that produced a decision.
type Source string

const (
	SourceUnknown      Source = "unknown"
	SourceTemporary    Source = "temporary"
	SourceLimited      Source = "limited"
	SourceGrant        Source = "grant"
	SourceConfirmation Source = "confirmation"
	SourceRule         Source = "rule"
	SourceDefault      Source = "default"
)

// Decision is the answer to a single permission check.
type Decision struct {
	Granted    bool           `json:"granted" yaml:"granted"`
	Reason     string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Permission string         `json:"permission" yaml:"permission"`
	Context    policy.Context `json:"context,omitempty" yaml:"context,omitempty"`
	Timestamp  time.Time      `json:"timestamp" yaml:"timestamp"`
	Source     Source         `json:"source" yaml:"source"`
	// ExpiresAt is set when a temporary grant approved the request.
	ExpiresAt *time.Time `json:"expiresAt,omitempty" yaml:"expires_at,omitempty"`
	// RemainingUses is set when a limited grant approved the request.
	RemainingUses *int         `json:"remainingUses,omitempty" yaml:"remaining_uses,omitempty"`
	Rule          *policy.Rule `json:"rule,omitempty" yaml:"rule,omitempty"`
}

type Entry struct {
	ID         string         `json:"id" yaml:"id"`
	Timestamp  time.Time      `json:"timestamp" yaml:"timestamp"`
	Permission string         `json:"permission" yaml:"permission"`
	Context    policy.Context `json:"context,omitempty" yaml:"context,omitempty"`
	Result     Decision       `json:"result" yaml:"result"`
}

// Filter selects audit entries by outcome.
type Filter string

const (
	FilterAll     Filter = ""
	FilterGranted Filter = "granted"
	FilterDenied  Filter = "denied"
)

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case FilterAll, FilterGranted, FilterDenied:
		return f, nil
	case "all":
		return FilterAll, nil
	}
	return "", fmt.Errorf("unknown audit filter %q", s)
}

func (f Filter) Match(e *Entry) bool {
	switch f {
	case FilterGranted:
		return e.Result.Granted
	case FilterDenied:
		return !e.Result.Granted
	default:
		return true
	}
}

func (e Entry) clone() Entry {
	e.Context = e.Context.Clone()
	e.Result.Context = e.Context
	if e.Result.ExpiresAt != nil {
		t := *e.Result.ExpiresAt
		e.Result.ExpiresAt = &t
	}
	if e.Result.RemainingUses != nil {
		n := *e.Result.RemainingUses
		e.Result.RemainingUses = &n
	}
	if e.Result.Rule != nil {
		p := policy.Policy{Rules: []policy.Rule{*e.Result.Rule}}.Clone()
		e.Result.Rule = &p.Rules[0]
	}
	return e
}
