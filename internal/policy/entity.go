package policy

import (
	"fmt"
)

// Operator is the comparison a Condition applies. The set is closed: decoding
// rejects anything not listed here, and the evaluator treats a hand built
// unknown operator as a failed condition.
type Operator string

const (
	OpEquals     Operator = "equals"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpContains   Operator = "contains"
	OpRegex      Operator = "regex"
	OpBetween    Operator = "between"
)

var operators = []Operator{OpEquals, OpStartsWith, OpEndsWith, OpContains, OpRegex, OpBetween}

func ParseOperator(s string) (Operator, error) {
	for _, op := range operators {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown condition operator %q", s)
}

func (o *Operator) UnmarshalText(b []byte) error {
	op, err := ParseOperator(string(b))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// ConditionType names the attribute a condition inspects. Apart from the
// well-known types below it is the context key to read.
type ConditionType string

const (
	TypeTime     ConditionType = "time"
	TypePath     ConditionType = "path"
	TypeResource ConditionType = "resource"
)

type Condition struct {
	Type     ConditionType `yaml:"type" json:"type"`
	Operator Operator      `yaml:"operator" json:"operator"`
	Value    Value         `yaml:"value" json:"value"`
	// ContextKey, when set, overrides the attribute derived from Type.
	// Time windows (between) ignore it and always read the clock.
	ContextKey string `yaml:"context_key,omitempty" json:"contextKey,omitempty"`
}

// Rule allows or denies every permission its Pattern matches, provided all
// of its Conditions hold.
type Rule struct {
	Pattern    string      `yaml:"permission" json:"permission"`
	Allow      bool        `yaml:"allow" json:"allow"`
	Conditions []Condition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Reason     string      `yaml:"reason,omitempty" json:"reason,omitempty"`
}

func (r Rule) hasTimeCondition() bool {
	for _, c := range r.Conditions {
		if c.Type == TypeTime {
			return true
		}
	}
	return false
}

// Policy is an ordered rule list with a fallback.
type Policy struct {
	DefaultAllow bool   `yaml:"default_allow" json:"defaultAllow"`
	Rules        []Rule `yaml:"rules" json:"rules"`
}

// Clone returns a deep copy so callers can't mutate a stored policy.
func (p Policy) Clone() Policy {
	out := Policy{DefaultAllow: p.DefaultAllow}
	if p.Rules == nil {
		return out
	}
	out.Rules = make([]Rule, len(p.Rules))
	for i, r := range p.Rules {
		out.Rules[i] = r
		if r.Conditions != nil {
			out.Rules[i].Conditions = make([]Condition, len(r.Conditions))
			for j, c := range r.Conditions {
				c.Value = c.Value.clone()
				out.Rules[i].Conditions[j] = c
			}
		}
	}
	return out
}
