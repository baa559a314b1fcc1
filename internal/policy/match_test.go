package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"file.read", "file.read", true},
		{"file.*", "file.read", true},
		{"file.*", "file.", true},
		{"file.*", "filesystem.read", false},
		{"file*", "filesystem.read", true},
		{"*", "anything.at.all", true},
		{"file", "file.read", true},
		{"file", "file.read.deep", true},
		{"file", "filesystem", false},
		{"file.read", "file", false},
		{"bash", "bash", true},
	}
	for _, tt := range tests {
		if got := MatchPattern(tt.pattern, tt.name); got != tt.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	p := Policy{Rules: []Rule{
		{Pattern: "file.*", Allow: false, Reason: "no file ops", Conditions: []Condition{
			{Type: TypeResource, Operator: OpStartsWith, Value: String("/etc/")},
		}},
		{Pattern: "file.write", Allow: true},
		{Pattern: "file.write", Allow: false, Reason: "never reached"},
	}}

	d := Evaluate(p, "file.write", Context{"resource": "/etc/hosts"}, at("12:00"))
	assert.False(t, d.Allow)
	assert.Equal(t, "no file ops", d.Reason)
	require.NotNil(t, d.Rule)
	assert.Equal(t, "file.*", d.Rule.Pattern)

	d = Evaluate(p, "file.write", Context{"resource": "/home/me/notes"}, at("12:00"))
	assert.True(t, d.Allow)
	assert.Empty(t, d.Reason)
	require.NotNil(t, d.Rule)
	assert.Equal(t, "file.write", d.Rule.Pattern)
}

func TestEvaluateDefault(t *testing.T) {
	p := Policy{Rules: []Rule{{Pattern: "file.write", Allow: true}}}

	d := Evaluate(p, "network.request", nil, at("12:00"))
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonDefaultDeny, d.Reason)
	assert.Nil(t, d.Rule)

	p.DefaultAllow = true
	d = Evaluate(p, "network.request", nil, at("12:00"))
	assert.True(t, d.Allow)
	assert.Empty(t, d.Reason)
}

func TestEvaluateTimeRestrictionReason(t *testing.T) {
	p := Policy{Rules: []Rule{{
		Pattern: "bash.execute",
		Allow:   false,
		Reason:  "custom reason is ignored",
		Conditions: []Condition{
			{Type: TypeTime, Operator: OpBetween, Value: List("22:00", "06:00")},
		},
	}}}

	d := Evaluate(p, "bash.execute", nil, at("23:00"))
	assert.False(t, d.Allow)
	assert.Equal(t, ReasonTimeRestriction, d.Reason)

	d = Evaluate(p, "bash.execute", nil, at("12:00"))
	assert.Equal(t, ReasonDefaultDeny, d.Reason)
	assert.Nil(t, d.Rule)
}

func TestEvaluateEmptyReason(t *testing.T) {
	p := Policy{DefaultAllow: true, Rules: []Rule{{Pattern: "network", Allow: false}}}
	d := Evaluate(p, "network.request", nil, at("12:00"))
	assert.Equal(t, "Denied by policy rule: network", d.Reason)
}

func TestPolicyClone(t *testing.T) {
	p := Policy{Rules: []Rule{{Pattern: "a", Conditions: []Condition{{Type: "x", Operator: OpContains, Value: List("1")}}}}}
	c := p.Clone()
	c.Rules[0].Pattern = "b"
	c.Rules[0].Conditions[0].Type = "y"
	assert.Equal(t, "a", p.Rules[0].Pattern)
	assert.Equal(t, ConditionType("x"), p.Rules[0].Conditions[0].Type)
}
