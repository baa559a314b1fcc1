package permission

import (
	"fmt"
	"strings"
)

// Scope is the broad category a permission belongs to.
type Scope string

const (
	ScopeTool    Scope = "tool"
	ScopeSystem  Scope = "system"
	ScopeNetwork Scope = "network"
	ScopeFile    Scope = "file"
	ScopeCustom  Scope = "custom"
)

func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(s)); sc {
	case ScopeTool, ScopeSystem, ScopeNetwork, ScopeFile, ScopeCustom:
		return sc, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

func (s *Scope) UnmarshalText(b []byte) error {
	v, err := ParseScope(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Risk is an ordinal severity. It is informational and does not affect the
// decision by itself.
type Risk string

const (
	RiskLow      Risk = "low"
	RiskMedium   Risk = "medium"
	RiskHigh     Risk = "high"
	RiskCritical Risk = "critical"
)

func ParseRisk(s string) (Risk, error) {
	switch r := Risk(strings.ToLower(s)); r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return r, nil
	}
	return "", fmt.Errorf("unknown risk %q", s)
}

func (r *Risk) UnmarshalText(b []byte) error {
	v, err := ParseRisk(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Permission is a named capability. Names are dot separated hierarchies such
// as "file.read".
type Permission struct {
	Name                 string `yaml:"name" json:"name"`
	Scope                Scope  `yaml:"scope" json:"scope"`
	Risk                 Risk   `yaml:"risk" json:"risk"`
	RequiresConfirmation bool   `yaml:"requires_confirmation,omitempty" json:"requiresConfirmation,omitempty"`
	Description          string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Defaults returns the built-in permissions every engine starts with.
func Defaults() []Permission {
	return []Permission{
		{Name: "file.read", Scope: ScopeFile, Risk: RiskLow, Description: "Read files from the filesystem"},
		{Name: "file.write", Scope: ScopeFile, Risk: RiskMedium, Description: "Write files to the filesystem"},
		{Name: "file.delete", Scope: ScopeFile, Risk: RiskHigh, RequiresConfirmation: true, Description: "Delete files from the filesystem"},
		{Name: "bash.execute", Scope: ScopeTool, Risk: RiskHigh, RequiresConfirmation: true, Description: "Execute shell commands"},
		{Name: "network.request", Scope: ScopeNetwork, Risk: RiskMedium, Description: "Make network requests"},
		{Name: "system.execute", Scope: ScopeSystem, Risk: RiskCritical, RequiresConfirmation: true, Description: "Execute system-level operations"},
	}
}
