package policy

import (
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// Value is a condition operand: either one string or a list of strings.
// It encodes as a scalar or a sequence accordingly.
type Value struct {
	single string
	list   []string
	isList bool
}

func String(s string) Value { return Value{single: s} }

func List(items ...string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{list: items, isList: true}
}

func (v Value) IsList() bool { return v.isList }

// Single returns the scalar form; it is empty for a list.
func (v Value) Single() string { return v.single }

// Items returns the list form, or nil for a scalar.
func (v Value) Items() []string { return slices.Clone(v.list) }

func (v Value) clone() Value {
	v.list = slices.Clone(v.list)
	return v
}

func (v Value) String() string {
	if v.isList {
		return fmt.Sprint(v.list)
	}
	return v.single
}

func (v Value) MarshalYAML() (any, error) {
	if v.isList {
		return v.list, nil
	}
	return v.single, nil
}

func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*v = String(s)
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		*v = List(items...)
	default:
		return fmt.Errorf("line %d: condition value must be a string or a list of strings", node.Line)
	}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isList {
		return json.Marshal(v.list)
	}
	return json.Marshal(v.single)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = String(s)
		return nil
	}
	var items []string
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("condition value must be a string or a list of strings: %w", err)
	}
	*v = List(items...)
	return nil
}
