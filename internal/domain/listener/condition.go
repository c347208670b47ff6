package listener

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Condition is a predicate over an event payload. Leaf nodes compare a
// dot-path field against a value; composite nodes combine children with
// all/any semantics. A nil Condition matches everything.
type Condition struct {
	// Composite form.
	All []*Condition `json:"all,omitempty"`
	Any []*Condition `json:"any,omitempty"`

	// Leaf form.
	Field string      `json:"field,omitempty"`
	Op    string      `json:"op,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpContains = "contains"
	OpExists   = "exists"
)

var validOps = map[string]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true,
	OpLt: true, OpLte: true, OpContains: true, OpExists: true,
}

// ParseCondition decodes and validates a condition document.
func ParseCondition(raw json.RawMessage) (*Condition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var c Condition
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Condition) validate() error {
	composite := len(c.All) > 0 || len(c.Any) > 0
	leaf := c.Field != "" || c.Op != ""

	switch {
	case composite && leaf:
		return fmt.Errorf("condition cannot mix composite and leaf fields")
	case len(c.All) > 0 && len(c.Any) > 0:
		return fmt.Errorf("condition cannot have both all and any")
	case composite:
		for _, child := range append(c.All, c.Any...) {
			if err := child.validate(); err != nil {
				return err
			}
		}
		return nil
	case leaf:
		if c.Field == "" {
			return fmt.Errorf("leaf condition requires field")
		}
		if !validOps[c.Op] {
			return fmt.Errorf("unknown op %q", c.Op)
		}
		return nil
	default:
		return fmt.Errorf("empty condition")
	}
}

// Matches evaluates the condition against a decoded payload. Unknown fields
// evaluate as absent, not as errors.
func (c *Condition) Matches(payload map[string]interface{}) bool {
	if c == nil {
		return true
	}
	switch {
	case len(c.All) > 0:
		for _, child := range c.All {
			if !child.Matches(payload) {
				return false
			}
		}
		return true
	case len(c.Any) > 0:
		for _, child := range c.Any {
			if child.Matches(payload) {
				return true
			}
		}
		return false
	}

	val, found := lookupPath(payload, c.Field)
	if c.Op == OpExists {
		want := true
		if b, ok := c.Value.(bool); ok {
			want = b
		}
		return found == want
	}
	if !found {
		return false
	}

	switch c.Op {
	case OpEq:
		return compareEq(val, c.Value)
	case OpNeq:
		return !compareEq(val, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		a, aok := asFloat(val)
		b, bok := asFloat(c.Value)
		if !aok || !bok {
			return false
		}
		switch c.Op {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	case OpContains:
		return contains(val, c.Value)
	}
	return false
}

// lookupPath walks a dot-separated path through nested objects.
func lookupPath(payload map[string]interface{}, path string) (interface{}, bool) {
	cur := interface{}(payload)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func compareEq(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func contains(haystack, needle interface{}) bool {
	switch h := haystack.(type) {
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(h, s)
	case []interface{}:
		for _, item := range h {
			if compareEq(item, needle) {
				return true
			}
		}
	}
	return false
}
