// Package convert models port types and the coercion rules applied when a
// parameter edge links an output to an input of a different type.
package convert

import (
	"fmt"
	"strings"
	"time"
)

// Type names the value type carried by a component port.
//
// Values are represented with plain Go types: Bool → bool, Int → int,
// Float → float64, String → string, Duration → time.Duration,
// Time → time.Time, List → []any, Map → map[string]any. Any carries
// whatever the producer wrote.
type Type string

const (
	Any      Type = "any"
	Bool     Type = "bool"
	Int      Type = "int"
	Float    Type = "float"
	String   Type = "string"
	Duration Type = "duration"
	Time     Type = "time"
	List     Type = "list"
	Map      Type = "map"
)

var knownTypes = map[Type]bool{
	Any: true, Bool: true, Int: true, Float: true, String: true,
	Duration: true, Time: true, List: true, Map: true,
}

// ParseType resolves a type name. The empty string means Any.
func ParseType(name string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(name)))
	if t == "" {
		return Any, nil
	}
	if !knownTypes[t] {
		return "", fmt.Errorf("unknown port type %q", name)
	}
	return t, nil
}

// Zero returns the default value of a port type.
func Zero(t Type) any {
	switch t {
	case Bool:
		return false
	case Int:
		return 0
	case Float:
		return 0.0
	case String:
		return ""
	case Duration:
		return time.Duration(0)
	case Time:
		return time.Time{}
	case List:
		return []any{}
	case Map:
		return map[string]any{}
	default:
		return nil
	}
}
