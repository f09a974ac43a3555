package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cast"
)

// Assignation is the strategy chosen for moving a value from one port type
// to another. It is computed once per parameter edge.
type Assignation int

const (
	// NotAssignable means no conversion exists in either direction; the edge
	// writes nothing.
	NotAssignable Assignation = iota
	// Assignable means the target accepts the source value as-is.
	Assignable
	// SourceToTargetDirect means the source type's converter produces the target type.
	SourceToTargetDirect
	// TargetToSourceBack means the target type's converter consumes the source type.
	TargetToSourceBack
)

func (a Assignation) String() string {
	switch a {
	case Assignable:
		return "assignable"
	case SourceToTargetDirect:
		return "direct"
	case TargetToSourceBack:
		return "back"
	default:
		return "not_assignable"
	}
}

type convertFunc func(v any) (any, error)

// Converter converts values of one port type to and from other types.
type Converter interface {
	CanConvertTo(t Type) bool
	CanConvertFrom(t Type) bool
	ConvertTo(v any, t Type) (any, error)
	ConvertFrom(v any, src Type) (any, error)
}

type tableConverter struct {
	self Type
	to   map[Type]convertFunc
	from map[Type]convertFunc
}

func (c *tableConverter) CanConvertTo(t Type) bool {
	_, ok := c.to[t]
	return ok
}

func (c *tableConverter) CanConvertFrom(t Type) bool {
	_, ok := c.from[t]
	return ok
}

func (c *tableConverter) ConvertTo(v any, t Type) (any, error) {
	fn, ok := c.to[t]
	if !ok {
		return nil, fmt.Errorf("%s cannot convert to %s", c.self, t)
	}
	return fn(v)
}

func (c *tableConverter) ConvertFrom(v any, src Type) (any, error) {
	fn, ok := c.from[src]
	if !ok {
		return nil, fmt.Errorf("%s cannot convert from %s", c.self, src)
	}
	return fn(v)
}

func toBool(v any) (any, error)   { return cast.ToBoolE(v) }
func toInt(v any) (any, error)    { return cast.ToIntE(v) }
func toFloat(v any) (any, error)  { return cast.ToFloat64E(v) }
func toString(v any) (any, error) { return cast.ToStringE(v) }
func toDuration(v any) (any, error) {
	return cast.ToDurationE(v)
}
func toTime(v any) (any, error) { return cast.ToTimeE(v) }

func toList(v any) (any, error) {
	if s, ok := v.(string); ok {
		var out []any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return cast.ToSliceE(v)
}

func toMap(v any) (any, error) {
	if s, ok := v.(string); ok {
		var out map[string]any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return cast.ToStringMapE(v)
}

func jsonString(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func durationSeconds(v any) (any, error) {
	d, err := cast.ToDurationE(v)
	if err != nil {
		return nil, err
	}
	return d.Seconds(), nil
}

func secondsDuration(v any) (any, error) {
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, err
	}
	return time.Duration(f * float64(time.Second)), nil
}

func timeString(v any) (any, error) {
	t, err := cast.ToTimeE(v)
	if err != nil {
		return nil, err
	}
	return t.Format(time.RFC3339Nano), nil
}

func timeUnix(v any) (any, error) {
	t, err := cast.ToTimeE(v)
	if err != nil {
		return nil, err
	}
	return int(t.Unix()), nil
}

// Scalar converters only convert "outwards" to simpler types; richer types
// (Duration, Time, List, Map) know how to build themselves from scalars.
// This asymmetry is what makes the backward path reachable.
var converters = map[Type]Converter{
	Any: &tableConverter{self: Any, to: map[Type]convertFunc{
		Bool: toBool, Int: toInt, Float: toFloat, String: toString,
		Duration: toDuration, Time: toTime, List: toList, Map: toMap,
	}},
	Bool: &tableConverter{self: Bool,
		to:   map[Type]convertFunc{Int: toInt, Float: toFloat, String: toString},
		from: map[Type]convertFunc{Int: toBool, Float: toBool, String: toBool},
	},
	Int: &tableConverter{self: Int,
		to:   map[Type]convertFunc{Bool: toBool, Float: toFloat, String: toString},
		from: map[Type]convertFunc{Bool: toInt, Float: toInt, String: toInt},
	},
	Float: &tableConverter{self: Float,
		to:   map[Type]convertFunc{Bool: toBool, Int: toInt, String: toString},
		from: map[Type]convertFunc{Bool: toFloat, Int: toFloat, String: toFloat},
	},
	String: &tableConverter{self: String,
		to:   map[Type]convertFunc{Bool: toBool, Int: toInt, Float: toFloat},
		from: map[Type]convertFunc{Bool: toString, Int: toString, Float: toString},
	},
	Duration: &tableConverter{self: Duration,
		to:   map[Type]convertFunc{String: toString, Int: toInt, Float: durationSeconds},
		from: map[Type]convertFunc{String: toDuration, Int: toDuration, Float: secondsDuration},
	},
	Time: &tableConverter{self: Time,
		to:   map[Type]convertFunc{String: timeString, Int: timeUnix},
		from: map[Type]convertFunc{String: toTime, Int: toTime},
	},
	List: &tableConverter{self: List,
		to:   map[Type]convertFunc{String: jsonString},
		from: map[Type]convertFunc{String: toList},
	},
	Map: &tableConverter{self: Map,
		to:   map[Type]convertFunc{String: jsonString},
		from: map[Type]convertFunc{String: toMap},
	},
}

// ConverterFor returns the converter registered for t, or nil.
func ConverterFor(t Type) Converter {
	return converters[t]
}

// IsAssignable reports whether a value of src can be stored in dst without conversion.
func IsAssignable(src, dst Type) bool {
	return src == dst || dst == Any
}

// CanBeAssignedTo picks the coercion strategy for a src → dst edge.
// Exact assignability wins over conversion, and the forward converter wins
// over the backward one.
func CanBeAssignedTo(src, dst Type) Assignation {
	if IsAssignable(src, dst) {
		return Assignable
	}
	if c := ConverterFor(src); c != nil && c.CanConvertTo(dst) {
		return SourceToTargetDirect
	}
	if c := ConverterFor(dst); c != nil && c.CanConvertFrom(src) {
		return TargetToSourceBack
	}
	return NotAssignable
}

// Apply moves v across an edge using the given strategy. ok is false only for
// NotAssignable, in which case nothing must be written. A conversion failure
// yields the target's zero value together with the conversion error, which
// callers treat as informational.
func Apply(mode Assignation, v any, src, dst Type) (out any, ok bool, err error) {
	switch mode {
	case Assignable:
		return v, true, nil
	case SourceToTargetDirect:
		out, err = ConverterFor(src).ConvertTo(v, dst)
	case TargetToSourceBack:
		out, err = ConverterFor(dst).ConvertFrom(v, src)
	default:
		return nil, false, nil
	}
	if err != nil {
		return Zero(dst), true, err
	}
	return out, true, nil
}

// Coerce converts an untyped value (typically decoded from a definition
// document) into the representation of t.
func Coerce(v any, t Type) (any, error) {
	if v == nil {
		return Zero(t), nil
	}
	if t == Any {
		return v, nil
	}
	return ConverterFor(Any).ConvertTo(v, t)
}
