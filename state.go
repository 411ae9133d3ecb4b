package forgewire

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
)

// coerce converts a client-supplied JSON value into the canonical JSON form
// of kind. Browsers report every input value as a string, so numeric and
// boolean strings are accepted.
func coerce(name string, kind Kind, raw json.RawMessage) (json.RawMessage, error) {
	v, err := decodeLoose(raw)
	if err != nil {
		return nil, &CoercionError{Name: name, Kind: kind, Reason: "invalid JSON"}
	}

	fail := func(reason string) (json.RawMessage, error) {
		return nil, &CoercionError{Name: name, Kind: kind, Reason: reason}
	}

	switch kind {
	case KindString:
		switch x := v.(type) {
		case nil:
			return json.RawMessage(`""`), nil
		case string:
			return json.Marshal(x)
		case json.Number:
			return json.Marshal(x.String())
		case bool:
			if x {
				return json.RawMessage(`"true"`), nil
			}
			return json.RawMessage(`"false"`), nil
		default:
			return fail("expected a string")
		}

	case KindNumber:
		switch x := v.(type) {
		case json.Number:
			return json.RawMessage(x.String()), nil
		case string:
			n, ok := parseNumber(x)
			if !ok {
				return fail("not a number")
			}
			return json.RawMessage(n), nil
		case bool:
			if x {
				return json.RawMessage(`1`), nil
			}
			return json.RawMessage(`0`), nil
		default:
			return fail("expected a number")
		}

	case KindBool:
		switch x := v.(type) {
		case nil:
			return json.RawMessage(`false`), nil
		case bool:
			return json.Marshal(x)
		case json.Number:
			switch x.String() {
			case "0":
				return json.RawMessage(`false`), nil
			case "1":
				return json.RawMessage(`true`), nil
			}
			return fail("expected 0 or 1")
		case string:
			switch strings.ToLower(strings.TrimSpace(x)) {
			case "true", "1", "on", "yes":
				return json.RawMessage(`true`), nil
			case "false", "0", "off", "no", "":
				return json.RawMessage(`false`), nil
			}
			return fail("not a boolean")
		default:
			return fail("expected a boolean")
		}

	case KindArray:
		switch v.(type) {
		case nil:
			return json.RawMessage(`[]`), nil
		case []any:
			return compact(raw)
		default:
			return fail("expected an array")
		}
	}
	return fail("unsupported kind")
}

func decodeLoose(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errTrailingData
	}
	return v, nil
}

var errTrailingData = errors.New("trailing data after JSON value")

// parseNumber accepts strings that hold a JSON number, e.g. "42" or "-1.5".
func parseNumber(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	v, err := decodeLoose(json.RawMessage(s))
	if err != nil {
		return "", false
	}
	n, ok := v.(json.Number)
	if !ok {
		return "", false
	}
	return n.String(), true
}

func compact(raw json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Args are an action's coerced arguments. Every key has been checked against
// the action's declared parameters.
type Args struct {
	values map[string]json.RawMessage
}

// NewArgs builds Args from already-typed values. It is meant for tests and
// server-side callers; client input goes through parameter coercion instead.
func NewArgs(values map[string]any) Args {
	a := Args{values: make(map[string]json.RawMessage, len(values))}
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		a.values[k] = raw
	}
	return a
}

// Has reports whether the argument was supplied.
func (a Args) Has(name string) bool {
	_, ok := a.values[name]
	return ok
}

// String returns a string argument, or "" when absent.
func (a Args) String(name string) string {
	var s string
	_ = a.Decode(name, &s)
	return s
}

// Float returns a numeric argument, or 0 when absent.
func (a Args) Float(name string) float64 {
	var f float64
	_ = a.Decode(name, &f)
	return f
}

// Int returns an integral argument, or 0 when it is absent, fractional or
// out of range. Use Integer to tell those cases apart.
func (a Args) Int(name string) int {
	n, _ := a.Integer(name)
	return n
}

// Integer returns an integral argument. Fractional values and values outside
// the int range are rejected with a CoercionError; an absent argument is 0.
func (a Args) Integer(name string) (int, error) {
	raw, ok := a.values[name]
	if !ok {
		return 0, nil
	}
	v, err := decodeLoose(raw)
	if err != nil {
		return 0, &CoercionError{Name: name, Kind: KindNumber, Reason: "invalid JSON"}
	}
	num, ok := v.(json.Number)
	if !ok {
		return 0, &CoercionError{Name: name, Kind: KindNumber, Reason: "not a number"}
	}
	if i, err := num.Int64(); err == nil {
		if i < math.MinInt || i > math.MaxInt {
			return 0, &CoercionError{Name: name, Kind: KindNumber, Reason: "out of range"}
		}
		return int(i), nil
	}
	f, err := num.Float64()
	if err != nil || math.IsInf(f, 0) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, &CoercionError{Name: name, Kind: KindNumber, Reason: "out of range"}
	}
	if f != math.Trunc(f) {
		return 0, &CoercionError{Name: name, Kind: KindNumber, Reason: "not an integer"}
	}
	i := int64(f)
	if i < math.MinInt || i > math.MaxInt {
		return 0, &CoercionError{Name: name, Kind: KindNumber, Reason: "out of range"}
	}
	return int(i), nil
}

// Bool returns a boolean argument, or false when absent.
func (a Args) Bool(name string) bool {
	var b bool
	_ = a.Decode(name, &b)
	return b
}

// List returns an array argument, or nil when absent.
func (a Args) List(name string) []any {
	var l []any
	_ = a.Decode(name, &l)
	return l
}

// Decode unmarshals the named argument into v.
func (a Args) Decode(name string, v any) error {
	raw, ok := a.values[name]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// bindArgs checks raw client arguments against the action's parameters.
func bindArgs(action *Action, raw map[string]json.RawMessage) (Args, error) {
	declared := make(map[string]Parameter, len(action.Params))
	for _, p := range action.Params {
		declared[p.Name] = p
	}
	for name := range raw {
		if _, ok := declared[name]; !ok {
			return Args{}, &CoercionError{Name: name, Reason: "undeclared argument for action " + action.Name}
		}
	}

	args := Args{values: make(map[string]json.RawMessage, len(action.Params))}
	for _, p := range action.Params {
		v, ok := raw[p.Name]
		if !ok {
			if p.Optional {
				continue
			}
			return Args{}, &CoercionError{Name: p.Name, Reason: "missing required argument for action " + action.Name}
		}
		c, err := coerce(p.Name, p.Kind, v)
		if err != nil {
			return Args{}, err
		}
		args.values[p.Name] = c
	}
	return args, nil
}
