// Package config holds the JSON pipeline configuration and the typed
// option bag shared by parser adapters and runners.
package config

import (
	"encoding/json"
	"fmt"
)

// Options is a loosely-typed option bag deserialized from JSON.
//
// Accessors never fail: a missing or wrongly-typed value yields the
// caller-supplied default. This keeps parser adapters total over any
// user-provided config.
type Options map[string]any

// NewOptions builds an Options from a plain map (test helper friendly).
func NewOptions(m map[string]any) Options {
	if m == nil {
		return Options{}
	}
	return Options(m)
}

// Any returns the raw value for key, or nil when absent.
func (o Options) Any(key string) any {
	if o == nil {
		return nil
	}
	return o[key]
}

// Bool returns the boolean value for key, or def.
func (o Options) Bool(key string, def bool) bool {
	v, ok := o[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// String returns the string value for key, or def.
func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Int returns the integer value for key, or def.
//
// JSON numbers decode as float64; json.Number is also accepted so callers
// can use decoders with UseNumber.
func (o Options) Int(key string, def int) int {
	v, ok := o[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return def
		}
		return int(n)
	default:
		return def
	}
}

// Rune returns the first rune of the string value for key, or def.
// Used for CSV delimiter configuration ("comma": "\t").
func (o Options) Rune(key string, def rune) rune {
	s := o.String(key, "")
	if s == "" {
		return def
	}
	for _, r := range s {
		return r
	}
	return def
}

// StringMap returns the map[string]string value for key, or an empty map.
// JSON object values with non-string members are skipped.
func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	v, ok := o[key]
	if !ok {
		return out
	}
	switch t := v.(type) {
	case map[string]string:
		for k, s := range t {
			out[k] = s
		}
	case map[string]any:
		for k, raw := range t {
			if s, ok := raw.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

// MustOptions converts a plain map through a JSON round-trip so values have
// the same dynamic types they would after decoding a config file. Panics on
// marshaling failure; intended for tests and static defaults.
func MustOptions(m map[string]any) Options {
	raw, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("config: marshal options: %v", err))
	}
	var o Options
	if err := json.Unmarshal(raw, &o); err != nil {
		panic(fmt.Sprintf("config: unmarshal options: %v", err))
	}
	return o
}
