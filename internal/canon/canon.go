// Package canon implements a deterministic, key-sorted JSON encoding used
// for the audit trail ("request_json") the LLM gateway and evaluator attach
// to every stored TestResult. Two logically equal values must produce
// byte-equal output regardless of struct field declaration order or map
// iteration order.
package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal encodes v deterministically: object keys are sorted
// lexicographically at every nesting level, and the output carries no
// extraneous whitespace. encoding/json already sorts map[string]any keys,
// but struct fields embedded inside slices (e.g. a []Message field) are not
// maps, so we first normalize v into a tree of map[string]any / []any /
// scalars and then walk that tree ourselves to guarantee ordering
// transitively.
func Marshal(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, fmt.Errorf("canon: normalize: %w", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, normalized); err != nil {
		return nil, fmt.Errorf("canon: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// normalize round-trips v through encoding/json to obtain a tree built only
// of map[string]any, []any, string, float64, bool, and nil.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case map[string]any:
		return encodeObject(buf, val)
	case []any:
		return encodeArray(buf, val)
	default:
		// string, float64, bool all round-trip correctly through the
		// standard encoder.
		enc, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(enc)
		return nil
	}
}

func encodeObject(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		if err := encode(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encode(buf, elem); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// MarshalString is a convenience wrapper returning the canonical encoding
// as a string.
func MarshalString(v any) (string, error) {
	b, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Combine bundles several canonically-encoded JSON fragments under stable
// top-level keys into a single canonical object, used by the evaluator to
// produce a combined request_json from a compress call and an answer call.
func Combine(parts map[string]json.RawMessage) ([]byte, error) {
	generic := make(map[string]any, len(parts))
	for k, raw := range parts {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("canon: combine key %q: %w", k, err)
		}
		generic[k] = v
	}
	return Marshal(generic)
}
