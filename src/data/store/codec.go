package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

const (
	setTag      = "__set__"
	datetimeTag = "__datetime__"
)

// localLayout reads timestamps written without a zone offset; they are taken
// as UTC.
const localLayout = "2006-01-02T15:04:05.999999999"

// Encode serializes a tree into the snapshot format.
func Encode(data map[string]any) ([]byte, error) {
	tagged, err := encodeValue(data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tagged); err != nil {
		return nil, fmt.Errorf("store: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeValue(v any) (any, error) {
	switch v := v.(type) {
	case nil, string, bool, int, int64, float64:
		return v, nil
	case time.Time:
		return map[string]any{datetimeTag: v.UTC().Format(time.RFC3339Nano)}, nil
	case Set:
		return map[string]any{setTag: v.Items()}, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, x := range v {
			enc, err := encodeValue(x)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = enc
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			enc, err := encodeValue(x)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = enc
		}
		return out, nil
	default:
		return nil, fmt.Errorf("store: cannot persist %T", v)
	}
}

// Decode parses a snapshot back into a tree, restoring sets and timestamps.
func Decode(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var top any
	if err := dec.Decode(&top); err != nil {
		return nil, fmt.Errorf("store: decode: %w", err)
	}
	if top == nil {
		return map[string]any{}, nil
	}
	v, err := decodeValue(top)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("store: snapshot root is %T, want object", v)
	}
	return m, nil
}

func decodeValue(v any) (any, error) {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("store: bad number %q", v)
		}
		return f, nil
	case []any:
		out := make([]any, len(v))
		for i, x := range v {
			dec, err := decodeValue(x)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case map[string]any:
		if tag, ok := v[setTag]; ok {
			return decodeSet(v, tag)
		}
		if tag, ok := v[datetimeTag]; ok && len(v) == 1 {
			s, ok := tag.(string)
			if !ok {
				return nil, fmt.Errorf("store: %s must be a string", datetimeTag)
			}
			return parseTime(s)
		}
		out := make(map[string]any, len(v))
		for k, x := range v {
			dec, err := decodeValue(x)
			if err != nil {
				return nil, err
			}
			out[k] = dec
		}
		return out, nil
	default:
		return v, nil
	}
}

// decodeSet reads both the list form and the older form where members were
// the object's own keys next to "__set__": true.
func decodeSet(obj map[string]any, tag any) (Set, error) {
	set := Set{}
	if items, ok := tag.([]any); ok {
		for _, it := range items {
			n, err := decodeValue(it)
			if err != nil {
				return nil, err
			}
			id, err := IDString(n)
			if err != nil {
				return nil, err
			}
			set.Add(id)
		}
		return set, nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		if k != setTag {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		set.Add(k)
	}
	return set, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: bad %s %q", datetimeTag, s)
	}
	return t, nil
}
