// Package params holds the structured configuration tree that travels with a
// trained model: loaded from config.json, packed into the archive, and handed
// to the model loader on unpack.
package params

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Params is a nested string-keyed configuration tree.
// Values are the plain JSON types: string, float64, bool, []any and
// map[string]any for nested sections.
type Params map[string]any

// Load reads and parses a JSON configuration file into a Params tree.
func Load(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var p Params
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return p, nil
}

// Duplicate returns a deep copy of the tree.
// Use it when handing params to a consumer that mutates them (the model
// loader pops keys as it constructs components).
func (p Params) Duplicate() Params {
	return Params(duplicateMap(p))
}

func duplicateMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = duplicateValue(value)
	}
	return out
}

func duplicateValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return duplicateMap(v)
	case Params:
		return Params(duplicateMap(v))
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = duplicateValue(item)
		}
		return out
	default:
		return v
	}
}

// Set stores a value at a top-level key.
func (p Params) Set(key string, value any) {
	p[key] = value
}

// Get returns the value at a top-level key, or nil if absent.
func (p Params) Get(key string) any {
	return p[key]
}

// GetString returns the string at a top-level key, or "" if the key is
// absent or holds a non-string value.
func (p Params) GetString(key string) string {
	s, _ := p[key].(string)
	return s
}

// Pop removes and returns the value at a top-level key.
// The second return reports whether the key was present.
func (p Params) Pop(key string) (any, bool) {
	value, ok := p[key]
	if ok {
		delete(p, key)
	}
	return value, ok
}

// Flat returns a single-level view of the tree with dot-joined keys,
// e.g. {"encoder": {"dim": 128}} becomes {"encoder.dim": 128}.
// Used when reporting the full configuration to an experiment tracker.
func (p Params) Flat() map[string]any {
	flat := make(map[string]any)
	flatten("", p, flat)
	return flat
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for key, value := range m {
		full := key
		if prefix != "" {
			full = prefix + "." + key
		}
		switch v := value.(type) {
		case map[string]any:
			flatten(full, v, out)
		case Params:
			flatten(full, v, out)
		default:
			out[full] = value
		}
	}
}

// SortedKeys returns the top-level keys in lexical order.
func (p Params) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
