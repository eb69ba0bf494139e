package domain

import (
	"encoding/json"
	"sort"
)

// Bundle is a mutable set of typed event parameters.
// Values are string, int64, float64 or []*Bundle.
type Bundle struct {
	values map[string]any
}

// NewBundle creates an empty bundle.
func NewBundle() *Bundle {
	return &Bundle{values: make(map[string]any)}
}

// PutString stores a string value.
func (b *Bundle) PutString(key, value string) {
	b.values[key] = value
}

// PutInt stores an integer value.
func (b *Bundle) PutInt(key string, value int64) {
	b.values[key] = value
}

// PutFloat stores a floating point value.
func (b *Bundle) PutFloat(key string, value float64) {
	b.values[key] = value
}

// PutBundles stores an array of nested bundles.
func (b *Bundle) PutBundles(key string, value []*Bundle) {
	b.values[key] = value
}

// Get returns the raw value stored under key.
func (b *Bundle) Get(key string) (any, bool) {
	v, ok := b.values[key]
	return v, ok
}

// GetString returns the string stored under key.
func (b *Bundle) GetString(key string) (string, bool) {
	v, ok := b.values[key].(string)
	return v, ok
}

// Keys returns the keys in sorted order.
func (b *Bundle) Keys() []string {
	keys := make([]string, 0, len(b.values))
	for k := range b.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored values.
func (b *Bundle) Len() int {
	return len(b.values)
}

// Map returns a deep copy of the bundle as plain maps and slices.
func (b *Bundle) Map() map[string]any {
	out := make(map[string]any, len(b.values))
	for k, v := range b.values {
		if nested, ok := v.([]*Bundle); ok {
			items := make([]map[string]any, 0, len(nested))
			for _, n := range nested {
				items = append(items, n.Map())
			}
			out[k] = items
			continue
		}
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the bundle as a JSON object.
func (b *Bundle) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Map())
}

// BundleFromStrings builds a bundle of string values from parallel slices.
// It returns nil when the slices differ in length.
func BundleFromStrings(keys, values []string) *Bundle {
	if len(keys) != len(values) {
		return nil
	}
	b := NewBundle()
	for i, k := range keys {
		b.PutString(k, values[i])
	}
	return b
}
