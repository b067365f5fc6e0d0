package model

import (
	"sort"
	"strings"
)

// Fields maps canonical field names to values. Keys are case-insensitive:
// they are stored and looked up lowercased.
type Fields map[string]string

func (f Fields) Get(name string) (string, bool) {
	if f == nil {
		return "", false
	}
	v, ok := f[strings.ToLower(name)]
	return v, ok
}

func (f Fields) Set(name, value string) {
	f[strings.ToLower(name)] = value
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the field values ordered by key.
func (f Fields) Values() []string {
	values := make([]string, 0, len(f))
	for _, k := range f.Keys() {
		values = append(values, f[k])
	}
	return values
}
