package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// Field describes one settable key of Config.
type Field struct {
	Key    string
	Kind   reflect.Kind
	Secret bool
	// Map is set for keys under a map field such as theme.categories. The
	// last segment of such a key is a map entry, not a struct field.
	Map bool
}

var (
	schemaOnce sync.Once
	schema     map[string]Field
	mapFields  []string
)

// walk records every leaf of t under its dot-separated JSON path. Fields
// tagged secret:"true" are masked in listings.
func walk(prefix string, t reflect.Type) {
	for i := range t.NumField() {
		sf := t.Field(i)
		name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		switch sf.Type.Kind() {
		case reflect.Struct:
			walk(key, sf.Type)
		case reflect.Map:
			mapFields = append(mapFields, key)
			schema[key] = Field{Key: key, Kind: sf.Type.Elem().Kind(), Map: true}
		default:
			schema[key] = Field{Key: key, Kind: sf.Type.Kind(), Secret: sf.Tag.Get("secret") == "true"}
		}
	}
}

func loadSchema() {
	schemaOnce.Do(func() {
		schema = make(map[string]Field)
		walk("", reflect.TypeOf(Config{}))
	})
}

// LookupKey resolves key against the Config schema. Keys below a map field
// resolve to that map's element type.
func LookupKey(key string) (Field, bool) {
	loadSchema()
	if f, ok := schema[key]; ok && !f.Map {
		return f, true
	}
	if prefix, ok := mapPrefix(key); ok {
		f := schema[prefix]
		f.Key = key
		return f, true
	}
	return Field{}, false
}

func mapPrefix(key string) (string, bool) {
	loadSchema()
	for _, p := range mapFields {
		if rest, ok := strings.CutPrefix(key, p+"."); ok && rest != "" {
			return p, true
		}
	}
	return "", false
}

// IsSecretKey reports whether key holds a secret.
func IsSecretKey(key string) bool {
	f, ok := LookupKey(key)
	return ok && f.Secret
}

// ParseValue converts raw into the Go type the key holds.
func ParseValue(key, raw string) (any, error) {
	f, ok := LookupKey(key)
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	switch f.Kind {
	case reflect.String:
		return raw, nil
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%s expects true or false, got %q", key, raw)
		}
		return b, nil
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s expects an integer, got %q", key, raw)
		}
		return n, nil
	case reflect.Float64:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s expects a number, got %q", key, raw)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%s has unsupported type %s", key, f.Kind)
	}
}

// Flatten converts a nested config map into dot-separated keys. Map fields
// such as theme.mime keep their entries whole, so an entry key containing a
// dot survives.
func Flatten(m map[string]any) map[string]any {
	loadSchema()
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		child, nested := v.(map[string]any)
		if f, ok := schema[key]; ok && f.Map && nested {
			for ek, ev := range child {
				out[key+"."+ek] = ev
			}
			continue
		}
		if nested {
			flatten(key, child, out)
			continue
		}
		out[key] = v
	}
}

// Unflatten rebuilds the nested map from dot-separated keys. It fails when
// one key is both a value and the parent of another.
func Unflatten(flat map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	for k, v := range flat {
		parts := splitKey(k)
		current := out
		for i, part := range parts[:len(parts)-1] {
			next, ok := current[part]
			if !ok {
				next = make(map[string]any)
				current[part] = next
			}
			m, ok := next.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("config key %s conflicts with value at %s", k, strings.Join(parts[:i+1], "."))
			}
			current = m
		}
		last := parts[len(parts)-1]
		if _, ok := current[last].(map[string]any); ok {
			return nil, fmt.Errorf("config key %s conflicts with nested keys", k)
		}
		current[last] = v
	}
	return out, nil
}

// splitKey splits at struct boundaries only; the entry name of a map field
// stays in one piece.
func splitKey(key string) []string {
	if prefix, ok := mapPrefix(key); ok {
		return append(strings.Split(prefix, "."), key[len(prefix)+1:])
	}
	return strings.Split(key, ".")
}

// MaskSecrets returns a copy of flat with secret values shown as "***" plus
// their last four characters. Empty values stay empty.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		s, ok := v.(string)
		if !IsSecretKey(k) || !ok || s == "" {
			out[k] = v
			continue
		}
		out[k] = "***" + s[max(0, len(s)-4):]
	}
	return out
}
