package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// ToMap converts cfg into a nested map keyed by its JSON field names.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ListValues returns every config value as a flat dot-keyed map.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads a single dot-separated key from the config file at path,
// creating the file with defaults if it is missing.
func GetValue(path, key string) (any, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if _, err := Load(path); err != nil {
			return nil, err
		}
	}
	flat, err := readFlat(path)
	if err != nil {
		return nil, err
	}
	if _, ok := LookupKey(key); !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("config key %s is not set in %s", key, path)
	}
	return v, nil
}

// SetValue writes key=value into the existing config file at path. The key
// must exist in Config and the value is parsed as the type it holds.
func SetValue(path, key, value string) error {
	parsed, err := ParseValue(key, value)
	if err != nil {
		return err
	}
	flat, err := readFlat(path)
	if err != nil {
		return err
	}
	flat[key] = parsed

	nested, err := Unflatten(flat)
	if err != nil {
		return err
	}
	data, err := encode(path, nested)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var check Config
	if err := decode(path, data, &check); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func readFlat(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := decode(path, data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return Flatten(m), nil
}
