package config

import (
	"fmt"
	"sort"
	"strconv"
)

// ShowAll returns the effective configuration as sorted "key = value" lines.
// Secret values are masked.
func ShowAll(cfg Config) []string {
	lines := make([]string, 0, len(specs))
	for _, s := range specs {
		if s.key == "gemini.api_key_alt" {
			continue
		}
		v := s.extract(cfg)
		if s.secret {
			if str, _ := v.(string); str != "" {
				v = "(set)"
			} else {
				v = "(not set)"
			}
		}
		lines = append(lines, fmt.Sprintf("%s = %v", s.key, v))
	}
	sort.Strings(lines)
	return lines
}

// ValidKeys lists the settable configuration keys.
func ValidKeys() []string {
	keys := make([]string, 0, len(specs))
	for _, s := range specs {
		if s.secret {
			continue
		}
		keys = append(keys, s.key)
	}
	sort.Strings(keys)
	return keys
}

// SetKey writes a single configuration value to the platform backend.
// The Gemini API key is managed through the secret store, not here.
func SetKey(key, value string) error {
	return setKey(newPlatformBackend(), key, value)
}

func setKey(b ConfigBackend, key, value string) error {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("key %q is a secret; use 'pdfinsight config set-api-key'", key)
		}
		switch s.typ {
		case kInt:
			i, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("key %q requires an integer value: %w", key, err)
			}
			return b.SetInt(key, i)
		case kBool:
			if _, err := strconv.ParseBool(value); err != nil {
				return fmt.Errorf("key %q requires a boolean value: %w", key, err)
			}
			return b.SetString(key, value)
		default:
			return b.SetString(key, value)
		}
	}
	return fmt.Errorf("unknown config key %q; valid keys: %v", key, ValidKeys())
}

// UnsetKey removes a configuration value from the platform backend so the
// default applies again.
func UnsetKey(key string) error {
	return unsetKey(newPlatformBackend(), key)
}

func unsetKey(b ConfigBackend, key string) error {
	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("key %q is a secret and cannot be unset here", key)
		}
		return b.Delete(key)
	}
	return fmt.Errorf("unknown config key %q; valid keys: %v", key, ValidKeys())
}
