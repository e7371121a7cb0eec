package tenants

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// SettingsVersion is the schema version written by this build
const SettingsVersion = 2

// ErrUnsupportedSettingsVersion is returned for settings written by a newer build
var ErrUnsupportedSettingsVersion = errors.New("unsupported settings version")

// Settings is the per-tenant configuration document. It is stored as JSON and
// upgraded to SettingsVersion whenever it is read.
type Settings struct {
	Version  int    `json:"version"`
	Timezone string `json:"timezone"`
	Locale   string `json:"locale"`
	// AuditRetentionDays overrides the platform retention for this tenant; 0 keeps the default
	AuditRetentionDays int      `json:"audit_retention_days,omitempty"`
	Features           []string `json:"features,omitempty"`
}

// DefaultSettings returns the settings given to new tenants
func DefaultSettings() Settings {
	return Settings{
		Version:  SettingsVersion,
		Timezone: "UTC",
		Locale:   "en-US",
	}
}

// HasFeature reports whether the named feature flag is enabled
func (s Settings) HasFeature(name string) bool {
	return slices.Contains(s.Features, name)
}

// settingsV1 is the first versioned layout
type settingsV1 struct {
	Version  int             `json:"version"`
	Timezone string          `json:"timezone"`
	Language string          `json:"language"`
	Features map[string]bool `json:"features"`
}

// MigrateSettings decodes a stored settings document of any known version and
// returns it in the current layout. Unversioned documents are the free-form
// maps written before settings were versioned.
func MigrateSettings(raw []byte) (Settings, error) {
	if len(raw) == 0 {
		return DefaultSettings(), nil
	}

	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(raw, &header); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
	}

	switch header.Version {
	case 0:
		return migrateUnversioned(raw)
	case 1:
		var v1 settingsV1
		if err := json.Unmarshal(raw, &v1); err != nil {
			return Settings{}, fmt.Errorf("failed to decode v1 settings: %w", err)
		}
		return fromV1(v1), nil
	case SettingsVersion:
		s := DefaultSettings()
		if err := json.Unmarshal(raw, &s); err != nil {
			return Settings{}, fmt.Errorf("failed to decode settings: %w", err)
		}
		return s, nil
	default:
		return Settings{}, fmt.Errorf("%w: %d", ErrUnsupportedSettingsVersion, header.Version)
	}
}

func migrateUnversioned(raw []byte) (Settings, error) {
	var legacy map[string]any
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return Settings{}, fmt.Errorf("failed to decode legacy settings: %w", err)
	}
	v1 := settingsV1{Version: 1, Features: map[string]bool{}}
	for key, value := range legacy {
		switch key {
		case "timezone", "tz":
			v1.Timezone, _ = value.(string)
		case "language", "locale":
			v1.Language, _ = value.(string)
		default:
			// top-level booleans were feature toggles
			if on, ok := value.(bool); ok {
				v1.Features[key] = on
			}
		}
	}
	return fromV1(v1), nil
}

func fromV1(v1 settingsV1) Settings {
	s := DefaultSettings()
	if v1.Timezone != "" {
		s.Timezone = v1.Timezone
	}
	if v1.Language != "" {
		s.Locale = v1.Language
	}
	for name, on := range v1.Features {
		if on {
			s.Features = append(s.Features, name)
		}
	}
	slices.Sort(s.Features)
	return s
}

// Value implements driver.Valuer
func (s Settings) Value() (driver.Value, error) {
	s.Version = SettingsVersion
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner, migrating older documents on read
func (s *Settings) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into Settings", src)
	}
	migrated, err := MigrateSettings(raw)
	if err != nil {
		return err
	}
	*s = migrated
	return nil
}
