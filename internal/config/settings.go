package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SettingsFile holds optional per-project tuning.
const SettingsFile = "settings.yaml"

const (
	DefaultDebounce            = 500 * time.Millisecond
	DefaultRecurrenceThreshold = 3
)

// Settings are per-project tuning values.
type Settings struct {
	// Debounce delays state writes after the last mutation.
	Debounce time.Duration
	// RecurrenceThreshold is the drift detector's threshold.
	RecurrenceThreshold int
	// History enables the evaluation history database.
	History bool
}

type settingsFile struct {
	DebounceMS          *int  `yaml:"debounce_ms"`
	RecurrenceThreshold *int  `yaml:"recurrence_threshold"`
	History             *bool `yaml:"history"`
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		Debounce:            DefaultDebounce,
		RecurrenceThreshold: DefaultRecurrenceThreshold,
	}
}

// LoadSettings reads <rootDir>/settings.yaml over the defaults.
// A missing file yields the defaults.
func LoadSettings(rootDir string) (Settings, error) {
	s := DefaultSettings()

	data, err := os.ReadFile(filepath.Join(rootDir, SettingsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read %s: %w", SettingsFile, err)
	}

	var raw settingsFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return s, fmt.Errorf("parse %s: %w", SettingsFile, err)
	}

	if raw.DebounceMS != nil {
		if *raw.DebounceMS < 0 {
			return s, fmt.Errorf("%s: debounce_ms must be >= 0, got %d", SettingsFile, *raw.DebounceMS)
		}
		s.Debounce = time.Duration(*raw.DebounceMS) * time.Millisecond
	}
	if raw.RecurrenceThreshold != nil {
		if *raw.RecurrenceThreshold < 1 {
			return s, fmt.Errorf("%s: recurrence_threshold must be >= 1, got %d", SettingsFile, *raw.RecurrenceThreshold)
		}
		s.RecurrenceThreshold = *raw.RecurrenceThreshold
	}
	if raw.History != nil {
		s.History = *raw.History
	}
	return s, nil
}
