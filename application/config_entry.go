package application

import (
	"fmt"
	"time"
)

const (
	ConfigEntryVersion = 2

	// DefaultRefreshInterval is injected into entries stored before the
	// interval was configurable.
	DefaultRefreshInterval = 600
)

const (
	ConfigKeyHost            = "host"
	ConfigKeyUsername        = "username"
	ConfigKeyPassword        = "password"
	ConfigKeyRefreshInterval = "refresh_interval"
)

// ConfigEntry is the persisted gateway configuration.
type ConfigEntry struct {
	Version         int    `json:"version"`
	Host            string `json:"host"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	RefreshInterval int    `json:"refresh_interval"`
}

func (e ConfigEntry) Validate() error {
	if e.Host == "" {
		return fmt.Errorf("host is required")
	}
	if e.Username == "" {
		return fmt.Errorf("username is required")
	}
	if e.Password == "" {
		return fmt.Errorf("password is required")
	}
	if e.RefreshInterval <= 0 {
		return fmt.Errorf("refresh interval must be positive, got %d", e.RefreshInterval)
	}
	return nil
}

func (e ConfigEntry) RefreshIntervalDuration() time.Duration {
	return time.Duration(e.RefreshInterval) * time.Second
}

// Merge returns e with every non-zero field of override applied.
func (e ConfigEntry) Merge(override ConfigEntry) ConfigEntry {
	if override.Host != "" {
		e.Host = override.Host
	}
	if override.Username != "" {
		e.Username = override.Username
	}
	if override.Password != "" {
		e.Password = override.Password
	}
	if override.RefreshInterval != 0 {
		e.RefreshInterval = override.RefreshInterval
	}
	if e.RefreshInterval == 0 {
		e.RefreshInterval = DefaultRefreshInterval
	}
	e.Version = ConfigEntryVersion
	return e
}

type ConfigEntryStore interface {
	LoadConfigEntry(id string) (ConfigEntry, error)
	SaveConfigEntry(id string, entry ConfigEntry) error
	DeleteConfigEntry(id string) error
}

// MigrateConfigEntry upgrades stored entry data to ConfigEntryVersion. It
// reports whether anything changed.
func MigrateConfigEntry(version int, data map[string]any) (int, bool, error) {
	if version > ConfigEntryVersion {
		return version, false, fmt.Errorf("config entry version %d is newer than supported %d", version, ConfigEntryVersion)
	}

	migrated := false
	if version <= 1 {
		if _, ok := data[ConfigKeyRefreshInterval]; !ok {
			data[ConfigKeyRefreshInterval] = DefaultRefreshInterval
		}
		version = 2
		migrated = true
	}

	return version, migrated, nil
}
