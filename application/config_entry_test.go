package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateConfigEntry(t *testing.T) {
	data := map[string]any{
		ConfigKeyHost:     "192.168.1.20",
		ConfigKeyUsername: "admin",
		ConfigKeyPassword: "secret",
	}

	version, migrated, err := MigrateConfigEntry(1, data)
	require.NoError(t, err)
	assert.True(t, migrated)
	assert.Equal(t, ConfigEntryVersion, version)
	assert.Equal(t, DefaultRefreshInterval, data[ConfigKeyRefreshInterval])
	assert.Equal(t, "192.168.1.20", data[ConfigKeyHost])
}

func TestMigrateConfigEntry_KeepsExistingInterval(t *testing.T) {
	data := map[string]any{ConfigKeyRefreshInterval: 30}

	version, migrated, err := MigrateConfigEntry(1, data)
	require.NoError(t, err)
	assert.True(t, migrated)
	assert.Equal(t, ConfigEntryVersion, version)
	assert.Equal(t, 30, data[ConfigKeyRefreshInterval])
}

func TestMigrateConfigEntry_Current(t *testing.T) {
	data := map[string]any{ConfigKeyRefreshInterval: 60}

	version, migrated, err := MigrateConfigEntry(ConfigEntryVersion, data)
	require.NoError(t, err)
	assert.False(t, migrated)
	assert.Equal(t, ConfigEntryVersion, version)
	assert.Equal(t, map[string]any{ConfigKeyRefreshInterval: 60}, data)
}

func TestMigrateConfigEntry_Newer(t *testing.T) {
	_, migrated, err := MigrateConfigEntry(ConfigEntryVersion+1, map[string]any{})
	require.Error(t, err)
	assert.False(t, migrated)
}

func TestConfigEntry_Validate(t *testing.T) {
	valid := ConfigEntry{Host: "gw", Username: "admin", Password: "secret", RefreshInterval: 600}
	require.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(e *ConfigEntry){
		"Host":            func(e *ConfigEntry) { e.Host = "" },
		"Username":        func(e *ConfigEntry) { e.Username = "" },
		"Password":        func(e *ConfigEntry) { e.Password = "" },
		"RefreshInterval": func(e *ConfigEntry) { e.RefreshInterval = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			e := valid
			mutate(&e)
			assert.Error(t, e.Validate())
		})
	}
}

func TestConfigEntry_Merge(t *testing.T) {
	stored := ConfigEntry{Version: 1, Host: "gw", Username: "admin", Password: "secret"}

	merged := stored.Merge(ConfigEntry{Password: "new-secret"})
	assert.Equal(t, ConfigEntry{
		Version:         ConfigEntryVersion,
		Host:            "gw",
		Username:        "admin",
		Password:        "new-secret",
		RefreshInterval: DefaultRefreshInterval,
	}, merged)

	merged = merged.Merge(ConfigEntry{Host: "10.0.0.2", RefreshInterval: 45})
	assert.Equal(t, "10.0.0.2", merged.Host)
	assert.Equal(t, 45*time.Second, merged.RefreshIntervalDuration())
}
