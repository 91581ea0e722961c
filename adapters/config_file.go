package adapters

import (
	"fmt"
	"os"
	"time"

	"mobilus-to-mqtt/application"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration file.
type FileConfig struct {
	Gateway struct {
		Host            string `yaml:"host"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		RefreshInterval int    `yaml:"refresh_interval"`
	} `yaml:"gateway"`
	StopSettleDelay time.Duration `yaml:"stop_settle_delay"`
	// DeviceTypes extends or overrides the built-in capability table, e.g.
	// `10: [cover, position]`.
	DeviceTypes map[int][]string `yaml:"device_types"`
}

func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// CapabilityTable returns the default table with the file's device types
// applied on top. An empty capability list removes a type.
func (c *FileConfig) CapabilityTable() (application.CapabilityTable, error) {
	table := application.DefaultCapabilityTable()
	for deviceType, names := range c.DeviceTypes {
		capabilities, err := application.ParseCapabilities(names)
		if err != nil {
			return nil, fmt.Errorf("device type %d: %w", deviceType, err)
		}
		if capabilities == 0 {
			delete(table, application.DeviceType(deviceType))
			continue
		}
		table[application.DeviceType(deviceType)] = capabilities
	}
	return table, nil
}

// ConfigEntry returns the gateway section, or false when no host is set.
func (c *FileConfig) ConfigEntry() (application.ConfigEntry, bool) {
	if c.Gateway.Host == "" {
		return application.ConfigEntry{}, false
	}
	return application.ConfigEntry{
		Version:         application.ConfigEntryVersion,
		Host:            c.Gateway.Host,
		Username:        c.Gateway.Username,
		Password:        c.Gateway.Password,
		RefreshInterval: c.Gateway.RefreshInterval,
	}, true
}
