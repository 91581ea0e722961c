package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

type DeviceType int

const (
	DeviceTypeSenso    DeviceType = 1
	DeviceTypeCosmo    DeviceType = 2
	DeviceTypeCMR      DeviceType = 3
	DeviceTypeCGR      DeviceType = 4
	DeviceTypeCSW      DeviceType = 5
	DeviceTypeCSWP     DeviceType = 6
	DeviceTypeCosmoCZR DeviceType = 7
	DeviceTypeCosmoMZR DeviceType = 8
	DeviceTypeSensoZ   DeviceType = 9
)

var deviceTypeNames = map[DeviceType]string{
	DeviceTypeSenso:    "SENSO",
	DeviceTypeCosmo:    "COSMO",
	DeviceTypeCMR:      "CMR",
	DeviceTypeCGR:      "CGR",
	DeviceTypeCSW:      "CSW",
	DeviceTypeCSWP:     "CSWP",
	DeviceTypeCosmoCZR: "COSMO_CZR",
	DeviceTypeCosmoMZR: "COSMO_MZR",
	DeviceTypeSensoZ:   "SENSO_Z",
}

func (t DeviceType) String() string {
	if name, ok := deviceTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TYPE_%d", int(t))
}

type Capability uint8

const (
	CapabilityCover Capability = 1 << iota
	CapabilityPosition
	CapabilityTilt
	CapabilitySwitch
)

var capabilityNames = map[string]Capability{
	"cover":    CapabilityCover,
	"position": CapabilityPosition,
	"tilt":     CapabilityTilt,
	"switch":   CapabilitySwitch,
}

func (c Capability) Has(other Capability) bool {
	return c&other == other
}

// ParseCapabilities turns names such as "cover" or "tilt" into a capability set.
func ParseCapabilities(names []string) (Capability, error) {
	var c Capability
	for _, name := range names {
		v, ok := capabilityNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return 0, fmt.Errorf("unknown capability %q", name)
		}
		c |= v
	}
	return c, nil
}

func (c Capability) String() string {
	var names []string
	for name, v := range capabilityNames {
		if c.Has(v) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

// CapabilityTable maps a gateway device type onto what the bridge can do with
// it. Types absent from the table are unsupported.
type CapabilityTable map[DeviceType]Capability

func DefaultCapabilityTable() CapabilityTable {
	return CapabilityTable{
		DeviceTypeSenso:    CapabilityCover | CapabilityPosition,
		DeviceTypeCosmo:    CapabilityCover,
		DeviceTypeCMR:      CapabilityCover,
		DeviceTypeCSW:      CapabilitySwitch,
		DeviceTypeCSWP:     CapabilitySwitch,
		DeviceTypeCosmoCZR: CapabilityCover | CapabilityTilt,
		DeviceTypeCosmoMZR: CapabilityCover,
		DeviceTypeSensoZ:   CapabilityCover | CapabilityPosition,
	}
}

func (t CapabilityTable) Capabilities(deviceType DeviceType) Capability {
	return t[deviceType]
}

func (t CapabilityTable) Supported(deviceType DeviceType) bool {
	return t[deviceType] != 0
}

type Device struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Type DeviceType `json:"type"`
}

func (d Device) UniqueID() string {
	return "mobilus_" + d.ID
}

var (
	ErrNoDevicesResponse  = fmt.Errorf("no devices found in response")
	ErrNoDevices          = fmt.Errorf("no devices found in the devices list")
	ErrNoSupportedDevices = fmt.Errorf("no supported devices found in the devices list")
)

// DiscoverDevices lists the devices configured on the gateway and keeps the
// ones the capability table knows about.
func DiscoverDevices(ctx context.Context, client GatewayClient, table CapabilityTable, log zerolog.Logger) ([]Device, error) {
	raw, err := client.Call(ctx, Command{Name: CommandDevicesList, Params: map[string]any{}})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CommandDevicesList, err)
	}

	devices, err := ParseDevicesList(raw)
	if errors.Is(err, ErrEmptyResponse) {
		log.Warn().Msg("no devices found in response")
		return nil, ErrNoDevicesResponse
	}
	if err != nil {
		return nil, err
	}

	if len(devices) == 0 {
		log.Warn().Msg("no devices found in the devices list")
		return nil, ErrNoDevices
	}

	var supported []Device
	for _, device := range devices {
		if !table.Supported(device.Type) {
			log.Debug().Str("device_id", device.ID).Stringer("type", device.Type).Msg("skipping unsupported device")
			continue
		}
		supported = append(supported, device)
	}

	if len(supported) == 0 {
		log.Warn().Msg("no supported devices found in the devices list")
		return nil, ErrNoSupportedDevices
	}

	log.Info().Int("devices", len(devices)).Int("supported", len(supported)).Msg("devices discovered")
	return supported, nil
}
