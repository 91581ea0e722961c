package application

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	PayloadOpen  = "OPEN"
	PayloadClose = "CLOSE"
	PayloadStop  = "STOP"

	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// Position templates render empty for a null position, which Home Assistant
// skips instead of parsing "None".
const (
	coverPositionTemplate = "{% if value_json.cover_position is not none %}{{ value_json.cover_position }}{% endif %}"
	tiltPositionTemplate  = "{% if value_json.tilt_position is not none %}{{ value_json.tilt_position }}{% endif %}"
)

// Topics lays out the MQTT topics of the bridge.
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
}

func (t Topics) BridgeState() string {
	return t.Prefix + "/bridge/state"
}

func (t Topics) State(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/state"
}

func (t Topics) Availability(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/availability"
}

func (t Topics) Command(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/set"
}

func (t Topics) PositionCommand(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/position/set"
}

func (t Topics) TiltCommand(deviceID string) string {
	return t.Prefix + "/" + deviceID + "/tilt/set"
}

func (t Topics) Discovery(component string, device Device) string {
	return fmt.Sprintf("%s/%s/%s/config", t.DiscoveryPrefix, component, device.UniqueID())
}

type commandKind int

const (
	commandKindUnknown commandKind = iota
	commandKindState
	commandKindPosition
	commandKindTilt
)

// parseCommandTopic extracts the device id and command kind from a topic
// produced by Command, PositionCommand or TiltCommand.
func (t Topics) parseCommandTopic(topic string) (string, commandKind) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/")
	if !ok {
		return "", commandKindUnknown
	}

	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 2 && parts[1] == "set":
		return parts[0], commandKindState
	case len(parts) == 3 && parts[1] == "position" && parts[2] == "set":
		return parts[0], commandKindPosition
	case len(parts) == 3 && parts[1] == "tilt" && parts[2] == "set":
		return parts[0], commandKindTilt
	}
	return "", commandKindUnknown
}

type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

type haAvailability struct {
	Topic string `json:"topic"`
}

type haDiscovery struct {
	Name             string           `json:"name"`
	UniqueID         string           `json:"unique_id"`
	Availability     []haAvailability `json:"availability"`
	AvailabilityMode string           `json:"availability_mode"`
	DeviceClass      string           `json:"device_class,omitempty"`
	CommandTopic     string           `json:"command_topic"`

	// switch
	StateTopic    string `json:"state_topic,omitempty"`
	ValueTemplate string `json:"value_template,omitempty"`
	PayloadOn     string `json:"payload_on,omitempty"`
	PayloadOff    string `json:"payload_off,omitempty"`

	// cover
	PayloadOpen        string `json:"payload_open,omitempty"`
	PayloadClose       string `json:"payload_close,omitempty"`
	PayloadStop        string `json:"payload_stop,omitempty"`
	PositionTopic      string `json:"position_topic,omitempty"`
	PositionTemplate   string `json:"position_template,omitempty"`
	SetPositionTopic   string `json:"set_position_topic,omitempty"`
	TiltStatusTopic    string `json:"tilt_status_topic,omitempty"`
	TiltStatusTemplate string `json:"tilt_status_template,omitempty"`
	TiltCommandTopic   string `json:"tilt_command_topic,omitempty"`
	TiltOpenedValue    *int   `json:"tilt_opened_value,omitempty"`
	TiltClosedValue    *int   `json:"tilt_closed_value,omitempty"`

	Device haDevice `json:"device"`
}

type discoveryMsg struct {
	Topic   string
	Payload []byte
}

// buildDiscovery returns the Home Assistant discovery message for a device,
// or false when the device has neither cover nor switch capability.
func buildDiscovery(device Device, capabilities Capability, topics Topics) (discoveryMsg, bool, error) {
	d := haDiscovery{
		Name:     device.Name,
		UniqueID: device.UniqueID(),
		Availability: []haAvailability{
			{Topic: topics.BridgeState()},
			{Topic: topics.Availability(device.ID)},
		},
		AvailabilityMode: "all",
		CommandTopic:     topics.Command(device.ID),
		Device: haDevice{
			Identifiers:  []string{device.UniqueID()},
			Manufacturer: "Mobilus",
			Model:        device.Type.String(),
			Name:         device.Name,
		},
	}

	var component string
	switch {
	case capabilities.Has(CapabilityCover):
		component = "cover"
		d.DeviceClass = "shutter"
		d.PayloadOpen = PayloadOpen
		d.PayloadClose = PayloadClose
		d.PayloadStop = PayloadStop
		d.PositionTopic = topics.State(device.ID)
		d.PositionTemplate = coverPositionTemplate
		if capabilities.Has(CapabilityPosition) {
			d.SetPositionTopic = topics.PositionCommand(device.ID)
		}
		if capabilities.Has(CapabilityTilt) {
			opened, closed := 100, 0
			d.TiltStatusTopic = topics.State(device.ID)
			d.TiltStatusTemplate = tiltPositionTemplate
			d.TiltCommandTopic = topics.TiltCommand(device.ID)
			d.TiltOpenedValue = &opened
			d.TiltClosedValue = &closed
		}
	case capabilities.Has(CapabilitySwitch):
		component = "switch"
		d.StateTopic = topics.State(device.ID)
		d.ValueTemplate = "{{ value_json.state }}"
		d.PayloadOn = ValueOn
		d.PayloadOff = ValueOff
	default:
		return discoveryMsg{}, false, nil
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return discoveryMsg{}, false, err
	}
	return discoveryMsg{Topic: topics.Discovery(component, device), Payload: payload}, true, nil
}
