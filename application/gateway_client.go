package application

import (
	"context"
	"encoding/json"
	"fmt"
)

const (
	CommandDevicesList  = "devices_list"
	CommandCurrentState = "current_state"
	CommandCallEvents   = "call_events"
)

var (
	ErrEmptyResponse = fmt.Errorf("empty gateway response")
)

type Command struct {
	Name   string         `json:"command"`
	Params map[string]any `json:"params"`
}

func NewCallEventsCommand(deviceID string, value string) Command {
	return Command{
		Name:   CommandCallEvents,
		Params: map[string]any{"device_id": deviceID, "value": value},
	}
}

// GatewayClient issues a batch of commands to the gateway and returns the raw
// JSON text it answered with. Calls block until the gateway responds.
type GatewayClient interface {
	Call(ctx context.Context, commands ...Command) (string, error)
}

type currentStateResponse struct {
	Events []RawDeviceEvent `json:"events"`
}

type devicesListResponse struct {
	Devices []Device `json:"devices"`
}

// ParseCurrentState returns the events of the first response object.
// ErrEmptyResponse is returned when there is no response object at all.
func ParseCurrentState(raw string) ([]RawDeviceEvent, error) {
	var responses []currentStateResponse
	if err := json.Unmarshal([]byte(raw), &responses); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", CommandCurrentState, err)
	}
	if len(responses) == 0 {
		return nil, ErrEmptyResponse
	}
	return responses[0].Events, nil
}

func ParseDevicesList(raw string) ([]Device, error) {
	var responses []devicesListResponse
	if err := json.Unmarshal([]byte(raw), &responses); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", CommandDevicesList, err)
	}
	if len(responses) == 0 {
		return nil, ErrEmptyResponse
	}
	return responses[0].Devices, nil
}
