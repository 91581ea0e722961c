package application

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const devicesListJSON = `[
	{
		"devices": [
			{"id": "0", "name": "Device SENSO", "type": 1},
			{"id": "1", "name": "Device COSMO", "type": 2},
			{"id": "2", "name": "Device CMR", "type": 3},
			{"id": "3", "name": "Device CGR", "type": 4},
			{"id": "4", "name": "Device SWITCH", "type": 5},
			{"id": "5", "name": "Device SWITCH_NP", "type": 6},
			{"id": "6", "name": "Device COSMO_CZR", "type": 7},
			{"id": "7", "name": "Device COSMO_MZR", "type": 8},
			{"id": "8", "name": "Device SENSO_Z", "type": 9}
		]
	}
]`

func TestDefaultCapabilityTable(t *testing.T) {
	table := DefaultCapabilityTable()

	assert.True(t, table.Capabilities(DeviceTypeSenso).Has(CapabilityCover|CapabilityPosition))
	assert.True(t, table.Capabilities(DeviceTypeSensoZ).Has(CapabilityCover|CapabilityPosition))
	assert.True(t, table.Capabilities(DeviceTypeCosmoCZR).Has(CapabilityCover|CapabilityTilt))
	assert.False(t, table.Capabilities(DeviceTypeCosmoCZR).Has(CapabilityPosition))
	assert.False(t, table.Capabilities(DeviceTypeCMR).Has(CapabilityPosition))
	assert.True(t, table.Capabilities(DeviceTypeCSW).Has(CapabilitySwitch))
	assert.True(t, table.Capabilities(DeviceTypeCSWP).Has(CapabilitySwitch))
	assert.False(t, table.Supported(DeviceTypeCGR))
	assert.False(t, table.Supported(DeviceType(42)))
}

func TestParseCapabilities(t *testing.T) {
	c, err := ParseCapabilities([]string{"cover", " Tilt "})
	require.NoError(t, err)
	assert.Equal(t, CapabilityCover|CapabilityTilt, c)
	assert.Equal(t, "cover|tilt", c.String())

	_, err = ParseCapabilities([]string{"blinds"})
	require.Error(t, err)
}

func TestDeviceType_String(t *testing.T) {
	assert.Equal(t, "COSMO_CZR", DeviceTypeCosmoCZR.String())
	assert.Equal(t, "TYPE_42", DeviceType(42).String())
}

func TestDiscoverDevices(t *testing.T) {
	client := &MockGatewayClient{}
	client.On("Call", mock.Anything, []Command{{Name: CommandDevicesList, Params: map[string]any{}}}).
		Return(devicesListJSON, nil).Once()

	devices, err := DiscoverDevices(context.Background(), client, DefaultCapabilityTable(), zerolog.Nop())
	require.NoError(t, err)

	var ids []string
	for _, device := range devices {
		ids = append(ids, device.ID)
	}
	assert.Equal(t, []string{"0", "1", "2", "4", "5", "6", "7", "8"}, ids)
	assert.Equal(t, Device{ID: "6", Name: "Device COSMO_CZR", Type: DeviceTypeCosmoCZR}, devices[5])
	assert.Equal(t, "mobilus_6", devices[5].UniqueID())

	client.AssertExpectations(t)
}

func TestDiscoverDevices_Errors(t *testing.T) {
	testCases := map[string]struct {
		response string
		err      error
	}{
		"EmptyResponse":      {response: `[]`, err: ErrNoDevicesResponse},
		"NoDevices":          {response: `[{"devices": []}]`, err: ErrNoDevices},
		"MissingDevices":     {response: `[{}]`, err: ErrNoDevices},
		"NoSupportedDevices": {response: `[{"devices": [{"id": "3", "name": "Device CGR", "type": 4}]}]`, err: ErrNoSupportedDevices},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			client := &MockGatewayClient{}
			client.On("Call", mock.Anything, mock.Anything).Return(tc.response, nil).Once()

			devices, err := DiscoverDevices(context.Background(), client, DefaultCapabilityTable(), zerolog.Nop())
			require.ErrorIs(t, err, tc.err)
			assert.Nil(t, devices)

			client.AssertExpectations(t)
		})
	}
}

func TestDiscoverDevices_CallError(t *testing.T) {
	client := &MockGatewayClient{}
	client.On("Call", mock.Anything, mock.Anything).Return("", fmt.Errorf("connection refused")).Once()

	_, err := DiscoverDevices(context.Background(), client, DefaultCapabilityTable(), zerolog.Nop())
	require.Error(t, err)

	client.AssertExpectations(t)
}

func TestParseCurrentState(t *testing.T) {
	events, err := ParseCurrentState(`[{"events": [{"deviceId": "1", "value": "45%", "eventNumber": 8}]}, {"events": []}]`)
	require.NoError(t, err)
	assert.Equal(t, []RawDeviceEvent{{DeviceID: "1", Value: "45%", EventNumber: 8}}, events)

	events, err = ParseCurrentState(`[{}]`)
	require.NoError(t, err)
	assert.Empty(t, events)

	_, err = ParseCurrentState(`[]`)
	require.ErrorIs(t, err, ErrEmptyResponse)

	_, err = ParseCurrentState(`null`)
	require.ErrorIs(t, err, ErrEmptyResponse)

	_, err = ParseCurrentState(`{not json`)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyResponse)
}
