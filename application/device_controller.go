package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultStopSettleDelay is how long the gateway takes to report the settled
// position after a STOP.
const DefaultStopSettleDelay = 15 * time.Second

var (
	ErrUnsupportedCommand = fmt.Errorf("command not supported by device")
	ErrInvalidPosition    = fmt.Errorf("position must be between 0 and 100")
)

type RefreshRequester interface {
	RequestRefresh()
}

type ControllerMetrics interface {
	ObserveCommand(value string, err error)
}

type DeviceControllerParams struct {
	Client       GatewayClient
	Refresher    RefreshRequester
	Capabilities CapabilityTable

	StopSettleDelay time.Duration

	Metrics ControllerMetrics

	Log zerolog.Logger
}

func (p *DeviceControllerParams) EnsureDefaults() {
	if p.StopSettleDelay == 0 {
		p.StopSettleDelay = DefaultStopSettleDelay
	}
	if p.Capabilities == nil {
		p.Capabilities = DefaultCapabilityTable()
	}
	if p.Metrics == nil {
		p.Metrics = nopMetrics{}
	}
}

// DeviceController sends commands to gateway devices. Commands are fire and
// forget: transport errors are logged and a refresh is requested regardless.
type DeviceController struct {
	params DeviceControllerParams

	log zerolog.Logger
}

func NewDeviceController(params DeviceControllerParams) (*DeviceController, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("GatewayClient is nil")
	}
	if params.Refresher == nil {
		return nil, fmt.Errorf("Refresher is nil")
	}
	params.EnsureDefaults()
	return &DeviceController{params: params, log: params.Log}, nil
}

func (d *DeviceController) OpenCover(ctx context.Context, device Device) error {
	if err := d.require(device, CapabilityCover); err != nil {
		return err
	}
	d.log.Info().Str("device", device.Name).Msg("opening cover")
	d.send(ctx, device, ValueUp)
	d.params.Refresher.RequestRefresh()
	return nil
}

func (d *DeviceController) CloseCover(ctx context.Context, device Device) error {
	if err := d.require(device, CapabilityCover); err != nil {
		return err
	}
	d.log.Info().Str("device", device.Name).Msg("closing cover")
	d.send(ctx, device, ValueDown)
	d.params.Refresher.RequestRefresh()
	return nil
}

// StopCover blocks for the settle delay before requesting a refresh.
func (d *DeviceController) StopCover(ctx context.Context, device Device) error {
	if err := d.require(device, CapabilityCover); err != nil {
		return err
	}
	d.log.Info().Str("device", device.Name).Msg("stopping cover")
	d.send(ctx, device, ValueStop)

	timer := time.NewTimer(d.params.StopSettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	d.params.Refresher.RequestRefresh()
	return nil
}

func (d *DeviceController) SetCoverPosition(ctx context.Context, device Device, position int) error {
	if err := d.require(device, CapabilityCover|CapabilityPosition); err != nil {
		return err
	}
	if err := validatePosition(position); err != nil {
		return err
	}
	d.log.Info().Str("device", device.Name).Int("position", position).Msg("setting cover position")
	d.send(ctx, device, PositionValue(position))
	d.params.Refresher.RequestRefresh()
	return nil
}

func (d *DeviceController) OpenCoverTilt(ctx context.Context, device Device) error {
	return d.SetCoverTiltPosition(ctx, device, 100)
}

func (d *DeviceController) CloseCoverTilt(ctx context.Context, device Device) error {
	return d.SetCoverTiltPosition(ctx, device, 0)
}

func (d *DeviceController) SetCoverTiltPosition(ctx context.Context, device Device, tilt int) error {
	if err := d.require(device, CapabilityCover|CapabilityTilt); err != nil {
		return err
	}
	if err := validatePosition(tilt); err != nil {
		return err
	}
	d.log.Info().Str("device", device.Name).Int("tilt", tilt).Msg("setting cover tilt position")
	d.send(ctx, device, PositionValue(tilt))
	d.params.Refresher.RequestRefresh()
	return nil
}

func (d *DeviceController) TurnOn(ctx context.Context, device Device) error {
	if err := d.require(device, CapabilitySwitch); err != nil {
		return err
	}
	d.log.Info().Str("device", device.Name).Msg("turning switch on")
	d.send(ctx, device, ValueOn)
	d.params.Refresher.RequestRefresh()
	return nil
}

func (d *DeviceController) TurnOff(ctx context.Context, device Device) error {
	if err := d.require(device, CapabilitySwitch); err != nil {
		return err
	}
	d.log.Info().Str("device", device.Name).Msg("turning switch off")
	d.send(ctx, device, ValueOff)
	d.params.Refresher.RequestRefresh()
	return nil
}

// PositionValue encodes a cover or tilt position command.
func PositionValue(position int) string {
	return fmt.Sprintf("%d%%", position)
}

func (d *DeviceController) send(ctx context.Context, device Device, value string) {
	_, err := d.params.Client.Call(ctx, NewCallEventsCommand(device.ID, value))
	d.params.Metrics.ObserveCommand(value, err)
	if err != nil {
		d.log.Error().Err(err).
			Str("device_id", device.ID).
			Str("value", value).
			Msg("failed to send command")
	}
}

func (d *DeviceController) require(device Device, capability Capability) error {
	if !d.params.Capabilities.Capabilities(device.Type).Has(capability) {
		return fmt.Errorf("%w: %s (%s) lacks %s", ErrUnsupportedCommand, device.ID, device.Type, capability)
	}
	return nil
}

func validatePosition(position int) error {
	if position < 0 || position > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, position)
	}
	return nil
}
