package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultReportInterval     = 30 * time.Second
	DefaultPublishConcurrency = 4
)

var (
	ErrUnknownDevice  = fmt.Errorf("unknown device")
	ErrUnknownPayload = fmt.Errorf("unknown command payload")
	ErrUnknownTopic   = fmt.Errorf("unknown command topic")
)

type MobilusToMQTTService interface {
	Run(ctx context.Context) error
}

type MobilusToMQTTServiceParams struct {
	Coordinator  *Coordinator
	Controller   *DeviceController
	MQTTClient   MQTTClient
	Devices      []Device
	Capabilities CapabilityTable

	Topics Topics

	ReportInterval     time.Duration
	PublishConcurrency int

	Log zerolog.Logger
}

func (p *MobilusToMQTTServiceParams) EnsureDefaults() {
	if p.ReportInterval == 0 {
		p.ReportInterval = DefaultReportInterval
	}
	if p.PublishConcurrency == 0 {
		p.PublishConcurrency = DefaultPublishConcurrency
	}
	if p.Capabilities == nil {
		p.Capabilities = DefaultCapabilityTable()
	}
}

type mobilusToMQTTService struct {
	params MobilusToMQTTServiceParams

	devices  map[string]Device
	commands conc.WaitGroup

	log zerolog.Logger
}

func NewMobilusToMQTTService(params MobilusToMQTTServiceParams) (MobilusToMQTTService, error) {
	return newMobilusToMQTTService(params)
}

func newMobilusToMQTTService(params MobilusToMQTTServiceParams) (*mobilusToMQTTService, error) {
	if params.Coordinator == nil {
		return nil, fmt.Errorf("Coordinator is nil")
	}
	if params.Controller == nil {
		return nil, fmt.Errorf("Controller is nil")
	}
	if params.MQTTClient == nil {
		return nil, fmt.Errorf("MQTTClient is nil")
	}
	if params.Topics.Prefix == "" {
		return nil, fmt.Errorf("MQTT topic prefix is empty")
	}
	params.EnsureDefaults()

	devices := make(map[string]Device, len(params.Devices))
	for _, device := range params.Devices {
		devices[device.ID] = device
	}

	return &mobilusToMQTTService{params: params, devices: devices, log: params.Log}, nil
}

func (t *mobilusToMQTTService) Run(ctx context.Context) error {
	if err := t.params.MQTTClient.Connect(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	defer t.params.MQTTClient.Disconnect()

	// entities are only published once the gateway answered
	if err := t.params.Coordinator.Refresh(ctx); err != nil {
		return fmt.Errorf("first refresh: %w", err)
	}

	if err := t.params.MQTTClient.Publish(t.params.Topics.BridgeState(), 1, true, AvailabilityOnline); err != nil {
		return err
	}
	// the broker publishes the offline will on an unclean disconnect
	t.params.MQTTClient.AddConnectHandler(func() {
		if ctx.Err() != nil {
			return
		}
		t.log.Info().Msg("mqtt reconnected, republishing bridge state")
		if err := t.params.MQTTClient.Publish(t.params.Topics.BridgeState(), 1, true, AvailabilityOnline); err != nil {
			t.log.Warn().Err(err).Msg("failed to publish online state")
		}
	})
	if err := t.publishDiscovery(); err != nil {
		return err
	}
	if err := t.subscribeCommands(ctx); err != nil {
		return err
	}

	updates := make(chan struct{}, 1)
	updates <- struct{}{}
	remove := t.params.Coordinator.AddListener(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer remove()

	g, gctx := errgroup.WithContext(ctx)

	// gateway polling
	g.Go(func() error {
		return t.params.Coordinator.Run(gctx)
	})

	// state publisher
	g.Go(func() error {
		t.log.Info().Msgf("start publishing on topic: %s", t.params.Topics.Prefix)
		defer t.log.Info().Msg("stop publishing")

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-updates:
				if err := t.publishStates(); err != nil {
					t.log.Warn().Err(err).Msg("failed to publish device states")
				}
			}
		}
	})

	// mqtt publish reporter
	g.Go(func() error {
		ticker := time.NewTicker(t.params.ReportInterval)
		defer ticker.Stop()
		lastStatus := t.params.MQTTClient.Status()

		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				newStatus := t.params.MQTTClient.Status()
				t.log.Info().
					Uint64("published", newStatus.MessageCount-lastStatus.MessageCount).
					Bool("is_connected", newStatus.Connected).
					Bool("gateway_available", t.params.Coordinator.LastUpdateSuccess()).
					Time("last_time_published", newStatus.LastTimePublished).
					Msg("publish report")
				lastStatus = newStatus
			}
		}
	})

	err := g.Wait()
	t.commands.Wait()

	if pubErr := t.params.MQTTClient.Publish(t.params.Topics.BridgeState(), 1, true, AvailabilityOffline); pubErr != nil {
		t.log.Warn().Err(pubErr).Msg("failed to publish offline state")
	}
	return err
}

func (t *mobilusToMQTTService) publishDiscovery() error {
	for _, device := range t.params.Devices {
		msg, ok, err := buildDiscovery(device, t.params.Capabilities.Capabilities(device.Type), t.params.Topics)
		if err != nil {
			return fmt.Errorf("discovery for %s: %w", device.ID, err)
		}
		if !ok {
			continue
		}
		if err := t.params.MQTTClient.Publish(msg.Topic, 1, true, msg.Payload); err != nil {
			return fmt.Errorf("publish discovery for %s: %w", device.ID, err)
		}
	}
	return nil
}

func (t *mobilusToMQTTService) subscribeCommands(ctx context.Context) error {
	handler := func(msg MQTTMessage) {
		if ctx.Err() != nil {
			return
		}
		t.commands.Go(func() {
			if err := t.handleCommand(ctx, msg); err != nil {
				t.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("command rejected")
			}
		})
	}

	for _, device := range t.params.Devices {
		capabilities := t.params.Capabilities.Capabilities(device.Type)

		topics := []string{t.params.Topics.Command(device.ID)}
		if capabilities.Has(CapabilityPosition) {
			topics = append(topics, t.params.Topics.PositionCommand(device.ID))
		}
		if capabilities.Has(CapabilityTilt) {
			topics = append(topics, t.params.Topics.TiltCommand(device.ID))
		}

		for _, topic := range topics {
			if err := t.params.MQTTClient.Subscribe(topic, 1, handler); err != nil {
				return fmt.Errorf("subscribe %s: %w", topic, err)
			}
		}
	}
	return nil
}

func (t *mobilusToMQTTService) handleCommand(ctx context.Context, msg MQTTMessage) error {
	deviceID, kind := t.params.Topics.parseCommandTopic(msg.Topic())
	if kind == commandKindUnknown {
		return ErrUnknownTopic
	}

	device, ok := t.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	payload := strings.TrimSpace(string(msg.Payload()))
	ctrl := t.params.Controller

	switch kind {
	case commandKindPosition:
		position, err := strconv.Atoi(payload)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidPosition, payload)
		}
		return ctrl.SetCoverPosition(ctx, device, position)
	case commandKindTilt:
		switch strings.ToUpper(payload) {
		case PayloadOpen:
			return ctrl.OpenCoverTilt(ctx, device)
		case PayloadClose:
			return ctrl.CloseCoverTilt(ctx, device)
		}
		tilt, err := strconv.Atoi(payload)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidPosition, payload)
		}
		return ctrl.SetCoverTiltPosition(ctx, device, tilt)
	}

	switch strings.ToUpper(payload) {
	case PayloadOpen:
		return ctrl.OpenCover(ctx, device)
	case PayloadClose:
		return ctrl.CloseCover(ctx, device)
	case PayloadStop:
		return ctrl.StopCover(ctx, device)
	case ValueOn:
		return ctrl.TurnOn(ctx, device)
	case ValueOff:
		return ctrl.TurnOff(ctx, device)
	}
	return fmt.Errorf("%w: %q", ErrUnknownPayload, payload)
}

// publishStates publishes availability and, when known, the decoded state of
// every device from the current snapshot.
func (t *mobilusToMQTTService) publishStates() error {
	snapshot := t.params.Coordinator.Snapshot()
	available := t.params.Coordinator.LastUpdateSuccess()

	p := pool.New().WithMaxGoroutines(t.params.PublishConcurrency).WithErrors()
	for _, device := range t.params.Devices {
		device := device
		p.Go(func() error {
			state, ok := snapshot.Device(device.ID)

			availability := AvailabilityOffline
			if available && ok {
				availability = AvailabilityOnline
			}
			if err := t.params.MQTTClient.Publish(t.params.Topics.Availability(device.ID), 1, true, availability); err != nil {
				return fmt.Errorf("publish availability for %s: %w", device.ID, err)
			}

			if !ok {
				return nil
			}

			payload, err := json.Marshal(state)
			if err != nil {
				return err
			}
			if err := t.params.MQTTClient.Publish(t.params.Topics.State(device.ID), 0, true, payload); err != nil {
				return fmt.Errorf("publish state for %s: %w", device.ID, err)
			}
			return nil
		})
	}
	return p.Wait()
}
