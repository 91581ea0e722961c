package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

var (
	ErrUpdateFailed = fmt.Errorf("update failed")
)

// Snapshot is the decoded state of every device reported by one poll cycle.
type Snapshot struct {
	Devices   map[string]*DeviceState
	UpdatedAt time.Time
}

func (s *Snapshot) Device(deviceID string) (*DeviceState, bool) {
	state, ok := s.Devices[deviceID]
	return state, ok
}

type CoordinatorMetrics interface {
	ObserveRefresh(duration time.Duration, devices int, err error)
}

type nopMetrics struct{}

func (nopMetrics) ObserveRefresh(time.Duration, int, error) {}
func (nopMetrics) ObserveCommand(string, error)             {}

type CoordinatorParams struct {
	Client          GatewayClient
	RefreshInterval time.Duration

	Metrics CoordinatorMetrics

	Log zerolog.Logger
}

func (p *CoordinatorParams) EnsureDefaults() {
	if p.Metrics == nil {
		p.Metrics = nopMetrics{}
	}
}

type Coordinator struct {
	params CoordinatorParams

	snapshot          atomic.Pointer[Snapshot]
	lastUpdateSuccess atomic.Bool
	refreshing        atomic.Bool
	closed            atomic.Bool

	group    singleflight.Group
	requests chan struct{}
	done     chan struct{}

	mu             sync.Mutex
	listeners      map[uint64]func()
	nextListenerID uint64

	log zerolog.Logger
}

func NewCoordinator(params CoordinatorParams) (*Coordinator, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("GatewayClient is nil")
	}
	if params.RefreshInterval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %s", params.RefreshInterval)
	}
	params.EnsureDefaults()

	c := &Coordinator{
		params:    params,
		requests:  make(chan struct{}, 1),
		done:      make(chan struct{}),
		listeners: make(map[uint64]func()),
		log:       params.Log,
	}
	c.snapshot.Store(&Snapshot{Devices: map[string]*DeviceState{}})
	return c, nil
}

// Snapshot returns the last successfully fetched snapshot. It is never nil.
func (c *Coordinator) Snapshot() *Snapshot {
	return c.snapshot.Load()
}

func (c *Coordinator) LastUpdateSuccess() bool {
	return c.lastUpdateSuccess.Load()
}

func (c *Coordinator) RefreshInterval() time.Duration {
	return c.params.RefreshInterval
}

// AddListener registers fn to be called after every refresh cycle, failed or
// not. The returned func removes it.
func (c *Coordinator) AddListener(fn func()) (remove func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextListenerID
	c.nextListenerID++
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// RequestRefresh asks Run to refresh now. A request made while a refresh is
// in flight is merged into it.
func (c *Coordinator) RequestRefresh() {
	if c.refreshing.Load() || c.closed.Load() {
		return
	}
	select {
	case c.requests <- struct{}{}:
	default:
	}
}

// Refresh fetches and publishes a new snapshot. Concurrent calls share a
// single cycle. Failures match ErrUpdateFailed and leave the previous
// snapshot in place.
func (c *Coordinator) Refresh(ctx context.Context) error {
	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		return nil, c.refresh(ctx)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

// Run refreshes every RefreshInterval and on RequestRefresh until ctx is done
// or Close is called. The interval restarts after each cycle.
func (c *Coordinator) Run(ctx context.Context) error {
	defer c.Close()

	timer := time.NewTimer(c.params.RefreshInterval)
	defer timer.Stop()

	c.log.Info().Dur("interval", c.params.RefreshInterval).Msg("polling started")
	defer c.log.Info().Msg("polling stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-timer.C:
		case <-c.requests:
		}

		// select picks randomly among ready cases
		if ctx.Err() != nil || c.closed.Load() {
			return nil
		}

		// failures are logged and reported to listeners
		_ = c.Refresh(ctx)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.params.RefreshInterval)
	}
}

// Close stops Run, snapshot updates and listener notifications.
func (c *Coordinator) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)

	c.mu.Lock()
	c.listeners = make(map[uint64]func())
	c.mu.Unlock()
}

func (c *Coordinator) refresh(ctx context.Context) error {
	c.refreshing.Store(true)
	defer c.refreshing.Store(false)

	start := time.Now()
	snapshot, err := c.fetch(ctx)

	devices := 0
	if snapshot != nil {
		devices = len(snapshot.Devices)
	}
	c.params.Metrics.ObserveRefresh(time.Since(start), devices, err)

	if c.closed.Load() {
		return err
	}

	if err != nil {
		c.lastUpdateSuccess.Store(false)
		c.log.Warn().Err(err).Msg("refresh failed")
	} else {
		c.snapshot.Store(snapshot)
		c.lastUpdateSuccess.Store(true)
		c.log.Debug().Int("devices", devices).Dur("took", time.Since(start)).Msg("refresh finished")
	}

	c.notify()
	return err
}

func (c *Coordinator) fetch(ctx context.Context) (*Snapshot, error) {
	raw, err := c.params.Client.Call(ctx, Command{Name: CommandCurrentState, Params: map[string]any{}})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	events, err := ParseCurrentState(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	snapshot := &Snapshot{
		Devices:   make(map[string]*DeviceState, len(events)),
		UpdatedAt: time.Now(),
	}
	for _, event := range events {
		snapshot.Devices[event.DeviceID] = NewDeviceState(event)
	}
	return snapshot, nil
}

func (c *Coordinator) notify() {
	c.mu.Lock()
	listeners := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}
