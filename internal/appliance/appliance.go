// Package appliance is the control plane of the UPS distribution box: the
// shared device state, the background workers feeding it and the network
// reconfiguration sequence.
package appliance

import (
	"errors"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"upsbox/internal/device"
	"upsbox/internal/metrics"
	"upsbox/internal/netif"
)

var (
	// ErrInvalidSetting wraps input validation failures.
	ErrInvalidSetting = errors.New("invalid setting")
	// ErrApply wraps OS network operation failures.
	ErrApply = errors.New("apply network setting")
	// ErrQueueFull is returned when a channel send times out.
	ErrQueueFull = errors.New("message sending error")
	// ErrStopped is returned when a send is attempted after Stop.
	ErrStopped = errors.New("appliance stopped")
)

const (
	DefaultGracePeriod     = time.Second
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultRefreshInterval = time.Second
	DefaultSendTimeout     = time.Second
	DefaultQueueSize       = 16
)

// Config holds appliance configuration. Zero durations take the defaults.
type Config struct {
	Interface string
	// ConfigIP is the fixed administrative address of Interface. It is never
	// reported as the host address and survives reconfiguration.
	ConfigIP netip.Addr

	GracePeriod     time.Duration
	PollInterval    time.Duration
	RefreshInterval time.Duration
	SendTimeout     time.Duration
	QueueSize       int
}

func (c Config) withDefaults() Config {
	if c.GracePeriod == 0 {
		c.GracePeriod = DefaultGracePeriod
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RefreshInterval == 0 {
		c.RefreshInterval = DefaultRefreshInterval
	}
	if c.SendTimeout == 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	return c
}

// Appliance owns the shared state and the channels connecting it to the
// HTTP handlers, the broker transport and the persistence writer.
type Appliance struct {
	cfg     Config
	state   *State
	netif   netif.Manager
	events  *EventBus
	metrics *metrics.Metrics
	logger  *slog.Logger

	status        chan []byte
	names         chan string
	brokerSet     chan device.Broker
	brokerUpdates chan device.Broker
	netNotify     chan device.NetworkSetting
	save          chan device.SaveMsg

	// reconfMu serializes network reconfiguration runs.
	reconfMu sync.Mutex

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an Appliance. m may be nil.
func New(nif netif.Manager, st *State, events *EventBus, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Appliance {
	cfg = cfg.withDefaults()
	return &Appliance{
		cfg:           cfg,
		state:         st,
		netif:         nif,
		events:        events,
		metrics:       m,
		logger:        logger.With("component", "appliance"),
		status:        make(chan []byte, cfg.QueueSize),
		names:         make(chan string, 1),
		brokerSet:     make(chan device.Broker, 1),
		brokerUpdates: make(chan device.Broker, cfg.QueueSize),
		netNotify:     make(chan device.NetworkSetting, 1),
		save:          make(chan device.SaveMsg, cfg.QueueSize),
		done:          make(chan struct{}),
	}
}

// Start launches the status ingest and broker refresh workers.
func (a *Appliance) Start() {
	a.wg.Add(2)
	go a.runIngest()
	go a.runBrokerRefresh()
	a.logger.Info("appliance started", "iface", a.cfg.Interface, "config_ip", a.cfg.ConfigIP.String())
}

// Stop terminates the workers and waits for them. Safe to call multiple times.
func (a *Appliance) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
	})
	a.wg.Wait()
}

func (a *Appliance) State() *State { return a.state }

func (a *Appliance) Events() *EventBus { return a.events }

func (a *Appliance) Config() Config { return a.cfg }

// Done is closed when Stop is called.
func (a *Appliance) Done() <-chan struct{} { return a.done }

// StatusInput receives raw status messages from telemetry sources.
func (a *Appliance) StatusInput() chan<- []byte { return a.status }

// BrokerUpdates receives broker endpoints the transport has switched to.
func (a *Appliance) BrokerUpdates() chan<- device.Broker { return a.brokerUpdates }

// BrokerChangeRequests delivers accepted set-broker requests to the transport.
func (a *Appliance) BrokerChangeRequests() <-chan device.Broker { return a.brokerSet }

// NetworkNotifications delivers pre-change notices before the interface is reconfigured.
func (a *Appliance) NetworkNotifications() <-chan device.NetworkSetting { return a.netNotify }

// SaveQueue delivers persistence requests.
func (a *Appliance) SaveQueue() <-chan device.SaveMsg { return a.save }

// send delivers v on ch, waiting at most SendTimeout.
func send[T any](a *Appliance, ch chan<- T, v T, queue string) error {
	t := time.NewTimer(a.cfg.SendTimeout)
	defer t.Stop()
	select {
	case ch <- v:
		return nil
	case <-a.done:
		a.metrics.QueueFailure(queue)
		return ErrStopped
	case <-t.C:
		a.metrics.QueueFailure(queue)
		return ErrQueueFull
	}
}

// sleep waits for d and reports false if the appliance stopped meanwhile.
func (a *Appliance) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-a.done:
		return false
	}
}
