//go:build !no_mqtt

// Package mqtt is the broker transport of the appliance. It follows
// broker change requests, steps off the network while the interface is
// being reconfigured, feeds status messages into the appliance and
// publishes the box state for Home Assistant.
package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"upsbox/internal/appliance"
	"upsbox/internal/device"
)

const (
	DefaultPort           = 1883
	DefaultReconnectDelay = 5 * time.Second

	topicAvailability = "/availability"
	topicStatus       = "/status"
	topicInfo         = "/info"

	tokenTimeout = 5 * time.Second
)

// Config holds MQTT client configuration.
type Config struct {
	Broker      device.Broker
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Discovery   bool
	// ReconnectDelay is how long the client stays offline after a network
	// change notification.
	ReconnectDelay time.Duration
}

// Client connects the appliance to the MQTT broker.
type Client struct {
	cfg       Config
	app       *appliance.Appliance
	logger    *slog.Logger
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	mu     sync.Mutex
	client pahomqtt.Client
	broker device.Broker

	unsub  func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a client. Nothing is connected until Start.
func New(app *appliance.Appliance, cfg Config, logger *slog.Logger) *Client {
	if cfg.ReconnectDelay == 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "upsbox"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "upsbox"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		cfg:       cfg,
		app:       app,
		logger:    logger.With("component", "mqtt"),
		newClient: pahomqtt.NewClient,
		broker:    cfg.Broker,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start connects to the configured broker and begins consuming broker change
// requests and network notifications.
func (c *Client) Start() {
	c.mu.Lock()
	c.connectLocked(c.broker)
	c.mu.Unlock()

	c.unsub = c.app.Events().Subscribe(c.handleEvent)
	c.wg.Add(1)
	go c.run()
	c.logger.Info("MQTT client started", "broker", c.broker.String(), "prefix", c.cfg.TopicPrefix)
}

// Stop publishes offline availability and disconnects.
func (c *Client) Stop() {
	c.cancel()
	if c.unsub != nil {
		c.unsub()
	}
	c.wg.Wait()

	c.mu.Lock()
	c.disconnectLocked()
	c.mu.Unlock()
	c.logger.Info("MQTT client stopped")
}

// Broker returns the endpoint the client currently targets.
func (c *Client) Broker() device.Broker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broker
}

func (c *Client) run() {
	defer c.wg.Done()
	// resume fires ReconnectDelay after a network change notification.
	var resume *time.Timer
	var resumeC <-chan time.Time
	cancelResume := func() {
		if resume != nil {
			resume.Stop()
			resume, resumeC = nil, nil
		}
	}
	defer cancelResume()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.app.Done():
			return
		case b := <-c.app.BrokerChangeRequests():
			cancelResume()
			c.switchBroker(b)
		case ns := <-c.app.NetworkNotifications():
			c.pause(ns)
			cancelResume()
			resume = time.NewTimer(c.cfg.ReconnectDelay)
			resumeC = resume.C
		case <-resumeC:
			resume, resumeC = nil, nil
			c.reconnect()
		}
	}
}

// switchBroker reconnects to b and reports the switch back to the appliance.
func (c *Client) switchBroker(b device.Broker) {
	c.mu.Lock()
	c.disconnectLocked()
	c.connectLocked(b)
	c.mu.Unlock()

	c.logger.Info("broker switched", "broker", b.String())
	if err := c.app.ConfirmBroker(b); err != nil {
		c.logger.Warn("broker switch not confirmed", "broker", b.String(), "err", err)
	}
}

// pause disconnects before the interface address changes. run reconnects
// after ReconnectDelay unless a broker switch comes first.
func (c *Client) pause(ns device.NetworkSetting) {
	c.logger.Info("network change pending, disconnecting", "setting", ns.String(), "delay", c.cfg.ReconnectDelay)
	c.mu.Lock()
	c.disconnectLocked()
	c.mu.Unlock()
}

func (c *Client) reconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return
	}
	c.connectLocked(c.broker)
}

func (c *Client) options(b device.Broker) *pahomqtt.ClientOptions {
	avail := c.cfg.TopicPrefix + topicAvailability
	opts := pahomqtt.NewClientOptions().
		AddBroker(b.URL(DefaultPort)).
		SetClientID(c.cfg.ClientID + "-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(avail, "offline", 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			c.logger.Warn("MQTT connection lost", "err", err)
		})

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	return opts
}

func (c *Client) connectLocked(b device.Broker) {
	cl := c.newClient(c.options(b))
	c.client = cl
	c.broker = b
	token := cl.Connect()
	go func() {
		if !token.WaitTimeout(tokenTimeout) {
			c.logger.Warn("MQTT broker not reachable yet, retrying", "broker", b.String())
		} else if err := token.Error(); err != nil {
			c.logger.Warn("MQTT connect error", "broker", b.String(), "err", err)
		}
	}()
}

func (c *Client) disconnectLocked() {
	if c.client == nil {
		return
	}
	if c.client.IsConnected() {
		token := c.client.Publish(c.cfg.TopicPrefix+topicAvailability, 1, true, "offline")
		token.WaitTimeout(time.Second)
	}
	c.client.Disconnect(250)
	c.client = nil
}

// onConnect runs on every (re)connect. It must not take c.mu: Connect may
// call it synchronously while the lock is held.
func (c *Client) onConnect(cl pahomqtt.Client) {
	c.logger.Info("MQTT connected")
	c.publishWith(cl, c.cfg.TopicPrefix+topicAvailability, []byte("online"), true)
	cl.Subscribe(c.cfg.TopicPrefix+topicStatus, 1, c.handleStatus)
	c.publishDiscovery(cl)
	c.publishWith(cl, c.cfg.TopicPrefix+topicInfo, mustJSON(c.app.Status()), true)
}

// handleStatus forwards a status payload without blocking the paho router.
func (c *Client) handleStatus(_ pahomqtt.Client, msg pahomqtt.Message) {
	payload := append([]byte(nil), msg.Payload()...)
	select {
	case c.app.StatusInput() <- payload:
	default:
		c.logger.Warn("status queue full, message dropped", "topic", msg.Topic())
	}
}

func (c *Client) handleEvent(event appliance.Event) {
	switch event.Type {
	case appliance.EventDeviceName:
		c.mu.Lock()
		cl := c.client
		c.mu.Unlock()
		if cl != nil {
			c.publishDiscovery(cl)
		}
		c.publishInfo()
	case appliance.EventStatus, appliance.EventNetwork, appliance.EventBroker:
		c.publishInfo()
	}
}

func (c *Client) publishDiscovery(cl pahomqtt.Client) {
	msgs := buildRemoveDiscovery(c.cfg.ClientID)
	if c.cfg.Discovery {
		msgs = buildDiscovery(c.cfg.ClientID, c.app.State().DeviceName(), c.cfg.TopicPrefix)
	}
	for _, msg := range msgs {
		c.publishWith(cl, msg.Topic, msg.Payload, true)
	}
}

func (c *Client) publishInfo() {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	if cl == nil || !cl.IsConnected() {
		return
	}
	c.publishWith(cl, c.cfg.TopicPrefix+topicInfo, mustJSON(c.app.Status()), true)
}

func (c *Client) publishWith(cl pahomqtt.Client, topic string, payload []byte, retained bool) {
	token := cl.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(tokenTimeout) {
			c.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			c.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
