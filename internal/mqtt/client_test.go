//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"upsbox/internal/appliance"
	"upsbox/internal/device"
	"upsbox/internal/netif"
)

type doneToken struct{ err error }

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Error() error                   { return t.err }
func (t *doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	payload  string
	retained bool
}

// fakeClient records publishes and subscriptions. Only the methods the
// client uses are implemented.
type fakeClient struct {
	pahomqtt.Client
	opts *pahomqtt.ClientOptions

	mu          sync.Mutex
	connected   bool
	disconnects int
	published   []published
	subs        map[string]pahomqtt.MessageHandler
}

func (f *fakeClient) Connect() pahomqtt.Token {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	if f.opts.OnConnect != nil {
		f.opts.OnConnect(f)
	}
	return &doneToken{}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnects++
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s string
	switch p := payload.(type) {
	case string:
		s = p
	case []byte:
		s = string(p)
	}
	f.published = append(f.published, published{topic, s, retained})
	return &doneToken{}
}

func (f *fakeClient) Subscribe(topic string, _ byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[string]pahomqtt.MessageHandler)
	}
	f.subs[topic] = cb
	return &doneToken{}
}

func (f *fakeClient) publishedTo(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, p := range f.published {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeClient) handler(topic string) pahomqtt.MessageHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[topic]
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

type harness struct {
	app     *appliance.Appliance
	client  *Client
	mu      sync.Mutex
	clients []*fakeClient
}

func (h *harness) last() *fakeClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients[len(h.clients)-1]
}

func (h *harness) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func setupClient(t *testing.T, discovery bool) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	nif := netif.NewFake("eth0", netip.MustParsePrefix("192.168.1.50/24"))
	app := appliance.New(nif, appliance.NewState("rack-3", device.Broker{Host: "10.0.0.5"}),
		appliance.NewEventBus(logger), appliance.Config{
			Interface:       "eth0",
			ConfigIP:        netip.MustParseAddr("192.168.254.254"),
			GracePeriod:     time.Millisecond,
			PollInterval:    5 * time.Millisecond,
			RefreshInterval: 5 * time.Millisecond,
			SendTimeout:     50 * time.Millisecond,
		}, nil, logger)

	h := &harness{app: app}
	h.client = New(app, Config{
		Broker:         device.Broker{Host: "10.0.0.5"},
		ClientID:       "Rack 3",
		TopicPrefix:    "ups",
		Discovery:      discovery,
		ReconnectDelay: 10 * time.Millisecond,
	}, logger)
	h.client.newClient = func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		fc := &fakeClient{opts: opts}
		h.mu.Lock()
		h.clients = append(h.clients, fc)
		h.mu.Unlock()
		return fc
	}
	t.Cleanup(func() {
		h.client.Stop()
		app.Stop()
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClientConnect(t *testing.T) {
	h := setupClient(t, true)
	h.client.Start()

	fc := h.last()
	if got := fc.opts.Servers[0].String(); got != "tcp://10.0.0.5:1883" {
		t.Errorf("server = %q", got)
	}
	if !strings.HasPrefix(fc.opts.ClientID, "Rack 3-") {
		t.Errorf("client id = %q", fc.opts.ClientID)
	}
	if fc.opts.WillTopic != "ups/availability" || string(fc.opts.WillPayload) != "offline" || !fc.opts.WillRetained {
		t.Errorf("will = %q %q retained=%v", fc.opts.WillTopic, fc.opts.WillPayload, fc.opts.WillRetained)
	}

	avail := fc.publishedTo("ups/availability")
	if len(avail) != 1 || avail[0].payload != "online" || !avail[0].retained {
		t.Errorf("availability = %+v", avail)
	}
	if fc.handler("ups/status") == nil {
		t.Error("status topic not subscribed")
	}

	info := fc.publishedTo("ups/info")
	if len(info) != 1 {
		t.Fatalf("info publishes = %d, want 1", len(info))
	}
	var st appliance.Status
	if err := json.Unmarshal([]byte(info[0].payload), &st); err != nil {
		t.Fatal(err)
	}
	if st.HostName != "rack-3" || st.HostIP != "192.168.1.50" {
		t.Errorf("info = %+v", st)
	}

	disc := fc.publishedTo("homeassistant/sensor/upsbox_rack_3/power_status/config")
	if len(disc) != 1 {
		t.Fatalf("power status discovery = %d, want 1", len(disc))
	}
	var payload haDiscovery
	if err := json.Unmarshal([]byte(disc[0].payload), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.StateTopic != "ups/info" || payload.ValueTemplate != "{{ value_json.power_status }}" {
		t.Errorf("discovery = %+v", payload)
	}
	if payload.Name != "rack-3 Power Status" {
		t.Errorf("name = %q", payload.Name)
	}
}

func TestClientDiscoveryDisabledRemovesEntities(t *testing.T) {
	h := setupClient(t, false)
	h.client.Start()

	disc := h.last().publishedTo("homeassistant/sensor/upsbox_rack_3/power_status/config")
	if len(disc) != 1 || disc[0].payload != "" || !disc[0].retained {
		t.Errorf("removal = %+v", disc)
	}
}

func TestClientForwardsStatus(t *testing.T) {
	h := setupClient(t, true)
	h.app.Start()
	h.client.Start()

	cb := h.last().handler("ups/status")
	cb(h.last(), &fakeMessage{topic: "ups/status", payload: []byte("ONLINE 230V")})

	waitFor(t, "status ingest", func() bool {
		s := h.app.State().StatusSnapshot()
		return len(s) == 1 && s[0] == "ONLINE 230V"
	})
	// The status event republishes info.
	waitFor(t, "info republish", func() bool { return len(h.last().publishedTo("ups/info")) >= 2 })
}

func TestClientSwitchBroker(t *testing.T) {
	h := setupClient(t, true)
	h.app.Start()
	h.client.Start()
	first := h.last()

	b, err := h.app.RequestBrokerChange("broker.local", 8883)
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reconnect", func() bool { return h.count() == 2 })
	if got := h.last().opts.Servers[0].String(); got != "tcp://broker.local:8883" {
		t.Errorf("server = %q", got)
	}
	if first.IsConnected() {
		t.Error("previous client still connected")
	}
	if off := first.publishedTo("ups/availability"); len(off) != 2 || off[1].payload != "offline" {
		t.Errorf("old availability = %+v", off)
	}

	waitFor(t, "broker state", func() bool { return h.app.State().Broker() == b })
	select {
	case msg := <-h.app.SaveQueue():
		if msg.Kind != device.SaveBroker || msg.Broker != b {
			t.Errorf("save msg = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no save message")
	}
	if h.client.Broker() != b {
		t.Errorf("client broker = %+v", h.client.Broker())
	}
}

func TestClientPausesForNetworkChange(t *testing.T) {
	h := setupClient(t, true)
	h.client.Start()
	first := h.last()

	if _, err := h.app.ApplyNetwork(appliance.NetworkRequest{IP: "192.168.1.60", Mask: "255.255.255.0", Gateway: "192.168.1.1"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reconnect after pause", func() bool { return h.count() == 2 })
	if first.IsConnected() {
		t.Error("client not disconnected during network change")
	}
	if got := h.last().opts.Servers[0].String(); got != "tcp://10.0.0.5:1883" {
		t.Errorf("reconnected to %q, want original broker", got)
	}
}

func TestClientTakesBrokerChangesWhilePaused(t *testing.T) {
	h := setupClient(t, true)
	h.client.cfg.ReconnectDelay = time.Hour
	h.app.Start()
	h.client.Start()
	first := h.last()

	if _, err := h.app.ApplyNetwork(appliance.NetworkRequest{IP: "192.168.1.60", Mask: "255.255.255.0", Gateway: "192.168.1.1"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "pause", func() bool { return !first.IsConnected() })

	for _, host := range []string{"broker-a.local", "broker-b.local"} {
		if _, err := h.app.RequestBrokerChange(host, 1883); err != nil {
			t.Fatalf("RequestBrokerChange(%s) during pause: %v", host, err)
		}
	}
	waitFor(t, "both switches", func() bool { return h.count() == 3 })
	if got := h.last().opts.Servers[0].String(); got != "tcp://broker-b.local:1883" {
		t.Errorf("server = %q, want the latest broker", got)
	}
	if !h.last().IsConnected() {
		t.Error("client not connected after switch")
	}
}

func TestNodeIdentifier(t *testing.T) {
	if got := nodeIdentifier("UPS Box#1"); got != "upsbox_ups_box_1" {
		t.Errorf("nodeIdentifier = %q", got)
	}
}
