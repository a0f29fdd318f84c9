//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/upsbox_rack3/power_status/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	EntityCategory    string   `json:"entity_category,omitempty"`
	Device            haDevice `json:"device"`
}

// sensor describes one value of the info payload exposed to HA.
type sensor struct {
	objectID string
	suffix   string
	field    string
	icon     string
	category string
}

var sensors = []sensor{
	{"power_status", "Power Status", "power_status", "mdi:power-plug-battery", ""},
	{"host_ip", "IP Address", "host_ip", "mdi:ip-network", "diagnostic"},
	{"gateway_ip", "Gateway", "gateway_ip", "mdi:router-network", "diagnostic"},
	{"broker", "Broker", "broker", "mdi:server-network", "diagnostic"},
}

// nodeIdentifier returns the HA node id for a client id: lowercase, only
// characters HA accepts in discovery topics.
func nodeIdentifier(clientID string) string {
	id := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, strings.ToLower(clientID))
	return "upsbox_" + id
}

// buildDiscovery generates HA discovery messages for the box. All sensors read
// the retained info topic.
func buildDiscovery(clientID, deviceName, prefix string) []discoveryMsg {
	nodeID := nodeIdentifier(clientID)
	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: "upsbox",
		Model:        "UPS distribution box",
		Name:         deviceName,
	}

	msgs := make([]discoveryMsg, 0, len(sensors))
	for _, s := range sensors {
		msgs = append(msgs, buildSensor(nodeID, deviceName, prefix+topicInfo, prefix+topicAvailability, haDev, s))
	}
	return msgs
}

func buildSensor(nodeID, displayName, stateTopic, avail string, haDev haDevice, s sensor) discoveryMsg {
	topic := fmt.Sprintf("homeassistant/sensor/%s/%s/config", nodeID, s.objectID)
	payload := haDiscovery{
		Name:              displayName + " " + s.suffix,
		UniqueID:          nodeID + "_" + s.objectID,
		StateTopic:        stateTopic,
		AvailabilityTopic: avail,
		ValueTemplate:     "{{ value_json." + s.field + " }}",
		Icon:              s.icon,
		EntityCategory:    s.category,
		Device:            haDev,
	}
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}

// buildRemoveDiscovery generates empty retained messages to remove the box from HA.
func buildRemoveDiscovery(clientID string) []discoveryMsg {
	nodeID := nodeIdentifier(clientID)
	msgs := make([]discoveryMsg, 0, len(sensors))
	for _, s := range sensors {
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("homeassistant/sensor/%s/%s/config", nodeID, s.objectID),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
