package device

import "fmt"

// SaveKind identifies which setting a SaveMsg carries.
type SaveKind int

const (
	SaveDeviceName SaveKind = iota + 1
	SaveNet
	SaveBroker
)

func (k SaveKind) String() string {
	switch k {
	case SaveDeviceName:
		return "device_name"
	case SaveNet:
		return "net"
	case SaveBroker:
		return "broker"
	default:
		return fmt.Sprintf("SaveKind(%d)", int(k))
	}
}

// SaveMsg asks the persistence writer to durably store one setting.
// Only the field matching Kind is meaningful.
type SaveMsg struct {
	Kind       SaveKind
	DeviceName string
	Net        NetworkSetting
	Broker     Broker
}

func DeviceNameMsg(name string) SaveMsg { return SaveMsg{Kind: SaveDeviceName, DeviceName: name} }

func NetMsg(ns NetworkSetting) SaveMsg { return SaveMsg{Kind: SaveNet, Net: ns} }

func BrokerMsg(b Broker) SaveMsg { return SaveMsg{Kind: SaveBroker, Broker: b} }
