package appliance

import (
	"fmt"

	"upsbox/internal/device"
)

// RequestBrokerChange validates the endpoint and hands it to the broker
// transport. Success means the request was accepted, not applied.
func (a *Appliance) RequestBrokerChange(host string, port uint16) (device.Broker, error) {
	b, err := device.NewBroker(host, port)
	if err != nil {
		a.logger.Warn("broker rejected", "host", host, "err", err)
		return device.Broker{}, fmt.Errorf("%w: %w", ErrInvalidSetting, err)
	}
	if err := send(a, a.brokerSet, b, "broker_set"); err != nil {
		a.logger.Error("broker change not queued", "broker", b.String(), "err", err)
		return device.Broker{}, err
	}
	return b, nil
}

// RequestDeviceName queues the new name for persistence and for the ingest
// worker. Only a failed persistence enqueue is reported.
func (a *Appliance) RequestDeviceName(name string) error {
	if err := send(a, a.save, device.DeviceNameMsg(name), "save"); err != nil {
		a.logger.Error("device name not queued for saving", "name", name, "err", err)
		return err
	}
	if err := send(a, a.names, name, "device_name"); err != nil {
		a.logger.Warn("device name update not queued", "name", name, "err", err)
	}
	return nil
}

// ConfirmBroker is called by the broker transport once it has switched to b.
// The endpoint is queued for the refresh worker and for persistence.
func (a *Appliance) ConfirmBroker(b device.Broker) error {
	if err := send(a, a.brokerUpdates, b, "broker_update"); err != nil {
		a.logger.Warn("broker update not queued", "broker", b.String(), "err", err)
		return err
	}
	if err := send(a, a.save, device.BrokerMsg(b), "save"); err != nil {
		a.logger.Warn("broker not queued for saving", "broker", b.String(), "err", err)
		return err
	}
	return nil
}
