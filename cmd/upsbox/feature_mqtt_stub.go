//go:build no_mqtt

package main

import (
	"log/slog"

	"upsbox/internal/appliance"
	"upsbox/internal/config"
	"upsbox/internal/device"
)

func initMQTT(app *appliance.Appliance, _ *config.Config, _ device.Broker, _ *slog.Logger) transport {
	app.StartLoopback()
	return noopTransport{}
}
