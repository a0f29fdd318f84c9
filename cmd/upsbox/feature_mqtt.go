//go:build !no_mqtt

package main

import (
	"log/slog"

	"upsbox/internal/appliance"
	"upsbox/internal/config"
	"upsbox/internal/device"
	mqttclient "upsbox/internal/mqtt"
)

func initMQTT(app *appliance.Appliance, cfg *config.Config, broker device.Broker, logger *slog.Logger) transport {
	if !cfg.MQTT.Enabled {
		app.StartLoopback()
		return noopTransport{}
	}
	client := mqttclient.New(app, mqttclient.Config{
		Broker:         broker,
		ClientID:       cfg.MQTT.ClientID,
		Username:       cfg.MQTT.Username,
		Password:       cfg.MQTT.Password,
		TopicPrefix:    cfg.MQTT.TopicPrefix,
		Discovery:      cfg.MQTT.Discovery,
		ReconnectDelay: cfg.MQTT.ReconnectDelay,
	}, logger)
	client.Start()
	return client
}
