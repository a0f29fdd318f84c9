package main

import (
	"context"
	"log/slog"
	"sync"

	"upsbox/internal/appliance"
	"upsbox/internal/config"
	"upsbox/internal/uart"
)

// startSerial forwards UPS serial frames into the appliance when enabled.
func startSerial(ctx context.Context, wg *sync.WaitGroup, cfg *config.Config, app *appliance.Appliance, logger *slog.Logger) {
	if !cfg.Serial.Enabled {
		return
	}
	r := uart.NewReader(uart.Config{Port: cfg.Serial.Port, BaudRate: cfg.Serial.Baud}, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.Run(ctx, app.StatusInput())
	}()
}
