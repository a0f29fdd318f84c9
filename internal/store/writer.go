package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"upsbox/internal/device"
)

// Writer applies queued save requests to a Store.
type Writer struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewWriter(s Store, logger *slog.Logger) *Writer {
	return &Writer{store: s, logger: logger.With("component", "store"), now: time.Now}
}

// Run consumes msgs until ctx is cancelled or msgs is closed.
// Failed writes are logged and skipped.
func (w *Writer) Run(ctx context.Context, msgs <-chan device.SaveMsg) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := w.Apply(msg); err != nil {
				w.logger.Error("save setting", "kind", msg.Kind.String(), "err", err)
			}
		}
	}
}

// Apply persists one save request and records it in the change log.
func (w *Writer) Apply(msg device.SaveMsg) error {
	var (
		value string
		err   error
	)
	switch msg.Kind {
	case device.SaveDeviceName:
		value = msg.DeviceName
		err = w.store.SaveDeviceName(msg.DeviceName)
	case device.SaveNet:
		value = msg.Net.String()
		err = w.store.SaveNetwork(msg.Net)
	case device.SaveBroker:
		value = msg.Broker.String()
		err = w.store.SaveBroker(msg.Broker)
	default:
		return fmt.Errorf("unknown save kind %d", msg.Kind)
	}
	if err != nil {
		return err
	}
	w.logger.Debug("setting saved", "kind", msg.Kind.String(), "value", value)
	if err := w.store.AppendChange(Change{Kind: msg.Kind.String(), Value: value, At: w.now()}); err != nil {
		w.logger.Warn("record change", "kind", msg.Kind.String(), "err", err)
	}
	return nil
}

// Drain applies the messages already queued on msgs without waiting for more.
func (w *Writer) Drain(msgs <-chan device.SaveMsg) {
	for {
		select {
		case msg := <-msgs:
			if err := w.Apply(msg); err != nil {
				w.logger.Error("save setting", "kind", msg.Kind.String(), "err", err)
			}
		default:
			return
		}
	}
}
