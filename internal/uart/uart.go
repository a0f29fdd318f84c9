// Package uart reads UPS status frames from a serial port. Frames are
// newline-terminated text lines; each line is forwarded as one raw status
// message.
package uart

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultBaudRate    = 9600
	DefaultReopenDelay = time.Second
	maxFrameSize       = 4096
)

// Config holds serial port configuration.
type Config struct {
	Port        string
	BaudRate    int
	ReopenDelay time.Duration
}

// Reader forwards status frames from the serial port.
type Reader struct {
	cfg    Config
	logger *slog.Logger
	open   func(name string, mode *serial.Mode) (io.ReadCloser, error)
}

// NewReader creates a Reader. The port is opened by Run.
func NewReader(cfg Config, logger *slog.Logger) *Reader {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.ReopenDelay == 0 {
		cfg.ReopenDelay = DefaultReopenDelay
	}
	return &Reader{
		cfg:    cfg,
		logger: logger.With("component", "uart", "port", cfg.Port),
		open:   openSerial,
	}
}

func openSerial(name string, mode *serial.Mode) (io.ReadCloser, error) {
	return serial.Open(name, mode)
}

func (r *Reader) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: r.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// Run reads frames into out until ctx is cancelled. The port is reopened
// after read errors. A full out channel drops the frame.
func (r *Reader) Run(ctx context.Context, out chan<- []byte) {
	for {
		port, err := r.open(r.cfg.Port, r.mode())
		if err != nil {
			r.logger.Warn("open serial port", "err", err)
		} else {
			r.logger.Info("serial port opened", "baud", r.cfg.BaudRate)
			err = r.readFrames(ctx, port, out)
			if ctx.Err() != nil {
				return
			}
			r.logger.Warn("serial read stopped, reopening", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.cfg.ReopenDelay):
		}
	}
}

// readFrames scans lines from port until it fails or ctx is cancelled.
// The port is always closed on return.
func (r *Reader) readFrames(ctx context.Context, port io.ReadCloser, out chan<- []byte) error {
	// Closing the port unblocks the pending Read.
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer func() {
		if stop() {
			port.Close()
		}
	}()

	sc := bufio.NewScanner(port)
	sc.Buffer(make([]byte, 0, 256), maxFrameSize)
	for sc.Scan() {
		frame := bytes.TrimRight(sc.Bytes(), "\r")
		if len(frame) == 0 {
			continue
		}
		msg := append([]byte(nil), frame...)
		select {
		case out <- msg:
		default:
			r.logger.Warn("status queue full, frame dropped", "len", len(msg))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return io.EOF
}
