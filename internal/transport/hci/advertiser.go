package hci

import (
	"fmt"
	"io"
	"sync"
)

// Logger is the logging interface used by the advertiser.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Advertiser drives LE advertising on one HCI device.
// It implements the mesh transport interface.
//
// Thread Safety: All methods are safe for concurrent use.
type Advertiser struct {
	conn io.WriteCloser
	dev  int

	mu      sync.Mutex
	enabled bool
	closed  bool

	logger Logger
}

// newAdvertiser wraps an already bound HCI connection.
func newAdvertiser(conn io.WriteCloser, dev int) *Advertiser {
	return &Advertiser{conn: conn, dev: dev}
}

// SetLogger sets the logger for the advertiser.
func (a *Advertiser) SetLogger(logger Logger) {
	a.mu.Lock()
	a.logger = logger
	a.mu.Unlock()
}

// SetPayload replaces the advertising data and (re)starts advertising.
// The controller rejects parameter changes while advertising, so an active
// advertisement is disabled first.
func (a *Advertiser) SetPayload(adv []byte, intervalMin, intervalMax uint16) error {
	if len(adv) > maxAdvData {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(adv))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}

	if a.enabled {
		if err := a.write(setAdvEnable(false)); err != nil {
			return err
		}
		a.enabled = false
	}

	for _, pkt := range [][]byte{
		setAdvParams(intervalMin, intervalMax),
		setAdvData(adv),
		setAdvEnable(true),
	} {
		if err := a.write(pkt); err != nil {
			return err
		}
	}
	a.enabled = true

	if a.logger != nil {
		a.logger.Debug("hci advertising enabled", "hci", a.dev, "bytes", len(adv))
	}
	return nil
}

// ClearPayload stops advertising. It is a no-op when nothing is on air.
func (a *Advertiser) ClearPayload() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return ErrClosed
	}
	if !a.enabled {
		return nil
	}
	if err := a.write(setAdvEnable(false)); err != nil {
		return err
	}
	a.enabled = false
	return nil
}

// Close disables advertising and closes the socket.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.enabled {
		_ = a.write(setAdvEnable(false)) //nolint:errcheck // best effort on shutdown
		a.enabled = false
	}
	return a.conn.Close()
}

func (a *Advertiser) write(pkt []byte) error {
	if _, err := a.conn.Write(pkt); err != nil {
		return fmt.Errorf("hci%d write opcode %02x%02x: %w", a.dev, pkt[2], pkt[1], err)
	}
	return nil
}
