//go:build !linux

package serial

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	bugst "go.bug.st/serial"
)

// pollInterval bounds how long a blocked read goes without checking its
// context or the closed flag. It is also how often a silent line is checked
// for a hangup, since go.bug.st/serial reports both as a zero-byte read.
const pollInterval = 100 * time.Millisecond

// port adapts a go.bug.st/serial port to the Port interface
type port struct {
	sp     bugst.Port
	device string
	config Config
	closed atomic.Bool
}

var _ Port = (*port)(nil)

// Open opens a serial port with the given device path and options
func Open(device string, opts ...Option) (Port, error) {
	config, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	sp, err := bugst.Open(device, bugstMode(config))
	if err != nil {
		return nil, openError(device, err)
	}

	if err := sp.SetReadTimeout(pollInterval); err != nil {
		sp.Close()
		return nil, fmt.Errorf("failed to configure %s: %w", device, err)
	}

	return &port{sp: sp, device: device, config: config}, nil
}

// openError maps go.bug.st/serial error codes onto the package sentinels
func openError(device string, err error) error {
	var portErr *bugst.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case bugst.PortNotFound:
			return fmt.Errorf("failed to open %s: %w", device, ErrDeviceNotFound)
		case bugst.PermissionDenied:
			return fmt.Errorf("failed to open %s: %w", device, ErrPermissionDenied)
		case bugst.PortBusy:
			return fmt.Errorf("failed to open %s: %w", device, ErrDeviceInUse)
		case bugst.InvalidSpeed:
			return fmt.Errorf("failed to open %s: %w", device, ErrInvalidBaudRate)
		}
	}
	return fmt.Errorf("failed to open %s: %w", device, err)
}

// Close closes the serial port, unblocking any pending read
func (p *port) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPortClosed
	}
	return p.sp.Close()
}

// Read reads data from the serial port
func (p *port) Read(buf []byte) (int, error) {
	return p.read(context.Background(), buf)
}

// ReadContext reads data with context cancellation support
func (p *port) ReadContext(ctx context.Context, buf []byte) (int, error) {
	return p.read(ctx, buf)
}

func (p *port) read(ctx context.Context, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	var deadline time.Time
	if p.config.ReadTimeout > 0 {
		deadline = time.Now().Add(p.config.ReadTimeout)
	}

	for {
		if p.closed.Load() {
			return 0, ErrPortClosed
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		n, err := readSlice(p.sp, buf)
		if err != nil {
			if p.closed.Load() {
				return 0, ErrPortClosed
			}
			return 0, err
		}
		if n > 0 {
			return n, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return 0, ErrReadTimeout
		}
	}
}

// Write writes data to the serial port
func (p *port) Write(data []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrPortClosed
	}
	return p.sp.Write(data)
}
