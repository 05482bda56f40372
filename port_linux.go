//go:build linux

package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// port is the concrete implementation of the Port interface
type port struct {
	mu      sync.RWMutex
	fd      int
	device  string
	config  Config
	closed  bool
	closing atomic.Bool

	// Self-pipe used to wake a reader blocked in poll.
	wakeMu     sync.Mutex
	wakeR      int
	wakeW      int
	wakeClosed bool
}

// Ensure port implements Port interface at compile time
var _ Port = (*port)(nil)

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	switch rate {
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, ErrInvalidBaudRate
	}
}

// Open opens a serial port with the given device path and options
func Open(device string, opts ...Option) (Port, error) {
	config, err := buildConfig(opts)
	if err != nil {
		return nil, err
	}

	// Non-blocking so that reads are gated by poll and can be woken
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, openError(device, err)
	}

	if err := configurePort(fd, config); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to configure %s: %w", device, err)
	}

	// Claim exclusive use of the tty; not every driver supports it
	_ = unix.IoctlSetInt(fd, unix.TIOCEXCL, 0)

	pipe := make([]int, 2)
	if err := unix.Pipe2(pipe, unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to create wake pipe: %w", err)
	}

	return &port{
		fd:     fd,
		device: device,
		config: config,
		wakeR:  pipe[0],
		wakeW:  pipe[1],
	}, nil
}

// openError maps errno values from open(2) onto the package sentinels
func openError(device string, err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
		return fmt.Errorf("failed to open %s: %w", device, ErrDeviceNotFound)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("failed to open %s: %w", device, ErrPermissionDenied)
	case errors.Is(err, unix.EBUSY):
		return fmt.Errorf("failed to open %s: %w", device, ErrDeviceInUse)
	default:
		return fmt.Errorf("failed to open %s: %w", device, err)
	}
}

// configurePort puts the tty into raw mode with the requested framing
func configurePort(fd int, config Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	// Raw mode, 8N1 unless overridden below
	termios.Cflag = unix.CS8 | unix.CREAD | unix.CLOCAL
	termios.Iflag = 0
	termios.Oflag = 0
	termios.Lflag = 0

	// A read returns as soon as one byte is available
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	baudRate, err := getBaudRate(config.BaudRate)
	if err != nil {
		return err
	}
	termios.Cflag = (termios.Cflag &^ unix.CBAUD) | baudRate
	termios.Ispeed = baudRate
	termios.Ospeed = baudRate

	if config.DataBits != 8 {
		termios.Cflag &^= unix.CSIZE
		switch config.DataBits {
		case 5:
			termios.Cflag |= unix.CS5
		case 6:
			termios.Cflag |= unix.CS6
		case 7:
			termios.Cflag |= unix.CS7
		}
	}

	if config.StopBits == 2 {
		termios.Cflag |= unix.CSTOPB
	}

	switch config.Parity {
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	case ParityMark:
		termios.Cflag |= unix.PARENB | unix.PARODD | unix.CMSPAR
	case ParitySpace:
		termios.Cflag |= unix.PARENB | unix.CMSPAR
	}

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}
	return nil
}

// Close wakes any blocked reader and closes the serial port
func (p *port) Close() error {
	if !p.closing.CompareAndSwap(false, true) {
		return ErrPortClosed
	}

	p.wake()

	// Wait for in-flight reads and writes to observe closing
	p.mu.Lock()
	err := unix.Close(p.fd)
	p.closed = true
	p.mu.Unlock()

	p.wakeMu.Lock()
	unix.Close(p.wakeR)
	unix.Close(p.wakeW)
	p.wakeClosed = true
	p.wakeMu.Unlock()

	return err
}

// wake makes the wake pipe readable. Safe to call after Close.
func (p *port) wake() {
	p.wakeMu.Lock()
	defer p.wakeMu.Unlock()

	if p.wakeClosed {
		return
	}
	// EAGAIN means a wake-up is already pending
	_, _ = unix.Write(p.wakeW, []byte{1})
}

// drainWake empties the wake pipe
func (p *port) drainWake() {
	var buf [16]byte
	for {
		n, err := unix.Read(p.wakeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Read reads data from the serial port
func (p *port) Read(buf []byte) (int, error) {
	return p.read(context.Background(), buf)
}

// ReadContext reads data with context cancellation support
func (p *port) ReadContext(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	stop := context.AfterFunc(ctx, p.wake)
	defer stop()

	return p.read(ctx, buf)
}

func (p *port) read(ctx context.Context, buf []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || p.closing.Load() {
		return 0, ErrPortClosed
	}
	if len(buf) == 0 {
		return 0, nil
	}

	timeout := -1
	if p.config.ReadTimeout > 0 {
		timeout = int(p.config.ReadTimeout / time.Millisecond)
	}

	for {
		fds := []unix.PollFd{
			{Fd: int32(p.fd), Events: unix.POLLIN},
			{Fd: int32(p.wakeR), Events: unix.POLLIN},
		}
		n, err := unix.Poll(fds, timeout)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return 0, fmt.Errorf("poll %s: %w", p.device, err)
		}
		if n == 0 {
			return 0, ErrReadTimeout
		}

		if fds[1].Revents&unix.POLLIN != 0 {
			if p.closing.Load() {
				return 0, ErrPortClosed
			}
			p.drainWake()
			if err := ctx.Err(); err != nil {
				return 0, err
			}
			// Stale wake-up from an earlier context
		}

		revents := fds[0].Revents
		if revents&unix.POLLNVAL != 0 {
			return 0, ErrPortClosed
		}
		if revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) == 0 {
			continue
		}

		n, err = unix.Read(p.fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			// A tty whose other end went away fails reads with EIO
			if errors.Is(err, unix.EIO) && revents&unix.POLLHUP != 0 {
				return 0, io.EOF
			}
			return 0, err
		}
		if n == 0 {
			// Hangup: the line went away
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes all of data to the serial port
func (p *port) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || p.closing.Load() {
		return 0, ErrPortClosed
	}

	written := 0
	for written < len(data) {
		n, err := unix.Write(p.fd, data[written:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				if err := p.waitWritable(); err != nil {
					return written, err
				}
				continue
			}
			return written, err
		}
		written += n
	}
	return written, nil
}

// waitWritable blocks until the tty accepts more output or the port closes.
// The wake pipe belongs to readers, so closing is checked on a short tick.
func (p *port) waitWritable() error {
	for {
		if p.closing.Load() {
			return ErrPortClosed
		}
		fds := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLOUT}}
		n, err := unix.Poll(fds, 100)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return err
		}
		if n > 0 {
			return nil
		}
	}
}
