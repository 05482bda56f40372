// Package echo copies a serial line to an output stream one byte at a time.
//
// Every byte is decoded as ISO-8859-1, written back in that encoding (one
// byte out per byte in), and flushed before the next read, so output
// appears as soon as it arrives on the wire. The loop runs
// until its context is cancelled or the line fails; either way the
// connection is closed exactly once.
package echo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"github.com/allbin/serialecho"
)

// Source is the part of a serial connection the loop needs
type Source interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
	Close() error
}

// Opener acquires a Source for a device at a baud rate given as text.
// Converting the baud rate is the opener's job.
type Opener func(device, baud string) (Source, error)

// SerialOpener opens a real serial port with 8N1 framing
func SerialOpener(device, baud string) (Source, error) {
	rate, err := serial.ParseBaudRate(baud)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(device, serial.WithBaudRate(rate))
	if err != nil {
		return nil, err
	}
	return port, nil
}

// State is the lifecycle position of a Loop
type State int32

const (
	StateClosed State = iota
	StateOpening
	StateReading
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpening:
		return "opening"
	case StateReading:
		return "reading"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Loop echoes one serial connection to an output stream
type Loop struct {
	open   Opener
	out    *bufio.Writer
	log    *zap.Logger
	state  atomic.Int32
	echoed atomic.Int64
}

// New returns a Loop that opens connections with open and writes to out.
// A nil logger disables diagnostics.
func New(open Opener, out io.Writer, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		open: open,
		out:  bufio.NewWriter(out),
		log:  log,
	}
}

// State reports where the loop is in its lifecycle
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Echoed returns the number of bytes written to the output so far
func (l *Loop) Echoed() int64 {
	return l.echoed.Load()
}

func (l *Loop) setState(s State) {
	old := State(l.state.Swap(int32(s)))
	l.log.Debug("state change", zap.Stringer("from", old), zap.Stringer("to", s))
}

// Run opens device at baud and echoes it until ctx is cancelled.
//
// Cancellation is a normal shutdown and returns nil. A failed open returns
// *OpenError and nothing is closed. A read or write failure returns
// *FaultError after the connection has been closed.
func (l *Loop) Run(ctx context.Context, device, baud string) (err error) {
	l.setState(StateOpening)
	src, err := l.open(device, baud)
	if err != nil {
		l.setState(StateClosed)
		return &OpenError{Device: device, Baud: baud, Err: err}
	}

	l.setState(StateReading)
	l.log.Info("serial echo started", zap.String("device", device), zap.String("baud", baud))

	defer func() {
		l.setState(StateClosing)
		l.log.Info("shutting down, closing port",
			zap.String("device", device),
			zap.Int64("bytes", l.echoed.Load()))
		if cerr := src.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", device, cerr)
		}
		l.setState(StateClosed)
	}()

	return l.pump(ctx, device, src)
}

func (l *Loop) pump(ctx context.Context, device string, src Source) error {
	buf := make([]byte, 1)
	for {
		n, err := src.ReadContext(ctx, buf)
		if n > 0 {
			if werr := l.emit(buf[0]); werr != nil {
				return &FaultError{Op: "write", Device: device, Err: werr}
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				l.log.Debug("interrupted", zap.Error(err))
				return nil
			}
			return &FaultError{Op: "read", Device: device, Err: err}
		}
	}
}

// emit writes b as its ISO-8859-1 character and flushes. The character is
// encoded back to ISO-8859-1, so each input byte is exactly one output byte.
func (l *Loop) emit(b byte) error {
	ch, ok := charmap.ISO8859_1.EncodeRune(charmap.ISO8859_1.DecodeByte(b))
	if !ok {
		return fmt.Errorf("byte 0x%02X has no ISO-8859-1 form", b)
	}
	if err := l.out.WriteByte(ch); err != nil {
		return err
	}
	if err := l.out.Flush(); err != nil {
		return err
	}
	l.echoed.Add(1)
	return nil
}
