package echo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/text/encoding/charmap"

	"github.com/allbin/serialecho"
)

// fakeSource hands out bytes from in one read at a time. Once in is closed
// it returns fault, or blocks until cancellation when fault is nil.
type fakeSource struct {
	in       chan byte
	fault    error
	closeErr error
	reads    atomic.Int32
	closes   atomic.Int32
}

func newFakeSource(data ...byte) *fakeSource {
	f := &fakeSource{in: make(chan byte, len(data))}
	for _, b := range data {
		f.in <- b
	}
	return f
}

func (f *fakeSource) ReadContext(ctx context.Context, buf []byte) (int, error) {
	f.reads.Add(1)
	select {
	case b, ok := <-f.in:
		if !ok {
			if f.fault != nil {
				return 0, f.fault
			}
			<-ctx.Done()
			return 0, ctx.Err()
		}
		buf[0] = b
		return 1, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (f *fakeSource) Close() error {
	f.closes.Add(1)
	return f.closeErr
}

func openerFor(src Source) Opener {
	return func(device, baud string) (Source, error) { return src, nil }
}

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("stdout closed") }

// runAsync starts l.Run and returns a channel with its result
func runAsync(ctx context.Context, l *Loop, device, baud string) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, device, baud) }()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

func TestRun_LoopbackScenario(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	src := newFakeSource(0x41, 0x42, 0x0A)
	out := &syncBuffer{}

	var gotDevice, gotBaud string
	open := func(device, baud string) (Source, error) {
		gotDevice, gotBaud = device, baud
		return src, nil
	}

	l := New(open, out, zap.New(core))
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, l, "loopback", "9600")

	require.Eventually(t, func() bool { return out.String() == "AB\n" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateReading, l.State())

	cancel()
	require.NoError(t, waitResult(t, done))

	assert.Equal(t, "loopback", gotDevice)
	assert.Equal(t, "9600", gotBaud)
	assert.Equal(t, "AB\n", out.String())
	assert.Equal(t, int32(1), src.closes.Load())
	assert.Equal(t, StateClosed, l.State())
	assert.Equal(t, int64(3), l.Echoed())

	assert.Equal(t, 1, logs.FilterMessage("serial echo started").Len())
	shutdown := logs.FilterMessage("shutting down, closing port").All()
	require.Len(t, shutdown, 1)
	assert.Equal(t, int64(3), shutdown[0].ContextMap()["bytes"])
}

func TestRun_AllByteValuesEchoExactly(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}
	src := newFakeSource(all...)
	src.fault = io.ErrUnexpectedEOF
	close(src.in)

	var out bytes.Buffer
	err := New(openerFor(src), &out, nil).Run(context.Background(), "loopback", "9600")

	var fault *FaultError
	require.ErrorAs(t, err, &fault)

	// Byte-exact: nothing is widened to UTF-8
	assert.Equal(t, all, out.Bytes())

	// Each output byte is the Latin-1 form of the input character
	decoded, derr := charmap.ISO8859_1.NewDecoder().Bytes(out.Bytes())
	require.NoError(t, derr)
	runes := []rune(string(decoded))
	require.Len(t, runes, 256)
	for i, r := range runes {
		assert.Equal(t, rune(i), r)
	}
}

func TestRun_HighBytesAreNotWidened(t *testing.T) {
	in := []byte{0x41, 0xE9, 0xFF, 0x0A}
	src := newFakeSource(in...)
	src.fault = io.ErrUnexpectedEOF
	close(src.in)

	var out bytes.Buffer
	l := New(openerFor(src), &out, nil)
	err := l.Run(context.Background(), "loopback", "9600")

	var fault *FaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, in, out.Bytes())
	assert.Equal(t, int64(len(in)), l.Echoed())
}

func TestRun_FlushesEveryByte(t *testing.T) {
	const k = 5

	// The source stalls after k bytes; they must already be visible
	src := newFakeSource([]byte("hello")...)
	out := &syncBuffer{}
	l := New(openerFor(src), out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, l, "loopback", "9600")

	require.Eventually(t, func() bool { return src.reads.Load() == k+1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "hello", out.String(), "bytes must be flushed before the next read")

	cancel()
	require.NoError(t, waitResult(t, done))
}

func TestRun_OpenFailure(t *testing.T) {
	src := newFakeSource('x')
	open := func(device, baud string) (Source, error) {
		return src, serial.ErrDeviceNotFound
	}

	var out bytes.Buffer
	l := New(open, &out, nil)
	err := l.Run(context.Background(), "/dev/missing", "9600")

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "/dev/missing", openErr.Device)
	assert.Equal(t, "9600", openErr.Baud)
	assert.ErrorIs(t, err, serial.ErrDeviceNotFound)

	assert.Zero(t, src.reads.Load())
	assert.Zero(t, src.closes.Load())
	assert.Empty(t, out.String())
	assert.Equal(t, StateClosed, l.State())
}

func TestRun_ReadFault(t *testing.T) {
	unplugged := errors.New("input/output error")
	src := newFakeSource('h', 'i')
	src.fault = unplugged
	close(src.in)

	var out bytes.Buffer
	err := New(openerFor(src), &out, nil).Run(context.Background(), "/dev/ttyUSB0", "115200")

	var fault *FaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "read", fault.Op)
	assert.Equal(t, "/dev/ttyUSB0", fault.Device)
	assert.ErrorIs(t, err, unplugged)
	assert.Equal(t, "hi", out.String())
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestRun_HangupIsAFault(t *testing.T) {
	src := newFakeSource('z')
	src.fault = io.EOF
	close(src.in)

	err := New(openerFor(src), io.Discard, nil).Run(context.Background(), "/dev/ttyACM0", "9600")

	var fault *FaultError
	require.ErrorAs(t, err, &fault)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestRun_WriteFault(t *testing.T) {
	src := newFakeSource('a', 'b')

	err := New(openerFor(src), failingWriter{}, nil).Run(context.Background(), "loopback", "9600")

	var fault *FaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "write", fault.Op)
	assert.Equal(t, int32(1), src.reads.Load())
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestRun_CancelledBeforeAnyByte(t *testing.T) {
	src := newFakeSource()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	l := New(openerFor(src), &out, nil)
	require.NoError(t, l.Run(ctx, "loopback", "9600"))

	assert.Empty(t, out.String())
	assert.Equal(t, int32(1), src.closes.Load())
	assert.Zero(t, l.Echoed())
}

func TestRun_CloseErrorAfterInterrupt(t *testing.T) {
	src := newFakeSource()
	src.closeErr = serial.ErrPortClosed
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(openerFor(src), io.Discard, nil).Run(ctx, "loopback", "9600")
	assert.ErrorIs(t, err, serial.ErrPortClosed)
	assert.Equal(t, int32(1), src.closes.Load())
}

func TestRun_FaultWinsOverCloseError(t *testing.T) {
	src := newFakeSource()
	src.fault = errors.New("framing")
	src.closeErr = errors.New("close failed")
	close(src.in)

	err := New(openerFor(src), io.Discard, nil).Run(context.Background(), "loopback", "9600")

	var fault *FaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "framing", fault.Err.Error())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "opening", StateOpening.String())
	assert.Equal(t, "reading", StateReading.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestErrorMessages(t *testing.T) {
	openErr := &OpenError{Device: "/dev/ttyS0", Baud: "fast", Err: serial.ErrInvalidBaudRate}
	assert.Equal(t, "open /dev/ttyS0 at fast baud: invalid baud rate", openErr.Error())

	fault := &FaultError{Op: "read", Device: "/dev/ttyS0", Err: io.EOF}
	assert.Equal(t, "read /dev/ttyS0: EOF", fault.Error())
}

func TestSerialOpener(t *testing.T) {
	_, err := SerialOpener("/dev/ttyS0", "fast")
	assert.ErrorIs(t, err, serial.ErrInvalidBaudRate)

	_, err = SerialOpener("/dev/nonexistent", "9600")
	assert.ErrorIs(t, err, serial.ErrDeviceNotFound)
}
