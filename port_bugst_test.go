package serial

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	bugst "go.bug.st/serial"
)

// scriptedPort overrides the go.bug.st/serial calls readSlice makes
type scriptedPort struct {
	bugst.Port
	data      []byte
	readErr   error
	statusErr error
}

func (p *scriptedPort) Read(buf []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	n := copy(buf, p.data)
	p.data = p.data[n:]
	return n, nil
}

func (p *scriptedPort) GetModemStatusBits() (*bugst.ModemStatusBits, error) {
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	return &bugst.ModemStatusBits{}, nil
}

func TestReadSlice(t *testing.T) {
	gone := errors.New("device not configured")
	readFailed := errors.New("read failed")

	tests := []struct {
		name    string
		port    *scriptedPort
		wantN   int
		wantErr error
	}{
		{"data", &scriptedPort{data: []byte{0x41}}, 1, nil},
		{"timeout on a live line", &scriptedPort{}, 0, nil},
		{"hangup", &scriptedPort{statusErr: gone}, 0, io.EOF},
		{"data before hangup", &scriptedPort{data: []byte{0xFF}, statusErr: gone}, 1, nil},
		{"read error", &scriptedPort{readErr: readFailed}, 0, readFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := readSlice(tt.port, make([]byte, 1))
			assert.Equal(t, tt.wantN, n)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestBugstMode(t *testing.T) {
	mode := bugstMode(Config{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: ParityEven})
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, 7, mode.DataBits)
	assert.Equal(t, bugst.EvenParity, mode.Parity)
	assert.Equal(t, bugst.TwoStopBits, mode.StopBits)

	mode = bugstMode(DefaultConfig())
	assert.Equal(t, bugst.NoParity, mode.Parity)
	assert.Equal(t, bugst.OneStopBit, mode.StopBits)
}

func TestBugstParity(t *testing.T) {
	assert.Equal(t, bugst.NoParity, bugstParity(ParityNone))
	assert.Equal(t, bugst.OddParity, bugstParity(ParityOdd))
	assert.Equal(t, bugst.MarkParity, bugstParity(ParityMark))
	assert.Equal(t, bugst.SpaceParity, bugstParity(ParitySpace))
}
