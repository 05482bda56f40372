package serial

import (
	"io"

	bugst "go.bug.st/serial"
)

// bugstMode translates a Config into a go.bug.st/serial mode
func bugstMode(config Config) *bugst.Mode {
	mode := &bugst.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		Parity:   bugstParity(config.Parity),
		StopBits: bugst.OneStopBit,
	}
	if config.StopBits == 2 {
		mode.StopBits = bugst.TwoStopBits
	}
	return mode
}

func bugstParity(p Parity) bugst.Parity {
	switch p {
	case ParityOdd:
		return bugst.OddParity
	case ParityEven:
		return bugst.EvenParity
	case ParityMark:
		return bugst.MarkParity
	case ParitySpace:
		return bugst.SpaceParity
	default:
		return bugst.NoParity
	}
}

// readSlice performs one timed read on sp. go.bug.st/serial returns (0, nil)
// both for an expired read timeout and, on some platforms, for a hangup, so
// a zero-byte read is followed by a modem status query: a device that is
// gone fails it, and that is reported as io.EOF.
func readSlice(sp bugst.Port, buf []byte) (int, error) {
	n, err := sp.Read(buf)
	if err != nil || n > 0 {
		return n, err
	}
	if _, serr := sp.GetModemStatusBits(); serr != nil {
		return 0, io.EOF
	}
	return 0, nil
}
