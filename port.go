package serial

import (
	"context"
	"strconv"
	"strings"
)

// Port represents a serial port connection interface
type Port interface {
	Close() error
	Read(buf []byte) (int, error)
	Write(data []byte) (int, error)

	// ReadContext behaves like Read but returns ctx.Err() as soon as the
	// context is done, abandoning a read that is still waiting for data.
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

// Parity represents the parity mode
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "none"
	case ParityOdd:
		return "odd"
	case ParityEven:
		return "even"
	case ParityMark:
		return "mark"
	case ParitySpace:
		return "space"
	default:
		return "unknown"
	}
}

// supportedBaudRates lists the rates accepted by WithBaudRate, in ascending order
var supportedBaudRates = []int{
	50, 75, 110, 134, 150, 200, 300, 600, 1200, 1800, 2400, 4800, 9600,
	19200, 38400, 57600, 115200, 230400, 460800, 500000, 576000, 921600,
	1000000, 1152000, 1500000, 2000000, 2500000, 3000000, 3500000, 4000000,
}

func isSupportedBaudRate(rate int) bool {
	for _, r := range supportedBaudRates {
		if r == rate {
			return true
		}
	}
	return false
}

// ParseBaudRate converts a textual baud rate such as "9600" into an integer.
// Anything that is not a supported rate returns ErrInvalidBaudRate.
func ParseBaudRate(s string) (int, error) {
	rate, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !isSupportedBaudRate(rate) {
		return 0, ErrInvalidBaudRate
	}
	return rate, nil
}

// buildConfig applies opts on top of DefaultConfig
func buildConfig(opts []Option) (Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Config{}, err
		}
	}
	return config, nil
}
