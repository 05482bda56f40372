package echo

import "fmt"

// OpenError reports that the connection could not be established.
// Nothing was opened, so nothing needs closing.
type OpenError struct {
	Device string
	Baud   string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s at %s baud: %v", e.Device, e.Baud, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// FaultError reports a failure while echoing. Op is "read" or "write".
// io.EOF from the line (a hangup) is reported as a read fault.
type FaultError struct {
	Op     string
	Device string
	Err    error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Device, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }
