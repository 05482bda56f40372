// Package serial provides a small, idiomatic Go library for reading and
// writing serial ports, with blocking reads that can be abandoned through a
// context.
//
// # Basic Usage
//
// Open a serial port with default configuration (115200 8N1):
//
//	port, err := serial.Open("/dev/ttyUSB0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	buffer := make([]byte, 256)
//	n, err := port.Read(buffer)
//
// # Configuration Options
//
// Use functional options for custom configuration:
//
//	port, err := serial.Open("/dev/ttyUSB0",
//	    serial.WithBaudRate(9600),
//	    serial.WithDataBits(7),
//	    serial.WithParity(serial.ParityEven),
//	    serial.WithStopBits(2),
//	)
//
// Baud rates given as text (for example from the command line) can be checked
// with ParseBaudRate before opening.
//
// # Cancellable Reads
//
// Reads block until at least one byte arrives. ReadContext returns as soon as
// its context is done, and Close wakes any reader that is still waiting:
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	n, err := port.ReadContext(ctx, buffer)
//	if errors.Is(err, context.Canceled) {
//	    // interrupted
//	}
//
// On Linux the port is driven directly through termios and poll(2). Other
// platforms use go.bug.st/serial underneath; there a cancelled read returns
// within roughly 100ms instead of immediately.
//
// # Port Discovery
//
//	ports, err := serial.ListPorts()
//	for _, portPath := range ports {
//	    info, _ := serial.GetPortInfo(portPath)
//	    fmt.Printf("%s: %s (VID=%s PID=%s Serial=%s)\n",
//	        info.Path, info.Description, info.VendorID, info.ProductID, info.SerialNumber)
//	}
//
// # Error Handling
//
// Failures are reported with sentinel errors, usually wrapped with the device
// path. Use errors.Is() for checking:
//
//	if errors.Is(err, serial.ErrDeviceNotFound) {
//	    // no such device
//	}
//
// # Default Configuration
//
//   - BaudRate: 115200
//   - DataBits: 8
//   - StopBits: 1
//   - Parity: None
//   - ReadTimeout: none (block until data)
package serial
