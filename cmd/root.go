/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
	"go.uber.org/zap"

	"github.com/allbin/serialecho"
	"github.com/allbin/serialecho/internal/config"
	"github.com/allbin/serialecho/internal/echo"
	"github.com/allbin/serialecho/internal/logging"
)

var (
	cfgFile string
	v       = config.New()
	logger  = zap.NewNop()

	// openSource is replaced in tests
	openSource echo.Opener = echo.SerialOpener

	registerSync sync.Once
	syncHandler  atexit.HandlerID
)

// rootCmd echoes a serial port to stdout
var rootCmd = &cobra.Command{
	Use:   "serialecho <device> <baud>",
	Short: "Echo everything received on a serial port to stdout",
	Long: `Open a serial port and copy every byte it receives to standard output
as it arrives. Runs until interrupted (Ctrl+C).

Bytes are treated as ISO-8859-1, so every value 0-255 is passed through
unchanged and nothing is dropped. Output is flushed after every byte. Diagnostics are written to
stderr, keeping stdout for the data stream.

Example usage:
  serialecho /dev/ttyUSB0 115200
  serialecho /dev/ttyACM0 9600 > capture.txt
  SERIALECHO_LOG_LEVEL=debug serialecho /dev/ttyS0 57600`,
	Args:              cobra.ExactArgs(2),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		go func() {
			select {
			case sig := <-sigChan:
				logger.Info("received signal", zap.Stringer("signal", sig))
				cancel()
			case <-ctx.Done():
			}
		}()

		return runEcho(ctx, cmd.OutOrStdout(), args[0], args[1])
	},
}

// Execute adds all child commands to the root command and runs it. It does
// not return: exit handlers (log flushing) run and the process exits 0 on a
// clean shutdown, 1 otherwise.
func Execute() {
	code := 0
	if err := rootCmd.Execute(); err != nil {
		code = 1
	}
	atexit.Exit(code)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (yaml, toml or json)")
	flags.String("log-level", "info", "Log level: debug, info, warn, error")
	flags.String("log-format", "console", "Log format: console, json")
	flags.String("log-file", "", "Also write logs to this file (rotated)")

	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindPFlag("log.file", flags.Lookup("log-file"))
}

// setup loads configuration and builds the logger before any command runs
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}

	l, err := logging.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	logger = l
	registerSync.Do(func() {
		syncHandler = atexit.Register(func() { _ = logger.Sync() })
	})

	return nil
}

// runEcho echoes device to out until ctx is cancelled
func runEcho(ctx context.Context, out io.Writer, device, baud string) error {
	loop := echo.New(openSource, out, logger)
	err := loop.Run(ctx, device, baud)

	var openErr *echo.OpenError
	if errors.As(err, &openErr) && errors.Is(err, serial.ErrDeviceNotFound) {
		suggestPorts()
	}
	return err
}

// suggestPorts logs the serial ports that do exist
func suggestPorts() {
	ports, err := serial.ListPorts()
	if err != nil {
		logger.Debug("could not list serial ports", zap.Error(err))
		return
	}
	if len(ports) == 0 {
		logger.Info("no serial ports found on this system")
		return
	}
	logger.Info("available serial ports", zap.Strings("ports", ports))
}
