/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/allbin/serialecho"
	"github.com/allbin/serialecho/internal/style"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <port>",
	Short: "Display detailed information about a serial port",
	Long: `Display detailed information about a serial port including USB metadata.

Examples:
  serialecho info /dev/ttyUSB0
  serialecho info /dev/ttyACM0

For USB devices, this displays vendor/product IDs, serial numbers, interface
numbers, and other USB-specific metadata extracted from sysfs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		info, err := serial.GetPortInfo(args[0])
		if err != nil {
			return fmt.Errorf("getting port info for %s: %w", args[0], err)
		}

		printPortInfo(cmd.OutOrStdout(), info)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func printPortInfo(w io.Writer, info *serial.PortInfo) {
	fmt.Fprintln(w, style.Title.Render("Port Information: "+info.Path))
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s %s\n", style.Label.Render("Name:       "), info.Name)
	fmt.Fprintf(w, "  %s %s\n", style.Label.Render("Description:"), info.Description)

	if !info.IsUSB() {
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, style.Title.Render("USB Device Information:"))
	fields := []struct {
		label string
		value string
	}{
		{"Vendor ID:   ", info.VendorID},
		{"Product ID:  ", info.ProductID},
		{"Serial:      ", info.SerialNumber},
		{"Interface:   ", info.InterfaceNumber},
		{"Bus:         ", info.BusNumber},
		{"Device:      ", info.DeviceNumber},
		{"Manufacturer:", info.Manufacturer},
		{"Product:     ", info.Product},
	}
	for _, f := range fields {
		if f.value != "" {
			fmt.Fprintf(w, "  %s %s\n", style.Label.Render(f.label), f.value)
		}
	}
}
