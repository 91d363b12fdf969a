// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vpc3scope/internal/logging"
	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

var (
	probeTimeout int
)

// Probe exit codes
const (
	probeExitOK      = 0
	probeExitTimeout = 1
	probeExitError   = 2
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test a sniffer link by waiting for a decoded frame",
	Long: `Wait for one complete chip-select cycle on the link until timeout.

This command connects to a serial port or WebSocket and waits for the first
cycle that decodes into a known VPC3 command. Damaged link frames, stray events,
malformed or incomplete cycles and unknown opcodes are skipped. Filters do not apply.

Exit codes:
  0 - Frame decoded before timeout
  1 - Timeout reached without a decoded frame
  2 - Connection error

Useful for checking the sniffer bridge wiring before a capture session.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(probeTimeout)*time.Second)
	defer cancel()

	link, err := openLiveLink(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(probeExitError)
	}
	defer link.conn.Close()

	fmt.Printf("vpc3scope - Link Probe\n")
	fmt.Printf("Connection: %s\n", link.info)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Waiting for a chip-select cycle...\n\n")

	frameChan := make(chan vpc3.Result, 1)
	errChan := make(chan error, 1)

	// Reader goroutine
	go func() {
		session := vpc3.NewSession(vpc3.Config{Decode: sessionConfig.Decode},
			vpc3.WithLogger(logging.Logger("probe")))
		for {
			ev, err := link.source.Next()
			if err != nil {
				errChan <- err
				return
			}
			if r, _ := session.Feed(ev); isKnownFrame(r) {
				frameChan <- *r
				return
			}
		}
	}()

	select {
	case r := <-frameChan:
		ls := link.source.Stats()
		fmt.Printf("SUCCESS: Decoded frame\n")
		fmt.Printf("  Command: %s (0x%02X)\n", vpc3.FormatCommand(r.Command, r.Opcode), r.Opcode)
		if r.HasAddress {
			fmt.Printf("  Address: %s\n", vpc3.FormatAddress(r.Address))
		}
		fmt.Printf("  CS: %v\n", r.CSDeassert-r.CSAssert)
		fmt.Printf("  Link: %d frames, %d damaged\n", ls.Frames, ls.FrameErrors+ls.EventErrors)
		os.Exit(probeExitOK)

	case err := <-errChan:
		if ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "Read error: %v\n", err)
			os.Exit(probeExitError)
		}
		fmt.Fprintf(os.Stderr, "TIMEOUT: No frame decoded within %d seconds\n", probeTimeout)
		os.Exit(probeExitTimeout)

	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "TIMEOUT: No frame decoded within %d seconds\n", probeTimeout)
		os.Exit(probeExitTimeout)
	}

	return nil
}

// isKnownFrame reports whether r is a known VPC3 command.
// Noise decodes as Unknown, and so do incomplete frames.
func isKnownFrame(r *vpc3.Result) bool {
	return r != nil && r.Command.Known()
}
