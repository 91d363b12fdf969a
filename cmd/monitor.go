// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vpc3scope/internal/logging"
	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode SPI traffic live from a sniffer link",
	Long: `Continuously decode VPC3 commands as the sniffer bridge forwards them.

Each emitted frame is printed with its chip-select time, command, address,
data and any timing violations. Filters and thresholds come from the global
flags or --config. Statistics are printed on exit.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	link, err := openLiveLink(ctx)
	if err != nil {
		return err
	}
	defer link.conn.Close()

	fmt.Printf("vpc3scope - Live Monitor\n")
	fmt.Printf("Connection: %s\n", link.info)
	fmt.Printf("Settings: %s\n", describeConfig(sessionConfig))
	fmt.Printf("Press Ctrl+C to exit\n\n")

	log := logging.Logger("monitor")
	stats := vpc3.NewStatistics()
	session := vpc3.NewSession(sessionConfig,
		vpc3.WithLogger(log),
		vpc3.WithStatistics(stats),
	)

	started := time.Now()
	err = session.Run(ctx, link.source, func(r vpc3.Result) {
		fmt.Print(vpc3.FormatResult(r))
	})
	if !linkEnded(ctx, err) {
		return err
	}

	ls := link.source.Stats()
	log.Info().
		Uint64("bytes", ls.Bytes).
		Uint64("frames", ls.Frames).
		Uint64("frame_errors", ls.FrameErrors).
		Uint64("event_errors", ls.EventErrors).
		Dur("elapsed", logging.Since(started)).
		Msg("link closed")
	fmt.Println()
	fmt.Print(stats.String())
	return nil
}
