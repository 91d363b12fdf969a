// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/vpc3scope/internal/logging"
	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

// snapshotInterval limits how often the dashboard receives statistics
const snapshotInterval = 250 * time.Millisecond

var timingCmd = &cobra.Command{
	Use:   "timing",
	Short: "Watch live SPI traffic for timing violations",
	Long: `Check every chip-select cycle against the VPC3 SPI timing limits.

Three windows are measured per cycle:
  tCSA_B   chip-select assert to first byte      (--cs-to-byte)
  tB_B     end of one byte to start of the next  (--byte-to-byte)
  tB_CSIA  end of last byte to chip-select release (--byte-to-cs)

At least one limit must be set, by flag or in the [timing] section of --config.
By default only violations and dropped frames are displayed. Use --show-all to
display every emitted frame.

The dashboard keeps running totals per violation kind; text mode prints a
statistics summary at a configurable interval.`,
	RunE: runTiming,
}

func init() {
	rootCmd.AddCommand(timingCmd)
	timingCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just violations)")
	timingCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds, text mode)")
	timingCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runTiming(cmd *cobra.Command, args []string) error {
	if !sessionConfig.Timing.Any() {
		return fmt.Errorf("no timing limits set (use --cs-to-byte, --byte-to-byte, --byte-to-cs or [timing] in --config)")
	}
	if statsInterval <= 0 {
		return fmt.Errorf("--stats-interval must be positive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	link, err := openLiveLink(ctx)
	if err != nil {
		return err
	}
	defer link.conn.Close()

	if useTUI {
		return runTUIMode(ctx, link)
	}
	return runTextMode(ctx, link)
}

// runTUIMode runs the timing dashboard
func runTUIMode(ctx context.Context, link *liveLink) error {
	// Log lines would tear the alternate screen
	logging.SetLevel("disabled")

	stats := vpc3.NewStatistics()
	session := vpc3.NewSession(sessionConfig, vpc3.WithStatistics(stats))

	m := initialModel(link.info, describeConfig(sessionConfig), showAll)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	// Link reader goroutine; owns the session
	go func() {
		lastSnapshot := time.Now()
		for {
			ev, err := link.source.Next()
			if err != nil {
				p.Send(frameMsg{stats: *stats, link: link.source.Stats()})
				if linkEnded(ctx, err) {
					err = nil
				}
				p.Send(linkClosedMsg{err: err})
				return
			}

			r, ferr := session.Feed(ev)
			if r != nil || ferr != nil || time.Since(lastSnapshot) > snapshotInterval {
				lastSnapshot = time.Now()
				p.Send(frameMsg{result: r, err: ferr, stats: *stats, link: link.source.Stats()})
			}
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// runTextMode prints violations as they happen and statistics periodically
func runTextMode(ctx context.Context, link *liveLink) error {
	fmt.Printf("vpc3scope - Timing Check\n")
	fmt.Printf("Connection: %s\n", link.info)
	fmt.Printf("Settings: %s\n", describeConfig(sessionConfig))
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Violations only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	stats := vpc3.NewStatistics()
	session := vpc3.NewSession(sessionConfig,
		vpc3.WithLogger(logging.Logger("timing")),
		vpc3.WithStatistics(stats),
	)

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	// Channel for non-blocking link reads
	events := make(chan vpc3.Event, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			ev, err := link.source.Next()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	handle := func(ev vpc3.Event) {
		r, err := session.Feed(ev)
		if err != nil {
			printFrameError(err)
		}
		if r == nil {
			return
		}
		if r.HasViolations() {
			printViolations(*r)
		} else if showAll {
			fmt.Print(vpc3.FormatResult(*r))
		}
	}
	report := func() {
		fmt.Println()
		fmt.Print(stats.String())
	}

	return processLinkEvents(ctx, events, readErr, statsTicker.C, handle, report)
}

// processLinkEvents feeds events to handle until the link ends or ctx is done.
// Events already queued when the link ends are handled before the final report.
func processLinkEvents(ctx context.Context, events <-chan vpc3.Event, readErr <-chan error,
	tick <-chan time.Time, handle func(vpc3.Event), report func()) error {
	for {
		select {
		case ev := <-events:
			handle(ev)

		case err := <-readErr:
			drainEvents(events, handle)
			report()
			if linkEnded(ctx, err) {
				return nil
			}
			return err

		case <-ctx.Done():
			report()
			return nil

		case <-tick:
			report()
			fmt.Println()
		}
	}
}

// drainEvents handles every event still buffered in events
func drainEvents(events <-chan vpc3.Event, handle func(vpc3.Event)) {
	for {
		select {
		case ev := <-events:
			handle(ev)
		default:
			return
		}
	}
}

// printFrameError prints a dropped or degraded frame in highlighted format
func printFrameError(err error) {
	label := "MALFORMED FRAME"
	if vpc3.IsIncomplete(err) {
		label = "INCOMPLETE FRAME"
	}
	fmt.Printf("\033[1;31m%s:\033[0m %v\n\n", label, err)
}

// printViolations prints a frame with its timing violations
func printViolations(r vpc3.Result) {
	fmt.Printf("[%s] \033[1;33mTIMING VIOLATION:\033[0m %s",
		vpc3.FormatTimestamp(r.CSAssert), vpc3.FormatCommand(r.Command, r.Opcode))
	if r.HasAddress {
		fmt.Printf("  addr: %s", vpc3.FormatAddress(r.Address))
	}
	fmt.Println()
	for i, v := range r.Violations {
		fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, vpc3.FormatViolation(v))
	}
	fmt.Println()
}
