// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vpc3scope/internal/logging"
	"github.com/Thermoquad/vpc3scope/pkg/capture"
	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

var (
	replayInput string
	replaySpeed float64
	replayLoop  bool
)

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Send a recorded capture over a serial or WebSocket link",
	Long: `Read a capture and transmit its events as a framed CBOR stream over the link.

This drives a second vpc3scope instance (or a bridge under test) with known
traffic. Events are paced by their capture timestamps scaled by --speed;
--speed 0 sends as fast as the link accepts.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Input format: csv or cbor (default from file extension)")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed relative to capture time (0 = unpaced)")
	replayCmd.Flags().BoolVar(&replayLoop, "loop", false, "Restart from the beginning when the capture ends")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if replaySpeed < 0 {
		return fmt.Errorf("--speed must not be negative")
	}
	if replayInput == "saleae" {
		return fmt.Errorf("replay reads csv or cbor captures; convert saleae exports first")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, info, err := OpenConnection(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	log := logging.Logger("replay")
	log.Info().Str("link", info).Str("file", args[0]).Float64("speed", replaySpeed).Msg("replaying capture")

	started := time.Now()
	total := 0
	for {
		n, err := replayFile(ctx, args[0], conn)
		total += n
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrConnectionClosed) {
				break
			}
			return err
		}
		if !replayLoop {
			break
		}
	}

	log.Info().Int("events", total).Dur("elapsed", logging.Since(started)).Msg("replay finished")
	return nil
}

// replayFile sends one pass over the capture and returns the number of events sent
func replayFile(ctx context.Context, path string, w io.Writer) (int, error) {
	src, closer, err := openCapture(path, replayInput)
	if err != nil {
		return 0, err
	}
	if closer != nil {
		defer closer.Close()
	}
	return replayEvents(ctx, src, capture.NewStreamWriter(w), replaySpeed, sleepContext)
}

// replayEvents writes events from src, waiting between them as scaled by speed
func replayEvents(ctx context.Context, src vpc3.EventSource, out *capture.StreamWriter, speed float64,
	sleep func(context.Context, time.Duration) error) (int, error) {
	sent := 0
	var prev time.Duration
	for {
		ev, err := src.Next()
		if err == io.EOF {
			return sent, nil
		}
		if err != nil {
			return sent, err
		}

		if d := replayDelay(prev, ev.Start, speed); sent > 0 && d > 0 {
			if err := sleep(ctx, d); err != nil {
				return sent, err
			}
		}
		prev = ev.Start

		if err := out.Write(ev); err != nil {
			return sent, err
		}
		sent++
	}
}

// replayDelay is the wall-clock wait between two capture timestamps
func replayDelay(prev, next time.Duration, speed float64) time.Duration {
	if speed <= 0 || next <= prev {
		return 0
	}
	return time.Duration(float64(next-prev) / speed)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
