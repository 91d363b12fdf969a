// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vpc3scope/internal/logging"
	"github.com/Thermoquad/vpc3scope/pkg/capture"
)

var convertInput string

var convertCmd = &cobra.Command{
	Use:   "convert IN OUT",
	Short: "Convert a capture into a framed CBOR event stream",
	Long: `Read a capture (Saleae CSV export or binary digital channels) and write
the same bus events in the framed CBOR stream format used by sniffer bridges.

The output can be replayed with 'decode --input cbor' or streamed to a
bridge for testing. For saleae input pass '-' as IN together with --clk,
--cs and --mosi.`,
	Args: cobra.ExactArgs(2),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().StringVar(&convertInput, "input", "", "Input format: csv, cbor or saleae (default from file extension)")
	convertCmd.Flags().StringVar(&saleaeFiles.Clock, "clk", "", "Saleae clock channel file")
	convertCmd.Flags().StringVar(&saleaeFiles.Enable, "cs", "", "Saleae chip-select channel file")
	convertCmd.Flags().StringVar(&saleaeFiles.MOSI, "mosi", "", "Saleae MOSI channel file")
	convertCmd.Flags().StringVar(&saleaeFiles.MISO, "miso", "", "Saleae MISO channel file")
}

func runConvert(cmd *cobra.Command, args []string) error {
	in, outPath := args[0], args[1]
	if in == "-" {
		in = ""
	}

	src, closer, err := openCapture(in, convertInput)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)

	n, err := capture.NewStreamWriter(w).Copy(src)
	if err != nil {
		out.Close()
		return fmt.Errorf("convert: %w", err)
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	log := logging.Logger("convert")
	log.Info().Int("events", n).Str("out", outPath).Msg("wrote event stream")
	return nil
}
