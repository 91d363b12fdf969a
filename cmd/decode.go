// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vpc3scope/internal/logging"
	"github.com/Thermoquad/vpc3scope/pkg/capture"
	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

var (
	decodeInput  string
	decodeFormat string
	decodeStats  bool
	saleaeFiles  capture.SaleaeChannels
)

var decodeCmd = &cobra.Command{
	Use:   "decode [FILE]",
	Short: "Decode a recorded SPI capture",
	Long: `Decode VPC3 commands from a capture file and print one record per emitted frame.

Input formats:
  csv     Saleae Logic 2 SPI analyzer table export (default for .csv)
  cbor    framed CBOR event stream, as written by 'convert' (default otherwise)
  saleae  Saleae binary digital exports, given with --clk, --cs, --mosi [--miso]

Binary digital exports carry no per-byte timing, so timing checks are
meaningless for the saleae input.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVar(&decodeInput, "input", "", "Input format: csv, cbor or saleae (default from file extension)")
	decodeCmd.Flags().StringVar(&decodeFormat, "format", "text", "Output format: text or json")
	decodeCmd.Flags().BoolVar(&decodeStats, "stats", false, "Print statistics after decoding")
	decodeCmd.Flags().StringVar(&saleaeFiles.Clock, "clk", "", "Saleae clock channel file")
	decodeCmd.Flags().StringVar(&saleaeFiles.Enable, "cs", "", "Saleae chip-select channel file")
	decodeCmd.Flags().StringVar(&saleaeFiles.MOSI, "mosi", "", "Saleae MOSI channel file")
	decodeCmd.Flags().StringVar(&saleaeFiles.MISO, "miso", "", "Saleae MISO channel file")
}

func runDecode(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) > 0 {
		path = args[0]
	}
	src, closer, err := openCapture(path, decodeInput)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	var emit func(vpc3.Result)
	switch decodeFormat {
	case "text":
		emit = func(r vpc3.Result) { fmt.Print(vpc3.FormatResult(r)) }
	case "json":
		enc := json.NewEncoder(os.Stdout)
		log := logging.Logger("decode")
		emit = func(r vpc3.Result) {
			if err := enc.Encode(newJSONResult(r)); err != nil {
				log.Error().Err(err).Msg("write failed")
			}
		}
	default:
		return fmt.Errorf("unknown output format %q (use text or json)", decodeFormat)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats := vpc3.NewStatistics()
	session := vpc3.NewSession(sessionConfig,
		vpc3.WithLogger(logging.Logger("decode")),
		vpc3.WithStatistics(stats),
	)
	if err := session.Run(ctx, src, emit); err != nil && ctx.Err() == nil {
		return err
	}

	if decodeStats {
		out := os.Stdout
		if decodeFormat == "json" {
			out = os.Stderr
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, stats.String())
	}
	return nil
}

// openCapture opens a capture file as an event source
func openCapture(path, format string) (vpc3.EventSource, io.Closer, error) {
	if format == "" {
		format = inputFormatFor(path)
	}

	if format == "saleae" {
		if saleaeFiles.Clock == "" || saleaeFiles.Enable == "" || saleaeFiles.MOSI == "" {
			return nil, nil, fmt.Errorf("saleae input needs --clk, --cs and --mosi")
		}
		src, err := capture.OpenSaleae(saleaeFiles)
		if err != nil {
			return nil, nil, err
		}
		log := logging.Logger("decode")
		log.Info().Int("transactions", src.Transactions).Msg("scanned Saleae digital capture")
		return src, nil, nil
	}

	if path == "" {
		return nil, nil, fmt.Errorf("a capture file is required for %s input", format)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	switch format {
	case "csv":
		src, err := capture.NewCSVSource(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return src, f, nil
	case "cbor":
		return capture.NewStreamSource(f, logging.Logger("capture")), f, nil
	default:
		f.Close()
		return nil, nil, fmt.Errorf("unknown input format %q (use csv, cbor or saleae)", format)
	}
}

// inputFormatFor picks a format from the file extension
func inputFormatFor(path string) string {
	if path == "" && saleaeFiles.Enable != "" {
		return "saleae"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	default:
		return "cbor"
	}
}

type jsonViolation struct {
	Kind       string `json:"kind"`
	MeasuredNS int64  `json:"measured_ns"`
	MaxNS      int64  `json:"max_ns"`
	Pair       *int   `json:"pair,omitempty"`
}

type jsonResult struct {
	CSAssertNS   int64           `json:"cs_assert_ns"`
	CSDeassertNS int64           `json:"cs_deassert_ns"`
	Command      string          `json:"command"`
	Opcode       string          `json:"opcode"`
	Address      *uint16         `json:"address,omitempty"`
	Data         *string         `json:"data,omitempty"`
	Incomplete   bool            `json:"incomplete,omitempty"`
	Violations   []jsonViolation `json:"violations"`
}

func newJSONResult(r vpc3.Result) jsonResult {
	out := jsonResult{
		CSAssertNS:   int64(r.CSAssert),
		CSDeassertNS: int64(r.CSDeassert),
		Command:      "UNKNOWN",
		Opcode:       fmt.Sprintf("0x%02X", r.Opcode),
		Incomplete:   r.Incomplete,
		Violations:   make([]jsonViolation, 0, len(r.Violations)),
	}
	if r.Command.Known() {
		out.Command = r.Command.FilterName()
	}
	if r.HasAddress {
		addr := r.Address
		out.Address = &addr
	}
	if r.HasData && r.Command.Known() {
		data := fmt.Sprintf("%X", r.Data)
		out.Data = &data
	}
	for _, v := range r.Violations {
		jv := jsonViolation{
			Kind:       v.Kind.String(),
			MeasuredNS: int64(v.Measured),
			MaxNS:      int64(v.Threshold),
		}
		if v.Kind == vpc3.ViolationByteToByte {
			pair := v.Pair
			jv.Pair = &pair
		}
		out.Violations = append(out.Violations, jv)
	}
	return out
}
