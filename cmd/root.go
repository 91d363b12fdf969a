// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/vpc3scope/internal/config"
	"github.com/Thermoquad/vpc3scope/internal/logging"
	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Settings
	configPath string
	logLevel   string

	// Decode and filter overrides
	addressWidth   int
	filterCommand  string
	filterAddress  string
	commandOnly    bool
	violationsOnly bool

	// Timing threshold overrides
	csToByte   string
	byteToByte string
	byteToCS   string

	// sessionConfig is resolved before any subcommand runs
	sessionConfig vpc3.Config
)

var rootCmd = &cobra.Command{
	Use:   "vpc3scope",
	Short: "VPC3 Profibus SPI decoder",
	Long: `vpc3scope - Decode and timing-check SPI traffic to a VPC3 Profibus controller.

Reads chip-select cycles from a capture file or a live sniffer link, decodes
the VPC3 commands (Read Byte, Read Array, Write Byte, Write Array), and flags
timing violations against configurable limits.

Live connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the VPC3SCOPE_PASSWORD
environment variable, or prompted interactively if not set.

Settings are read from --config (TOML) when given. Flags override the file.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: resolveSettings,
}

func init() {
	flags := rootCmd.PersistentFlags()

	// Serial connection flags
	flags.StringVarP(&portName, "port", "p", "", "Serial port device")
	flags.IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	flags.StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	flags.BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	flags.StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	flags.StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	flags.IntVar(&addressWidth, "address-width", 1, "Address bytes after the opcode (1 or 2)")
	flags.StringVar(&filterCommand, "filter", "", "Only show one command (READ_BYTE, READ_ARRAY, WRITE_BYTE, WRITE_ARRAY)")
	flags.StringVar(&filterAddress, "address", "", "Only show one register address (e.g. 0x05)")
	flags.BoolVar(&commandOnly, "command-only", false, "Show the command name only, without address and data")
	flags.BoolVar(&violationsOnly, "violations-only", false, "Only show frames with timing violations")

	flags.StringVar(&csToByte, "cs-to-byte", "", "Max CS assert to first byte (e.g. 200ns)")
	flags.StringVar(&byteToByte, "byte-to-byte", "", "Max gap between consecutive bytes")
	flags.StringVar(&byteToCS, "byte-to-cs", "", "Max last byte to CS deassert")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// resolveSettings sets up logging and builds the session configuration
func resolveSettings(cmd *cobra.Command, args []string) error {
	logging.ConfigureRuntime()
	if logLevel != "" && !logging.SetLevel(logLevel) {
		return fmt.Errorf("unknown log level %q", logLevel)
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}
	sessionConfig = cfg
	return nil
}

// buildConfig loads the config file, then applies flags the user set
func buildConfig(cmd *cobra.Command) (vpc3.Config, error) {
	var cfg vpc3.Config
	if configPath != "" {
		loaded, err := config.Load(configPath, logging.Logger("config"))
		if err != nil {
			return vpc3.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("address-width") {
		cfg.Decode.AddressWidth = addressWidth
	}
	if flags.Changed("filter") {
		tag, err := vpc3.ParseCommandTag(filterCommand)
		if err != nil {
			return vpc3.Config{}, fmt.Errorf("--filter: %w", err)
		}
		cfg.Filter.Command = tag
	}
	if flags.Changed("address") {
		if strings.TrimSpace(filterAddress) == "" {
			cfg.Filter.HasAddress = false
		} else {
			addr, err := config.ParseAddress(filterAddress)
			if err != nil {
				return vpc3.Config{}, fmt.Errorf("--address: %w", err)
			}
			cfg.Filter.Address = addr
			cfg.Filter.HasAddress = true
		}
	}
	if flags.Changed("command-only") {
		cfg.Filter.Scope = vpc3.ScopeFull
		if commandOnly {
			cfg.Filter.Scope = vpc3.ScopeCommandOnly
		}
	}
	if flags.Changed("violations-only") {
		cfg.Filter.ViolationsOnly = violationsOnly
	}

	for _, t := range []struct {
		flag  string
		value string
		limit *vpc3.Limit
	}{
		{"cs-to-byte", csToByte, &cfg.Timing.CSToFirstByte},
		{"byte-to-byte", byteToByte, &cfg.Timing.ByteToByte},
		{"byte-to-cs", byteToCS, &cfg.Timing.LastByteToCS},
	} {
		if !flags.Changed(t.flag) {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(t.value)) {
		case "", "off":
			*t.limit = vpc3.Limit{}
		default:
			d, err := config.ParseDuration(t.value)
			if err != nil {
				return vpc3.Config{}, fmt.Errorf("--%s: %w", t.flag, err)
			}
			*t.limit = vpc3.MaxDuration(d)
		}
	}

	if err := cfg.Validate(); err != nil {
		return vpc3.Config{}, err
	}
	return cfg, nil
}

// describeConfig summarises the active settings for command banners
func describeConfig(cfg vpc3.Config) string {
	var parts []string
	if cfg.Filter.Command != vpc3.CmdNone {
		parts = append(parts, "filter="+cfg.Filter.Command.FilterName())
	}
	if cfg.Filter.HasAddress {
		parts = append(parts, fmt.Sprintf("address=0x%02X", cfg.Filter.Address))
	}
	if cfg.Filter.Scope == vpc3.ScopeCommandOnly {
		parts = append(parts, "command-only")
	}
	if cfg.Filter.ViolationsOnly {
		parts = append(parts, "violations-only")
	}
	parts = append(parts, fmt.Sprintf("tCSA_B=%s tB_B=%s tB_CSIA=%s",
		cfg.Timing.CSToFirstByte, cfg.Timing.ByteToByte, cfg.Timing.LastByteToCS))
	return strings.Join(parts, " ")
}
