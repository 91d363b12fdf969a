// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads vpc3scope settings from a TOML file.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

type decodeSection struct {
	AddressWidth int `toml:"address_width"`
}

type filterSection struct {
	Command        string      `toml:"command"`
	Address        interface{} `toml:"address"` // "0x05" or 5
	Highlight      string      `toml:"highlight"`
	ViolationsOnly bool        `toml:"violations_only"`
}

type timingSection struct {
	CSToFirstByte   string `toml:"cs_to_first_byte"`
	CSToFirstByteNS int64  `toml:"cs_to_first_byte_ns"`
	ByteToByte      string `toml:"byte_to_byte"`
	ByteToByteNS    int64  `toml:"byte_to_byte_ns"`
	LastByteToCS    string `toml:"last_byte_to_cs"`
	LastByteToCSNS  int64  `toml:"last_byte_to_cs_ns"`
}

type fileConfig struct {
	Decode decodeSection `toml:"decode"`
	Filter filterSection `toml:"filter"`
	Timing timingSection `toml:"timing"`
}

// Load reads a configuration file. Keys absent from the file leave the
// matching check or filter disabled. Unknown keys are logged and ignored.
func Load(path string, logger zerolog.Logger) (vpc3.Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return vpc3.Config{}, fmt.Errorf("load config: %w", err)
	}
	for _, key := range meta.Undecoded() {
		logger.Warn().Str("key", key.String()).Str("file", path).Msg("ignoring unknown config key")
	}

	cfg, err := build(meta, raw)
	if err != nil {
		return vpc3.Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses configuration from TOML text
func Decode(data string) (vpc3.Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return vpc3.Config{}, fmt.Errorf("decode config: %w", err)
	}
	return build(meta, raw)
}

func build(meta toml.MetaData, raw fileConfig) (vpc3.Config, error) {
	var cfg vpc3.Config

	if meta.IsDefined("decode", "address_width") {
		cfg.Decode.AddressWidth = raw.Decode.AddressWidth
	}

	if meta.IsDefined("filter", "command") {
		tag, err := vpc3.ParseCommandTag(raw.Filter.Command)
		if err != nil {
			return vpc3.Config{}, fmt.Errorf("filter.command: %w", err)
		}
		cfg.Filter.Command = tag
	}

	if meta.IsDefined("filter", "address") {
		addr, err := addressValue(raw.Filter.Address)
		if err != nil {
			return vpc3.Config{}, fmt.Errorf("filter.address: %w", err)
		}
		cfg.Filter.Address = addr
		cfg.Filter.HasAddress = true
	}

	if meta.IsDefined("filter", "highlight") {
		scope, err := vpc3.ParseHighlightScope(raw.Filter.Highlight)
		if err != nil {
			return vpc3.Config{}, fmt.Errorf("filter.highlight: %w", err)
		}
		cfg.Filter.Scope = scope
	}

	if meta.IsDefined("filter", "violations_only") {
		cfg.Filter.ViolationsOnly = raw.Filter.ViolationsOnly
	}

	limits := []struct {
		key   string
		text  string
		ns    int64
		limit *vpc3.Limit
	}{
		{"cs_to_first_byte", raw.Timing.CSToFirstByte, raw.Timing.CSToFirstByteNS, &cfg.Timing.CSToFirstByte},
		{"byte_to_byte", raw.Timing.ByteToByte, raw.Timing.ByteToByteNS, &cfg.Timing.ByteToByte},
		{"last_byte_to_cs", raw.Timing.LastByteToCS, raw.Timing.LastByteToCSNS, &cfg.Timing.LastByteToCS},
	}
	for _, l := range limits {
		if meta.IsDefined("timing", l.key) {
			d, err := ParseDuration(l.text)
			if err != nil {
				return vpc3.Config{}, fmt.Errorf("timing.%s: %w", l.key, err)
			}
			*l.limit = vpc3.MaxDuration(d)
		}
		if meta.IsDefined("timing", l.key+"_ns") {
			*l.limit = vpc3.MaxDuration(time.Duration(l.ns))
		}
	}

	if err := cfg.Validate(); err != nil {
		return vpc3.Config{}, err
	}
	return cfg, nil
}

// ParseAddress parses a register address in decimal or 0x-prefixed hex
func ParseAddress(raw string) (uint16, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("empty address")
	}
	v, err := strconv.ParseUint(raw, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return uint16(v), nil
}

// ParseDuration parses a threshold such as "200ns" or "1.5us".
// A bare number is taken as nanoseconds.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Duration(n), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

func addressValue(v interface{}) (uint16, error) {
	switch a := v.(type) {
	case string:
		return ParseAddress(a)
	case int64:
		if a < 0 || a > 0xFFFF {
			return 0, fmt.Errorf("address %d out of range", a)
		}
		return uint16(a), nil
	default:
		return 0, fmt.Errorf("expected string or integer, got %T", v)
	}
}
