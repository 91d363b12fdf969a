// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import (
	"fmt"
	"strings"
)

// HighlightScope selects how much of a frame is emitted
type HighlightScope int

const (
	ScopeFull HighlightScope = iota
	ScopeCommandOnly
)

// String returns the scope name as used in configuration
func (s HighlightScope) String() string {
	switch s {
	case ScopeFull:
		return "full"
	case ScopeCommandOnly:
		return "command_only"
	default:
		return fmt.Sprintf("HighlightScope(%d)", int(s))
	}
}

// ParseHighlightScope parses "full" or "command_only"
func ParseHighlightScope(s string) (HighlightScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full", "no":
		return ScopeFull, nil
	case "command_only", "command-only", "command", "yes":
		return ScopeCommandOnly, nil
	}
	return ScopeFull, fmt.Errorf("unknown highlight scope %q (use full or command_only)", s)
}

// FilterConfig decides which frames are emitted
type FilterConfig struct {
	// Command restricts output to one command; CmdNone disables the filter
	Command CommandTag
	// Address restricts output to one register address when HasAddress is set
	Address    uint16
	HasAddress bool
	Scope      HighlightScope
	// ViolationsOnly emits only frames with at least one timing violation
	ViolationsOnly bool
}

// Validate checks the filter configuration
func (c FilterConfig) Validate() error {
	if c.Command != CmdNone && !c.Command.Known() {
		return fmt.Errorf("command filter must be one of the four VPC3 commands, got %v", c.Command)
	}
	if c.Scope != ScopeFull && c.Scope != ScopeCommandOnly {
		return fmt.Errorf("invalid highlight scope %d", int(c.Scope))
	}
	return nil
}

// Decision is the filter outcome for one frame
type Decision struct {
	Emit   bool
	Detail HighlightScope
}

// Suppress is the decision to drop a frame
var Suppress = Decision{}

// Filter decides whether and how a decoded frame is emitted.
//
// Timing violations take precedence over the command filter: a frame with any
// violation passes it. The address filter only applies to commands that carry
// an address.
func Filter(f *DecodedFrame, violations []Violation, cfg FilterConfig) Decision {
	if cfg.ViolationsOnly && len(violations) == 0 {
		return Suppress
	}

	cmd := f.Command
	if cfg.Command != CmdNone && f.Tag() != cfg.Command && len(violations) == 0 {
		return Suppress
	}

	if cfg.HasAddress && cmd.HasAddress() && cmd.Address != cfg.Address {
		return Suppress
	}

	return Decision{Emit: true, Detail: cfg.Scope}
}
