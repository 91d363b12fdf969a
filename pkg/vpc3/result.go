// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import "time"

// Result is one emitted frame.
//
// With ScopeCommandOnly the address and data are decoded but left out, and
// HasAddress/HasData are false.
type Result struct {
	Command CommandTag
	Opcode  byte

	Address    uint16
	HasAddress bool
	Data       []byte
	HasData    bool

	Violations []Violation

	CSAssert   time.Duration
	CSDeassert time.Duration
	Spans      FieldSpans
	Scope      HighlightScope

	// Incomplete marks a known opcode that was cut short
	Incomplete bool
}

// HasViolations reports whether any timing window was exceeded
func (r *Result) HasViolations() bool {
	return len(r.Violations) > 0
}

// NewResult builds the emitted record for a frame at the given detail level
func NewResult(f *DecodedFrame, violations []Violation, detail HighlightScope) Result {
	r := Result{
		Command:    f.Command.Tag,
		Opcode:     f.Command.Opcode,
		Violations: violations,
		CSAssert:   f.CSAssert,
		CSDeassert: f.CSDeassert,
		Scope:      detail,
		Incomplete: f.Incomplete,
		Spans:      FieldSpans{Command: f.Spans.Command},
	}
	if r.Violations == nil {
		r.Violations = []Violation{}
	}
	if detail == ScopeCommandOnly {
		return r
	}

	if f.Command.HasAddress() {
		r.Address = f.Command.Address
		r.HasAddress = true
		r.Spans.Address = f.Spans.Address
	}
	// Unknown commands report an empty payload
	r.Data = append([]byte{}, f.Command.Data...)
	r.HasData = true
	r.Spans.Data = f.Spans.Data
	return r
}
