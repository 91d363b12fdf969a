// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import (
	"strings"
	"testing"
	"time"
)

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		tag  CommandTag
		op   byte
		want string
	}{
		{CmdReadByte, OpReadByte, "Read Byte"},
		{CmdReadArray, OpReadArray, "Read Array"},
		{CmdWriteByte, OpWriteByte, "Write Byte"},
		{CmdWriteArray, OpWriteArray, "Write Array"},
		{CmdUnknown, 0x7A, "Unknown (0x7A)"},
	}
	for _, tt := range tests {
		if got := FormatCommand(tt.tag, tt.op); got != tt.want {
			t.Errorf("FormatCommand(%v) = %q, want %q", tt.tag, got, tt.want)
		}
	}
}

func TestFormatData(t *testing.T) {
	if got := FormatData(nil); got != "(empty)" {
		t.Errorf("Empty data: got %q", got)
	}
	if got := FormatData([]byte{0x01, 0xAB}); got != "01 AB" {
		t.Errorf("Short data: got %q", got)
	}
	long := make([]byte, 17)
	if got := FormatData(long); !strings.Contains(got, "\n") {
		t.Errorf("17 bytes should wrap, got %q", got)
	}
}

func TestFormatTimestamp(t *testing.T) {
	got := FormatTimestamp(1500 * time.Microsecond)
	if strings.TrimSpace(got) != "1.500000ms" {
		t.Errorf("Expected 1.500000ms, got %q", got)
	}
}

func TestFormatResult_Full(t *testing.T) {
	r := Result{
		Command:    CmdWriteByte,
		Opcode:     OpWriteByte,
		Address:    0x05,
		HasAddress: true,
		Data:       []byte{0xFF},
		HasData:    true,
		Violations: []Violation{{Kind: ViolationByteToByte, Measured: 5, Threshold: 4, Pair: 0}},
		CSAssert:   0,
		CSDeassert: 40,
	}
	out := FormatResult(r)
	for _, want := range []string{"cmd: Write Byte", "addr: 5 (0x05)", "data: FF", "violation: byte to byte 5ns > 4ns (bytes 0-1)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatResult_CommandOnly(t *testing.T) {
	r := Result{Command: CmdReadArray, Opcode: OpReadArray, Scope: ScopeCommandOnly, CSDeassert: 40}
	out := FormatResult(r)
	if strings.Contains(out, "addr:") || strings.Contains(out, "data:") {
		t.Errorf("Command-only output should omit address and data:\n%s", out)
	}
}

func TestFormatResult_Incomplete(t *testing.T) {
	r := Result{Command: CmdUnknown, Opcode: OpWriteByte, Incomplete: true, HasData: true}
	out := FormatResult(r)
	if !strings.Contains(out, "Unknown (0x12) [incomplete]") {
		t.Errorf("Expected degraded marker, got:\n%s", out)
	}
	if strings.Contains(out, "data:") {
		t.Errorf("Unknown commands have no data line:\n%s", out)
	}
}

func TestStatistics_StringAndReset(t *testing.T) {
	s := NewStatistics()
	df, _ := Decode(frameOf(OpWriteByte, 0x05, 0x01), DecodeOptions{})
	v := []Violation{{Kind: ViolationLastByteToCS, Measured: 5, Threshold: 1}}
	s.Update(df, nil, v, Decision{Emit: true})
	s.Update(nil, &FrameError{Kind: ErrMalformedFrame}, nil, Suppress)

	out := s.String()
	for _, want := range []string{"CS Cycles:", "Write Byte:", "Malformed:", "last byte to CS:"} {
		if !strings.Contains(out, want) {
			t.Errorf("Summary missing %q:\n%s", want, out)
		}
	}

	s.Reset()
	if s.TotalCycles != 0 || s.TotalViolations() != 0 || s.StartTime.IsZero() {
		t.Errorf("Reset did not clear counters: %+v", s)
	}
}
