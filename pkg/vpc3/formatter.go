// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import (
	"fmt"
	"strings"
	"time"
)

// FormatTimestamp renders a capture offset with microsecond precision
func FormatTimestamp(d time.Duration) string {
	return fmt.Sprintf("%12.6fms", float64(d)/float64(time.Millisecond))
}

// FormatCommand returns the display name of a command, with the opcode for Unknown
func FormatCommand(tag CommandTag, opcode byte) string {
	if tag == CmdUnknown {
		return fmt.Sprintf("Unknown (0x%02X)", opcode)
	}
	return tag.String()
}

// FormatAddress renders an address in decimal and hex
func FormatAddress(addr uint16) string {
	return fmt.Sprintf("%d (0x%02X)", addr, addr)
}

// FormatData renders a payload as a hex dump, 16 bytes per line
func FormatData(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for i, v := range data {
		if i > 0 && i%16 == 0 {
			b.WriteString("\n        ")
		} else if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}

// FormatViolation renders one violation like "violation: byte to byte 5ns > 4ns"
func FormatViolation(v Violation) string {
	s := fmt.Sprintf("violation: %s %v > %v", v.Kind, v.Measured, v.Threshold)
	if v.Kind == ViolationByteToByte {
		s += fmt.Sprintf(" (bytes %d-%d)", v.Pair, v.Pair+1)
	}
	return s
}

// FormatResult formats an emitted frame into a human-readable string
func FormatResult(r Result) string {
	result := fmt.Sprintf("[%s] cmd: %s", FormatTimestamp(r.CSAssert), FormatCommand(r.Command, r.Opcode))
	if r.Incomplete {
		result += " [incomplete]"
	}
	if r.HasAddress {
		result += fmt.Sprintf("  addr: %s", FormatAddress(r.Address))
	}
	result += fmt.Sprintf("  cs=%v\n", r.CSDeassert-r.CSAssert)

	if r.HasData && r.Command.Known() {
		result += fmt.Sprintf("  data: %s\n", FormatData(r.Data))
	}
	for _, v := range r.Violations {
		result += "  " + FormatViolation(v) + "\n"
	}
	return result
}
