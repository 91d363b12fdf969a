// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import "time"

// FieldSpans holds the bus time covered by each field of a frame.
// A zero span means the field is absent.
type FieldSpans struct {
	Command Span
	Address Span
	Data    Span
}

// DecodedFrame is one chip-select cycle decoded into a command
type DecodedFrame struct {
	Command    Command
	CSAssert   time.Duration
	CSDeassert time.Duration

	// Bytes is the timing data of the originating cycle
	Bytes []ByteSample
	Spans FieldSpans

	// Trailing counts bytes after a complete byte command that carry no meaning
	Trailing int
	// Incomplete is set when a known opcode ran out of bytes; Command is then Unknown
	Incomplete bool
}

// Tag returns the command tag of the frame
func (f *DecodedFrame) Tag() CommandTag {
	return f.Command.Tag
}

// Len returns the number of bytes in the cycle
func (f *DecodedFrame) Len() int {
	return len(f.Bytes)
}

// Cycle returns the chip-select span of the frame
func (f *DecodedFrame) Cycle() Span {
	return Span{Start: f.CSAssert, End: f.CSDeassert}
}
