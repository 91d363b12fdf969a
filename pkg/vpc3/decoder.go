// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import "fmt"

// DecodeOptions controls the command field layout
type DecodeOptions struct {
	// AddressWidth is the number of address bytes after the opcode (1 or 2).
	// Zero selects AddressWidthShort.
	AddressWidth int
}

// width returns the effective address width
func (o DecodeOptions) width() int {
	if o.AddressWidth == AddressWidthLong {
		return AddressWidthLong
	}
	return AddressWidthShort
}

// Validate checks the decode options
func (o DecodeOptions) Validate() error {
	switch o.AddressWidth {
	case 0, AddressWidthShort, AddressWidthLong:
		return nil
	default:
		return fmt.Errorf("invalid address width %d (must be 1 or 2)", o.AddressWidth)
	}
}

// Decode classifies a chip-select cycle and extracts its fields.
//
// Any non-empty frame decodes; an unrecognised opcode gives an Unknown command.
// A known opcode without enough bytes for its address or data byte returns an
// ErrIncompleteFrame error together with a degraded Unknown frame, so callers
// can still show the cycle.
func Decode(f *CandidateFrame, opts DecodeOptions) (*DecodedFrame, error) {
	if f == nil {
		return nil, malformed("no frame", 0, 0, 0)
	}
	if len(f.Bytes) == 0 {
		return nil, malformed("no bytes between chip-select edges", f.CSAssert, f.CSDeassert, 0)
	}

	bytes := f.Bytes
	op := bytes[0].MOSI
	df := &DecodedFrame{
		CSAssert:   f.CSAssert,
		CSDeassert: f.CSDeassert,
		Bytes:      bytes,
		Spans: FieldSpans{
			Command: Span{Start: bytes[0].Start, End: bytes[0].End},
		},
	}

	tag := TagForOpcode(op)
	if tag == CmdUnknown {
		df.Command = Command{Tag: CmdUnknown, Opcode: op}
		return df, nil
	}

	width := opts.width()
	if len(bytes) < 1+width {
		return degrade(df, op, "missing address byte")
	}

	var addr uint16
	for _, b := range bytes[1 : 1+width] {
		addr = addr<<8 | uint16(b.MOSI)
	}
	df.Spans.Address = Span{Start: bytes[1].Start, End: bytes[width].End}

	payload := bytes[1+width:]
	if !tag.IsArray() {
		if len(payload) < 1 {
			return degrade(df, op, "missing data byte")
		}
		df.Trailing = len(payload) - 1
		payload = payload[:1]
	}

	data := make([]byte, len(payload))
	for i, b := range payload {
		data[i] = dataByte(tag, b)
	}
	if len(payload) > 0 {
		df.Spans.Data = Span{Start: payload[0].Start, End: payload[len(payload)-1].End}
	}

	df.Command = Command{Tag: tag, Opcode: op, Address: addr, Data: data}
	return df, nil
}

// dataByte selects the data line for a command: reads use MISO when sampled
func dataByte(tag CommandTag, b ByteSample) byte {
	if tag.IsRead() && b.HasMISO {
		return b.MISO
	}
	return b.MOSI
}

// degrade turns a frame into its Unknown form and reports why
func degrade(df *DecodedFrame, op byte, reason string) (*DecodedFrame, error) {
	df.Command = Command{Tag: CmdUnknown, Opcode: op}
	df.Spans.Address = Span{}
	df.Spans.Data = Span{}
	df.Incomplete = true
	return df, &FrameError{
		Kind:       ErrIncompleteFrame,
		Reason:     fmt.Sprintf("%s for %s", reason, TagForOpcode(op)),
		Opcode:     op,
		CSAssert:   df.CSAssert,
		CSDeassert: df.CSDeassert,
		Len:        len(df.Bytes),
	}
}
