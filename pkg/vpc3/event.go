// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import (
	"fmt"
	"time"
)

// EventKind identifies what happened on the bus
type EventKind uint8

const (
	EventByte EventKind = iota
	EventAssert
	EventDeassert
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventByte:
		return "byte"
	case EventAssert:
		return "assert"
	case EventDeassert:
		return "deassert"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Event is one timestamped SPI bus event.
//
// Times are offsets from the start of the capture. Chip-select edges only use
// Start; byte transfers use Start and End.
type Event struct {
	Kind  EventKind
	Start time.Duration
	End   time.Duration

	// Value is the byte shifted out on MOSI
	Value byte
	// MISO is the byte shifted in, valid when HasMISO is set
	MISO    byte
	HasMISO bool
}

// ByteTransfer creates a byte event carrying only a MOSI value
func ByteTransfer(value byte, start, end time.Duration) Event {
	return Event{Kind: EventByte, Start: start, End: end, Value: value}
}

// ByteExchange creates a byte event carrying both data lines
func ByteExchange(mosi, miso byte, start, end time.Duration) Event {
	return Event{Kind: EventByte, Start: start, End: end, Value: mosi, MISO: miso, HasMISO: true}
}

// ChipSelectAssert creates a chip-select assertion event
func ChipSelectAssert(at time.Duration) Event {
	return Event{Kind: EventAssert, Start: at, End: at}
}

// ChipSelectDeassert creates a chip-select deassertion event
func ChipSelectDeassert(at time.Duration) Event {
	return Event{Kind: EventDeassert, Start: at, End: at}
}

// EventSource supplies bus events in arrival order.
// Next returns io.EOF once the source is exhausted.
type EventSource interface {
	Next() (Event, error)
}

// ByteSample is one byte transfer inside a chip-select cycle
type ByteSample struct {
	Start   time.Duration
	End     time.Duration
	MOSI    byte
	MISO    byte
	HasMISO bool
}

// Span is a time interval on the capture timeline
type Span struct {
	Start time.Duration
	End   time.Duration
}

// Duration returns the length of the span
func (s Span) Duration() time.Duration {
	return s.End - s.Start
}

// CandidateFrame is the raw content of one chip-select cycle
type CandidateFrame struct {
	CSAssert   time.Duration
	CSDeassert time.Duration
	Bytes      []ByteSample
}

// MOSI returns the MOSI bytes of the frame in bus order
func (f *CandidateFrame) MOSI() []byte {
	out := make([]byte, len(f.Bytes))
	for i, b := range f.Bytes {
		out[i] = b.MOSI
	}
	return out
}
