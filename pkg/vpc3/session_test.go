// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/Thermoquad/vpc3scope/internal/testutil/testlog"
)

// sliceSource replays a fixed event list
type sliceSource struct {
	events []Event
	pos    int
	err    error // returned instead of io.EOF when set
}

func (s *sliceSource) Next() (Event, error) {
	if s.pos >= len(s.events) {
		if s.err != nil {
			return Event{}, s.err
		}
		return Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// runAll drains events through a new session and collects results and diagnostics
func runAll(t *testing.T, cfg Config, events []Event) ([]Result, []error) {
	t.Helper()
	var results []Result
	var diags []error
	s := NewSession(cfg, WithLogger(testlog.Start(t)), WithDiagnostics(func(err error) {
		diags = append(diags, err)
	}))
	if err := s.Run(context.Background(), &sliceSource{events: events}, func(r Result) {
		results = append(results, r)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return results, diags
}

// ============================================================
// End-to-end Tests
// ============================================================

func TestSession_ReadByteEndToEnd(t *testing.T) {
	results, diags := runAll(t, Config{}, readByteEvents())
	if len(diags) != 0 {
		t.Fatalf("Unexpected diagnostics: %v", diags)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Command != CmdReadByte {
		t.Errorf("Expected ReadByte, got %v", r.Command)
	}
	if !r.HasAddress || r.Address != 0x05 {
		t.Errorf("Expected address 0x05, got 0x%02X (present=%v)", r.Address, r.HasAddress)
	}
	if !bytes.Equal(r.Data, []byte{0xFF}) {
		t.Errorf("Expected data [FF], got % X", r.Data)
	}
	if len(r.Violations) != 0 {
		t.Errorf("Expected no violations, got %v", r.Violations)
	}
	if r.CSAssert != 0 || r.CSDeassert != 40 {
		t.Errorf("Expected CS 0..40, got %v..%v", r.CSAssert, r.CSDeassert)
	}
}

func TestSession_ByteToByteEndToEnd(t *testing.T) {
	cfg := Config{Timing: TimingThresholds{ByteToByte: MaxDuration(4)}}
	results, _ := runAll(t, cfg, readByteEvents())
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	v := results[0].Violations
	if len(v) != 2 {
		t.Fatalf("Expected 2 violations, got %v", v)
	}
	for _, viol := range v {
		if viol.Kind != ViolationByteToByte || viol.Measured != 5 {
			t.Errorf("Expected byte-to-byte 5ns, got %v", viol)
		}
	}
}

func TestSession_MalformedEndToEnd(t *testing.T) {
	results, diags := runAll(t, Config{}, []Event{ChipSelectAssert(0), ChipSelectDeassert(5)})
	if len(results) != 0 {
		t.Errorf("Expected no results, got %v", results)
	}
	if len(diags) != 1 || !errors.Is(diags[0], ErrMalformedFrame) {
		t.Errorf("Expected one malformed diagnostic, got %v", diags)
	}
}

func TestSession_MalformedDoesNotCorruptNextCycle(t *testing.T) {
	events := []Event{
		ChipSelectAssert(0),
		ChipSelectDeassert(5),
		ChipSelectAssert(10),
		ByteTransfer(0x12, 20, 25),
		ChipSelectAssert(30), // nested
		ByteTransfer(0x12, 40, 45),
		ByteTransfer(0x07, 50, 55),
		ByteTransfer(0x42, 60, 65),
		ChipSelectDeassert(70),
	}
	results, diags := runAll(t, Config{}, events)
	if len(diags) != 2 {
		t.Errorf("Expected 2 diagnostics, got %v", diags)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Command != CmdWriteByte || r.Address != 0x07 || !bytes.Equal(r.Data, []byte{0x42}) {
		t.Errorf("Unexpected result: %+v", r)
	}
}

func TestSession_IncompleteEmitsDegraded(t *testing.T) {
	events := []Event{
		ChipSelectAssert(0),
		ByteTransfer(OpWriteByte, 10, 15),
		ByteTransfer(0x05, 20, 25),
		ChipSelectDeassert(30),
	}
	results, diags := runAll(t, Config{}, events)
	if len(diags) != 1 || !IsIncomplete(diags[0]) {
		t.Fatalf("Expected one incomplete diagnostic, got %v", diags)
	}
	if len(results) != 1 {
		t.Fatalf("Expected degraded result, got %d results", len(results))
	}
	r := results[0]
	if r.Command != CmdUnknown || r.Opcode != OpWriteByte || !r.Incomplete || r.HasAddress {
		t.Errorf("Expected degraded Unknown(0x12), got %+v", r)
	}
}

func TestSession_FilterWithViolation(t *testing.T) {
	events := []Event{
		ChipSelectAssert(0),
		ByteTransfer(OpReadArray, 10, 15),
		ByteTransfer(0x05, 20, 25),
		ByteTransfer(0x01, 30, 35),
		ChipSelectDeassert(40),
	}
	cfg := Config{Filter: FilterConfig{Command: CmdWriteByte}}
	if results, _ := runAll(t, cfg, events); len(results) != 0 {
		t.Errorf("ReadArray should be suppressed, got %v", results)
	}

	cfg.Timing.ByteToByte = MaxDuration(4)
	results, _ := runAll(t, cfg, events)
	if len(results) != 1 || results[0].Command != CmdReadArray {
		t.Errorf("ReadArray with violations should be emitted, got %v", results)
	}
}

func TestSession_Statistics(t *testing.T) {
	events := append(readByteEvents(),
		ChipSelectAssert(100),
		ChipSelectDeassert(105),
		ByteTransfer(0x01, 110, 111), // stray
		ChipSelectAssert(200),
		ByteTransfer(OpWriteByte, 210, 215),
		ByteTransfer(0x09, 220, 225),
		ByteTransfer(0x01, 230, 235),
		ByteTransfer(0x02, 240, 245), // trailing
		ChipSelectDeassert(250),
	)
	stats := NewStatistics()
	cfg := Config{
		Timing: TimingThresholds{ByteToByte: MaxDuration(4)},
		Filter: FilterConfig{Address: 0x05, HasAddress: true},
	}
	s := NewSession(cfg, WithStatistics(stats))
	if s.Stats() != stats {
		t.Fatal("WithStatistics should share the tracker")
	}
	if err := s.Run(context.Background(), &sliceSource{events: events}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.TotalCycles != 3 {
		t.Errorf("TotalCycles: expected 3, got %d", stats.TotalCycles)
	}
	if stats.DecodedFrames != 2 || stats.MalformedFrames != 1 {
		t.Errorf("Decoded/malformed: got %d/%d", stats.DecodedFrames, stats.MalformedFrames)
	}
	if stats.Commands[CmdReadByte] != 1 || stats.Commands[CmdWriteByte] != 1 {
		t.Errorf("Per-command counts wrong: %v", stats.Commands)
	}
	if stats.StrayEvents != 1 {
		t.Errorf("StrayEvents: expected 1, got %d", stats.StrayEvents)
	}
	if stats.LengthAnomalies != 1 {
		t.Errorf("LengthAnomalies: expected 1, got %d", stats.LengthAnomalies)
	}
	if stats.Violations[ViolationByteToByte] != 5 || stats.ViolatingFrames != 2 {
		t.Errorf("Violations: got %d in %d frames", stats.Violations[ViolationByteToByte], stats.ViolatingFrames)
	}
	if stats.Emitted != 1 || stats.Suppressed != 1 {
		t.Errorf("Emitted/suppressed: got %d/%d", stats.Emitted, stats.Suppressed)
	}
	if stats.CaptureSpan != 250 {
		t.Errorf("CaptureSpan: expected 250, got %v", stats.CaptureSpan)
	}
}

// ============================================================
// Run Control Tests
// ============================================================

func TestSession_RunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSession(Config{})
	err := s.Run(ctx, &sliceSource{events: readByteEvents()}, func(Result) {
		t.Error("No result expected after cancellation")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestSession_RunDiscardsPartialFrame(t *testing.T) {
	events := readByteEvents()
	partial := events[:3] // assert and two bytes
	s := NewSession(Config{})
	if err := s.Run(context.Background(), &sliceSource{events: partial}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Finishing the cycle after Run returned must not produce a frame
	r, err := s.Feed(ChipSelectDeassert(40))
	if r != nil || err != nil {
		t.Errorf("Partial frame should be discarded, got %v, %v", r, err)
	}
}

func TestSession_RunSourceError(t *testing.T) {
	boom := errors.New("usb unplugged")
	s := NewSession(Config{})
	err := s.Run(context.Background(), &sliceSource{err: boom}, nil)
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped source error, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	good := Config{
		Decode: DecodeOptions{AddressWidth: 2},
		Timing: TimingThresholds{ByteToByte: MaxDuration(100)},
		Filter: FilterConfig{Command: CmdReadArray},
	}
	if err := good.Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	bad := good
	bad.Decode.AddressWidth = 4
	if err := bad.Validate(); err == nil {
		t.Error("Expected decode error")
	}
}
