// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/soypat/saleae"

	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

// ============================================================
// Link Framing Tests
// ============================================================

func TestCalculateCRC(t *testing.T) {
	// CRC-16-CCITT (0xFFFF init) check value
	if got := CalculateCRC([]byte("123456789")); got != 0x29B1 {
		t.Errorf("Expected 0x29B1, got 0x%04X", got)
	}
}

func TestAppendFrame_Stuffing(t *testing.T) {
	payload := []byte{StartByte, EndByte, EscByte, 0x01}
	frame, err := AppendFrame(nil, payload)
	if err != nil {
		t.Fatalf("AppendFrame: %v", err)
	}
	if frame[0] != StartByte || frame[len(frame)-1] != EndByte {
		t.Fatalf("Frame not delimited: % X", frame)
	}
	for i, b := range frame[1 : len(frame)-1] {
		if b == StartByte || b == EndByte {
			t.Errorf("Unescaped framing byte at %d: % X", i+1, frame)
		}
	}

	d := NewDeframer()
	var got []byte
	for _, b := range frame {
		p, err := d.DecodeByte(b)
		if err != nil {
			t.Fatalf("DecodeByte: %v", err)
		}
		if p != nil {
			got = append([]byte(nil), p...)
		}
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Expected % X, got % X", payload, got)
	}
}

func TestAppendFrame_SizeLimits(t *testing.T) {
	if _, err := AppendFrame(nil, nil); err == nil {
		t.Error("Expected error for empty payload")
	}
	if _, err := AppendFrame(nil, make([]byte, MaxPayloadSize+1)); err == nil {
		t.Error("Expected error for oversized payload")
	}
}

func TestDeframer_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"zero length", []byte{StartByte, 0x00}},
		{"oversized length", []byte{StartByte, MaxPayloadSize + 1}},
		{"early END", []byte{StartByte, 0x02, 0x01, EndByte}},
		{"data after CRC", []byte{StartByte, 0x01, 0x01, 0x00, 0x00, 0x55}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeframer()
			var sawErr bool
			for _, b := range tt.input {
				if _, err := d.DecodeByte(b); err != nil {
					sawErr = true
				}
			}
			if !sawErr {
				t.Errorf("Expected an error for % X", tt.input)
			}
		})
	}
}

func TestDeframer_IdleEndIgnored(t *testing.T) {
	d := NewDeframer()
	for _, b := range []byte{0x00, EndByte, 0x55} {
		if p, err := d.DecodeByte(b); p != nil || err != nil {
			t.Errorf("Idle byte 0x%02X: got %v, %v", b, p, err)
		}
	}
}

func TestDeframer_ResyncAfterDanglingEscape(t *testing.T) {
	payload, err := MarshalEvent(vpc3.ChipSelectAssert(5))
	if err != nil {
		t.Fatal(err)
	}
	frame, err := AppendFrame(nil, payload)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		prefix []byte
	}{
		{"ESC before START", []byte{StartByte, 0x05, EscByte}},
		{"ESC before END", []byte{StartByte, 0x01, 0x01, 0x00, EscByte, EndByte}},
		{"idle ESC", []byte{EscByte}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := append(append([]byte{}, tt.prefix...), frame...)
			src := NewStreamSource(bytes.NewReader(stream), zerolog.Nop())
			ev, err := src.Next()
			if err != nil {
				t.Fatalf("Expected the intact frame after % X, got %v (stats %+v)", tt.prefix, err, src.Stats())
			}
			if ev != vpc3.ChipSelectAssert(5) {
				t.Errorf("Unexpected event %+v", ev)
			}
			if src.Stats().Frames != 1 {
				t.Errorf("Expected 1 frame, got %+v", src.Stats())
			}
		})
	}
}

// ============================================================
// Stream Tests
// ============================================================

func streamEvents() []vpc3.Event {
	return []vpc3.Event{
		vpc3.ChipSelectAssert(0x7E),
		vpc3.ByteTransfer(vpc3.OpReadByte, 0x7F, 0x7D7E),
		vpc3.ByteExchange(0x05, 0x7E, 0x8000, 0x8005),
		vpc3.ByteExchange(0x00, 0xFF, 0x8010, 0x8015),
		vpc3.ChipSelectDeassert(0x9000),
	}
}

func TestStream_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewStreamWriter(&buf)
	n, err := w.Copy(NewSliceSource(streamEvents()))
	if err != nil || n != 5 {
		t.Fatalf("Copy: n=%d err=%v", n, err)
	}

	src := NewStreamSource(&buf, zerolog.Nop())
	got, err := Collect(src)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := streamEvents()
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
	if st := src.Stats(); st.Frames != 5 || st.FrameErrors != 0 {
		t.Errorf("Unexpected link stats %+v", st)
	}
}

func TestStream_SkipsDamagedFrames(t *testing.T) {
	events := streamEvents()
	var frames [][]byte
	for _, ev := range events {
		payload, err := MarshalEvent(ev)
		if err != nil {
			t.Fatalf("MarshalEvent: %v", err)
		}
		f, _ := AppendFrame(nil, payload)
		frames = append(frames, f)
	}

	// Flip one payload bit in the second frame so its CRC fails
	damaged := frames[1]
	special := func(b byte) bool { return b == StartByte || b == EndByte || b == EscByte }
	for i := 2; i < len(damaged)-1; i++ {
		if !special(damaged[i]) && !special(damaged[i]^0x01) && !special(damaged[i-1]) {
			damaged[i] ^= 0x01
			break
		}
	}

	var stream []byte
	stream = append(stream, 0x00, 0x13, EndByte) // line noise
	for _, f := range frames {
		stream = append(stream, f...)
	}
	src := NewStreamSource(bytes.NewReader(stream), zerolog.Nop())
	got, err := Collect(src)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("Expected 4 events after dropping one, got %d", len(got))
	}
	if got[1] != events[2] {
		t.Errorf("Expected stream to resync on the next frame, got %+v", got[1])
	}
	if st := src.Stats(); st.FrameErrors+st.EventErrors != 1 {
		t.Errorf("Expected one dropped frame, got %+v", st)
	}
}

func TestParseEvent_Invalid(t *testing.T) {
	if _, err := ParseEvent(nil); err == nil {
		t.Error("Expected error for empty payload")
	}
	if _, err := ParseEvent([]byte{0x82, 0x00, 0x00}); err == nil {
		t.Error("Expected error for short array")
	}
	bad, _ := MarshalEvent(vpc3.Event{Kind: 9})
	if _, err := ParseEvent(bad); err == nil {
		t.Error("Expected error for unknown kind")
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("port gone") }

func TestStream_ReadError(t *testing.T) {
	_, err := NewStreamSource(failingReader{}, zerolog.Nop()).Next()
	if err == nil || err == io.EOF {
		t.Errorf("Expected read error, got %v", err)
	}
}

// ============================================================
// CSV Tests
// ============================================================

const saleaeExport = `name,type,start_time,duration,"mosi","miso"
"SPI","enable",0.000001,0,,
"SPI","result",0.00000101,0.000000005,0x13,0x00
"SPI","result",0.00000102,0.000000005,0x05,0x00
"SPI","result",0.00000103,0.000000005,0x00,0xFF
"SPI","disable",0.00000104,0,,
"SPI","error",0.00000105,0,,
`

func TestCSVSource_Parse(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader(saleaeExport))
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	events, err := Collect(src)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	want := []vpc3.Event{
		vpc3.ChipSelectAssert(1000),
		vpc3.ByteExchange(0x13, 0x00, 1010, 1015),
		vpc3.ByteExchange(0x05, 0x00, 1020, 1025),
		vpc3.ByteExchange(0x00, 0xFF, 1030, 1035),
		vpc3.ChipSelectDeassert(1040),
	}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d", len(want), len(events))
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("Event %d: expected %+v, got %+v", i, want[i], events[i])
		}
	}
	if src.Skipped != 1 {
		t.Errorf("Expected 1 skipped row, got %d", src.Skipped)
	}
}

func TestCSVSource_WithoutMISO(t *testing.T) {
	in := "type,start_time,duration,mosi\nresult,0.5,0.000001,0x12\n"
	src, err := NewCSVSource(strings.NewReader(in))
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	ev, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if ev.HasMISO || ev.Value != 0x12 || ev.Start != 500000000 || ev.End != 500001000 {
		t.Errorf("Unexpected event %+v", ev)
	}
}

func TestCSVSource_Errors(t *testing.T) {
	if _, err := NewCSVSource(strings.NewReader("type,start_time\n")); err == nil {
		t.Error("Expected error for missing columns")
	}
	if _, err := NewCSVSource(strings.NewReader("")); err == nil {
		t.Error("Expected error for empty input")
	}

	in := "type,start_time,duration,mosi\nresult,0.1,0.0,0x1FF\n"
	src, _ := NewCSVSource(strings.NewReader(in))
	if _, err := src.Next(); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Expected line-numbered mosi error, got %v", err)
	}
}

func TestCSVSource_DecodesThroughSession(t *testing.T) {
	src, err := NewCSVSource(strings.NewReader(saleaeExport))
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	var results []vpc3.Result
	s := vpc3.NewSession(vpc3.Config{})
	if err := s.Run(context.Background(), src, func(r vpc3.Result) {
		results = append(results, r)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Command != vpc3.CmdReadByte || r.Address != 0x05 || !bytes.Equal(r.Data, []byte{0xFF}) {
		t.Errorf("Expected Read Byte 0x05 = FF from MISO, got %+v", r)
	}
}

// ============================================================
// Saleae Tests
// ============================================================

func TestOpenSaleae_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenSaleae(SaleaeChannels{
		Clock:  dir + "/digital_0.bin",
		Enable: dir + "/digital_1.bin",
		MOSI:   dir + "/digital_2.bin",
	})
	if err == nil {
		t.Error("Expected error for missing channel files")
	}
}

// writeDigital writes a Saleae digital channel export with the given transitions.
// The last transition is a sentinel far after the capture.
func writeDigital(t *testing.T, dir, name string, initial uint32, transitions []float64) string {
	t.Helper()
	data := append(append([]float64{}, transitions...), 1000)
	df := &saleae.DigitalFile{
		Header: saleae.DigitalHeader{
			Info:           saleae.FileHeader{Version: 0, Type: saleae.FileTypeDigital},
			InitialState:   initial,
			End:            1000,
			NumTransitions: uint64(len(data)),
		},
		Data: data,
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := df.WriteTo(f); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return path
}

// dataTransitions returns the edges that shift bytes out MSB first, one bit per
// rising clock edge at 1s, 2s, ... starting from a low line
func dataTransitions(data ...byte) []float64 {
	var out []float64
	level := false
	edge := 1
	for _, b := range data {
		for bit := 7; bit >= 0; bit-- {
			if want := b&(1<<bit) != 0; want != level {
				out = append(out, float64(edge)-0.25)
				level = want
			}
			edge++
		}
	}
	return out
}

// saleaeCycle writes one chip-select cycle carrying mosi and miso
func saleaeCycle(t *testing.T, mosi, miso []byte) SaleaeChannels {
	t.Helper()
	dir := t.TempDir()
	n := 8 * len(mosi)
	var clock []float64
	for k := 1; k <= n; k++ {
		clock = append(clock, float64(k), float64(k)+0.5)
	}
	return SaleaeChannels{
		Clock:  writeDigital(t, dir, "digital_0.bin", 0, clock),
		Enable: writeDigital(t, dir, "digital_1.bin", 1, []float64{0.5}),
		MOSI:   writeDigital(t, dir, "digital_2.bin", 0, dataTransitions(mosi...)),
		MISO:   writeDigital(t, dir, "digital_3.bin", 0, dataTransitions(miso...)),
	}
}

func TestOpenSaleae_ScanToEvents(t *testing.T) {
	ch := saleaeCycle(t, []byte{vpc3.OpReadByte, 0x05, 0x00}, []byte{0x00, 0x00, 0xA5})
	src, err := OpenSaleae(ch)
	if err != nil {
		t.Fatalf("OpenSaleae: %v", err)
	}
	if src.Transactions != 1 {
		t.Fatalf("Expected 1 transaction, got %d", src.Transactions)
	}

	events, err := Collect(src)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	at := time.Second
	want := []vpc3.Event{
		vpc3.ChipSelectAssert(at),
		vpc3.ByteExchange(vpc3.OpReadByte, 0x00, at, at),
		vpc3.ByteExchange(0x05, 0x00, at, at),
		vpc3.ByteExchange(0x00, 0xA5, at, at),
		vpc3.ChipSelectDeassert(at),
	}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event %d: got %+v, want %+v", i, events[i], want[i])
		}
	}
}

func TestOpenSaleae_WithoutMISO(t *testing.T) {
	ch := saleaeCycle(t, []byte{vpc3.OpWriteByte, 0x2A, 0x7E}, []byte{0, 0, 0})
	ch.MISO = ""
	src, err := OpenSaleae(ch)
	if err != nil {
		t.Fatalf("OpenSaleae: %v", err)
	}

	var results []vpc3.Result
	s := vpc3.NewSession(vpc3.Config{})
	if err := s.Run(context.Background(), src, func(r vpc3.Result) {
		results = append(results, r)
	}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Command != vpc3.CmdWriteByte || r.Address != 0x2A || !bytes.Equal(r.Data, []byte{0x7E}) {
		t.Errorf("Unexpected result %+v", r)
	}
	if r.CSAssert != time.Second || r.CSDeassert != time.Second {
		t.Errorf("Expected the shared transaction time, got %v..%v", r.CSAssert, r.CSDeassert)
	}
}
