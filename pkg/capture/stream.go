// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"bufio"
	"io"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

// LinkStats counts link-level outcomes of a stream
type LinkStats struct {
	Bytes       uint64
	Frames      uint64
	FrameErrors uint64 // bad length, CRC or framing
	EventErrors uint64 // frame was intact but not a valid event
}

// StreamSource reads framed CBOR events from a sniffer link or a capture file
type StreamSource struct {
	r     *bufio.Reader
	d     *Deframer
	log   zerolog.Logger
	stats LinkStats
}

// NewStreamSource wraps r, typically a serial port, WebSocket or file
func NewStreamSource(r io.Reader, logger zerolog.Logger) *StreamSource {
	return &StreamSource{
		r:   bufio.NewReader(r),
		d:   NewDeframer(),
		log: logger,
	}
}

// Stats returns the link counters so far
func (s *StreamSource) Stats() LinkStats {
	return s.stats
}

// Next returns the next valid event. Damaged frames are skipped.
// Read errors, including io.EOF, are returned unchanged.
func (s *StreamSource) Next() (vpc3.Event, error) {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return vpc3.Event{}, err
		}
		s.stats.Bytes++

		payload, err := s.d.DecodeByte(b)
		if err != nil {
			s.stats.FrameErrors++
			s.log.Debug().Err(err).Uint64("offset", s.stats.Bytes).Msg("dropped link frame")
			continue
		}
		if payload == nil {
			continue
		}
		s.stats.Frames++

		ev, err := ParseEvent(payload)
		if err != nil {
			s.stats.EventErrors++
			s.log.Debug().Err(err).Uint64("offset", s.stats.Bytes).Msg("dropped event")
			continue
		}
		return ev, nil
	}
}

// StreamWriter writes events as link frames
type StreamWriter struct {
	w   io.Writer
	buf []byte
}

// NewStreamWriter creates a writer on w
func NewStreamWriter(w io.Writer) *StreamWriter {
	return &StreamWriter{w: w, buf: make([]byte, 0, 2*MaxFrameSize+2)}
}

// Write encodes and writes one event
func (s *StreamWriter) Write(ev vpc3.Event) error {
	payload, err := MarshalEvent(ev)
	if err != nil {
		return err
	}
	s.buf, err = AppendFrame(s.buf[:0], payload)
	if err != nil {
		return err
	}
	_, err = s.w.Write(s.buf)
	return err
}

// Copy writes every event of src until io.EOF and returns the count
func (s *StreamWriter) Copy(src vpc3.EventSource) (int, error) {
	n := 0
	for {
		ev, err := src.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := s.Write(ev); err != nil {
			return n, err
		}
		n++
	}
}
