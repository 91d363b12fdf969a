// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"io"

	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

// SliceSource replays events held in memory
type SliceSource struct {
	events []vpc3.Event
	pos    int
}

// NewSliceSource creates a source over events
func NewSliceSource(events []vpc3.Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next returns the next event or io.EOF
func (s *SliceSource) Next() (vpc3.Event, error) {
	if s.pos >= len(s.events) {
		return vpc3.Event{}, io.EOF
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, nil
}

// Collect drains src into a slice
func Collect(src vpc3.EventSource) ([]vpc3.Event, error) {
	var events []vpc3.Event
	for {
		ev, err := src.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}
