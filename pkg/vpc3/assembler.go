// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import "time"

// Assembler implements the chip-select framing state machine
type Assembler struct {
	state    int
	csAssert time.Duration
	buffer   []ByteSample
	stray    uint64 // events seen outside a cycle
}

// NewAssembler creates a new frame assembler in the idle state
func NewAssembler() *Assembler {
	return &Assembler{state: stateIdle}
}

// Reset drops any partially assembled cycle and returns to idle
func (a *Assembler) Reset() {
	a.state = stateIdle
	a.csAssert = 0
	a.buffer = nil
}

// Receiving reports whether a chip-select cycle is open
func (a *Assembler) Receiving() bool {
	return a.state == stateReceiving
}

// Pending returns the number of bytes buffered in the open cycle
func (a *Assembler) Pending() int {
	return len(a.buffer)
}

// Stray returns the number of byte and deassert events ignored while idle
func (a *Assembler) Stray() uint64 {
	return a.stray
}

// start opens a new cycle at the given assert time
func (a *Assembler) start(at time.Duration) {
	a.state = stateReceiving
	a.csAssert = at
	a.buffer = make([]ByteSample, 0, initialFrameCapacity)
}

// abort closes the open cycle with a malformed-frame diagnostic
func (a *Assembler) abort(reason string, at time.Duration) error {
	err := malformed(reason, a.csAssert, at, len(a.buffer))
	a.Reset()
	return err
}

// Feed processes a single event through the state machine.
// Returns a completed frame when a chip-select cycle closes, or nil otherwise.
// Returns a malformed-frame error when a cycle has to be dropped; assembly
// continues with the next event in either case.
func (a *Assembler) Feed(ev Event) (*CandidateFrame, error) {
	switch ev.Kind {
	case EventAssert:
		if a.state == stateReceiving {
			// No deassert seen: drop the open cycle and restart from this assert
			err := malformed("chip-select asserted twice without deassert", a.csAssert, ev.Start, len(a.buffer))
			a.start(ev.Start)
			return nil, err
		}
		a.start(ev.Start)
		return nil, nil

	case EventByte:
		if a.state != stateReceiving {
			a.stray++
			return nil, nil
		}
		if ev.End < ev.Start {
			return nil, a.abort("byte ends before it starts", ev.Start)
		}
		if ev.Start < a.csAssert {
			return nil, a.abort("byte starts before chip-select assert", ev.Start)
		}
		if n := len(a.buffer); n > 0 && ev.Start < a.buffer[n-1].End {
			return nil, a.abort("byte starts before previous byte ended", ev.Start)
		}
		a.buffer = append(a.buffer, ByteSample{
			Start:   ev.Start,
			End:     ev.End,
			MOSI:    ev.Value,
			MISO:    ev.MISO,
			HasMISO: ev.HasMISO,
		})
		return nil, nil

	case EventDeassert:
		if a.state != stateReceiving {
			a.stray++
			return nil, nil
		}
		if len(a.buffer) == 0 {
			return nil, a.abort("no bytes between chip-select edges", ev.Start)
		}
		if last := a.buffer[len(a.buffer)-1]; ev.Start < last.End {
			return nil, a.abort("chip-select deasserted before last byte ended", ev.Start)
		}
		frame := &CandidateFrame{
			CSAssert:   a.csAssert,
			CSDeassert: ev.Start,
			Bytes:      a.buffer,
		}
		// The buffer now belongs to the frame
		a.Reset()
		return frame, nil

	default:
		return nil, nil
	}
}
