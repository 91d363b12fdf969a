// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

// MarshalEvent encodes an event as the CBOR array [kind, start_ns, end_ns, mosi, miso|null]
func MarshalEvent(ev vpc3.Event) ([]byte, error) {
	var miso interface{}
	if ev.HasMISO {
		miso = uint64(ev.MISO)
	}
	msg := []interface{}{
		uint64(ev.Kind),
		int64(ev.Start),
		int64(ev.End),
		uint64(ev.Value),
		miso,
	}
	return cbor.Marshal(msg)
}

// ParseEvent decodes a CBOR event payload
func ParseEvent(data []byte) (vpc3.Event, error) {
	if len(data) == 0 {
		return vpc3.Event{}, fmt.Errorf("empty CBOR payload")
	}

	var msg []interface{}
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return vpc3.Event{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	if len(msg) != 5 {
		return vpc3.Event{}, fmt.Errorf("expected 5-element array, got %d elements", len(msg))
	}

	kind, err := uintField(msg[0], "kind", uint64(vpc3.EventDeassert))
	if err != nil {
		return vpc3.Event{}, err
	}
	start, err := intField(msg[1], "start")
	if err != nil {
		return vpc3.Event{}, err
	}
	end, err := intField(msg[2], "end")
	if err != nil {
		return vpc3.Event{}, err
	}
	mosi, err := uintField(msg[3], "mosi", 0xFF)
	if err != nil {
		return vpc3.Event{}, err
	}

	ev := vpc3.Event{
		Kind:  vpc3.EventKind(kind),
		Start: time.Duration(start),
		End:   time.Duration(end),
		Value: byte(mosi),
	}
	if msg[4] != nil {
		miso, err := uintField(msg[4], "miso", 0xFF)
		if err != nil {
			return vpc3.Event{}, err
		}
		ev.MISO = byte(miso)
		ev.HasMISO = true
	}
	return ev, nil
}

func uintField(v interface{}, name string, max uint64) (uint64, error) {
	n, ok := v.(uint64)
	if !ok {
		return 0, fmt.Errorf("expected uint for %s, got %T", name, v)
	}
	if n > max {
		return 0, fmt.Errorf("%s out of range: %d", name, n)
	}
	return n, nil
}

func intField(v interface{}, name string) (int64, error) {
	switch n := v.(type) {
	case uint64:
		if n > 1<<63-1 {
			return 0, fmt.Errorf("%s out of range: %d", name, n)
		}
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, fmt.Errorf("expected integer for %s, got %T", name, v)
	}
}
