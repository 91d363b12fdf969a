// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import "fmt"

// Deframer extracts link frame payloads from a byte stream, one byte at a time
type Deframer struct {
	state      int
	length     int
	body       []byte // length byte + payload, the CRC input
	crc        uint16
	escapeNext bool
}

// NewDeframer creates a deframer waiting for a START byte
func NewDeframer() *Deframer {
	return &Deframer{body: make([]byte, 0, MaxFrameSize)}
}

// Reset drops any partial frame
func (d *Deframer) Reset() {
	d.state = stateIdle
	d.length = 0
	d.body = d.body[:0]
	d.crc = 0
	d.escapeNext = false
}

// DecodeByte feeds one byte. It returns the payload when a frame completes,
// nil while a frame is in progress, and an error when a frame is rejected.
// The returned payload is only valid until the next call.
func (d *Deframer) DecodeByte(b byte) ([]byte, error) {
	if b == EscByte && !d.escapeNext {
		d.escapeNext = true
		return nil, nil
	}

	// Raw framing bytes are boundaries even after a dangling ESC
	raw := b
	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	switch raw {
	case StartByte:
		d.Reset()
		d.state = stateLength
		return nil, nil
	case EndByte:
		return d.finish()
	}

	switch d.state {
	case stateIdle:
		return nil, nil

	case stateLength:
		if b == 0 || int(b) > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", b, MaxPayloadSize)
		}
		d.length = int(b)
		d.body = append(d.body, b)
		d.state = statePayload
		return nil, nil

	case statePayload:
		d.body = append(d.body, b)
		if len(d.body)-1 >= d.length {
			d.state = stateCRC1
		}
		return nil, nil

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2
		return nil, nil

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd
		return nil, nil

	default:
		d.Reset()
		return nil, fmt.Errorf("byte 0x%02X after CRC, expected END", b)
	}
}

// finish validates a frame on END
func (d *Deframer) finish() ([]byte, error) {
	if d.state != stateEnd {
		state := d.state
		d.Reset()
		if state == stateIdle {
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected END byte in state %d", state)
	}
	if calc := CalculateCRC(d.body); calc != d.crc {
		d.Reset()
		return nil, fmt.Errorf("CRC mismatch: expected 0x%04X, got 0x%04X", calc, d.crc)
	}
	payload := d.body[1:]
	d.state = stateIdle
	d.escapeNext = false
	return payload, nil
}

// AppendFrame appends payload to dst as a complete link frame
func AppendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > MaxPayloadSize {
		return dst, fmt.Errorf("payload size %d out of range (1-%d)", len(payload), MaxPayloadSize)
	}
	body := make([]byte, 0, 1+len(payload))
	body = append(body, byte(len(payload)))
	body = append(body, payload...)
	crc := CalculateCRC(body)
	body = append(body, byte(crc>>8), byte(crc))

	dst = append(dst, StartByte)
	for _, b := range body {
		if b == StartByte || b == EndByte || b == EscByte {
			dst = append(dst, EscByte, b^EscXor)
		} else {
			dst = append(dst, b)
		}
	}
	return append(dst, EndByte), nil
}
