// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import (
	"errors"
	"fmt"
	"time"
)

// Diagnostic sentinels. Neither is fatal to a session.
var (
	ErrMalformedFrame  = errors.New("malformed frame")
	ErrIncompleteFrame = errors.New("incomplete frame")
)

// FrameError describes why a chip-select cycle could not be decoded normally
type FrameError struct {
	// Kind is ErrMalformedFrame or ErrIncompleteFrame
	Kind   error
	Reason string

	Opcode     byte
	CSAssert   time.Duration
	CSDeassert time.Duration
	// Len is the number of bytes seen in the cycle
	Len int
}

// Error implements the error interface
func (e *FrameError) Error() string {
	if e.Kind == ErrIncompleteFrame {
		return fmt.Sprintf("%v: %s (opcode 0x%02X, %d bytes, cs@%v)", e.Kind, e.Reason, e.Opcode, e.Len, e.CSAssert)
	}
	return fmt.Sprintf("%v: %s (%d bytes, cs@%v)", e.Kind, e.Reason, e.Len, e.CSAssert)
}

// Unwrap allows errors.Is against the sentinels
func (e *FrameError) Unwrap() error {
	return e.Kind
}

// IsMalformed reports whether err is a malformed-frame diagnostic
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedFrame)
}

// IsIncomplete reports whether err is an incomplete-frame diagnostic
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrIncompleteFrame)
}

func malformed(reason string, assert, deassert time.Duration, n int) *FrameError {
	return &FrameError{Kind: ErrMalformedFrame, Reason: reason, CSAssert: assert, CSDeassert: deassert, Len: n}
}
