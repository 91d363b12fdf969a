// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import (
	"fmt"
	"time"
)

// Limit is an optional upper bound on a duration. The zero value is disabled.
type Limit struct {
	Max     time.Duration
	Enabled bool
}

// MaxDuration returns an enabled limit
func MaxDuration(d time.Duration) Limit {
	return Limit{Max: d, Enabled: true}
}

// Exceeded reports whether d violates the limit. Equal to the bound is allowed.
func (l Limit) Exceeded(d time.Duration) bool {
	return l.Enabled && d > l.Max
}

// String returns the bound or "off"
func (l Limit) String() string {
	if !l.Enabled {
		return "off"
	}
	return l.Max.String()
}

// TimingThresholds are the VPC3 SPI timing limits to check
type TimingThresholds struct {
	CSToFirstByte Limit // tCSA_B
	ByteToByte    Limit // tB_B
	LastByteToCS  Limit // tB_CSIA
}

// Any reports whether at least one check is enabled
func (t TimingThresholds) Any() bool {
	return t.CSToFirstByte.Enabled || t.ByteToByte.Enabled || t.LastByteToCS.Enabled
}

// Validate checks that enabled limits are not negative
func (t TimingThresholds) Validate() error {
	for _, l := range []struct {
		name  string
		limit Limit
	}{
		{"cs_to_first_byte", t.CSToFirstByte},
		{"byte_to_byte", t.ByteToByte},
		{"last_byte_to_cs", t.LastByteToCS},
	} {
		if l.limit.Enabled && l.limit.Max < 0 {
			return fmt.Errorf("%s: negative limit %v", l.name, l.limit.Max)
		}
	}
	return nil
}

// ViolationKind identifies which timing window was exceeded
type ViolationKind int

const (
	ViolationCSToFirstByte ViolationKind = iota
	ViolationByteToByte
	ViolationLastByteToCS
)

// String returns the violation kind name
func (k ViolationKind) String() string {
	switch k {
	case ViolationCSToFirstByte:
		return "CS to first byte"
	case ViolationByteToByte:
		return "byte to byte"
	case ViolationLastByteToCS:
		return "last byte to CS"
	default:
		return fmt.Sprintf("ViolationKind(%d)", int(k))
	}
}

// Violation is a measured interval that exceeded its limit
type Violation struct {
	Kind      ViolationKind
	Measured  time.Duration
	Threshold time.Duration

	// Pair is the index of the earlier byte for ByteToByte, -1 otherwise
	Pair int
	// Span is the measured interval on the capture timeline
	Span Span
}

// String formats the violation like "byte to byte: 5ns > 4ns"
func (v Violation) String() string {
	return fmt.Sprintf("%s: %v > %v", v.Kind, v.Measured, v.Threshold)
}

// ValidateTiming checks a decoded frame against the thresholds.
// Returns the violations in bus order (empty if the frame is within limits).
func ValidateTiming(f *DecodedFrame, t TimingThresholds) []Violation {
	violations := []Violation{}
	if f == nil || len(f.Bytes) == 0 {
		return violations
	}

	first := f.Bytes[0]
	if span := (Span{Start: f.CSAssert, End: first.Start}); t.CSToFirstByte.Exceeded(span.Duration()) {
		violations = append(violations, Violation{
			Kind:      ViolationCSToFirstByte,
			Measured:  span.Duration(),
			Threshold: t.CSToFirstByte.Max,
			Pair:      -1,
			Span:      span,
		})
	}

	if t.ByteToByte.Enabled {
		for i := 1; i < len(f.Bytes); i++ {
			span := Span{Start: f.Bytes[i-1].End, End: f.Bytes[i].Start}
			if t.ByteToByte.Exceeded(span.Duration()) {
				violations = append(violations, Violation{
					Kind:      ViolationByteToByte,
					Measured:  span.Duration(),
					Threshold: t.ByteToByte.Max,
					Pair:      i - 1,
					Span:      span,
				})
			}
		}
	}

	last := f.Bytes[len(f.Bytes)-1]
	if span := (Span{Start: last.End, End: f.CSDeassert}); t.LastByteToCS.Exceeded(span.Duration()) {
		violations = append(violations, Violation{
			Kind:      ViolationLastByteToCS,
			Measured:  span.Duration(),
			Threshold: t.LastByteToCS.Max,
			Pair:      -1,
			Span:      span,
		})
	}

	return violations
}
