// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import (
	"fmt"
	"time"
)

// Statistics tracks decode counters and violation rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalCycles      uint64 // chip-select cycles closed or aborted
	DecodedFrames    uint64
	Commands         [CmdUnknown + 1]uint64 // indexed by CommandTag
	MalformedFrames  uint64
	IncompleteFrames uint64
	LengthAnomalies  uint64
	StrayEvents      uint64
	Violations       [ViolationLastByteToCS + 1]uint64 // indexed by ViolationKind
	ViolatingFrames  uint64
	Emitted          uint64
	Suppressed       uint64

	// CaptureSpan is the deassert time of the latest decoded frame
	CaptureSpan time.Duration

	// Rates (calculated)
	FrameRate     float64 // frames/sec
	ViolationRate float64 // violations/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the outcome of one chip-select cycle.
// frame is nil when the cycle was dropped as malformed.
func (s *Statistics) Update(frame *DecodedFrame, diag error, violations []Violation, decision Decision) {
	s.TotalCycles++
	s.LastUpdateTime = time.Now()

	if frame == nil {
		if IsMalformed(diag) {
			s.MalformedFrames++
		}
		return
	}

	s.DecodedFrames++
	if IsIncomplete(diag) {
		s.IncompleteFrames++
	}
	if frame.Trailing > 0 {
		s.LengthAnomalies++
	}
	if tag := frame.Tag(); int(tag) < len(s.Commands) {
		s.Commands[tag]++
	}
	if end := frame.Cycle().End; end > s.CaptureSpan {
		s.CaptureSpan = end
	}

	for _, v := range violations {
		if int(v.Kind) < len(s.Violations) {
			s.Violations[v.Kind]++
		}
	}
	if len(violations) > 0 {
		s.ViolatingFrames++
	}

	if decision.Emit {
		s.Emitted++
	} else {
		s.Suppressed++
	}
}

// TotalViolations returns the number of violations of all kinds
func (s *Statistics) TotalViolations() uint64 {
	var n uint64
	for _, c := range s.Violations {
		n += c
	}
	return n
}

// CalculateRates calculates frame and violation rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.DecodedFrames) / elapsed
		s.ViolationRate = float64(s.TotalViolations()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var violatingPercent float64
	if s.DecodedFrames > 0 {
		violatingPercent = float64(s.ViolatingFrames) * 100.0 / float64(s.DecodedFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds, capture %v) ===\n", elapsed.Seconds(), s.CaptureSpan)
	result += fmt.Sprintf("CS Cycles:       %8d\n", s.TotalCycles)
	result += fmt.Sprintf("Decoded Frames:  %8d\n", s.DecodedFrames)
	for _, tag := range []CommandTag{CmdReadByte, CmdReadArray, CmdWriteByte, CmdWriteArray, CmdUnknown} {
		if s.Commands[tag] > 0 {
			result += fmt.Sprintf("  %-14s %6d\n", tag.String()+":", s.Commands[tag])
		}
	}
	if s.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed:       %8d\n", s.MalformedFrames)
	}
	if s.IncompleteFrames > 0 {
		result += fmt.Sprintf("Incomplete:      %8d\n", s.IncompleteFrames)
	}
	if s.LengthAnomalies > 0 {
		result += fmt.Sprintf("Length Anomaly:  %8d\n", s.LengthAnomalies)
	}
	if s.StrayEvents > 0 {
		result += fmt.Sprintf("Stray Events:    %8d\n", s.StrayEvents)
	}
	if total := s.TotalViolations(); total > 0 {
		result += fmt.Sprintf("Violations:      %8d in %d frames (%.1f%%)\n", total, s.ViolatingFrames, violatingPercent)
		for _, kind := range []ViolationKind{ViolationCSToFirstByte, ViolationByteToByte, ViolationLastByteToCS} {
			if s.Violations[kind] > 0 {
				result += fmt.Sprintf("  %-17s %5d\n", kind.String()+":", s.Violations[kind])
			}
		}
	}
	result += fmt.Sprintf("Emitted:         %8d\n", s.Emitted)
	if s.Suppressed > 0 {
		result += fmt.Sprintf("Suppressed:      %8d\n", s.Suppressed)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Violation Rate:  %8.1f violations/sec\n", s.ViolationRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = Statistics{}
	now := time.Now()
	s.StartTime = now
	s.LastUpdateTime = now
}
