// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capture

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Thermoquad/vpc3scope/pkg/vpc3"
)

// Saleae SPI analyzer row types
const (
	rowEnable  = "enable"
	rowResult  = "result"
	rowDisable = "disable"
)

// CSVSource reads a Saleae Logic 2 SPI analyzer table export.
//
// Columns are located by header name: type, start_time and duration in
// seconds, and mosi/miso as 0x-prefixed hex. A missing miso column is allowed.
type CSVSource struct {
	r    *csv.Reader
	line int

	colType, colStart, colDuration, colMOSI, colMISO int

	// Skipped counts rows of other types (errors, unrelated analyzers)
	Skipped int
}

// NewCSVSource reads the header row and prepares the column mapping
func NewCSVSource(r io.Reader) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	s := &CSVSource{r: cr, line: 1, colMISO: -1}
	cols := map[string]*int{
		"type":       &s.colType,
		"start_time": &s.colStart,
		"duration":   &s.colDuration,
		"mosi":       &s.colMOSI,
	}
	for _, p := range cols {
		*p = -1
	}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if p, ok := cols[name]; ok {
			*p = i
		} else if name == "miso" {
			s.colMISO = i
		}
	}
	for name, p := range cols {
		if *p < 0 {
			return nil, fmt.Errorf("CSV header missing %q column", name)
		}
	}
	return s, nil
}

// Next returns the next bus event or io.EOF
func (s *CSVSource) Next() (vpc3.Event, error) {
	for {
		rec, err := s.r.Read()
		if err == io.EOF {
			return vpc3.Event{}, io.EOF
		}
		s.line++
		if err != nil {
			return vpc3.Event{}, fmt.Errorf("line %d: %w", s.line, err)
		}

		kind := strings.ToLower(field(rec, s.colType))
		switch kind {
		case rowEnable, rowDisable, rowResult:
		default:
			s.Skipped++
			continue
		}

		start, err := parseSeconds(field(rec, s.colStart))
		if err != nil {
			return vpc3.Event{}, fmt.Errorf("line %d: start_time: %w", s.line, err)
		}

		switch kind {
		case rowEnable:
			return vpc3.ChipSelectAssert(start), nil
		case rowDisable:
			return vpc3.ChipSelectDeassert(start), nil
		}

		dur, err := parseSeconds(field(rec, s.colDuration))
		if err != nil {
			return vpc3.Event{}, fmt.Errorf("line %d: duration: %w", s.line, err)
		}
		mosi, err := parseHexByte(field(rec, s.colMOSI))
		if err != nil {
			return vpc3.Event{}, fmt.Errorf("line %d: mosi: %w", s.line, err)
		}
		if raw := field(rec, s.colMISO); raw != "" {
			miso, err := parseHexByte(raw)
			if err != nil {
				return vpc3.Event{}, fmt.Errorf("line %d: miso: %w", s.line, err)
			}
			return vpc3.ByteExchange(mosi, miso, start, start+dur), nil
		}
		return vpc3.ByteTransfer(mosi, start, start+dur), nil
	}
}

// field returns column i trimmed, or "" when absent
func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// parseSeconds converts a seconds value to a duration rounded to the nanosecond
func parseSeconds(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty value")
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0, fmt.Errorf("invalid value %q", raw)
	}
	return time.Duration(math.Round(sec * 1e9)), nil
}

// parseHexByte parses 0x-prefixed hex, or decimal without a prefix
func parseHexByte(raw string) (byte, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty value")
	}
	v, err := strconv.ParseUint(raw, 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}
