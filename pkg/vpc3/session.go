// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package vpc3

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Config holds everything a decode session needs. It is read-only once the
// session starts; a new configuration needs a new session.
type Config struct {
	Decode DecodeOptions
	Timing TimingThresholds
	Filter FilterConfig
}

// Validate checks all parts of the configuration
func (c Config) Validate() error {
	if err := c.Decode.Validate(); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	return nil
}

// Option is a functional option for configuring a Session
type Option func(*Session)

// WithLogger sets the logger used for diagnostics
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.log = logger
	}
}

// WithStatistics shares a statistics tracker with the session
func WithStatistics(stats *Statistics) Option {
	return func(s *Session) {
		s.stats = stats
	}
}

// WithDiagnostics sets a callback for non-fatal diagnostics raised by Run
func WithDiagnostics(fn func(error)) Option {
	return func(s *Session) {
		s.onDiag = fn
	}
}

// Session decodes one stream of bus events
type Session struct {
	cfg    Config
	asm    *Assembler
	stats  *Statistics
	log    zerolog.Logger
	onDiag func(error)
}

// NewSession creates a decode session with the given configuration
func NewSession(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg: cfg,
		asm: NewAssembler(),
		log: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.stats == nil {
		s.stats = NewStatistics()
	}
	return s
}

// Config returns the session configuration
func (s *Session) Config() Config {
	return s.cfg
}

// Stats returns the session statistics
func (s *Session) Stats() *Statistics {
	return s.stats
}

// Feed processes a single event.
//
// Returns the emitted result when the event closes a chip-select cycle whose
// frame passes the filter, or nil otherwise. A non-nil error is a diagnostic
// (ErrMalformedFrame or ErrIncompleteFrame); an incomplete frame may still be
// emitted in its degraded Unknown form alongside the error.
func (s *Session) Feed(ev Event) (*Result, error) {
	stray := s.asm.Stray()
	candidate, err := s.asm.Feed(ev)
	if n := s.asm.Stray() - stray; n > 0 {
		s.stats.StrayEvents += n
		s.log.Trace().Stringer("event", ev.Kind).Dur("at", ev.Start).Msg("event outside chip-select cycle")
	}
	if err != nil {
		s.stats.Update(nil, err, nil, Suppress)
		s.log.Warn().Err(err).Msg("frame dropped")
		return nil, err
	}
	if candidate == nil {
		return nil, nil
	}
	return s.process(candidate)
}

// process decodes, checks and filters one completed cycle
func (s *Session) process(candidate *CandidateFrame) (*Result, error) {
	frame, diag := Decode(candidate, s.cfg.Decode)
	if frame == nil {
		s.stats.Update(nil, diag, nil, Suppress)
		s.log.Warn().Err(diag).Msg("frame dropped")
		return nil, diag
	}
	if diag != nil {
		s.log.Warn().Err(diag).Msg("incomplete frame")
	}
	if frame.Trailing > 0 {
		s.log.Debug().
			Str("command", frame.Tag().String()).
			Int("length", frame.Len()).
			Int("trailing", frame.Trailing).
			Dur("cs", frame.CSAssert).
			Dur("cycle", frame.Cycle().Duration()).
			Msg("length anomaly: trailing bytes ignored")
	}

	violations := ValidateTiming(frame, s.cfg.Timing)
	for _, v := range violations {
		s.log.Debug().
			Str("kind", v.Kind.String()).
			Dur("measured", v.Measured).
			Dur("threshold", v.Threshold).
			Dur("cs", frame.CSAssert).
			Msg("timing violation")
	}

	decision := Filter(frame, violations, s.cfg.Filter)
	s.stats.Update(frame, diag, violations, decision)
	if !decision.Emit {
		return nil, diag
	}

	result := NewResult(frame, violations, decision.Detail)
	return &result, diag
}

// Run drains src and passes every emitted result to emit.
//
// Returns nil when the source is exhausted, ctx.Err() when cancelled, or the
// source error otherwise. A partially assembled cycle is discarded on return.
// Diagnostics are logged and passed to the WithDiagnostics callback.
func (s *Session) Run(ctx context.Context, src EventSource, emit func(Result)) error {
	defer s.asm.Reset()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if s.asm.Receiving() {
					s.log.Debug().Int("bytes", s.asm.Pending()).Msg("source ended inside a chip-select cycle")
				}
				return nil
			}
			return fmt.Errorf("event source: %w", err)
		}

		result, diag := s.Feed(ev)
		if diag != nil && s.onDiag != nil {
			s.onDiag(diag)
		}
		if result != nil && emit != nil {
			emit(*result)
		}
	}
}
