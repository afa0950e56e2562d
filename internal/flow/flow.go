// Package flow holds the small state types shared by the purchase steps:
// the tri-state step outcome and the per-product session.
package flow

import (
	"sync"

	"github.com/google/uuid"
)

// Outcome is the result of one best-effort step.
type Outcome int

const (
	Skipped Outcome = iota // nothing applicable was on the page
	Done
	Failed // applicable but the action did not go through
)

func (o Outcome) String() string {
	switch o {
	case Done:
		return "done"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Step is a named best-effort action.
type Step struct {
	Name string
	Run  func() Outcome
}

// StepResult pairs a step name with what it returned.
type StepResult struct {
	Name    string
	Outcome Outcome
}

// Chain runs every step in order regardless of earlier outcomes. stop is
// consulted before each step; a true value ends the chain early.
func Chain(stop func() bool, steps ...Step) []StepResult {
	results := make([]StepResult, 0, len(steps))
	for _, s := range steps {
		if stop != nil && stop() {
			break
		}
		results = append(results, StepResult{Name: s.Name, Outcome: s.Run()})
	}
	return results
}

// FirstDone tries alternatives in order and stops at the first Done. It
// returns Done, or Failed if any alternative failed, otherwise Skipped.
func FirstDone(alts ...func() Outcome) Outcome {
	result := Skipped
	for _, alt := range alts {
		switch alt() {
		case Done:
			return Done
		case Failed:
			result = Failed
		}
	}
	return result
}

// Phase is how far a session has progressed. Phases only move forward.
type Phase int

const (
	Scanning Phase = iota
	Matched
	AddedToCart
	CheckoutInProgress
	Submitted
	Confirmed
)

var phaseNames = [...]string{"scanning", "matched", "added_to_cart", "checkout_in_progress", "submitted", "confirmed"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Session is the state of one monitored product for the life of a run.
type Session struct {
	ID string

	mu        sync.Mutex
	phase     Phase
	initiated bool
}

func NewSession() *Session {
	return &Session{ID: uuid.NewString()}
}

// Advance moves to p if it is later than the current phase and reports whether it moved.
func (s *Session) Advance(p Phase) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p <= s.phase {
		return false
	}
	s.phase = p
	return true
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// MarkInitiated records that a purchase CTA was clicked. It cannot be undone.
func (s *Session) MarkInitiated() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initiated = true
	if s.phase < AddedToCart {
		s.phase = AddedToCart
	}
}

func (s *Session) Initiated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initiated
}
