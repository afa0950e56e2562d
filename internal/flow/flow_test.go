package flow

import (
	"testing"

	"github.com/google/uuid"
)

func TestChainRunsEveryStep(t *testing.T) {
	var ran []string
	step := func(name string, o Outcome) Step {
		return Step{Name: name, Run: func() Outcome {
			ran = append(ran, name)
			return o
		}}
	}

	results := Chain(nil,
		step("contact", Failed),
		step("shipping", Skipped),
		step("submit", Done),
	)

	if len(ran) != 3 {
		t.Fatalf("Expected 3 steps to run, got %v", ran)
	}
	if results[0].Outcome != Failed || results[2].Outcome != Done {
		t.Errorf("Unexpected results %+v", results)
	}
}

func TestChainStops(t *testing.T) {
	calls := 0
	stop := func() bool { return calls >= 1 }
	results := Chain(stop,
		Step{Name: "a", Run: func() Outcome { calls++; return Done }},
		Step{Name: "b", Run: func() Outcome { calls++; return Done }},
	)
	if len(results) != 1 {
		t.Errorf("Expected chain to stop after 1 step, got %d", len(results))
	}
}

func TestFirstDone(t *testing.T) {
	calls := 0
	alt := func(o Outcome) func() Outcome {
		return func() Outcome { calls++; return o }
	}

	tests := []struct {
		alts     []func() Outcome
		expected Outcome
		calls    int
	}{
		{[]func() Outcome{alt(Skipped), alt(Done), alt(Done)}, Done, 2},
		{[]func() Outcome{alt(Failed), alt(Skipped)}, Failed, 2},
		{[]func() Outcome{alt(Skipped)}, Skipped, 1},
		{nil, Skipped, 0},
	}
	for i, test := range tests {
		calls = 0
		if got := FirstDone(test.alts...); got != test.expected {
			t.Errorf("case %d: expected %v, got %v", i, test.expected, got)
		}
		if calls != test.calls {
			t.Errorf("case %d: expected %d calls, got %d", i, test.calls, calls)
		}
	}
}

func TestSessionPhaseOnlyMovesForward(t *testing.T) {
	s := NewSession()
	if _, err := uuid.Parse(s.ID); err != nil {
		t.Errorf("Expected uuid session id, got %q", s.ID)
	}
	if !s.Advance(CheckoutInProgress) {
		t.Error("Expected advance to checkout_in_progress")
	}
	if s.Advance(Matched) {
		t.Error("Advance backwards should be refused")
	}
	if s.Phase() != CheckoutInProgress {
		t.Errorf("Expected checkout_in_progress, got %v", s.Phase())
	}
}

func TestMarkInitiated(t *testing.T) {
	s := NewSession()
	if s.Initiated() {
		t.Fatal("New session should not be initiated")
	}
	s.MarkInitiated()
	if !s.Initiated() {
		t.Error("Expected initiated after MarkInitiated")
	}
	if s.Phase() != AddedToCart {
		t.Errorf("Expected added_to_cart, got %v", s.Phase())
	}

	s.Advance(Submitted)
	s.MarkInitiated()
	if s.Phase() != Submitted {
		t.Errorf("MarkInitiated must not move the phase back, got %v", s.Phase())
	}
}

func TestOutcomeString(t *testing.T) {
	tests := map[Outcome]string{Done: "done", Skipped: "skipped", Failed: "failed", Outcome(9): "unknown"}
	for o, expected := range tests {
		if o.String() != expected {
			t.Errorf("Expected %s, got %s", expected, o.String())
		}
	}
}
