package page

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Sleep did not return promptly on a cancelled context")
	}
}

func TestSleepZero(t *testing.T) {
	if err := Sleep(context.Background(), 0); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}

func TestSleepDuration(t *testing.T) {
	start := time.Now()
	if err := Sleep(context.Background(), 20*time.Millisecond); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Sleep returned after %v, expected at least 20ms", elapsed)
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{ErrStale, false},
		{ErrIntercepted, false},
		{ErrDriverLost, true},
		{fmt.Errorf("navigate: %w", ErrDriverLost), true},
		{context.Canceled, true},
		{errors.New("timeout"), false},
	}

	for _, test := range tests {
		if got := IsFatal(test.err); got != test.expected {
			t.Errorf("IsFatal(%v) = %v, expected %v", test.err, got, test.expected)
		}
	}
}
