package util

import (
	"testing"
	"time"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		done, total int
		want        int32
	}{
		{0, 0, 0},
		{0, 10, 0},
		{5, 10, 50},
		{10, 10, 100},
		{12, 10, 100},
	}
	for _, tc := range tests {
		if got := percentage(tc.done, tc.total); got != tc.want {
			t.Errorf("percentage(%d, %d) = %d, want %d", tc.done, tc.total, got, tc.want)
		}
	}
}

func TestRemaining(t *testing.T) {
	if got := remaining(0, 10, time.Second); got != 0 {
		t.Fatalf("expected 0 before first item, got %v", got)
	}
	if got := remaining(10, 10, time.Second); got != 0 {
		t.Fatalf("expected 0 when done, got %v", got)
	}
	if got := remaining(2, 10, 4*time.Second); got != 16*time.Second {
		t.Fatalf("expected 16s, got %v", got)
	}
}

func TestProgressStep(t *testing.T) {
	p := NewProgress(4)
	p.Step()
	if got := p.Step(); got != 2 {
		t.Fatalf("expected 2 completed, got %d", got)
	}
	if got := p.Percentage(); got != 50 {
		t.Fatalf("expected 50%%, got %d", got)
	}
}
