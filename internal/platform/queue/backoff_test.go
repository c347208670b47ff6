package queue

import (
	"testing"
	"time"
)

func TestBackoff_Exponential(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 5 * time.Minute}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{10, 512 * time.Second},
		{11, 5 * time.Minute},
		{50, 5 * time.Minute},
	}
	for _, tc := range cases {
		if got := b.Delay(tc.attempt); got != tc.want {
			t.Errorf("Delay(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoff_MonotonicNonDecreasing(t *testing.T) {
	b := Backoff{Base: 500 * time.Millisecond, Max: time.Minute}
	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := b.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %s < Delay(%d) = %s", attempt, d, attempt-1, prev)
		}
		prev = d
	}
}

func TestBackoff_CapRespected(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}
	for attempt := 1; attempt <= 30; attempt++ {
		if d := b.Delay(attempt); d > b.Max {
			t.Fatalf("Delay(%d) = %s exceeds cap %s", attempt, d, b.Max)
		}
	}
}
