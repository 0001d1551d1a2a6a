package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/router/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for decline := 1; decline <= 10; decline++ {
		if got := c.Delay(decline); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", decline, got, 5*time.Second)
		}
	}
}

func TestExponential_DoublesEachDecline(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Hour)

	tests := []struct {
		decline int
		want    time.Duration
	}{
		{1, 1 * time.Second},  // 1 * 2^0
		{2, 2 * time.Second},  // 1 * 2^1
		{3, 4 * time.Second},  // 1 * 2^2
		{4, 8 * time.Second},  // 1 * 2^3
		{5, 16 * time.Second}, // 1 * 2^4
	}
	for _, tt := range tests {
		if got := e.Delay(tt.decline); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.decline, got, tt.want)
		}
	}
}

func TestExponential_CapsAtMax(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	if got := e.Delay(10); got != 10*time.Second {
		t.Errorf("Delay(10) = %v, want %v (capped at Max)", got, 10*time.Second)
	}
}

func TestExponentialWithJitter_StaysInRange(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, time.Minute)

	for decline := 1; decline <= 8; decline++ {
		for range 50 {
			got := e.Delay(decline)
			if got < 0 || got > time.Minute {
				t.Fatalf("Delay(%d) = %v, outside [0, 1m]", decline, got)
			}
		}
	}
}

func TestDefaultStrategy(t *testing.T) {
	s := backoff.DefaultStrategy()

	if got := s.Delay(1); got != 10*time.Second {
		t.Errorf("Delay(1) = %v, want 10s", got)
	}
	if got := s.Delay(20); got != 5*time.Minute {
		t.Errorf("Delay(20) = %v, want 5m cap", got)
	}
}
