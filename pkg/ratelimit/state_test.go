package ratelimit

import (
	"testing"
	"time"
)

func TestState_NeedsCriticalBlock(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		expected  bool
	}{
		{"well above critical", 100, false},
		{"at critical threshold", ThresholdCritical, false},
		{"below critical threshold", ThresholdCritical - 1, true},
		{"zero remaining", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{Remaining: tt.remaining}
			if got := s.NeedsCriticalBlock(); got != tt.expected {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_NeedsThrottling(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		expected  bool
	}{
		{"healthy", 100, false},
		{"at warning threshold", ThresholdWarning, false},
		{"below warning threshold", ThresholdWarning - 1, true},
		{"critical takes precedence", ThresholdCritical - 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{Remaining: tt.remaining}
			if got := s.NeedsThrottling(); got != tt.expected {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_UpdateHealth(t *testing.T) {
	s := &State{Remaining: ThresholdHealthy}
	s.UpdateHealth()
	if !s.IsHealthy {
		t.Error("Expected healthy at ThresholdHealthy")
	}

	s.Remaining = ThresholdHealthy - 1
	s.UpdateHealth()
	if s.IsHealthy {
		t.Error("Expected unhealthy below ThresholdHealthy")
	}
}

func TestState_IsStale(t *testing.T) {
	s := &State{LastUpdate: time.Now().Add(-2 * time.Minute)}

	if !s.IsStale(1 * time.Minute) {
		t.Error("Expected stale after 2 minutes with 1 minute max age")
	}
	if s.IsStale(5 * time.Minute) {
		t.Error("Expected fresh with 5 minute max age")
	}
}

func TestState_TimeUntilReset(t *testing.T) {
	s := &State{ResetAt: time.Now().Add(30 * time.Second)}

	d := s.TimeUntilReset()
	if d <= 25*time.Second || d > 30*time.Second {
		t.Errorf("TimeUntilReset() = %v, want ~30s", d)
	}

	s.ResetAt = time.Now().Add(-10 * time.Second)
	if d := s.TimeUntilReset(); d != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0 for past reset", d)
	}
}
