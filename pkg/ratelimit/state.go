// Package ratelimit implements broker request-budget tracking and gating.
// It monitors the X-RateLimit-Remaining and X-RateLimit-Reset headers and
// shares the observed state across client processes via Redis, so a fleet
// of workers honors one project-wide budget.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRemaining      = "anvil:rate_limit:remaining"
	RedisKeyResetTimestamp = "anvil:rate_limit:reset_timestamp"
	RedisKeyLastUpdate     = "anvil:rate_limit:last_update"
)

// Thresholds for rate limit decisions.
const (
	// ThresholdCritical blocks all requests when the remaining budget falls
	// below this value. The broker starts rejecting with 503 at zero.
	ThresholdCritical = 5

	// ThresholdWarning applies throttling when the remaining budget falls
	// below this value.
	ThresholdWarning = 20

	// ThresholdHealthy indicates normal operation. At or above this value
	// no restrictions apply.
	ThresholdHealthy = 50
)

// State represents the current project request-budget state.
// This state is shared across all client instances via Redis.
type State struct {
	// Remaining is the number of requests left in the current window.
	// Extracted from the X-RateLimit-Remaining header.
	Remaining int `json:"remaining"`

	// ResetAt is the timestamp when the budget window resets.
	// Calculated from the X-RateLimit-Reset header (seconds until reset).
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is the timestamp when this state was last updated.
	// Used to detect stale state.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy indicates whether the budget is in a healthy state.
	// True when Remaining >= ThresholdHealthy.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state data is older than the given duration.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *State) NeedsCriticalBlock() bool {
	return s.Remaining < ThresholdCritical
}

// NeedsThrottling returns true if requests should be throttled.
func (s *State) NeedsThrottling() bool {
	return s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the budget window resets.
// Returns 0 if the reset time has already passed.
func (s *State) TimeUntilReset() time.Duration {
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}

// UpdateHealth updates the IsHealthy field based on current Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
