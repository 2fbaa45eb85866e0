package service

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// RuntimeState couples the finalized ruleset with the two pieces of mutable
// shared state it needs at runtime: the condition circuit breaker and the
// per-level log-rate limiter. One instance is shared by every request
// handler; all mutable access is serialized through a single mutex.
type RuntimeState struct {
	rules *Ruleset

	mu           sync.Mutex
	failureCount int
	openedAt     time.Time
	logWindows   map[zapcore.Level]*logWindow

	now func() time.Time
}

type logWindow struct {
	second int64
	count  int
}

// NewRuntimeState wraps a finalized ruleset with fresh runtime state.
func NewRuntimeState(rules *Ruleset) *RuntimeState {
	return &RuntimeState{
		rules:      rules,
		logWindows: make(map[zapcore.Level]*logWindow),
		now:        time.Now,
	}
}

// Rules returns the immutable ruleset.
func (s *RuntimeState) Rules() *Ruleset {
	return s.rules
}

// RecordConditionFailure counts one condition failure and opens the circuit
// once the configured threshold is reached.
func (s *RuntimeState) RecordConditionFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failureCount++
	if s.failureCount >= s.rules.conditionFailureThreshold && s.openedAt.IsZero() {
		s.openedAt = s.now()
	}
}

// CircuitOpen reports whether the condition circuit is open. Once the
// cooldown has elapsed the query itself closes the circuit and resets the
// failure count; there is no half-open probe stage.
func (s *RuntimeState) CircuitOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.openedAt.IsZero() {
		return false
	}
	if s.now().After(s.openedAt.Add(s.rules.conditionCircuitCooldown)) {
		s.failureCount = 0
		s.openedAt = time.Time{}
		return false
	}
	return true
}

// ConditionFailures returns the current failure count.
func (s *RuntimeState) ConditionFailures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failureCount
}

// AllowLog admits up to log_rate_limit_per_second log emissions per severity
// level within the current wall-clock second. A limit of zero or below
// disables limiting. Decision and bookkeeping happen under one lock.
func (s *RuntimeState) AllowLog(level zapcore.Level) bool {
	limit := s.rules.logRateLimitPerSecond
	if limit <= 0 {
		return true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	second := s.now().Unix()
	window, ok := s.logWindows[level]
	if !ok || window.second != second {
		window = &logWindow{second: second}
		s.logWindows[level] = window
	}
	if window.count >= limit {
		return false
	}
	window.count++
	return true
}
