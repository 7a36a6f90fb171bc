package worker

import (
	"sync"
	"time"
)

// Stats is a snapshot of the run statistics kept by the Governor
type Stats struct {
	SentThisHour      int       `json:"sent_this_hour"`
	WindowStart       time.Time `json:"window_start"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	ErrorRate         float64   `json:"error_rate"`
	LastSend          time.Time `json:"last_send,omitzero"`
}

// Governor enforces the hourly send cap and the error-rate circuit breaker
type Governor struct {
	clock        Clock
	maxErrorRate float64
	minSamples   int

	mu                sync.Mutex
	sentThisHour      int
	windowStart       time.Time
	consecutiveErrors int
	errorRate         float64
	lastSend          time.Time
}

// NewGovernor creates a governor that trips when the failure percentage
// exceeds maxErrorRate once at least minSamples attempts were made
func NewGovernor(clock Clock, maxErrorRate float64, minSamples int) *Governor {
	return &Governor{
		clock:        clock,
		maxErrorRate: maxErrorRate,
		minSamples:   minSamples,
		windowStart:  clock.Now(),
	}
}

// CanSend rolls the hourly window over when it is older than an hour and
// reports whether another message fits under hourlyCap
func (g *Governor) CanSend(hourlyCap int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	if now.Sub(g.windowStart) > time.Hour {
		g.sentThisHour = 0
		g.windowStart = now
	}

	return g.sentThisHour < hourlyCap
}

// RecordSuccess counts a delivered message and clears the error streak
func (g *Governor) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sentThisHour++
	g.consecutiveErrors = 0
	g.lastSend = g.clock.Now()
}

// RecordFailure extends the error streak
func (g *Governor) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.consecutiveErrors++
}

// CheckErrorRateCritical reports whether failed/attempted is above the
// configured ceiling. Below the minimum sample size it never trips.
func (g *Governor) CheckErrorRateCritical(attempted, failed int) bool {
	if attempted <= 0 || attempted < g.minSamples {
		return false
	}

	rate := float64(failed) / float64(attempted) * 100

	g.mu.Lock()
	g.errorRate = rate
	g.mu.Unlock()

	return rate > g.maxErrorRate
}

// Reset starts a fresh window and clears every counter
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sentThisHour = 0
	g.windowStart = g.clock.Now()
	g.consecutiveErrors = 0
	g.errorRate = 0
	g.lastSend = time.Time{}
}

// Stats returns a snapshot of the current statistics
func (g *Governor) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	return Stats{
		SentThisHour:      g.sentThisHour,
		WindowStart:       g.windowStart,
		ConsecutiveErrors: g.consecutiveErrors,
		ErrorRate:         g.errorRate,
		LastSend:          g.lastSend,
	}
}
