package tracking

import (
	"fmt"
	"sync"
	"time"
)

const (
	// durationSampleCap bounds the rolling poll-duration buffer.
	durationSampleCap = 100

	// metricsWindow is the lookback for windowed error/notification counts.
	metricsWindow = time.Hour
)

// HealthStatus classifies the poller's recent behavior.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// PollingMetrics is a point-in-time view of poller activity.
type PollingMetrics struct {
	DocsTracked             int     `json:"docs_tracked"`
	SuccessRate             float64 `json:"success_rate"`
	ErrorsInLastHour        int     `json:"errors_in_last_hour"`
	NotificationsInLastHour int     `json:"notifications_in_last_hour"`
	AvgPollDurationMs       float64 `json:"avg_poll_duration_ms"`
}

// Health is the poller's coarse health classification.
type Health struct {
	Status HealthStatus `json:"status"`
	Reason string       `json:"reason"`
}

// metrics accumulates per-poll outcomes. All methods are safe for
// concurrent use; the poller's fan-out goroutines record into it directly.
type metrics struct {
	mu sync.Mutex

	durations []time.Duration
	durIdx    int

	successCount uint64
	failureCount uint64

	errorTimes        []time.Time
	notificationTimes []time.Time
}

func newMetrics() *metrics {
	return &metrics{}
}

func (m *metrics) recordSuccess(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.successCount++
	m.recordDurationLocked(d)
}

func (m *metrics) recordFailure(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failureCount++
	m.errorTimes = append(m.errorTimes, time.Now())
	m.pruneLocked()
	m.recordDurationLocked(d)
}

func (m *metrics) recordNotification() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notificationTimes = append(m.notificationTimes, time.Now())
	m.pruneLocked()
}

// recordDurationLocked keeps the last durationSampleCap samples as a ring.
func (m *metrics) recordDurationLocked(d time.Duration) {
	if len(m.durations) < durationSampleCap {
		m.durations = append(m.durations, d)
		return
	}
	m.durations[m.durIdx] = d
	m.durIdx = (m.durIdx + 1) % durationSampleCap
}

func (m *metrics) pruneLocked() {
	cutoff := time.Now().Add(-metricsWindow)
	m.errorTimes = pruneBefore(m.errorTimes, cutoff)
	m.notificationTimes = pruneBefore(m.notificationTimes, cutoff)
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(times) && times[idx].Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return times
	}
	return append(times[:0], times[idx:]...)
}

// snapshot builds a PollingMetrics view. docsTracked comes from the
// poller, which owns the registry.
func (m *metrics) snapshot(docsTracked int) PollingMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked()

	total := m.successCount + m.failureCount
	successRate := 1.0
	if total > 0 {
		successRate = float64(m.successCount) / float64(total)
	}

	var avgMs float64
	if len(m.durations) > 0 {
		var sum time.Duration
		for _, d := range m.durations {
			sum += d
		}
		avgMs = float64(sum.Milliseconds()) / float64(len(m.durations))
	}

	return PollingMetrics{
		DocsTracked:             docsTracked,
		SuccessRate:             successRate,
		ErrorsInLastHour:        len(m.errorTimes),
		NotificationsInLastHour: len(m.notificationTimes),
		AvgPollDurationMs:       avgMs,
	}
}

// health classifies the current metrics. Thresholds: degraded below 90%
// success (with documents tracked) or more than 5 errors in the last
// hour; unhealthy below 50% success.
func (m *metrics) health(docsTracked int) Health {
	snap := m.snapshot(docsTracked)

	switch {
	case docsTracked > 0 && snap.SuccessRate < 0.5:
		return Health{
			Status: StatusUnhealthy,
			Reason: fmt.Sprintf("success rate %.0f%% below 50%%", snap.SuccessRate*100),
		}
	case docsTracked > 0 && snap.SuccessRate < 0.9:
		return Health{
			Status: StatusDegraded,
			Reason: fmt.Sprintf("success rate %.0f%% below 90%%", snap.SuccessRate*100),
		}
	case snap.ErrorsInLastHour > 5:
		return Health{
			Status: StatusDegraded,
			Reason: fmt.Sprintf("%d errors in the last hour", snap.ErrorsInLastHour),
		}
	default:
		return Health{Status: StatusHealthy, Reason: "polling normally"}
	}
}
