package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"prism/core/events"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured journal events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prism",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of journal events segmented by event type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
	})
	return eventRegistry
}

// RecordEvent increments the emitted counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(eventType)
	if normalized == "" {
		normalized = "unknown"
	}
	m.emitted.WithLabelValues(normalized).Inc()
}

// WatchJournal subscribes to the journal and counts every entry until the
// returned cancel function is invoked.
func WatchJournal(journal *events.Journal) func() {
	if journal == nil {
		return func() {}
	}
	entries, cancel := journal.Subscribe(64)
	go func() {
		for entry := range entries {
			Events().RecordEvent(entry.Type)
		}
	}()
	return cancel
}
