package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for scheduling flows.
type BookingMetrics struct {
	transitionsTotal  *prometheus.CounterVec
	idempotentReplays prometheus.Counter
	ledgerDegraded    prometheus.Counter
	slotQueriesTotal  *prometheus.CounterVec
	availabilityFetch prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "booking",
			Name:      "transitions_total",
			Help:      "Booking lifecycle transitions by kind and outcome",
		}, []string{"kind", "outcome"}),
		idempotentReplays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "booking",
			Name:      "idempotent_replays_total",
			Help:      "Create requests collapsed onto an existing booking",
		}),
		ledgerDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "booking",
			Name:      "ledger_degraded_total",
			Help:      "Ledger appends that failed after a committed booking",
		}),
		slotQueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pharmacy",
			Subsystem: "availability",
			Name:      "slot_queries_total",
			Help:      "Availability queries by result reason",
		}, []string{"reason"}),
		availabilityFetch: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pharmacy",
			Subsystem: "availability",
			Name:      "busy_fetch_seconds",
			Help:      "Latency of busy-interval fetches from the calendar",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.idempotentReplays, m.ledgerDegraded, m.slotQueriesTotal, m.availabilityFetch)
	return m
}

func (m *BookingMetrics) ObserveTransition(kind, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *BookingMetrics) ObserveIdempotentReplay() {
	if m == nil {
		return
	}
	m.idempotentReplays.Inc()
}

func (m *BookingMetrics) ObserveLedgerDegraded() {
	if m == nil {
		return
	}
	m.ledgerDegraded.Inc()
}

func (m *BookingMetrics) ObserveSlotQuery(reason string) {
	if m == nil {
		return
	}
	m.slotQueriesTotal.WithLabelValues(reason).Inc()
}

func (m *BookingMetrics) ObserveBusyFetch(seconds float64) {
	if m == nil {
		return
	}
	m.availabilityFetch.Observe(seconds)
}
