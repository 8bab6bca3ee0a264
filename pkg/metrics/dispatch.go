package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records the lifecycle throughput of the dispatcher.
type DispatchMetrics struct {
	offers       prometheus.Counter
	assignments  prometheus.Counter
	timeouts     prometheus.Counter
	rejections   prometheus.Counter
	deliveries   prometheus.Counter
	timeToAssign prometheus.Histogram
}

// NewDispatchMetrics registers the dispatcher metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	offers := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "offers_broadcast_total",
		Help: "Delivery offers broadcast to the courier pool.",
	})
	assignments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_assigned_total",
		Help: "Orders assigned to a courier.",
	})
	timeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_timed_out_total",
		Help: "Orders cancelled because no courier claimed them in time.",
	})
	rejections := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Orders refused at moderation.",
	})
	deliveries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_delivered_total",
		Help: "Orders delivered by their assigned courier.",
	})
	timeToAssign := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "offer_to_assignment_seconds",
		Help:    "Time between broadcasting an offer and assigning a courier.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(offers, assignments, timeouts, rejections, deliveries, timeToAssign)
	return &DispatchMetrics{
		offers:       offers,
		assignments:  assignments,
		timeouts:     timeouts,
		rejections:   rejections,
		deliveries:   deliveries,
		timeToAssign: timeToAssign,
	}
}

// IncOffers counts one broadcast offer.
func (m *DispatchMetrics) IncOffers() {
	if m == nil || m.offers == nil {
		return
	}
	m.offers.Inc()
}

// IncAssignments counts one confirmed assignment.
func (m *DispatchMetrics) IncAssignments() {
	if m == nil || m.assignments == nil {
		return
	}
	m.assignments.Inc()
}

// IncTimeouts counts one offer that expired unclaimed.
func (m *DispatchMetrics) IncTimeouts() {
	if m == nil || m.timeouts == nil {
		return
	}
	m.timeouts.Inc()
}

// IncRejections counts one moderation refusal.
func (m *DispatchMetrics) IncRejections() {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.Inc()
}

// IncDeliveries counts one completed delivery.
func (m *DispatchMetrics) IncDeliveries() {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.Inc()
}

// ObserveTimeToAssign records how long an offer stayed open before
// assignment.
func (m *DispatchMetrics) ObserveTimeToAssign(d time.Duration) {
	if m == nil || m.timeToAssign == nil {
		return
	}
	m.timeToAssign.Observe(d.Seconds())
}
