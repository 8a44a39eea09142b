// Package metrics exposes deposit registry counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is what the deposit registry and live feeds report to.
type Recorder interface {
	DepositCreated(appID string)
	DepositRejected(appID, reason string)
	PickupCompleted(appID string)
	PickupRejected(appID, reason string)
	Lookup(appID, result string)
	CodeCollision(appID string)
	OccupiedSlots(appID string, n int)
	SubscribersChanged(feed string, delta int)
}

// Collector is the Prometheus implementation of Recorder.
type Collector struct {
	depositsCreated  *prometheus.CounterVec
	depositsRejected *prometheus.CounterVec
	pickups          *prometheus.CounterVec
	pickupsRejected  *prometheus.CounterVec
	lookups          *prometheus.CounterVec
	codeCollisions   *prometheus.CounterVec
	occupiedSlots    *prometheus.GaugeVec
	subscribers      *prometheus.GaugeVec
}

// NewCollector creates the collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		depositsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nitip_deposits_created_total",
			Help: "Deposits registered into a slot.",
		}, []string{"app_id"}),
		depositsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nitip_deposits_rejected_total",
			Help: "Deposit attempts rejected, by reason.",
		}, []string{"app_id", "reason"}),
		pickups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nitip_pickups_total",
			Help: "Deposits closed out by pickup.",
		}, []string{"app_id"}),
		pickupsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nitip_pickups_rejected_total",
			Help: "Pickup attempts rejected, by reason.",
		}, []string{"app_id", "reason"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nitip_code_lookups_total",
			Help: "Pickup code lookups by result (active, collected, not_found).",
		}, []string{"app_id", "result"}),
		codeCollisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nitip_code_collisions_total",
			Help: "Generated pickup codes discarded because an active deposit held them.",
		}, []string{"app_id"}),
		occupiedSlots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nitip_occupied_slots",
			Help: "Slots currently holding an active deposit.",
		}, []string{"app_id"}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nitip_feed_subscribers",
			Help: "Open live-feed subscriptions.",
		}, []string{"feed"}),
	}

	reg.MustRegister(
		c.depositsCreated,
		c.depositsRejected,
		c.pickups,
		c.pickupsRejected,
		c.lookups,
		c.codeCollisions,
		c.occupiedSlots,
		c.subscribers,
	)
	return c
}

func (c *Collector) DepositCreated(appID string) {
	c.depositsCreated.WithLabelValues(appID).Inc()
}

func (c *Collector) DepositRejected(appID, reason string) {
	c.depositsRejected.WithLabelValues(appID, reason).Inc()
}

func (c *Collector) PickupCompleted(appID string) {
	c.pickups.WithLabelValues(appID).Inc()
}

func (c *Collector) PickupRejected(appID, reason string) {
	c.pickupsRejected.WithLabelValues(appID, reason).Inc()
}

func (c *Collector) Lookup(appID, result string) {
	c.lookups.WithLabelValues(appID, result).Inc()
}

func (c *Collector) CodeCollision(appID string) {
	c.codeCollisions.WithLabelValues(appID).Inc()
}

func (c *Collector) OccupiedSlots(appID string, n int) {
	c.occupiedSlots.WithLabelValues(appID).Set(float64(n))
}

func (c *Collector) SubscribersChanged(feed string, delta int) {
	c.subscribers.WithLabelValues(feed).Add(float64(delta))
}

// Nop discards everything; used when metrics are not wired (tests, tools).
type Nop struct{}

func (Nop) DepositCreated(string)          {}
func (Nop) DepositRejected(string, string) {}
func (Nop) PickupCompleted(string)         {}
func (Nop) PickupRejected(string, string)  {}
func (Nop) Lookup(string, string)          {}
func (Nop) CodeCollision(string)           {}
func (Nop) OccupiedSlots(string, int)      {}
func (Nop) SubscribersChanged(string, int) {}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
