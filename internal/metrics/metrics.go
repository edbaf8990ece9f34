// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "auctiond"

var (
	// Bids counts bid submissions by outcome (accepted or a rejection reason).
	Bids = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bids_total",
		Help:      "Bid submissions by outcome.",
	}, []string{"outcome"})

	// Coordinators is the number of live auction coordinators.
	Coordinators = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "coordinators",
		Help:      "Live auction coordinators.",
	})

	// Transitions counts status transitions by target status.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_transitions_total",
		Help:      "Auction status transitions.",
	}, []string{"status"})

	// StoreWrites observes durable write latency.
	StoreWrites = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_write_seconds",
		Help:      "Latency of auction record writes.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})

	// Rooms is the number of open rooms.
	Rooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms",
		Help:      "Open auction rooms.",
	})

	// Members is the number of joined connections across all rooms.
	Members = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "room_members",
		Help:      "Connections joined to auction rooms.",
	})

	// Evictions counts members dropped because their outbox was full.
	Evictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "room_evictions_total",
		Help:      "Slow connections evicted from rooms.",
	})
)
