package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectedChargers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_connected_chargers",
		Help: "Number of charge points currently online",
	})

	ActiveChargingSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csms_active_charging_sessions",
		Help: "Number of active charging sessions",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_energy_delivered_kwh_total",
		Help: "Total energy delivered in kWh",
	})

	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_messages_total",
		Help: "Total OCPP messages by action and direction",
	}, []string{"action", "direction"})

	OCPPCallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csms_ocpp_call_errors_total",
		Help: "Total CALLERROR frames emitted by error code",
	}, []string{"code"})

	DispatchTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_dispatch_timeouts_total",
		Help: "Server-initiated calls that expired without a reply",
	})

	DedupHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_dedup_hits_total",
		Help: "Inbound calls answered from the reply cache",
	})

	InboundDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csms_inbound_dropped_total",
		Help: "Inbound frames dropped because a session inbox was full",
	})

	StoreLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "csms_store_latency_seconds",
		Help:    "Latency of store writes issued by session handlers",
		Buckets: prometheus.DefBuckets,
	})
)
