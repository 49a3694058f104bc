// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ResponsesTotal counts ledger writes by response type and whether the
	// call set or cleared the user's response.
	ResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haojiu_event_responses_total",
		Help: "Attendance responses applied, by type and action",
	}, []string{"type", "action"})

	PointTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haojiu_treasure_point_transitions_total",
		Help: "Treasure point status transitions",
	}, []string{"from", "to"})

	FriendOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "haojiu_friend_ops_total",
		Help: "Friend relationship operations by kind and result",
	}, []string{"op", "result"})

	StoreTxRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haojiu_store_tx_retries_total",
		Help: "Transactions re-run after a conflicting commit",
	})

	LiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "haojiu_live_subscribers",
		Help: "Open live-query sockets",
	})

	LiveDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "haojiu_live_dropped_messages_total",
		Help: "Live messages dropped because a socket was too slow",
	})
)

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
