package halcyon

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "halcyon"

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "events_total",
		Help:      "Total number of dispatch events received",
	}, []string{"identifier", "type"})

	gatewayLatency = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "gateway_latency_ms",
		Help:      "Gateway heartbeat round trip in milliseconds",
	}, []string{"identifier", "shard_id"})

	shardStage = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "shard_stage",
		Help:      "Current connection stage of each shard",
	}, []string{"identifier", "shard_id"})

	reconnectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "reconnects_total",
		Help:      "Total number of shard reconnections",
	}, []string{"identifier", "reconnect_type"})
)

// RecordDispatch counts one received dispatch event.
func RecordDispatch(identifier, eventType string) {
	eventsTotal.WithLabelValues(identifier, eventType).Inc()
}

// RecordGatewayLatency records the heartbeat round trip for a shard.
func RecordGatewayLatency(identifier string, shardID int32, latency time.Duration) {
	gatewayLatency.
		WithLabelValues(identifier, strconv.Itoa(int(shardID))).
		Set(float64(latency.Milliseconds()))
}

// UpdateShardStage records the connection stage of a shard.
func UpdateShardStage(identifier string, shardID int32, stage ConnectionStage) {
	shardStage.
		WithLabelValues(identifier, strconv.Itoa(int(shardID))).
		Set(float64(stage))
}

// RecordReconnect counts one shard reconnection by type.
func RecordReconnect(identifier string, reconnectType ReconnectType) {
	reconnectsTotal.WithLabelValues(identifier, reconnectType.String()).Inc()
}
