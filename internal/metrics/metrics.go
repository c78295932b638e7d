package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tradescope"

// Metrics holds the monitor's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reconnects        prometheus.Counter
	droppedFrames     prometheus.Counter
	pushes            *prometheus.CounterVec
	receiptsRequested prometheus.Counter
	receiptsProcessed prometheus.Counter
	trades            *prometheus.CounterVec
	metadataLookups   *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	headBlock         prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "WebSocket sessions that ended and were scheduled for reconnect.",
		}),
		droppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_frames_total",
			Help:      "Inbound frames dropped as malformed or unmatched.",
		}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_total",
			Help:      "Subscription pushes by filter.",
		}, []string{"filter"}),
		receiptsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_requested_total",
			Help:      "Receipt fetches issued.",
		}),
		receiptsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receipts_processed_total",
			Help:      "Receipts aggregated.",
		}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trade records emitted by action.",
		}, []string{"action"}),
		metadataLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_lookups_total",
			Help:      "Token metadata lookups by outcome.",
		}, []string{"outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by outcome.",
		}, []string{"outcome"}),
		headBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "head_block",
			Help:      "Latest block number seen on the newHeads subscription.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.reconnects,
			m.droppedFrames,
			m.pushes,
			m.receiptsRequested,
			m.receiptsProcessed,
			m.trades,
			m.metadataLookups,
			m.notifications,
			m.headBlock,
		)
	}
	return m
}

// Handler serves the collectors registered with g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) DroppedFrame() {
	if m == nil {
		return
	}
	m.droppedFrames.Inc()
}

func (m *Metrics) Push(filter string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(filter).Inc()
}

func (m *Metrics) ReceiptRequested() {
	if m == nil {
		return
	}
	m.receiptsRequested.Inc()
}

func (m *Metrics) ReceiptProcessed() {
	if m == nil {
		return
	}
	m.receiptsProcessed.Inc()
}

func (m *Metrics) Trade(action string) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(action).Inc()
}

func (m *Metrics) MetadataLookup(outcome string) {
	if m == nil {
		return
	}
	m.metadataLookups.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HeadBlock(number uint64) {
	if m == nil {
		return
	}
	m.headBlock.Set(float64(number))
}
