package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rejection reasons reported on the rejected messages counter.
const (
	ReasonRateLimited    = "rate_limited"
	ReasonTooLong        = "too_long"
	ReasonUnknownCommand = "unknown_command"
	ReasonInternal       = "internal"
)

// Metrics holds the Prometheus collectors for the relay. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	connections   prometheus.Gauge
	namedClients  prometheus.Gauge
	messages      *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	nameRejected  *prometheus.CounterVec
	writeFailures prometheus.Counter
}

// NewMetrics registers the relay collectors with reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "linechat"
	}
	factory := promauto.With(reg)

	return &Metrics{
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of live connections, named or not",
		}),
		namedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "named_clients",
			Help:      "Number of connections that have claimed a name",
		}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages formatted and fanned out, by kind",
		}, []string{"kind"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_messages_total",
			Help:      "Inbound lines answered with an error, by reason",
		}, []string{"reason"}),
		nameRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_names_total",
			Help:      "Name claims refused, by reason",
		}, []string{"reason"}),
		writeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Deliveries that failed and dropped the recipient",
		}),
	}
}

func (m *Metrics) connected() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

func (m *Metrics) disconnected(named bool) {
	if m == nil {
		return
	}
	m.connections.Dec()
	if named {
		m.namedClients.Dec()
	}
}

func (m *Metrics) named() {
	if m == nil {
		return
	}
	m.namedClients.Inc()
}

func (m *Metrics) message(kind Kind) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) rejectedMessage(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) rejectedName(err error) {
	if m == nil {
		return
	}
	m.nameRejected.WithLabelValues(nameRejectReason(err)).Inc()
}

func (m *Metrics) writeFailed() {
	if m == nil {
		return
	}
	m.writeFailures.Inc()
}

func nameRejectReason(err error) string {
	switch err {
	case ErrNameTooShort:
		return "too_short"
	case ErrNameTooLong:
		return "too_long"
	case ErrNameTaken:
		return "taken"
	default:
		return "other"
	}
}
