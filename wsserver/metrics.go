package wsserver

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// serverMetrics holds Prometheus metrics for the runtime. A nil
// *serverMetrics disables recording.
type serverMetrics struct {
	connectionsTotal   prometheus.Counter
	connectionsActive  prometheus.Gauge
	upgradeFailures    prometheus.Counter
	disconnections     *prometheus.CounterVec // By close code
	messagesReceived   *prometheus.CounterVec // By message type (text/binary)
	framesSent         *prometheus.CounterVec // By frame kind
	framesDiscarded    prometheus.Counter
	callbackPanicTotal *prometheus.CounterVec // By callback
}

// newServerMetrics creates the runtime metrics and registers them with reg.
// It returns nil, nil when reg is nil.
func newServerMetrics(reg prometheus.Registerer) (*serverMetrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &serverMetrics{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsconformance",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Total number of upgraded WebSocket connections",
		}),
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wsconformance",
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Number of WebSocket connections currently open",
		}),
		upgradeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsconformance",
			Subsystem: "server",
			Name:      "upgrade_failures_total",
			Help:      "Total number of rejected upgrade requests",
		}),
		disconnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsconformance",
			Subsystem: "server",
			Name:      "disconnections_total",
			Help:      "Total number of disconnections by reported close code",
		}, []string{"code"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsconformance",
			Subsystem: "server",
			Name:      "messages_received_total",
			Help:      "Total number of data messages delivered to services",
		}, []string{"type"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsconformance",
			Subsystem: "server",
			Name:      "frames_sent_total",
			Help:      "Total number of frames and actions carried out for services",
		}, []string{"kind"}),
		framesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wsconformance",
			Subsystem: "server",
			Name:      "frames_discarded_total",
			Help:      "Total number of frames dropped because the outbox was closed or full",
		}),
		callbackPanicTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsconformance",
			Subsystem: "server",
			Name:      "callback_panics_total",
			Help:      "Total number of panics recovered from service callbacks",
		}, []string{"callback"}),
	}

	collectors := []prometheus.Collector{
		m.connectionsTotal,
		m.connectionsActive,
		m.upgradeFailures,
		m.disconnections,
		m.messagesReceived,
		m.framesSent,
		m.framesDiscarded,
		m.callbackPanicTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *serverMetrics) recordConnect() {
	if m == nil {
		return
	}

	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

func (m *serverMetrics) recordDisconnect(code uint16) {
	if m == nil {
		return
	}

	m.connectionsActive.Dec()
	m.disconnections.WithLabelValues(strconv.Itoa(int(code))).Inc()
}

func (m *serverMetrics) recordUpgradeFailure() {
	if m == nil {
		return
	}

	m.upgradeFailures.Inc()
}

func (m *serverMetrics) recordMessage(messageType string) {
	if m == nil {
		return
	}

	m.messagesReceived.WithLabelValues(messageType).Inc()
}

func (m *serverMetrics) recordFrame(kind frameKind) {
	if m == nil {
		return
	}

	m.framesSent.WithLabelValues(kind.String()).Inc()
}

func (m *serverMetrics) recordDiscard() {
	if m == nil {
		return
	}

	m.framesDiscarded.Inc()
}

func (m *serverMetrics) recordPanic(callback string) {
	if m == nil {
		return
	}

	m.callbackPanicTotal.WithLabelValues(callback).Inc()
}
