package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aeolun/epollchat/pkg/protocol"
)

// Metrics holds all Prometheus metrics for the server
type Metrics struct {
	registry *prometheus.Registry

	// Connection metrics
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   *prometheus.CounterVec // by reason
	heartbeatEvictions  prometheus.Counter

	// Frame metrics
	framesReceived *prometheus.CounterVec // by message type
	framesSent     *prometheus.CounterVec // by message type
	protocolErrors prometheus.Counter
	droppedFrames  *prometheus.CounterVec // by message type

	// Worker metrics
	queuedTasks      prometheus.Gauge
	dispatchDuration *prometheus.HistogramVec

	// File transfer metrics
	fileBytesSent prometheus.Counter
	fileTransfers *prometheus.CounterVec // by result
}

// NewMetrics creates a metrics set on its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chat_active_connections",
				Help: "Current number of registered connections",
			},
		),
		connectionsAccepted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chat_connections_accepted_total",
				Help: "Total number of accepted connections",
			},
		),
		connectionsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_connections_closed_total",
				Help: "Total number of closed connections by reason",
			},
			[]string{"reason"},
		),
		heartbeatEvictions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chat_heartbeat_evictions_total",
				Help: "Total number of connections evicted for missing heartbeats",
			},
		),
		framesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_frames_received_total",
				Help: "Total number of frames decoded from clients by type",
			},
			[]string{"type"},
		),
		framesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_frames_sent_total",
				Help: "Total number of frames written to clients by type",
			},
			[]string{"type"},
		),
		protocolErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chat_protocol_errors_total",
				Help: "Total number of connections dropped for an invalid frame header",
			},
		),
		droppedFrames: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_dropped_frames_total",
				Help: "Total number of frames dropped for a malformed body or unknown type",
			},
			[]string{"type"},
		),
		queuedTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chat_queued_tasks",
				Help: "Tasks waiting in the worker pool queue",
			},
		),
		dispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_dispatch_duration_seconds",
				Help:    "Time taken by a worker to handle one frame",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),
		fileBytesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chat_file_bytes_sent_total",
				Help: "Total number of file bytes streamed to clients",
			},
		),
		fileTransfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_file_transfers_total",
				Help: "Total number of file requests by result",
			},
			[]string{"result"},
		),
	}
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordActiveConnections updates the registered connection count
func (m *Metrics) RecordActiveConnections(count int) {
	m.activeConnections.Set(float64(count))
}

// RecordConnectionAccepted increments the accept counter
func (m *Metrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

// RecordConnectionClosed increments the close counter for a reason
func (m *Metrics) RecordConnectionClosed(reason string) {
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

// RecordHeartbeatEviction increments the eviction counter
func (m *Metrics) RecordHeartbeatEviction() {
	m.heartbeatEvictions.Inc()
}

// RecordFrameReceived increments the received counter for a type
func (m *Metrics) RecordFrameReceived(msgType int32) {
	m.framesReceived.WithLabelValues(protocol.TypeName(msgType)).Inc()
}

// RecordFrameSent increments the sent counter for a type
func (m *Metrics) RecordFrameSent(msgType int32) {
	m.framesSent.WithLabelValues(protocol.TypeName(msgType)).Inc()
}

// RecordProtocolError increments the invalid header counter
func (m *Metrics) RecordProtocolError() {
	m.protocolErrors.Inc()
}

// RecordDroppedFrame increments the dropped frame counter for a type
func (m *Metrics) RecordDroppedFrame(msgType int32) {
	m.droppedFrames.WithLabelValues(protocol.TypeName(msgType)).Inc()
}

// RecordQueuedTasks updates the worker queue depth
func (m *Metrics) RecordQueuedTasks(count int) {
	m.queuedTasks.Set(float64(count))
}

// RecordDispatchDuration records how long one frame took to handle
func (m *Metrics) RecordDispatchDuration(msgType int32, durationSeconds float64) {
	m.dispatchDuration.WithLabelValues(protocol.TypeName(msgType)).Observe(durationSeconds)
}

// RecordFileTransfer records the outcome of a file request and bytes streamed
func (m *Metrics) RecordFileTransfer(result string, bytes int64) {
	m.fileTransfers.WithLabelValues(result).Inc()
	if bytes > 0 {
		m.fileBytesSent.Add(float64(bytes))
	}
}
