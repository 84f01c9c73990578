package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "status"

// Registry owns the service collectors. It satisfies hub.Observer and
// streamclient.Observer.
type Registry struct {
	reg *prometheus.Registry

	hubConnections *prometheus.GaugeVec
	hubBroadcasts  *prometheus.CounterVec

	eventsReported prometheus.Counter
	heartbeats     prometheus.Counter
	clientsOnline  prometheus.Gauge

	streamState        *prometheus.GaugeVec
	streamReconnects   *prometheus.CounterVec
	streamDelivered    *prometheus.CounterVec
	streamDecodeErrors *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		hubConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hub_connections",
			Help:      "open stream connections by topic and kind",
		}, []string{"topic", "kind"}),
		hubBroadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hub_broadcasts_total",
			Help:      "messages broadcast by topic",
		}, []string{"topic"}),
		eventsReported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_reported_total",
			Help:      "file events accepted from agents",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "heartbeats accepted from agents",
		}),
		clientsOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_online",
			Help:      "agents seen within the heartbeat timeout",
		}),
		streamState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_client_state",
			Help:      "current state of each stream subscription (1 = active state)",
		}, []string{"endpoint", "state"}),
		streamReconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_client_reconnects_total",
			Help:      "reconnects scheduled after transport errors",
		}, []string{"endpoint"}),
		streamDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_client_events_total",
			Help:      "events delivered to handlers",
		}, []string{"endpoint"}),
		streamDecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_client_decode_errors_total",
			Help:      "payloads that failed to decode",
		}, []string{"endpoint"}),
	}

	r.reg.MustRegister(
		r.hubConnections,
		r.hubBroadcasts,
		r.eventsReported,
		r.heartbeats,
		r.clientsOnline,
		r.streamState,
		r.streamReconnects,
		r.streamDelivered,
		r.streamDecodeErrors,
		collectors.NewGoCollector(),
	)

	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

func (r *Registry) ConnectionOpened(topic, kind string) {
	r.hubConnections.WithLabelValues(topic, kind).Inc()
}

func (r *Registry) ConnectionClosed(topic, kind string) {
	r.hubConnections.WithLabelValues(topic, kind).Dec()
}

func (r *Registry) MessageBroadcast(topic string) {
	r.hubBroadcasts.WithLabelValues(topic).Inc()
}

func (r *Registry) EventReported() { r.eventsReported.Inc() }

func (r *Registry) HeartbeatReceived() { r.heartbeats.Inc() }

func (r *Registry) SetClientsOnline(n int) { r.clientsOnline.Set(float64(n)) }

func (r *Registry) StateChanged(endpoint, state string) {
	r.streamState.DeletePartialMatch(prometheus.Labels{"endpoint": endpoint})
	r.streamState.WithLabelValues(endpoint, state).Set(1)
}

func (r *Registry) Reconnecting(endpoint string) {
	r.streamReconnects.WithLabelValues(endpoint).Inc()
}

func (r *Registry) Delivered(endpoint string) {
	r.streamDelivered.WithLabelValues(endpoint).Inc()
}

func (r *Registry) DecodeFailed(endpoint string) {
	r.streamDecodeErrors.WithLabelValues(endpoint).Inc()
}
