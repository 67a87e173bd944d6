package downloader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/user/framegrab/pkg/transport"
)

// Metrics are registered on a per-server registry so several servers (and
// tests) can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	Downloads *prometheus.CounterVec
	Bytes     prometheus.Counter
	Messages  *prometheus.CounterVec
}

func newMetrics(worker *transport.Worker) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		Registry: reg,
		Downloads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framegrab",
			Name:      "downloads_total",
			Help:      "Download requests by result.",
		}, []string{"result"}),
		Bytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "framegrab",
			Name:      "streamed_bytes_total",
			Help:      "Archive bytes written to download responses.",
		}),
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "framegrab",
			Name:      "transport_messages_total",
			Help:      "Transport messages received over websocket by action and result.",
		}, []string{"action", "result"}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "framegrab",
		Name:      "active_streams",
		Help:      "Streams created and not yet released.",
	}, func() float64 { return float64(worker.Stats().Active) })

	return m
}
