package server

import (
	"context"
	"time"

	"github.com/cberner/fuser-sub000/fuser"
	"github.com/prometheus/client_golang/prometheus"
)

// NewMetricsMiddleware returns a Middleware that records per-operation
// request counts and latencies to reg. A nil reg uses the default registerer.
func NewMetricsMiddleware(reg prometheus.Registerer) Middleware {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	mm := &metricsMiddleware{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fuser",
			Subsystem: "server",
			Name:      "requests_total",
			Help:      "Total requests received from the kernel, by operation and result.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fuser",
			Subsystem: "server",
			Name:      "request_duration_seconds",
			Help:      "Time spent handling a request, by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(mm.requests, mm.duration)
	return mm
}

type metricsMiddleware struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func (mm *metricsMiddleware) HandleRequest(ctx context.Context, hdr *fuser.RequestHeader, req fuser.Request, invoker Invoker) (fuser.Response, error) {
	start := time.Now()
	resp, err := invoker(ctx, hdr, req)

	result := "ok"
	if err != nil {
		result = "error"
	}
	mm.requests.WithLabelValues(hdr.Op.String(), result).Inc()
	mm.duration.WithLabelValues(hdr.Op.String()).Observe(time.Since(start).Seconds())
	return resp, err
}
