package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry 是本服务专用的 Prometheus registry
	Registry = prometheus.NewRegistry()

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// ShiftOperations 按操作和结果（ok / invalid / not_found / illegal_state / transient / error）统计
	ShiftOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "shift_operations_total", Help: "Shift operations by operation and outcome."},
		[]string{"op", "outcome"},
	)
	ValidationViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "shift_validation_violations_total", Help: "Shift validation violations by rule."},
		[]string{"rule"},
	)
	TransientRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "shift_transient_retries_total", Help: "Retries after transient write failures."},
		[]string{"op"},
	)
	EventPublishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "shift_event_publish_failures_total", Help: "Shift events that could not be published."},
		[]string{"type"},
	)
)

var regOnce sync.Once

// RegisterDefault 将所有指标注册到 Registry，多次调用是安全的
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(ShiftOperations)
		Registry.MustRegister(ValidationViolations)
		Registry.MustRegister(TransientRetries)
		Registry.MustRegister(EventPublishFailures)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
