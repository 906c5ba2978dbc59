package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "synapse",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"surface", "route", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapse",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"surface", "method", "route", "status"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(httpRequestsTotal)
}

// peerRoutes are the protocol endpoints other nodes call.
var peerRoutes = map[string]struct{}{
	"/v1/find":   {},
	"/v1/found":  {},
	"/v1/invite": {},
	"/v1/join":   {},
}

// Middleware records HTTP request duration and count, split by client and peer surface.
func Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			code := strconv.Itoa(status)

			var pattern string
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				pattern = rctx.RoutePattern()
			}
			route := normalizeRoute(pattern)
			surface := surfaceOf(route)

			httpRequestDuration.WithLabelValues(surface, route, code).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(surface, r.Method, route, code).Inc()
		})
	}
}

// normalizeRoute keeps label cardinality bounded.
func normalizeRoute(pattern string) string {
	if pattern == "" {
		return "unknown"
	}
	return strings.TrimSuffix(pattern, "/")
}

func surfaceOf(route string) string {
	if _, ok := peerRoutes[route]; ok {
		return "peer"
	}
	return "client"
}
