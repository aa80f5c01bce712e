// Package metrics holds the Prometheus collectors of the server and proxy.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every teamsync collector plus the Go runtime ones.
var Registry = prometheus.NewRegistry()

var (
	expandInstances = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "teamsync_expand_instances_total",
		Help: "Instances materialized by month expansion",
	})
	storeOps = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "teamsync_store_ops_total",
		Help: "Event store and user directory calls by op and result",
	}, []string{"op", "result"})
	mutationSeconds = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "teamsync_mutation_seconds",
		Help:    "Time to plan and commit a series mutation",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})
	httpRequests = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "teamsync_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveExpand counts n materialized instances.
func ObserveExpand(n int) {
	expandInstances.Add(float64(n))
}

// ObserveStoreOp counts one store call.
func ObserveStoreOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOps.WithLabelValues(op, result).Inc()
}

// ObserveMutation records how long an edit or delete took.
func ObserveMutation(action string, d time.Duration) {
	mutationSeconds.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveHTTP counts one served request.
func ObserveHTTP(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
