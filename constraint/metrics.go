package constraint

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	validLabel = "valid"
)

var (
	solverIterations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_iterations",
		Help:    "The number of nudges performed by the constraint solver.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 10, 20},
	}, []string{validLabel})

	solverLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "solver_latency",
		Help: "The time taken to solve a placement in seconds.",
	})
)

func instrumentSolve(iterations int, valid bool, latency time.Duration) {
	solverIterations.
		With(prometheus.Labels{validLabel: strconv.FormatBool(valid)}).
		Observe(float64(iterations))

	solverLatency.Observe(latency.Seconds())
}
