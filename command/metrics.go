package command

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	commandLabel = "command"
	outcomeLabel = "outcome"

	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
)

var (
	layoutCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "layout_commands_total",
		Help: "The number of layout commands.",
	}, []string{
		commandLabel,
		outcomeLabel,
	})

	layoutCommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "layout_command_latency",
		Help: "The time taken to execute a layout command in seconds.",
	}, []string{commandLabel})
)

func instrumentCommand(command string, success bool, latency time.Duration) {
	outcome := outcomeSuccess
	if !success {
		outcome = outcomeRejected
	}

	layoutCommands.
		With(prometheus.Labels{
			commandLabel: command,
			outcomeLabel: outcome,
		}).
		Inc()

	layoutCommandLatency.
		With(prometheus.Labels{commandLabel: command}).
		Observe(latency.Seconds())
}
