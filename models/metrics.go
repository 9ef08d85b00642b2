package models

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	facilityCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "facility_count",
		Help: "The number of facilities.",
	})

	facilityCountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "facility_count_total",
		Help: "The total number of facilities.",
	})
)

func instrumentIncreaseFacilityGauge() {
	facilityCount.Inc()
}

func instrumentDecreaseFacilityGauge() {
	facilityCount.Dec()
}

func instrumentCountFacility() {
	facilityCountTotal.Inc()
}
