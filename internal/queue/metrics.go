package queue

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ProcessedTotal counts handled tasks grouped by type and status.
	ProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_processed_total",
			Help: "Total tasks processed grouped by status",
		},
		[]string{"kind", "status"},
	)

	metricsOnce sync.Once
)

// RegisterMetrics registers the queue collectors with reg once.
func RegisterMetrics(reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if err := reg.Register(ProcessedTotal); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	})
}
