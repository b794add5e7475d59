package checkpoint

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckpointOps tracks checkpoint operations by result
	CheckpointOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gphotos_checkpoint_operations_total",
			Help: "Total number of cursor checkpoint operations",
		},
		[]string{"operation", "result"}, // "save", "load", "delete" / "ok", "miss", "error"
	)
)
