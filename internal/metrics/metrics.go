package metrics

import (
	"context"

	"github.com/TbhX/centx-backend/pkg/engine"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector counts engine operations by name and status. It implements
// engine.OperationLogger so it can be chained behind the zap adapter.
type Collector struct {
	operations *prometheus.CounterVec
	next       engine.OperationLogger
}

// New registers the operation counter with the supplied registerer and
// returns a Collector that forwards every entry to next (which may be nil).
func New(registerer prometheus.Registerer, next engine.OperationLogger) *Collector {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "centxt",
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "Engine operations by name and outcome.",
	}, []string{"operation", "status"})
	registerer.MustRegister(operations)
	return &Collector{operations: operations, next: next}
}

// LogOperation counts the operation and forwards the entry.
func (collector *Collector) LogOperation(ctx context.Context, entry engine.OperationLog) {
	collector.operations.WithLabelValues(entry.Operation, entry.Status).Inc()
	if collector.next != nil {
		collector.next.LogOperation(ctx, entry)
	}
}
