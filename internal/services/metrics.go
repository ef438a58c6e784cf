package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"initiative-mcp/pkg/models"
)

const meterName = "initiative-mcp/services"

// Metrics counts lifecycle operations by outcome.
type Metrics struct {
	operations metric.Int64Counter
}

// NewMetrics registers the lifecycle instruments on meter. A nil meter uses
// the global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	ops, err := meter.Int64Counter("initiative.operations",
		metric.WithDescription("Initiative lifecycle operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}
	return &Metrics{operations: ops}, nil
}

func (m *Metrics) record(ctx context.Context, op string, outcome Outcome, stage models.Stage) {
	if m == nil {
		return
	}
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", string(outcome)),
		attribute.String("stage", string(stage)),
	))
}
