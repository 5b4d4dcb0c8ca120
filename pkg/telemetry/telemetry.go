// Package telemetry provides the gateway's in-process metrics: child
// up/down gauges and a request counter, read synchronously whenever
// GET /status is served. There is no background exporter goroutine — the
// manual reader is pulled on demand, matching the no-server-initiated-
// streams posture of the rest of the HTTP surface.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Telemetry holds the gateway's meter provider and instruments.
type Telemetry struct {
	reader *sdkmetric.ManualReader
	meter  metric.Meter

	childUp        metric.Int64Gauge
	requestCounter metric.Int64Counter
}

// New builds a Telemetry instance backed by a manual reader: nothing is
// exported until Collect is called.
func New() (*Telemetry, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("mcpbox")

	childUp, err := meter.Int64Gauge("mcpbox.child.up",
		metric.WithDescription("1 if the child responded to the last health probe, 0 otherwise"))
	if err != nil {
		return nil, err
	}
	requestCounter, err := meter.Int64Counter("mcpbox.requests",
		metric.WithDescription("count of JSON-RPC requests dispatched through the gateway"))
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		reader:         reader,
		meter:          meter,
		childUp:        childUp,
		requestCounter: requestCounter,
	}, nil
}

// RecordChildUp records a child's current up/down state.
func (t *Telemetry) RecordChildUp(ctx context.Context, name string, up bool) {
	v := int64(0)
	if up {
		v = 1
	}
	t.childUp.Record(ctx, v, metric.WithAttributes(attrName(name)))
}

// RecordRequest increments the request counter for the given JSON-RPC
// method.
func (t *Telemetry) RecordRequest(ctx context.Context, method string) {
	t.requestCounter.Add(ctx, 1, metric.WithAttributes(attrMethod(method)))
}

// Collect pulls every recorded datapoint from the manual reader. Called by
// the /status handler so metrics never require a push exporter.
func (t *Telemetry) Collect(ctx context.Context) (*metricdata.ResourceMetrics, error) {
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(ctx, &rm); err != nil {
		return nil, err
	}
	return &rm, nil
}
