package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "flapd"

// Metrics holds all flapd metric instruments.
type Metrics struct {
	ChatRequests    metric.Int64Counter
	ChatFailures    metric.Int64Counter
	StreamEvents    metric.Int64Counter
	SearchCalls     metric.Int64Counter
	UpstreamLatency metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.ChatRequests, err = meter.Int64Counter("flapd.chat.requests",
		metric.WithDescription("Number of chat turns started"))
	if err != nil {
		return nil, err
	}

	m.ChatFailures, err = meter.Int64Counter("flapd.chat.failures",
		metric.WithDescription("Number of chat turns that ended in an error"))
	if err != nil {
		return nil, err
	}

	m.StreamEvents, err = meter.Int64Counter("flapd.stream.events",
		metric.WithDescription("Number of stream events emitted to clients"))
	if err != nil {
		return nil, err
	}

	m.SearchCalls, err = meter.Int64Counter("flapd.search.calls",
		metric.WithDescription("Number of web searches performed by the agent"))
	if err != nil {
		return nil, err
	}

	m.UpstreamLatency, err = meter.Float64Histogram("flapd.upstream.duration_seconds",
		metric.WithDescription("Provider call duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
