// Package telemetry hands out OpenTelemetry instruments for the monitoring core.
//
// Instruments come from the global meter provider, which is a no-op until the
// binary installs an SDK. Creation errors fall back to no-op instruments so
// callers never have to handle them.
package telemetry

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "go.aimuz.me/chatwatch"

// Counter returns an Int64Counter named name.
func Counter(name, description string) metric.Int64Counter {
	c, err := otel.Meter(instrumentationName).Int64Counter(name,
		metric.WithDescription(description),
	)
	if err != nil {
		slog.Warn("create counter", "name", name, "error", err)
		c, _ = noop.Meter{}.Int64Counter(name)
	}
	return c
}
