// Package telemetry provides OpenTelemetry instrumentation for specforge.
//
// # Overview
//
// Telemetry wires an OTLP/gRPC trace exporter and metric exporter into the
// global OpenTelemetry providers. It is disabled by default: CI runs are short
// and most installations have no collector. When disabled, Tracer and Meter
// hand out the global no-op implementations so callers never branch on it.
//
// # Usage
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx, span := tel.Tracer("specforge.bot").Start(ctx, "implement")
//	defer span.End()
//
// # Testing
//
// NewTestTelemetry records spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "phase")
//	span.End()
//	tt.AssertSpanExists(t, "phase")
package telemetry
