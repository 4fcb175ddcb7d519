// Package telemetry provides observability instrumentation for erbridge.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and lifecycle event
// publishing for the provider, its dispatcher and the native engine host.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	srv := tel.StartMetricsServer()
//
// Library code that is not handed a Telemetry uses NewNopTelemetry. The
// tracer, metrics and event publisher are all safe to use through nil
// pointers, so components never need to check whether telemetry is on.
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("provider")
//	logger = logger.WithInstance(id, "erbridge").WithOperation("engine", "GetRecord")
//	logger.WithError(err).Error("call failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Tracing
//
// Each facade operation runs inside a span named "<facade>.<operation>":
//
//	ctx, span := tel.Tracer.StartFacadeSpan(ctx, id, "engine", "GetRecord")
//	defer span.End()
//
// Supported exporters: "otlp" (gRPC), "stdout" (written to stderr), "none".
//
// # Metrics
//
// Key metrics exposed under the erbridge namespace:
//
//   - erbridge_dispatch_tasks_total{pool,outcome}
//   - erbridge_dispatch_task_duration_seconds{pool}
//   - erbridge_dispatch_queue_depth{pool}
//   - erbridge_dispatch_in_flight{pool}
//   - erbridge_native_calls_total{facade,operation,outcome}
//   - erbridge_native_call_duration_seconds{facade,operation}
//   - erbridge_failures_total{kind}
//   - erbridge_provider_state{instance,state}
//   - erbridge_provider_facade_binds_total{facade,outcome}
//   - erbridge_provider_instances_built_total
//
// # Events
//
// The provider publishes instance.built, instance.destroying,
// instance.destroyed, instance.reinitialized, facade.bound and call.failed
// events. Subscribers receive them in publication order:
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Println(event.Type, event.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
package telemetry
