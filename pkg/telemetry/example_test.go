package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/erbridge/erbridge/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"
	cfg.Metrics.Enabled = false

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	logger := telemetry.FromContext(ctx)
	logger.Info("Application started")

	// Output can vary, so we don't specify output for this example
}

// Example_facadeSpan demonstrates tracing a facade call.
func Example_facadeSpan() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Exporter = "none"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx, span := tel.Tracer.StartFacadeSpan(context.Background(), "instance-1", "engine", "GetRecord")
	defer span.End()

	span.SetAttributes(attribute.String("data_source", "TEST"))
	telemetry.RecordSuccess(span)

	fmt.Println(telemetry.TraceID(ctx) != "")
	// Output: true
}

// Example_metricsCollection demonstrates metrics collection.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Metrics.SetDispatchQueueDepth("default", 2)
	tel.Metrics.RecordDispatchTask("default", "ok", 3*time.Millisecond)
	tel.Metrics.RecordNativeCall("engine", "AddRecord", "ok", 4*time.Millisecond)
	tel.Metrics.RecordFailure("not_found")
	tel.Metrics.SetLifecycleState("erbridge", "active")

	fmt.Println("Metrics recorded successfully")
	// Output: Metrics recorded successfully
}

// Example_eventFiltering demonstrates event filtering.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Only warnings and errors
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Important event: %s\n", event.Type)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	tel.Events.PublishInstanceBuilt("instance-1", "erbridge", 1)
	tel.Events.PublishCallFailed("instance-1", "engine", "GetRecord", "not_found", fmt.Errorf("unknown record"))
	tel.Events.PublishInstanceDestroyed("instance-1", time.Millisecond, nil)

	// Output: Important event: call.failed
}

// Example_productionConfiguration demonstrates production-ready configuration.
func Example_productionConfiguration() {
	cfg := telemetry.ProductionConfig()
	cfg.ServiceVersion = "1.2.3"

	cfg.Tracing.Endpoint = "otel-collector.monitoring.svc.cluster.local:4317"
	cfg.Tracing.SamplingRate = 0.1

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("Production configuration validated")
	// Output: Production configuration validated
}
