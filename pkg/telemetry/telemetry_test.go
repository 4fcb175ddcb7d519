package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

// newTestLogger returns a JSON logger writing to w.
func newTestLogger(w io.Writer, level string) *Logger {
	return &Logger{
		zlog:   zerolog.New(w).Level(parseLogLevel(level)),
		config: LoggingConfig{Level: level, Format: "json"},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, "service name"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, "invalid trace exporter"},
		{"otlp without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "otlp"
		}, "endpoint"},
		{"sampling rate", func(c *Config) { c.Tracing.SamplingRate = 2 }, "sampling rate"},
		{"metrics address", func(c *Config) { c.Metrics.ListenAddress = "" }, "listen address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfigLabels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResourceAttributes["service.name"] = "shadowed"
	cfg.ResourceAttributes["region"] = "eu"

	labels := cfg.Labels()
	if labels["service.name"] != "erbridge" {
		t.Errorf("service.name = %q, want erbridge", labels["service.name"])
	}
	if labels["region"] != "eu" {
		t.Errorf("region = %q, want eu", labels["region"])
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, "debug").
		NewComponentLogger("provider").
		WithInstance("id-1", "erbridge").
		WithOperation("engine", "GetRecord")

	logger.Debug("bound")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	want := map[string]string{
		"component":     "provider",
		"instance_id":   "id-1",
		"instance_name": "erbridge",
		"facade":        "engine",
		"operation":     "GetRecord",
		"message":       "bound",
		"level":         "debug",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %s", k, entry[k], v)
		}
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf, "warn")

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info written at warn level: %s", buf.String())
	}
	if logger.Enabled("debug") {
		t.Error("Enabled(debug) = true at warn level")
	}
	if !logger.Enabled("error") {
		t.Error("Enabled(error) = false at warn level")
	}

	if NewNopLogger().Enabled("error") {
		t.Error("nop logger reports error enabled")
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.SetDispatchQueueDepth("p", 1)
	m.SetDispatchInFlight("p", 1)
	m.RecordDispatchTask("p", "ok", time.Millisecond)
	m.RecordNativeCall("engine", "op", "ok", time.Millisecond)
	m.RecordFailure("engine")
	m.SetLifecycleState("i", "active")
	m.RecordFacadeBind("engine", "ok")
	m.RecordInstanceBuilt()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("nil metrics handler status = %d, want 404", rec.Code)
	}
	if m.StartMetricsServer(nil) != nil {
		t.Error("nil metrics started a server")
	}

	disabled, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatal(err)
	}
	disabled.RecordFailure("engine")
}

func TestMetricsRecord(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	m.RecordDispatchTask("pool", "ok", 5*time.Millisecond)
	m.RecordDispatchTask("pool", "ok", 5*time.Millisecond)
	m.RecordDispatchTask("pool", "abandoned", 0)
	m.SetDispatchQueueDepth("pool", 3)
	m.RecordFailure("not_found")
	m.SetLifecycleState("erbridge", "destroying")

	if got := testutil.ToFloat64(m.dispatchTasks.WithLabelValues("pool", "ok")); got != 2 {
		t.Errorf("ok tasks = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.dispatchTasks.WithLabelValues("pool", "abandoned")); got != 1 {
		t.Errorf("abandoned tasks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.dispatchQueueDepth.WithLabelValues("pool")); got != 3 {
		t.Errorf("queue depth = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.failuresByKind.WithLabelValues("not_found")); got != 1 {
		t.Errorf("not_found failures = %v, want 1", got)
	}
	for _, state := range LifecycleStates {
		want := 0.0
		if state == "destroying" {
			want = 1
		}
		if got := testutil.ToFloat64(m.lifecycleState.WithLabelValues("erbridge", state)); got != want {
			t.Errorf("state %s = %v, want %v", state, got, want)
		}
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "erbridge_dispatch_tasks_total") {
		t.Error("handler output is missing erbridge_dispatch_tasks_total")
	}
}

func TestEventPublisherSync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true})
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	ep.Subscribe(func(e Event) { got = append(got, e.Type) }, nil)
	ep.Subscribe(func(e Event) {
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Errorf("event %s missing ID or timestamp", e.Type)
		}
	}, FilterByLevel(EventLevelInfo))

	_ = ep.PublishInstanceBuilt("a", "erbridge", 1)
	_ = ep.PublishFacadeBound("a", "engine")
	_ = ep.PublishInstanceDestroyed("a", time.Millisecond, errors.New("engine destroy failed"))

	want := []string{EventTypeInstanceBuilt, EventTypeFacadeBound, EventTypeInstanceDestroyed}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("delivered %v, want %v", got, want)
	}
}

func TestEventPublisherGlobalFilter(t *testing.T) {
	ep, _ := NewEventPublisher(EventsConfig{Enabled: true})
	ep.AddFilter(FilterByType(EventTypeCallFailed))

	count := 0
	ep.Subscribe(func(Event) { count++ }, nil)

	_ = ep.PublishInstanceBuilt("a", "erbridge", 1)
	_ = ep.PublishCallFailed("a", "engine", "GetRecord", "not_found", errors.New("missing"))

	if count != 1 {
		t.Errorf("delivered %d events, want 1", count)
	}
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:      true,
		EnableAsync:  true,
		BufferSize:   16,
		MaxBatchSize: 100,
	})
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var ids []string
	ep.Subscribe(func(e Event) {
		mu.Lock()
		ids = append(ids, e.InstanceID)
		mu.Unlock()
	}, nil)

	for _, id := range []string{"1", "2", "3"} {
		if err := ep.PublishInstanceDestroying(id); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if strings.Join(ids, ",") != "1,2,3" {
		t.Errorf("delivered %v, want 1,2,3 in order", ids)
	}

	if err := ep.PublishInstanceDestroying("4"); err == nil {
		t.Error("Publish() after Shutdown expected error")
	}
}

func TestTracerResourceLabels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ResourceAttributes["region"] = "eu"

	tracer, err := NewTracer(TracingConfig{Enabled: true, Exporter: "none", SamplingRate: 1}, cfg.Labels())
	if err != nil {
		t.Fatalf("NewTracer() error = %v", err)
	}
	defer tracer.Shutdown(context.Background())

	ctx, span := tracer.StartSpan(context.Background(), "op")
	defer span.End()
	if TraceID(ctx) == "" {
		t.Error("enabled tracer produced no trace ID")
	}
}

func TestStartOperation(t *testing.T) {
	var buf bytes.Buffer
	tel := NewNopTelemetry()
	tel.Logger = newTestLogger(&buf, "info")

	op := StartOperation(tel.WithContext(context.Background()), "erctl version")
	op.Logger.Info("running")
	op.End(nil)

	if !strings.Contains(buf.String(), `"operation":"erctl version"`) {
		t.Errorf("operation logger output = %s", buf.String())
	}
	if op.Timer == nil || op.Span == nil {
		t.Error("operation has no timer or span")
	}

	bare := StartOperation(context.Background(), "bare")
	bare.End(errors.New("boom"))
	if bare.Logger == nil {
		t.Error("operation without telemetry has no logger")
	}
}

func TestNilTelemetryComponents(t *testing.T) {
	tel := NewNopTelemetry()

	ctx, span := tel.Tracer.StartFacadeSpan(context.Background(), "id", "engine", "GetRecord")
	RecordError(span, errors.New("boom"))
	span.End()

	if err := tel.Events.Publish(Event{Type: EventTypeCallFailed}); err != nil {
		t.Errorf("nil publisher Publish() error = %v", err)
	}
	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if TraceID(ctx) != "" {
		t.Error("nil tracer produced a trace ID")
	}
}
