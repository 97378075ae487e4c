package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/stanchionhq/stanchion/pkg/faults"
	"github.com/stanchionhq/stanchion/pkg/retry"
)

func testMetrics(t *testing.T) *Metrics {
	t.Helper()
	cfg := DefaultConfig().Metrics
	cfg.Enabled = true
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}

	cfg = DefaultConfig()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "jaeger"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported exporter")
	}

	cfg = DefaultConfig()
	cfg.Tracing.SamplingRate = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for sampling rate above 1")
	}

	cfg = DefaultConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing metrics listen address")
	}
}

func TestNewTelemetry(t *testing.T) {
	cfg := DefaultConfig()
	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = tel.Shutdown(ctx)
	}()

	ctx := tel.WithContext(context.Background())
	if got := FromTelemetryContext(ctx); got != tel {
		t.Fatal("telemetry not retrievable from context")
	}
	if FromTelemetryContext(context.Background()) != nil {
		t.Fatal("expected nil telemetry from empty context")
	}
}

func TestMetricsObserveAttempt(t *testing.T) {
	m := testMetrics(t)

	m.ObserveAttempt(retry.Attempt{
		Number: 1,
		Err:    faults.NewDatabaseError("locked", nil),
	})
	m.ObserveAttempt(retry.Attempt{
		Number: 2,
		Delay:  100 * time.Millisecond,
	})

	if got := testutil.ToFloat64(m.retryAttempts.WithLabelValues("database", "failure")); got != 1 {
		t.Fatalf("database failure attempts = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.retryAttempts.WithLabelValues("", "success")); got != 1 {
		t.Fatalf("success attempts = %v, want 1", got)
	}
}

func TestMetricsTxCounters(t *testing.T) {
	m := testMetrics(t)

	m.RecordTxStarted()
	if got := testutil.ToFloat64(m.activeTxScopes); got != 1 {
		t.Fatalf("active scopes = %v, want 1", got)
	}

	m.RecordTxCommitted(10 * time.Millisecond)
	if got := testutil.ToFloat64(m.txCommitted); got != 1 {
		t.Fatalf("committed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.activeTxScopes); got != 0 {
		t.Fatalf("active scopes after commit = %v, want 0", got)
	}

	m.RecordTxStarted()
	m.RecordTxRolledBack(5*time.Millisecond, true)
	if got := testutil.ToFloat64(m.txRolledBack); got != 1 {
		t.Fatalf("rolled back = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.txRollbackFailures); got != 1 {
		t.Fatalf("rollback failures = %v, want 1", got)
	}
}

func TestMetricsValidation(t *testing.T) {
	m := testMetrics(t)

	m.RecordValidation(map[string]int{"Browser": 2, "Timing": 0})
	if got := testutil.ToFloat64(m.validationFailures.WithLabelValues("Browser")); got != 2 {
		t.Fatalf("browser failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.validationRuns.WithLabelValues("failed")); got != 1 {
		t.Fatalf("failed runs = %v, want 1", got)
	}

	m.RecordValidation(nil)
	if got := testutil.ToFloat64(m.validationRuns.WithLabelValues("ok")); got != 1 {
		t.Fatalf("ok runs = %v, want 1", got)
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	// None of these should panic on the no-op instance.
	m.ObserveAttempt(retry.Attempt{Number: 1})
	m.RecordRetryExhaustion(errors.New("boom"))
	m.RecordTxStarted()
	m.RecordTxCommitted(time.Millisecond)
	m.RecordTxRolledBack(time.Millisecond, false)
	m.RecordValidation(map[string]int{"Browser": 1})
	m.RecordStoreOperation("get_session", "ok", time.Millisecond)
	m.RecordError(errors.New("boom"))
}

func TestRecordTxScope(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry: %v", err)
	}
	ctx := tel.WithContext(context.Background())

	if err := RecordTxScope(ctx, "/tmp/state.db", func(ctx context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("RecordTxScope: %v", err)
	}
	if got := testutil.ToFloat64(tel.Metrics.txCommitted); got != 1 {
		t.Fatalf("committed = %v, want 1", got)
	}

	want := faults.NewDatabaseError("constraint failed", nil)
	err = RecordTxScope(ctx, "/tmp/state.db", func(ctx context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("scope error = %v, want %v", err, want)
	}
	if got := testutil.ToFloat64(tel.Metrics.txRolledBack); got != 1 {
		t.Fatalf("rolled back = %v, want 1", got)
	}
}

func TestLoggerContext(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	child := logger.NewComponentLogger("stores").WithAccount("alice@example.com")
	ctx := child.WithContext(context.Background())
	if got := FromContext(ctx); got != child {
		t.Fatal("logger not retrievable from context")
	}

	// Missing logger falls back to a usable default.
	fallback := FromContext(context.Background())
	if fallback == nil {
		t.Fatal("expected fallback logger")
	}
	fallback.Debug("fallback logger works")
}
