package observe_test

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/pedrosoares/godot-whisper/internal/observe"
)

func TestNewMetrics_CreatesAllInstruments(t *testing.T) {
	mp := sdkmetric.NewMeterProvider()
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.InferenceDuration == nil || m.CapturedFrames == nil ||
		m.DroppedSamples == nil || m.Windows == nil ||
		m.InferenceFailures == nil || m.KeywordMatches == nil ||
		m.CodecFrames == nil || m.PipelinesRunning == nil ||
		m.TriggerLatency == nil {
		t.Fatal("expected all instruments to be initialised")
	}
}

func TestMetrics_RecordAndCollect(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ctx := context.Background()
	m.CapturedFrames.Add(ctx, 3)
	m.InferenceDuration.Record(ctx, 0.120)
	m.KeywordMatches.Add(ctx, 1)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(rm.ScopeMetrics) == 0 {
		t.Fatal("expected collected metrics")
	}

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, inst := range sm.Metrics {
			found[inst.Name] = true
		}
	}
	for _, name := range []string{"speech.capture.frames", "speech.inference.duration", "speech.keyword.matches"} {
		if !found[name] {
			t.Errorf("metric %q not collected", name)
		}
	}
}

func TestDefaultMetrics_Singleton(t *testing.T) {
	a := observe.DefaultMetrics()
	b := observe.DefaultMetrics()
	if a != b {
		t.Fatal("DefaultMetrics must return the same instance")
	}
}

func TestInitProvider_ShutdownClean(t *testing.T) {
	ctx := context.Background()
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
