package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"

	"github.com/njoerd114/plannersync/internal/config"
)

type recordingLogger struct {
	embedded.Logger

	mu      sync.Mutex
	records []otellog.Record
}

func (l *recordingLogger) Emit(_ context.Context, r otellog.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, r.Clone())
}

func (l *recordingLogger) Enabled(context.Context, otellog.EnabledParameters) bool { return true }

type recordingProvider struct {
	embedded.LoggerProvider
	logger *recordingLogger
}

func (p *recordingProvider) Logger(string, ...otellog.LoggerOption) otellog.Logger { return p.logger }

func newRecordingHandler(local slog.Handler) (slog.Handler, *recordingLogger) {
	rec := &recordingLogger{}
	h := NewLogHandler(local, "plannersync", otelslog.WithLoggerProvider(&recordingProvider{logger: rec}))
	return h, rec
}

func attrsOf(r otellog.Record) map[string]otellog.Value {
	out := map[string]otellog.Value{}
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value
		return true
	})
	return out
}

func TestLogHandler_FansOut(t *testing.T) {
	var buf bytes.Buffer
	h, rec := newRecordingHandler(slog.NewTextHandler(&buf, nil))
	logger := slog.New(h)

	logger.With("domain", "event").Warn("server rejected record", "local_id", 3)

	if !strings.Contains(buf.String(), "server rejected record") {
		t.Errorf("local output = %q", buf.String())
	}
	if len(rec.records) != 1 {
		t.Fatalf("emitted %d OTel records, want 1", len(rec.records))
	}
	r := rec.records[0]
	if r.Body().AsString() != "server rejected record" {
		t.Errorf("body = %q", r.Body().AsString())
	}
	if r.Severity() != otellog.SeverityWarn {
		t.Errorf("severity = %v, want Warn", r.Severity())
	}
	attrs := attrsOf(r)
	if attrs["domain"].AsString() != "event" || attrs["local_id"].AsInt64() != 3 {
		t.Errorf("attrs = %v", attrs)
	}
}

func TestLogHandler_LocalLevelStillApplies(t *testing.T) {
	var buf bytes.Buffer
	h, _ := newRecordingHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	slog.New(h).Debug("deferring record")

	if buf.Len() != 0 {
		t.Errorf("debug record reached an info-level handler: %q", buf.String())
	}
}

func TestLogHandler_Groups(t *testing.T) {
	h, rec := newRecordingHandler(slog.NewTextHandler(&bytes.Buffer{}, nil))

	slog.New(h).WithGroup("sync").Info("pass complete", "pushed", 2)

	if len(rec.records) != 1 {
		t.Fatalf("emitted %d OTel records, want 1", len(rec.records))
	}
	group, ok := attrsOf(rec.records[0])["sync"]
	if !ok || group.Kind() != otellog.KindMap {
		t.Fatalf("sync attribute = %v, want a map", group)
	}
	var pushed int64
	for _, kv := range group.AsMap() {
		if kv.Key == "pushed" {
			pushed = kv.Value.AsInt64()
		}
	}
	if pushed != 2 {
		t.Errorf("sync.pushed = %d, want 2", pushed)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(&config.TelemetryConfig{
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		Headers:      map[string]string{"Authorization": "Bearer x"},
	}, "1.2.3")

	if cfg.OTLPEndpoint != "localhost:4317" || !cfg.Insecure || cfg.ServiceVersion != "1.2.3" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Headers["Authorization"] != "Bearer x" {
		t.Errorf("headers = %v", cfg.Headers)
	}
}

func TestSetup_RequiresEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if shutdown == nil {
		t.Fatal("shutdown must never be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}
}

func TestNewResource_ServiceName(t *testing.T) {
	res, err := newResource(Config{ServiceVersion: "0.1.0"})
	if err != nil {
		t.Fatalf("newResource: %v", err)
	}
	var name, version string
	for _, kv := range res.Attributes() {
		switch kv.Key {
		case "service.name":
			name = kv.Value.AsString()
		case "service.version":
			version = kv.Value.AsString()
		}
	}
	if name != DefaultServiceName || version != "0.1.0" {
		t.Errorf("service = %q %q", name, version)
	}
}
