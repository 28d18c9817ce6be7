package logging

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.level); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestNew_LevelGates(t *testing.T) {
	logger := New("error", "text")
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be disabled at error level")
	}
	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("error should be enabled at error level")
	}
}

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text"} {
		if New("info", format) == nil {
			t.Fatalf("New(info, %q) returned nil", format)
		}
	}
}

func TestHTTPRequest_Attrs(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/payments", nil)
	attrs := HTTPRequest(req, 201, 42*time.Millisecond)

	got := map[string]any{}
	for i := 0; i+1 < len(attrs); i += 2 {
		got[attrs[i].(string)] = attrs[i+1]
	}
	if got["method"] != "POST" || got["path"] != "/v1/payments" {
		t.Errorf("request attrs = %v", got)
	}
	if got["status"] != 201 || got["latency_ms"] != int64(42) {
		t.Errorf("status/latency attrs = %v", got)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()

	if id := RequestID(ctx); id != "" {
		t.Errorf("request ID = %q, want empty", id)
	}

	ctx = WithRequestID(ctx, "req-123")
	if id := RequestID(ctx); id != "req-123" {
		t.Errorf("request ID = %q, want req-123", id)
	}

	ctx = WithRequestID(ctx, "req-456")
	if id := RequestID(ctx); id != "req-456" {
		t.Errorf("request ID after overwrite = %q, want req-456", id)
	}
}

func TestL_AnnotatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	ctx = WithRequestID(ctx, "req-789")

	L(ctx).Info("hello")
	if !strings.Contains(buf.String(), `"request_id":"req-789"`) {
		t.Errorf("log line missing request_id: %s", buf.String())
	}
}

func TestL_DefaultsWithoutContextLogger(t *testing.T) {
	if L(context.Background()) == nil {
		t.Fatal("L must fall back to a usable logger")
	}
}
