package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"wallet/internal/core"
)

// jsonLogger returns a logger writing JSON records into buf.
func jsonLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	return New(Config{
		Component: ComponentLedger,
		Handler:   slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level}),
	})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("bad log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLoggerTagsComponent(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, slog.LevelInfo)

	l.Info("one")
	l.WithComponent(ComponentHTTP).Warn("two", FieldAccountID, "a1")
	l.With(FieldRequestID, "r1").ErrorContext(context.Background(), "three")
	l.Debug("dropped")

	lines := decodeLines(t, &buf)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %s", len(lines), buf.String())
	}
	if lines[0][FieldComponent] != ComponentLedger {
		t.Errorf("component = %v, want %s", lines[0][FieldComponent], ComponentLedger)
	}
	if lines[1][FieldComponent] != ComponentHTTP || lines[1][FieldAccountID] != "a1" {
		t.Errorf("second line = %v", lines[1])
	}
	if lines[2][FieldRequestID] != "r1" || lines[2][FieldComponent] != ComponentLedger {
		t.Errorf("third line = %v", lines[2])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFields(t *testing.T) {
	tx := core.Transaction{
		ID:        "t1",
		AccountID: "a1",
		Type:      core.Expense,
		Amount:    decimal.RequireFromString("12.50"),
	}
	f := NewFields().
		WithOperation(OpRecord).
		WithTransaction(tx).
		WithError(core.Validation(errors.New("amount must be positive")))

	if f[FieldOperation] != OpRecord {
		t.Errorf("operation = %v", f[FieldOperation])
	}
	if f[FieldTransactionID] != "t1" || f[FieldAccountID] != "a1" || f[FieldAmount] != "12.5" {
		t.Errorf("transaction fields = %v", f)
	}
	if f[FieldErrorKind] != string(core.KindValidation) {
		t.Errorf("error kind = %v, want %s", f[FieldErrorKind], core.KindValidation)
	}
	if got := len(f.ToSlice()); got != 2*len(f) {
		t.Errorf("ToSlice() len = %d, want %d", got, 2*len(f))
	}

	if f := NewFields().WithError(nil); len(f) != 0 {
		t.Errorf("WithError(nil) added fields: %v", f)
	}
}

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	l := jsonLogger(&buf, slog.LevelInfo)

	var seenID string
	var seenLogger *Logger
	h := Middleware(l, func(*http.Request) string { return "198.51.100.4" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seenID = RequestID(r.Context())
			seenLogger = FromContext(r.Context())
			w.WriteHeader(http.StatusNotFound)
		}))

	t.Run("generates request id", func(t *testing.T) {
		buf.Reset()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/accounts/x", nil))

		if !strings.HasPrefix(seenID, "req_") {
			t.Errorf("request id = %q", seenID)
		}
		if rec.Header().Get("X-Request-ID") != seenID {
			t.Errorf("response header = %q, want %q", rec.Header().Get("X-Request-ID"), seenID)
		}
		if seenLogger == nil || seenLogger.Component() != ComponentLedger {
			t.Errorf("context logger = %+v", seenLogger)
		}

		lines := decodeLines(t, &buf)
		if len(lines) != 1 {
			t.Fatalf("got %d lines, want 1", len(lines))
		}
		line := lines[0]
		if line["level"] != "WARN" {
			t.Errorf("level = %v, want WARN for a 404", line["level"])
		}
		if line[FieldStatusCode] != float64(http.StatusNotFound) || line[FieldPath] != "/accounts/x" {
			t.Errorf("line = %v", line)
		}
		if line[FieldClientIP] != "198.51.100.4" || line[FieldRequestID] != seenID {
			t.Errorf("line = %v", line)
		}
	})

	t.Run("keeps caller request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "abc")
		h.ServeHTTP(httptest.NewRecorder(), req)
		if seenID != "abc" {
			t.Errorf("request id = %q, want abc", seenID)
		}
	})
}

func TestFromContextFallback(t *testing.T) {
	l := FromContext(context.Background())
	if l == nil || l.Logger == nil {
		t.Fatal("expected a usable default logger")
	}
	if l.Component() != "unknown" {
		t.Errorf("component = %q, want unknown", l.Component())
	}
}
