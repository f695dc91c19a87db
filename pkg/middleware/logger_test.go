package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"accepted":1}`))
	})

	// RequestID runs first so the id is on the context
	loggedHandler := chimiddleware.RequestID(Logger(logger)(handler))

	req := httptest.NewRequest(http.MethodPost, "/internal/event", nil)
	rec := httptest.NewRecorder()

	loggedHandler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected status 202, got %d", rec.Code)
	}

	var logEntry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
		t.Fatalf("failed to parse log entry: %v", err)
	}

	if logEntry["method"] != "POST" {
		t.Errorf("expected method POST, got %v", logEntry["method"])
	}
	if logEntry["path"] != "/internal/event" {
		t.Errorf("expected path /internal/event, got %v", logEntry["path"])
	}
	if logEntry["status"] != float64(202) {
		t.Errorf("expected status 202, got %v", logEntry["status"])
	}
	if logEntry["bytes"] != float64(14) {
		t.Errorf("expected 14 bytes, got %v", logEntry["bytes"])
	}
	if id, _ := logEntry["request_id"].(string); id == "" {
		t.Error("expected request_id to be set")
	}
	if logEntry["level"] != "info" {
		t.Errorf("expected level info, got %v", logEntry["level"])
	}
	if logEntry["message"] != "request completed" {
		t.Errorf("expected message 'request completed', got %v", logEntry["message"])
	}
}

func TestLoggerStatusLevels(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		write         bool
		expectedCode  float64
		expectedLevel string
	}{
		{"not found", http.StatusNotFound, true, 404, "info"},
		{"engine unavailable", http.StatusServiceUnavailable, true, 503, "error"},
		{"implicit ok", 0, false, 200, "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := zerolog.New(&buf)

			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.write {
					w.WriteHeader(tt.status)
				}
			})

			req := httptest.NewRequest(http.MethodGet, "/api/live", nil)
			Logger(logger)(handler).ServeHTTP(httptest.NewRecorder(), req)

			var logEntry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &logEntry); err != nil {
				t.Fatalf("failed to parse log entry: %v", err)
			}
			if logEntry["status"] != tt.expectedCode {
				t.Errorf("expected status %v, got %v", tt.expectedCode, logEntry["status"])
			}
			if logEntry["level"] != tt.expectedLevel {
				t.Errorf("expected level %s, got %v", tt.expectedLevel, logEntry["level"])
			}
		})
	}
}
