package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud", "json", nil); err == nil {
		t.Fatalf("New() expected error for unknown level")
	}
}

func TestNewTextFormatter(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "text", &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v, want debug", log.GetLevel())
	}
	log.Debug("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("output = %q, want text format", buf.String())
	}
}

func TestRequestLoggerLevelsByStatus(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("info", "json", &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var seenID string
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestID(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/reports/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seenID == "" || rec.Header().Get(RequestIDHeader) != seenID {
		t.Fatalf("request id = %q, header = %q", seenID, rec.Header().Get(RequestIDHeader))
	}

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line not json: %v (%q)", err, buf.String())
	}
	if line["level"] != "warning" {
		t.Fatalf("level = %v, want warning", line["level"])
	}
	if line["status_code"] != float64(404) {
		t.Fatalf("status_code = %v, want 404", line["status_code"])
	}
}

func TestRequestLoggerKeepsIncomingID(t *testing.T) {
	h := RequestLogger(Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if RequestID(r.Context()) != "abc" {
			t.Errorf("RequestID = %q, want abc", RequestID(r.Context()))
		}
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	h.ServeHTTP(httptest.NewRecorder(), req)
}
