package web

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, 200, map[string]any{"ok": true})

	if rec.Code != 200 {
		t.Errorf("code = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["ok"] != true {
		t.Errorf("body = %v", body)
	}
}

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, 502, errors.New("backend unavailable"))

	if rec.Code != 502 {
		t.Errorf("code = %d, want 502", rec.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "backend unavailable" {
		t.Errorf("body = %v", body)
	}
}

func TestErrorCode_Retryable(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorCode(rec, 503, "scan_in_progress", "scan already running", true)

	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["retryable"] != true {
		t.Errorf("retryable missing: %v", body)
	}
	if body["code"] != "scan_in_progress" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestStatusWriter_CapturesCode(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &StatusWriter{ResponseWriter: rec, Code: 200}
	sw.WriteHeader(404)

	if sw.Code != 404 {
		t.Errorf("captured code = %d, want 404", sw.Code)
	}
	if rec.Code != 404 {
		t.Errorf("underlying code = %d, want 404", rec.Code)
	}
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	sw := &StatusWriter{ResponseWriter: httptest.NewRecorder(), Code: 200}
	if _, _, err := sw.Hijack(); err == nil {
		t.Error("expected error from non-hijackable writer")
	}
}
