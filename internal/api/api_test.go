// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/musergi/ospreid/internal/engine"
	"github.com/musergi/ospreid/internal/logging"
	"github.com/musergi/ospreid/internal/runtime"
	"github.com/musergi/ospreid/internal/store/memstore"
)

type noopRuntime struct{}

func (noopRuntime) CreateVolume(ctx context.Context) (string, error) { return "vol", nil }
func (noopRuntime) RemoveVolume(ctx context.Context, name string) error { return nil }
func (noopRuntime) RunStage(ctx context.Context, spec runtime.StageSpec) (runtime.StageResult, error) {
	return runtime.StageResult{ExitCode: 0}, nil
}

func newTestServer() *httptest.Server {
	s := memstore.New()
	log := logging.NewLoggerTo(false, discardWriter{}, discardWriter{})
	e := engine.New(s, noopRuntime{}, log)
	srv := New(s, e, log)
	return httptest.NewServer(srv.Router())
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestAPI_JobLifecycle(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/job", "application/json", strings.NewReader(`{"source":"https://example.invalid/r.git"}`))
	if err != nil {
		t.Fatalf("POST /job: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /job status = %d", resp.StatusCode)
	}
	var jobID int64
	if err := json.NewDecoder(resp.Body).Decode(&jobID); err != nil {
		t.Fatalf("decode job id: %v", err)
	}
	if jobID != 1 {
		t.Fatalf("expected job id 1, got %d", jobID)
	}

	statusResp, err := http.Get(ts.URL + "/job/1/status")
	if err != nil {
		t.Fatalf("GET /job/1/status: %v", err)
	}
	defer statusResp.Body.Close()
	var status string
	if err := json.NewDecoder(statusResp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status != "Not executed" {
		t.Fatalf("expected 'Not executed', got %q", status)
	}
}

func TestAPI_GetJob_UnknownIDIs404(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/job/999")
	if err != nil {
		t.Fatalf("GET /job/999: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAPI_RunJob_ReturnsExecutionID(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/job", "application/json", strings.NewReader(`{"source":"https://example.invalid/r.git"}`))
	if err != nil {
		t.Fatalf("POST /job: %v", err)
	}
	resp.Body.Close()

	runResp, err := http.Post(ts.URL+"/job/1/run", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /job/1/run: %v", err)
	}
	defer runResp.Body.Close()
	if runResp.StatusCode != http.StatusOK {
		t.Fatalf("POST /job/1/run status = %d", runResp.StatusCode)
	}
	var execID int64
	if err := json.NewDecoder(runResp.Body).Decode(&execID); err != nil {
		t.Fatalf("decode execution id: %v", err)
	}
	if execID != 1 {
		t.Fatalf("expected execution id 1, got %d", execID)
	}
}

func TestAPI_CreateStage_UnknownTemplateIs400(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/job", "application/json", strings.NewReader(`{"source":"https://example.invalid/r.git"}`))
	if err != nil {
		t.Fatalf("POST /job: %v", err)
	}
	resp.Body.Close()

	stageResp, err := http.Post(ts.URL+"/job/1/stages", "application/json", strings.NewReader(`{"name":"test","dependency":1,"template":"nonexistent"}`))
	if err != nil {
		t.Fatalf("POST /job/1/stages: %v", err)
	}
	defer stageResp.Body.Close()
	if stageResp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown template, got %d", stageResp.StatusCode)
	}
}

func TestAPI_ExecutionStdoutIsPlainText(t *testing.T) {
	ts := newTestServer()
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/job", "application/json", strings.NewReader(`{"source":"https://example.invalid/r.git"}`))
	if err != nil {
		t.Fatalf("POST /job: %v", err)
	}
	resp.Body.Close()

	runResp, err := http.Post(ts.URL+"/job/1/run", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /job/1/run: %v", err)
	}
	runResp.Body.Close()

	stdoutResp, err := http.Get(ts.URL + "/execution/1/stdout")
	if err != nil {
		t.Fatalf("GET /execution/1/stdout: %v", err)
	}
	defer stdoutResp.Body.Close()
	ct := stdoutResp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("expected text/plain content type, got %q", ct)
	}
}
