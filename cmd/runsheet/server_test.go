package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/caffeineduck/runsheet/batch"
	"github.com/caffeineduck/runsheet/catalog"
	"github.com/caffeineduck/runsheet/dispatch"
	"github.com/caffeineduck/runsheet/engine"
)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &server{
		dispatcher: dispatch.New(dispatch.WithLogger(logger)),
		runtimes:   engine.Runtimes{Prompter: silentPrompter},
		problems:   map[catalog.Kind]error{catalog.KindNative: errors.New("picoc.wasm missing")},
		catalog:    catalog.Default(),
		logger:     logger,
	}
	ts := httptest.NewServer(s.routes(true, []string{"*"}))
	t.Cleanup(ts.Close)
	return ts
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.Engines["direct"] != "ready" {
		t.Errorf("health = %+v", health)
	}
	if !strings.Contains(health.Engines["native"], "picoc.wasm missing") {
		t.Errorf("native = %q", health.Engines["native"])
	}
}

func TestLanguagesEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	resp, err := http.Get(ts.URL + "/languages")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var langs []catalog.Language
	if err := json.NewDecoder(resp.Body).Decode(&langs); err != nil {
		t.Fatal(err)
	}
	if len(langs) != 5 || langs[0].ID != catalog.Python {
		t.Errorf("languages = %+v", langs)
	}
}

func TestDispatchEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	resp := post(t, ts.URL+"/dispatch", `{
		"language": "js",
		"files": [
			{"name": "a.js", "content": "console.log(1)"},
			{"id": "kept", "name": "b.js", "content": "console.log(2)", "output": "cached", "status": "success"},
			{"name": "c.js", "content": "throw new Error('bad')"}
		]
	}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var got dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Files) != 3 {
		t.Fatalf("files = %+v", got.Files)
	}
	if got.Files[0].ID == "" || got.Files[0].Status != batch.StatusSuccess || got.Files[0].Output != "1" {
		t.Errorf("a = %+v", got.Files[0])
	}
	if got.Files[1].ID != "kept" || got.Files[1].Output != "cached" {
		t.Errorf("b = %+v", got.Files[1])
	}
	if got.Files[2].Status != batch.StatusError || !strings.Contains(got.Files[2].Output, "bad") {
		t.Errorf("c = %+v", got.Files[2])
	}
	if got.Summary != (batch.Summary{Total: 3, Success: 2, Error: 1}) {
		t.Errorf("summary = %+v", got.Summary)
	}
}

func TestDispatchEndpointNativeUnavailable(t *testing.T) {
	ts := setupTestServer(t)
	resp := post(t, ts.URL+"/dispatch", `{"language":"cpp","files":[{"name":"a.cpp","content":"int main(){}"}]}`)

	var got dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Files[0].Status != batch.StatusError || got.Files[0].Output != "Error: C++ Engine (picoc) not loaded." {
		t.Errorf("file = %+v", got.Files[0])
	}
}

func TestDispatchEndpointBadRequests(t *testing.T) {
	ts := setupTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing language", `{"files":[]}`},
		{"bad status", `{"language":"js","files":[{"status":"done"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if resp := post(t, ts.URL+"/dispatch", tt.body); resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d", resp.StatusCode)
			}
		})
	}
}

func TestDispatchEndpointMethodNotAllowed(t *testing.T) {
	ts := setupTestServer(t)
	resp, err := http.Get(ts.URL + "/dispatch")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestExportEndpoint(t *testing.T) {
	ts := setupTestServer(t)
	body := `{"language":"javascript","files":[{"name":"a.js","content":"console.log(1)","output":"1","status":"success"}]}`

	resp := post(t, ts.URL+"/export?format=md&title=Week+2", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "Submission_javascript_") || !strings.Contains(cd, ".md") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	data, _ := io.ReadAll(resp.Body)
	if !bytes.HasPrefix(data, []byte("# Week 2\n")) || !bytes.Contains(data, []byte("## Problem 1: a.js")) {
		t.Errorf("document = %s", data)
	}
}

func TestExportEndpointHTML(t *testing.T) {
	ts := setupTestServer(t)
	resp := post(t, ts.URL+"/export?format=html", `{"language":"python","files":[{"name":"a.py","content":"print(1)"}]}`)
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(data, []byte("(Not executed)")) {
		t.Errorf("document = %s", data)
	}
}

func TestExportEndpointBadRequests(t *testing.T) {
	ts := setupTestServer(t)
	if resp := post(t, ts.URL+"/export?format=pdf", `{"language":"js","files":[]}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad format status = %d", resp.StatusCode)
	}
	if resp := post(t, ts.URL+"/export", `{"language":"cobol","files":[]}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown language status = %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := setupTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/dispatch", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}
