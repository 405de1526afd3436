package main

import (
	"bytes"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func init() {
	// Set Gin to test mode
	gin.SetMode(gin.TestMode)
}

// setupTestServer installs a pipeline backed by fakes, a fresh cache and a temp data dir
func setupTestServer(t *testing.T, reviewer Reviewer, deliberator Deliberator) *gin.Engine {
	t.Helper()
	helper := NewTestHelper(t)
	helper.UseDataDir()

	oldPipeline, oldCache := pipeline, sessionCache
	pipeline = newTestPipeline(t, reviewer, deliberator)
	sessionCache = NewSessionCache(time.Minute)
	t.Cleanup(func() {
		pipeline = oldPipeline
		sessionCache = oldCache
	})

	return setupRouter(zerolog.Nop())
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest("POST", path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func getPath(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// TestHealthCheck tests the health check endpoint
func TestHealthCheck(t *testing.T) {
	router := gin.New()
	router.GET("/", healthCheck)

	w := getPath(router, "/")

	if w.Code != http.StatusOK {
		t.Errorf("Status = %d, want %d", w.Code, http.StatusOK)
	}

	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if response["status"] != "ok" {
		t.Errorf("Status = %v, want 'ok'", response["status"])
	}
	if response["service"] != "Motion Review API" {
		t.Errorf("Service = %v, want 'Motion Review API'", response["service"])
	}
}

func TestRunSessionHandler(t *testing.T) {
	router := setupTestServer(t, splitReviewer(), &fakeDeliberator{})

	w := postJSON(router, "/api/sessions", RunSessionRequest{SessionID: "api-1", Export: pipelineExport()})

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}

	var result PipelineResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if result.SessionID != "api-1" || result.Counts.Ratified != 3 {
		t.Errorf("result = %s with counts %+v", result.SessionID, result.Counts)
	}

	stored, err := GetSession("api-1")
	if err != nil || stored == nil {
		t.Fatalf("session not persisted: %v", err)
	}
	if _, ok := sessionCache.Get("api-1"); !ok {
		t.Error("session not cached")
	}
}

func TestRunSessionHandlerGeneratesID(t *testing.T) {
	router := setupTestServer(t, &fakeReviewer{}, &fakeDeliberator{})

	w := postJSON(router, "/api/sessions", RunSessionRequest{Export: pipelineExport()})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}

	var result PipelineResult
	json.Unmarshal(w.Body.Bytes(), &result)
	if len(result.SessionID) != 36 {
		t.Errorf("generated session id = %q, want a UUID", result.SessionID)
	}
}

func TestRunSessionHandlerErrors(t *testing.T) {
	router := setupTestServer(t, &fakeReviewer{}, &fakeDeliberator{})

	// Seed an existing session for the conflict case
	if w := postJSON(router, "/api/sessions", RunSessionRequest{SessionID: "taken", Export: pipelineExport()}); w.Code != http.StatusOK {
		t.Fatalf("seed run failed: %d", w.Code)
	}

	duplicate := pipelineExport()
	duplicate.NovelProposals[0].ProposalID = "low"

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
	}{
		{"invalid json", "not an object", http.StatusBadRequest},
		{"missing export", RunSessionRequest{SessionID: "s-missing"}, http.StatusBadRequest},
		{"unsafe session id", RunSessionRequest{SessionID: "../x", Export: pipelineExport()}, http.StatusBadRequest},
		{"existing session", RunSessionRequest{SessionID: "taken", Export: pipelineExport()}, http.StatusConflict},
		{"invalid export", RunSessionRequest{SessionID: "s-dup", Export: duplicate}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(router, "/api/sessions", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestRunSessionHandlerConcurrentSameID(t *testing.T) {
	router := setupTestServer(t, splitReviewer(), &fakeDeliberator{})

	const requests = 4
	statuses := make([]int, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			statuses[i] = postJSON(router, "/api/sessions", RunSessionRequest{SessionID: "dup-1", Export: pipelineExport()}).Code
		}(i)
	}
	wg.Wait()

	counts := make(map[int]int)
	for _, s := range statuses {
		counts[s]++
	}
	if counts[http.StatusOK] != 1 || counts[http.StatusConflict] != requests-1 {
		t.Errorf("statuses = %v, want one 200 and %d 409", statuses, requests-1)
	}
}

func TestRunSessionHandlerReleasesFailedSession(t *testing.T) {
	router := setupTestServer(t, &fakeReviewer{}, &fakeDeliberator{})

	if w := postJSON(router, "/api/sessions", RunSessionRequest{SessionID: "retry"}); w.Code != http.StatusBadRequest {
		t.Fatalf("missing export Status = %d, want 400", w.Code)
	}
	if _, err := os.Stat(GetSessionDir("retry")); !os.IsNotExist(err) {
		t.Errorf("failed run left session directory behind: %v", err)
	}

	if w := postJSON(router, "/api/sessions", RunSessionRequest{SessionID: "retry", Export: pipelineExport()}); w.Code != http.StatusOK {
		t.Errorf("retry Status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
}

func TestRunSessionHandlerNonFiniteConfidence(t *testing.T) {
	reviewer := &fakeReviewer{
		decide: func(member Member, motion MotionContext) (ReviewDecision, error) {
			d := endorseDecision()
			if member.Name == "Archon 60" {
				d.Confidence = math.NaN()
			}
			return d, nil
		},
	}
	router := setupTestServer(t, reviewer, &fakeDeliberator{})

	w := postJSON(router, "/api/sessions", RunSessionRequest{SessionID: "nan", Export: pipelineExport()})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}

	var result PipelineResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if result.Counts.MalformedResponses != 2 {
		t.Errorf("MalformedResponses = %d, want 2 (Archon 60 on two motions)", result.Counts.MalformedResponses)
	}
	if stored, _ := GetSession("nan"); stored == nil {
		t.Error("session with excluded review not persisted")
	}
}

func TestRunSessionHandlerExportURL(t *testing.T) {
	router := setupTestServer(t, &fakeReviewer{}, &fakeDeliberator{})

	exportServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(pipelineExport())
	}))
	defer exportServer.Close()

	w := postJSON(router, "/api/sessions", RunSessionRequest{SessionID: "from-url", ExportURL: exportServer.URL})
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, body = %s", w.Code, w.Body.String())
	}
}

func TestRunSessionStreamHandler(t *testing.T) {
	router := setupTestServer(t, splitReviewer(), &fakeDeliberator{})

	w := postJSON(router, "/api/sessions/stream", RunSessionRequest{SessionID: "stream-1", Export: pipelineExport()})

	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %s, want text/event-stream", ct)
	}

	var types []string
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("invalid SSE payload %q: %v", line, err)
		}
		types = append(types, event["type"].(string))
	}

	if len(types) != 14 {
		t.Fatalf("events = %v, want session_start, 6 phase pairs and complete", types)
	}
	if types[0] != "session_start" || types[1] != "phase_start" || types[13] != "complete" {
		t.Errorf("event order = %v", types)
	}

	if stored, _ := GetSession("stream-1"); stored == nil {
		t.Error("streamed session not persisted")
	}
}

func TestRunSessionStreamHandlerError(t *testing.T) {
	router := setupTestServer(t, &fakeReviewer{}, &fakeDeliberator{})

	export := pipelineExport()
	export.RatificationBallots = map[string]map[string]BallotChoice{"low": {"Stranger": BallotYea}}

	w := postJSON(router, "/api/sessions/stream", RunSessionRequest{SessionID: "bad-stream", Export: export})

	if !strings.Contains(w.Body.String(), `"type":"error"`) {
		t.Errorf("expected SSE error event, got %s", w.Body.String())
	}
}

func TestGetSessionHandler(t *testing.T) {
	router := setupTestServer(t, &fakeReviewer{}, &fakeDeliberator{})

	if err := SaveSession(sampleResult("on-disk", testTime())); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	w := getPath(router, "/api/sessions/on-disk")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	if _, ok := sessionCache.Get("on-disk"); !ok {
		t.Error("disk hit should populate the cache")
	}

	sessionCache.Set(&PipelineResult{SessionID: "cached-only"})
	if w := getPath(router, "/api/sessions/cached-only"); w.Code != http.StatusOK {
		t.Errorf("cached session Status = %d, want 200", w.Code)
	}

	if w := getPath(router, "/api/sessions/unknown"); w.Code != http.StatusNotFound {
		t.Errorf("unknown session Status = %d, want 404", w.Code)
	}
}

func TestListSessionsHandler(t *testing.T) {
	router := setupTestServer(t, &fakeReviewer{}, &fakeDeliberator{})

	SaveSession(sampleResult("a", testTime()))
	SaveSession(sampleResult("b", testTime().Add(time.Hour)))

	w := getPath(router, "/api/sessions")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}

	var sessions []SessionMetadata
	if err := json.Unmarshal(w.Body.Bytes(), &sessions); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if len(sessions) != 2 || sessions[0].SessionID != "b" {
		t.Errorf("sessions = %+v", sessions)
	}
}

func TestGetPacketHandler(t *testing.T) {
	router := setupTestServer(t, &fakeReviewer{}, &fakeDeliberator{})
	SaveSession(sampleResult("s1", testTime()))

	w := getPath(router, "/api/sessions/s1/packets/archon-01")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}

	var packet ReviewAssignment
	json.Unmarshal(w.Body.Bytes(), &packet)
	if packet.Member.Name != "Archon 01" {
		t.Errorf("packet member = %s", packet.Member.Name)
	}

	if w := getPath(router, "/api/sessions/s1/packets/archon-50"); w.Code != http.StatusNotFound {
		t.Errorf("missing packet Status = %d, want 404", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := setupTestServer(t, &fakeReviewer{}, &fakeDeliberator{})
	postJSON(router, "/api/sessions", RunSessionRequest{SessionID: "metrics", Export: pipelineExport()})

	w := getPath(router, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	for _, name := range []string{"motion_review_pipeline_runs_total", "motion_review_reviews_total", "motion_review_http_requests_total"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}

func TestAllowOrigin(t *testing.T) {
	oldOrigins := CORSAllowedOrigins
	defer func() { CORSAllowedOrigins = oldOrigins }()

	CORSAllowedOrigins = nil
	if !allowOrigin("http://localhost:5173") || !allowOrigin("http://127.0.0.1:3000") {
		t.Error("localhost origins should be allowed in development")
	}
	if allowOrigin("https://example.com") {
		t.Error("foreign origin allowed without configuration")
	}

	CORSAllowedOrigins = []string{"https://review.example.org"}
	if !allowOrigin("https://review.example.org") || allowOrigin("http://localhost:5173") {
		t.Error("configured origins should be the only ones allowed")
	}
}

// TestSendSSEEvent tests SSE event formatting
func TestSendSSEEvent(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	sendSSEEvent(c, gin.H{"type": "test", "data": "hello"})

	body := w.Body.String()
	if !strings.HasPrefix(body, "data: ") || !strings.HasSuffix(body, "\n\n") {
		t.Errorf("SSE frame = %q", body)
	}
}

// TestSendSSEError tests SSE error formatting
func TestSendSSEError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	sendSSEError(c, "something broke")

	if !strings.Contains(w.Body.String(), `"message":"something broke"`) {
		t.Errorf("SSE error frame = %q", w.Body.String())
	}
}
