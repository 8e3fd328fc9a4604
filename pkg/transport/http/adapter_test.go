package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/wingman-dev/wingman/pkg/api"
	"github.com/wingman-dev/wingman/pkg/auth"
	"github.com/wingman-dev/wingman/pkg/storage"
	storagemem "github.com/wingman-dev/wingman/pkg/storage/memory"
	"github.com/wingman-dev/wingman/pkg/transport"
)

// stubCreator returns canned results or errors, optionally blocking
// until the context is cancelled.
type stubCreator struct {
	result  *api.PipelineResult
	err     error
	started chan struct{} // closed when a blocking call begins
	block   bool
}

func (s *stubCreator) CreateReply(ctx context.Context, req *api.PipelineRequest) (*api.PipelineResult, error) {
	if s.block {
		if s.started != nil {
			close(s.started)
		}
		<-ctx.Done()
		return nil, api.NewTimeout("reply generation aborted").WithCause(ctx.Err())
	}
	if s.err != nil {
		return nil, s.err
	}
	result := *s.result
	result.RequestID = req.RequestID
	return &result, nil
}

// newFailure saves one extraction failure record and returns it.
func newFailure(t *testing.T, store *storagemem.Store, requestID, raw string) *storage.FailureRecord {
	t.Helper()
	rec := storage.NewFailureRecord(requestID, api.StagePersonaAnalysis, "primary", raw, errors.New("no JSON object found"))
	if err := store.SaveFailure(context.Background(), rec); err != nil {
		t.Fatalf("saving failure record: %v", err)
	}
	return rec
}

const validBody = `{
	"conversation": [{"speaker": "alex", "text": "free this weekend?"}],
	"participants": ["alex", "me"]
}`

func TestCreateReplySuccess(t *testing.T) {
	creator := &stubCreator{result: &api.PipelineResult{Reply: "yeah, saturday works!"}}
	a := NewAdapter(creator, nil, DefaultConfig())

	req := httptest.NewRequest("POST", "/v1/replies", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var result api.PipelineResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.Reply != "yeah, saturday works!" {
		t.Errorf("reply = %q, want the stub reply", result.Reply)
	}
	if result.RequestID == "" {
		t.Error("request ID missing from result")
	}
}

func TestCreateReplyInvalidJSON(t *testing.T) {
	a := NewAdapter(&stubCreator{result: &api.PipelineResult{}}, nil, DefaultConfig())

	req := httptest.NewRequest("POST", "/v1/replies", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateReplyWrongContentType(t *testing.T) {
	a := NewAdapter(&stubCreator{result: &api.PipelineResult{}}, nil, DefaultConfig())

	req := httptest.NewRequest("POST", "/v1/replies", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", rec.Code)
	}
}

func TestCreateReplyBodyTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodySize = 16
	a := NewAdapter(&stubCreator{result: &api.PipelineResult{}}, nil, cfg)

	req := httptest.NewRequest("POST", "/v1/replies", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestCreateReplyErrorMapping(t *testing.T) {
	creator := &stubCreator{err: api.NewTimeout("pipeline deadline expired")}
	a := NewAdapter(creator, nil, DefaultConfig())

	req := httptest.NewRequest("POST", "/v1/replies", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", rec.Code)
	}

	var body transport.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body.Error.Kind != api.ErrorTimeout {
		t.Errorf("kind = %q, want %q", body.Error.Kind, api.ErrorTimeout)
	}
}

func TestCreateReplyAuthTierOverridesBody(t *testing.T) {
	var gotTier string
	creator := transport.ReplyCreatorFunc(func(ctx context.Context, req *api.PipelineRequest) (*api.PipelineResult, error) {
		gotTier = req.Tier
		return &api.PipelineResult{}, nil
	})
	a := NewAdapter(creator, nil, DefaultConfig())

	// The body claims premium; the authenticated identity says free.
	body := `{
		"conversation": [{"speaker": "alex", "text": "hi"}],
		"participants": ["alex"],
		"tier": "premium"
	}`
	req := httptest.NewRequest("POST", "/v1/replies", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(auth.SetIdentity(req.Context(), &auth.Identity{Subject: "alice", ServiceTier: "free"}))

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotTier != "free" {
		t.Errorf("tier = %q, want %q (identity wins over body)", gotTier, "free")
	}
}

func TestCancelRunningReply(t *testing.T) {
	creator := &stubCreator{block: true, started: make(chan struct{})}
	a := NewAdapter(creator, nil, DefaultConfig())
	handler := a.Handler()

	requestID := api.NewRequestID()
	body := `{
		"request_id": "` + requestID + `",
		"conversation": [{"speaker": "alex", "text": "hi"}],
		"participants": ["alex"]
	}`

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest("POST", "/v1/replies", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		done <- rec
	}()

	<-creator.started

	cancelReq := httptest.NewRequest("DELETE", "/v1/replies/"+requestID, nil)
	cancelRec := httptest.NewRecorder()
	handler.ServeHTTP(cancelRec, cancelReq)

	if cancelRec.Code != http.StatusNoContent {
		t.Errorf("cancel status = %d, want 204", cancelRec.Code)
	}

	select {
	case rec := <-done:
		if rec.Code != http.StatusGatewayTimeout {
			t.Errorf("aborted request status = %d, want 504", rec.Code)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request did not complete")
	}
}

func TestCancelUnknownID(t *testing.T) {
	a := NewAdapter(&stubCreator{result: &api.PipelineResult{}}, nil, DefaultConfig())

	req := httptest.NewRequest("DELETE", "/v1/replies/"+api.NewRequestID(), nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCancelMalformedID(t *testing.T) {
	a := NewAdapter(&stubCreator{result: &api.PipelineResult{}}, nil, DefaultConfig())

	req := httptest.NewRequest("DELETE", "/v1/replies/not-a-request-id", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFailureEndpoints(t *testing.T) {
	store := storagemem.New(10)
	defer store.Close()

	saved := newFailure(t, store, "req_aaaaaaaaaaaaaaaaaaaaaaaa", "output was prose")
	a := NewAdapter(&stubCreator{result: &api.PipelineResult{}}, store, DefaultConfig())
	handler := a.Handler()

	// List.
	listReq := httptest.NewRequest("GET", "/v1/failures?limit=5", nil)
	listRec := httptest.NewRecorder()
	handler.ServeHTTP(listRec, listReq)
	if listRec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", listRec.Code)
	}
	if !strings.Contains(listRec.Body.String(), saved.ID) {
		t.Errorf("list body missing record ID %s: %s", saved.ID, listRec.Body.String())
	}

	// Get by ID.
	getReq := httptest.NewRequest("GET", "/v1/failures/"+saved.ID, nil)
	getRec := httptest.NewRecorder()
	handler.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getRec.Code)
	}

	// Unknown ID.
	missReq := httptest.NewRequest("GET", "/v1/failures/00000000-0000-0000-0000-000000000000", nil)
	missRec := httptest.NewRecorder()
	handler.ServeHTTP(missRec, missReq)
	if missRec.Code != http.StatusNotFound {
		t.Errorf("missing record status = %d, want 404", missRec.Code)
	}

	// Bad limit.
	badReq := httptest.NewRequest("GET", "/v1/failures?limit=zero", nil)
	badRec := httptest.NewRecorder()
	handler.ServeHTTP(badRec, badReq)
	if badRec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", badRec.Code)
	}
}

func TestFailureEndpointsWithoutStore(t *testing.T) {
	a := NewAdapter(&stubCreator{result: &api.PipelineResult{}}, nil, DefaultConfig())

	req := httptest.NewRequest("GET", "/v1/failures", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	a := NewAdapter(&stubCreator{result: &api.PipelineResult{}}, nil, DefaultConfig())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

type failingChecker struct{}

func (failingChecker) HealthCheck(context.Context) error { return errors.New("backend down") }

type okChecker struct{}

func (okChecker) HealthCheck(context.Context) error { return nil }

func TestReadyz(t *testing.T) {
	a := NewAdapter(&stubCreator{result: &api.PipelineResult{}}, nil, DefaultConfig())
	a.RegisterReadiness("cache", okChecker{})

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with healthy checks", rec.Code)
	}

	a.RegisterReadiness("storage", failingChecker{})
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 with a failing check", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "backend down") {
		t.Errorf("readiness body missing check error: %s", rec.Body.String())
	}
}

func TestRequestIDHeaderEcho(t *testing.T) {
	a := NewAdapter(&stubCreator{result: &api.PipelineResult{}}, nil, DefaultConfig())

	req := httptest.NewRequest("POST", "/v1/replies", strings.NewReader(validBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "client-chosen-id")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "client-chosen-id" {
		t.Errorf("X-Request-ID = %q, want the client value echoed", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := NewAdapter(&stubCreator{result: &api.PipelineResult{}}, nil, DefaultConfig())

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "wingman_") {
		t.Error("metrics output missing wingman_ series")
	}
}
