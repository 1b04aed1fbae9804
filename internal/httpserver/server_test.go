package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/postsmith/postsmith/internal/config"
	"github.com/postsmith/postsmith/internal/models"
	"github.com/postsmith/postsmith/internal/pipeline"
	"github.com/postsmith/postsmith/internal/store"
)

const testSecret = "test-secret"

type stubRunner struct {
	result models.PublishResult
	last   models.GenerationRequest
	calls  int
}

func (s *stubRunner) Run(ctx context.Context, req models.GenerationRequest) models.PublishResult {
	s.calls++
	s.last = req
	return s.result
}

func newTestServer(runner *stubRunner) http.Handler {
	cfg := config.Config{JWTSecret: testSecret}
	return New(cfg, store.NewMemoryStore(), runner).Router()
}

func signedToken(t *testing.T, account uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": account.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func doRequest(router http.Handler, method, path string, body []byte, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

const runBody = `{"topicKeyword":"wall panels","category":{"name":"Wall Panels"},"style":{"wordCountMin":1000,"wordCountMax":2000,"imageCount":3},"site":{"baseUrl":"https://shop.example","username":"editor","appPassword":"secret"}}`

func TestRunRequiresAuth(t *testing.T) {
	runner := &stubRunner{}
	router := newTestServer(runner)

	rec := doRequest(router, "POST", "/pipeline/run", []byte(runBody), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if runner.calls != 0 {
		t.Fatalf("pipeline must not run unauthenticated")
	}
}

func TestRunSuccess(t *testing.T) {
	runner := &stubRunner{result: models.PublishResult{
		Success:   true,
		RemoteURL: "https://shop.example/wall-panels",
		RemoteID:  314,
		WordCount: 1480,
	}}
	router := newTestServer(runner)
	account := uuid.New()

	rec := doRequest(router, "POST", "/pipeline/run", []byte(runBody), signedToken(t, account))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if runner.last.AccountID != account {
		t.Fatalf("account from token not threaded into the request")
	}
	if runner.last.RequestID == uuid.Nil {
		t.Fatalf("expected a generated request id")
	}

	var resp models.PublishResult
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RemoteURL != "https://shop.example/wall-panels" {
		t.Fatalf("unexpected remote url %q", resp.RemoteURL)
	}
}

func TestRunStatusByFailureKind(t *testing.T) {
	cases := []struct {
		kind   string
		status int
	}{
		{pipeline.KindInsufficientFunds, http.StatusPaymentRequired},
		{pipeline.KindConfiguration, http.StatusUnprocessableEntity},
		{pipeline.KindTextGeneration, http.StatusBadGateway},
		{pipeline.KindPublish, http.StatusBadGateway},
	}
	for _, tc := range cases {
		runner := &stubRunner{result: models.PublishResult{Success: false, Kind: tc.kind, Error: "boom"}}
		router := newTestServer(runner)

		rec := doRequest(router, "POST", "/pipeline/run", []byte(runBody), signedToken(t, uuid.New()))
		if rec.Code != tc.status {
			t.Fatalf("kind %s: expected %d, got %d", tc.kind, tc.status, rec.Code)
		}
	}
}

func TestRunRejectsNegativeStyleValues(t *testing.T) {
	bodies := []string{
		`{"topicKeyword":"x","category":{"name":"C"},"style":{"imageCount":-10},"site":{"baseUrl":"https://s","username":"u","appPassword":"p"}}`,
		`{"topicKeyword":"x","category":{"name":"C"},"style":{"wordCountMin":-100,"wordCountMax":500},"site":{"baseUrl":"https://s","username":"u","appPassword":"p"}}`,
		`{"topicKeyword":"x","category":{"name":"C"},"style":{"wordCountMin":2000,"wordCountMax":500},"site":{"baseUrl":"https://s","username":"u","appPassword":"p"}}`,
	}
	for _, body := range bodies {
		runner := &stubRunner{}
		router := newTestServer(runner)

		rec := doRequest(router, "POST", "/pipeline/run", []byte(body), signedToken(t, uuid.New()))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected 400, got %d (%s)", body, rec.Code, rec.Body.String())
		}
		if runner.calls != 0 {
			t.Fatalf("body %s: pipeline must not run with invalid style values", body)
		}
	}
}

func TestRunRejectsMissingCategory(t *testing.T) {
	runner := &stubRunner{}
	router := newTestServer(runner)

	rec := doRequest(router, "POST", "/pipeline/run", []byte(`{"topicKeyword":"x"}`), signedToken(t, uuid.New()))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRunRejectsWrongSigningKey(t *testing.T) {
	runner := &stubRunner{}
	router := newTestServer(runner)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": uuid.New().String()})
	s, err := token.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec := doRequest(router, "POST", "/pipeline/run", []byte(runBody), s)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", rec.Code)
	}
}

func TestDebugTokenPath(t *testing.T) {
	runner := &stubRunner{result: models.PublishResult{Success: true}}
	cfg := config.Config{AllowDebugToken: true, DebugToken: "dev-token"}
	router := New(cfg, store.NewMemoryStore(), runner).Router()
	account := uuid.New()

	req := httptest.NewRequest("POST", "/pipeline/run", bytes.NewReader([]byte(runBody)))
	req.Header.Set("X-Debug-Token", "dev-token")
	req.Header.Set("X-Account-ID", account.String())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if runner.last.AccountID != account {
		t.Fatalf("debug account header not threaded into the request")
	}
}

func TestStagesEndpointIsPublic(t *testing.T) {
	router := newTestServer(&stubRunner{})

	rec := doRequest(router, "GET", "/pipeline/stages", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Stages []string `json:"stages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Stages) != len(pipeline.Stages) {
		t.Fatalf("expected %d stages, got %d", len(pipeline.Stages), len(resp.Stages))
	}
}

func TestHealth(t *testing.T) {
	router := newTestServer(&stubRunner{})

	rec := doRequest(router, "GET", "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
