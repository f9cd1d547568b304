package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yjing-lab/pulsegraph/internal/config"
	"github.com/yjing-lab/pulsegraph/internal/store"
	"github.com/yjing-lab/pulsegraph/internal/timestep"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeCorpus implements store.Corpus over an in-memory slice
type fakeCorpus struct {
	txs []store.Transaction
}

func (f *fakeCorpus) LoadAll(ctx context.Context) ([]store.Transaction, error) {
	return f.txs, nil
}

func (f *fakeCorpus) LoadShard(ctx context.Context, daysAgo int) ([]store.Transaction, error) {
	return f.txs, nil
}

func (f *fakeCorpus) LoadRange(ctx context.Context, startDaysAgo, endDaysAgo int) ([]store.Transaction, error) {
	return f.txs, nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:             "0",
		Env:              "test",
		LogLevel:         "error",
		BaseTime:         timestep.DefaultBaseTime,
		MaxStep:          timestep.DefaultMaxStep,
		RiskThreshold:    0.5,
		AmountPercentile: 95,
		ScoreBase:        600,
		ScorePDO:         20,
		WeightProb:       0.6,
		WeightAmount:     0.3,
		WeightLogOdds:    0.1,
	}
}

// corpusFixture is a small population around account A001. Steps: 744 is the
// default anchor hour, 700 and 600 fall on earlier days.
func corpusFixture() *fakeCorpus {
	return &fakeCorpus{txs: []store.Transaction{
		{TransactionID: "T1", Step: 744, OrigID: "A001", DestID: "A002", Amount: 5000, FraudProb: 0.9},
		{TransactionID: "T2", Step: 744, OrigID: "A002", DestID: "A003", Amount: 50, FraudProb: 0.2},
		{TransactionID: "T3", Step: 700, OrigID: "A001", DestID: "A004", Amount: 800, FraudProb: 0.6},
		{TransactionID: "T4", Step: 600, OrigID: "A005", DestID: "A001", Amount: 10, FraudProb: 0.1},
	}}
}

// newTestServer creates a server over the in-memory corpus fixture
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), WithCorpus(corpusFixture()))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, jsonBody(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	s.router.ServeHTTP(w, req)

	resp := make(map[string]interface{})
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, resp := doJSON(t, s, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, _ := doJSON(t, s, "GET", "/health/live", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w, _ := doJSON(t, s, "GET", "/health/ready", "")
	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"GET:/api/v1/network/ego",
		"GET:/api/v1/network/high-risk",
		"POST:/api/v1/transactions/query",
		"GET:/api/v1/risk/scorecard",
		"POST:/api/v1/risk/score",
		"GET:/api/v1/risk/baseline",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w, _ := doJSON(t, s, "GET", "/api/v1/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
