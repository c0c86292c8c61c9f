// Package testutil provides common test utilities and helpers for FastTrack tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BTreeMap/FastTrack/internal/api"
	"github.com/BTreeMap/FastTrack/internal/engine"
	"github.com/BTreeMap/FastTrack/internal/ledger"
	"github.com/BTreeMap/FastTrack/internal/models"
	"github.com/BTreeMap/FastTrack/internal/notify"
	"github.com/BTreeMap/FastTrack/internal/plans"
	"github.com/BTreeMap/FastTrack/internal/scheduler"
	"github.com/BTreeMap/FastTrack/internal/store"
)

// TestRig bundles the in-memory modules behind a test API server so tests
// can reach both the HTTP surface and the underlying state.
type TestRig struct {
	Server  *api.Server
	Store   *store.InMemoryStore
	Ledger  *ledger.Ledger
	Catalog *plans.Catalog
	Engine  *engine.Engine
}

// NewTestServer creates a test API server with in-memory dependencies.
// This centralizes the test server creation logic used across multiple test files.
func NewTestServer(t *testing.T, engineOpts ...engine.Option) *TestRig {
	t.Helper()
	st := store.NewInMemoryStore()
	catalog := plans.Default()
	led := ledger.New(st)

	sched := scheduler.NewScheduler()
	gateway := notify.NewLocalGateway(sched)
	service := notify.NewService(gateway)

	opts := append([]engine.Option{engine.WithTickInterval(time.Hour)}, engineOpts...)
	eng, err := engine.NewEngine(catalog, st, led, service, opts...)
	if err != nil {
		t.Fatalf("failed to create test engine: %v", err)
	}

	t.Cleanup(func() {
		eng.Close()
		service.Close()
		sched.Stop()
	})

	return &TestRig{
		Server:  api.NewServer(eng, catalog, led),
		Store:   st,
		Ledger:  led,
		Catalog: catalog,
		Engine:  eng,
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// SeedSessions adds sample session records to the store for testing.
func SeedSessions(t *testing.T, st store.Store, sessions ...models.Session) {
	t.Helper()
	for _, s := range sessions {
		if err := st.AddSession(s); err != nil {
			t.Fatalf("failed to seed session %s: %v", s.ID, err)
		}
	}
}

// CompletedSession builds a valid completed session starting at the given time.
func CompletedSession(id string, start time.Time, minutes float64) models.Session {
	return models.Session{
		ID:                    id,
		PlanID:                plans.DefaultPlanID,
		StartTime:             start,
		EndTime:               start.Add(time.Duration(minutes) * time.Minute),
		ActualDurationMinutes: minutes,
		TargetDurationMinutes: minutes,
		Status:                models.SessionCompleted,
		CreatedAt:             start,
		UpdatedAt:             start,
	}
}
