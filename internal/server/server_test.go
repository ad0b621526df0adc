package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-autolab/infrastructure/catalog"
	"github.com/ahrav/go-autolab/infrastructure/middleware"
	"github.com/ahrav/go-autolab/infrastructure/store"
	"github.com/ahrav/go-autolab/internal/application"
	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// newTestServer wires a real service over a memory store with every
// generating stage falling back.
func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	papers, err := catalog.Default()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics := middleware.NewPrometheusMetrics(reg)

	orch, err := application.NewOrchestrator(application.NewDefaultUnitRegistry(nil, papers), nil,
		application.WithMetrics(metrics))
	require.NoError(t, err)
	svc, err := application.NewAnalysisService(store.NewMemoryStore(), orch,
		application.WithServiceMetrics(metrics))
	require.NoError(t, err)

	return New(svc, WithGatherer(reg)).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func cutIn() map[string]any {
	return map[string]any{
		"event_type":    "cut_in",
		"severity":      "high",
		"start_frame":   10,
		"end_frame":     40,
		"ego_speed_mps": 22.5,
		"weather":       "rain",
		"cut_in_flag":   true,
	}
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t), http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestEventLifecycle(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/events", cutIn())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decode[domain.Event](t, rec)
	require.NotEmpty(t, event.ID)
	assert.Equal(t, domain.EventCutIn, event.Type)

	rec = do(t, h, http.MethodGet, "/api/events/"+event.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, event.ID, decode[domain.Event](t, rec).ID)

	rec = do(t, h, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Event](t, rec), 1)

	rec = do(t, h, http.MethodGet, "/api/events/"+event.ID+"/analysis", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no analysis yet")

	rec = do(t, h, http.MethodPost, "/api/events/"+event.ID+"/analyze", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[domain.AnalysisResult](t, rec)
	assert.Equal(t, event.ID, result.EventID)
	assert.Equal(t, domain.InitialVersion, result.SafetyGenomeVersion)

	rec = do(t, h, http.MethodGet, "/api/events/"+event.ID+"/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, result.ID, decode[domain.AnalysisResult](t, rec).ID)

	rec = do(t, h, http.MethodGet, "/api/analyses/"+result.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, result.Decision.Winner, decode[domain.AnalysisResult](t, rec).Decision.Winner)

	rec = do(t, h, http.MethodGet, "/api/analyses?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.AnalysisResult](t, rec), 1)
}

func TestAdHocAnalysisAndStrategies(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/analyses", cutIn())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	result := decode[domain.AnalysisResult](t, rec)
	require.NotEmpty(t, result.EventID)

	rec = do(t, h, http.MethodGet, "/api/events/"+result.EventID, nil)
	require.Equal(t, http.StatusOK, rec.Code, "ad-hoc events are stored")

	rec = do(t, h, http.MethodGet, "/api/labs/strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]LabStrategies](t, rec)
	require.Len(t, all, 2)
	assert.Equal(t, domain.SafetyLab, all[0].LabName)
	assert.Equal(t, domain.PerformanceLab, all[1].LabName)
	for _, lab := range all {
		require.NotEmpty(t, lab.Versions)
		assert.Equal(t, domain.InitialVersion, lab.Versions[0].Version)
	}

	rec = do(t, h, http.MethodGet, "/api/labs/SafetyLab/strategies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	one := decode[LabStrategies](t, rec)
	assert.Equal(t, domain.SafetyLab, one.LabName)
	assert.Equal(t, all[0].Versions[len(all[0].Versions)-1].Version, one.Versions[len(one.Versions)-1].Version)

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "autolab_analyses_total")
}

func TestErrorResponses(t *testing.T) {
	h := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "unknown event", method: http.MethodGet, path: "/api/events/nope", want: http.StatusNotFound},
		{name: "analyze unknown event", method: http.MethodPost, path: "/api/events/nope/analyze", want: http.StatusNotFound},
		{name: "analysis of unknown event", method: http.MethodGet, path: "/api/events/nope/analysis", want: http.StatusNotFound},
		{name: "unknown analysis", method: http.MethodGet, path: "/api/analyses/nope", want: http.StatusNotFound},
		{name: "unknown lab", method: http.MethodGet, path: "/api/labs/ComfortLab/strategies", want: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, path: "/api/events", body: "{", want: http.StatusBadRequest},
		{name: "invalid event type", method: http.MethodPost, path: "/api/events", body: map[string]any{"event_type": "tailgating"}, want: http.StatusBadRequest},
		{name: "invalid ad-hoc event", method: http.MethodPost, path: "/api/analyses", body: map[string]any{"event_type": "cut_in", "severity": "extreme"}, want: http.StatusBadRequest},
		{name: "bad limit", method: http.MethodGet, path: "/api/events?limit=zero", want: http.StatusBadRequest},
		{name: "negative limit", method: http.MethodGet, path: "/api/analyses?limit=-1", want: http.StatusBadRequest},
		{name: "unknown route", method: http.MethodGet, path: "/api/frames/1", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestDuplicateEventConflicts(t *testing.T) {
	h := newTestServer(t)
	body := cutIn()
	body["id"] = "evt-42"

	rec := do(t, h, http.MethodPost, "/api/events", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/events", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: fmt.Errorf("wrapped: %w", domain.ErrEventNotFound), want: http.StatusNotFound},
		{err: domain.ErrAnalysisNotFound, want: http.StatusNotFound},
		{err: domain.ErrGenomeNotFound, want: http.StatusNotFound},
		{err: domain.ErrUnknownLab, want: http.StatusBadRequest},
		{err: domain.ErrInvalidState, want: http.StatusBadRequest},
		{err: ports.NewStoreError("event", "save", ports.ErrConflict), want: http.StatusConflict},
		{err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{err: assert.AnError, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.err.Error(), " ", "_"), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

// failingService returns an internal error from every call.
type failingService struct{ Service }

func (failingService) ListEvents(context.Context, int) ([]domain.Event, error) {
	return nil, fmt.Errorf("disk on fire")
}

func TestInternalErrorsAreHidden(t *testing.T) {
	h := New(failingService{}, WithGatherer(prometheus.NewRegistry())).Handler()

	rec := do(t, h, http.MethodGet, "/api/events", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}
