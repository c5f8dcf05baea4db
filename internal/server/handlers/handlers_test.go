package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/showbarn/growthengine/internal/domain/models"
	"github.com/showbarn/growthengine/internal/repository/memory"
	"github.com/showbarn/growthengine/internal/service/analysis"
	"github.com/showbarn/growthengine/internal/service/goals"
	"github.com/showbarn/growthengine/internal/service/ledger"
	"github.com/showbarn/growthengine/internal/service/statistics"
)

const subjectID = "heifer-031"

func newTestRouter(t *testing.T) (*gin.Engine, *memory.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	tracker := goals.NewTracker(store.Goals(), nil)
	cache := statistics.NewCache(store.Statistics(), store, nil)
	analyzer := analysis.NewAnalyzer(store, nil)
	svc := ledger.NewService(store, store.Audit(), tracker, cache, nil, nil)

	r := gin.New()
	api := r.Group("/api/v1/subjects/:subject")

	mh := NewMeasurementHandler(svc, nil)
	api.POST("/measurements", mh.Append)
	api.GET("/measurements", mh.History)
	api.GET("/measurements/latest", mh.Latest)

	gh := NewGoalHandler(tracker, nil)
	api.POST("/goals", gh.Create)
	api.GET("/goals", gh.List)

	ah := NewAnalyticsHandler(analyzer, cache, nil)
	api.GET("/trend", ah.Trend)
	api.GET("/statistics", ah.Statistics)

	return r, store
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func measurementBody(date string, value float64) map[string]any {
	return map[string]any{
		"value":  value,
		"unit":   "pound",
		"date":   date + "T00:00:00Z",
		"method": "digital_scale",
	}
}

func subjectPath(suffix string) string {
	return fmt.Sprintf("/api/v1/subjects/%s%s", subjectID, suffix)
}

func TestAppendMeasurementEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, subjectPath("/measurements"), measurementBody("2026-01-01", 100))
	require.Equal(t, http.StatusCreated, w.Code)

	var m models.Measurement
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	require.Equal(t, subjectID, m.SubjectID)
	require.Equal(t, 100.0, m.Value)
	require.Equal(t, models.StatusActive, m.Status)
}

func TestAppendMeasurementValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, subjectPath("/measurements"), measurementBody("2026-01-01", 6000))
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodPost, subjectPath("/measurements"), map[string]any{"value": 100})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAppendMeasurementDuplicateSlot(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, subjectPath("/measurements"), measurementBody("2026-01-01", 100))
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPost, subjectPath("/measurements"), measurementBody("2026-01-01", 101))
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestHistoryEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	for i, v := range []float64{100, 115.5, 145} {
		date := fmt.Sprintf("2026-01-%02d", 1+10*i)
		w := doJSON(t, r, http.MethodPost, subjectPath("/measurements"), measurementBody(date, v))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, r, http.MethodGet, subjectPath("/measurements?from=2026-01-05&to=2026-01-15"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Measurements []models.Measurement `json:"measurements"`
		Count        int                  `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	require.Equal(t, 115.5, resp.Measurements[0].Value)

	w = doJSON(t, r, http.MethodGet, subjectPath("/measurements?from=bogus"), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLatestEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, subjectPath("/measurements/latest"), nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	doJSON(t, r, http.MethodPost, subjectPath("/measurements"), measurementBody("2026-01-01", 100))
	doJSON(t, r, http.MethodPost, subjectPath("/measurements"), measurementBody("2026-01-11", 115.5))

	w = doJSON(t, r, http.MethodGet, subjectPath("/measurements/latest"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var m models.Measurement
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	require.Equal(t, 115.5, m.Value)
}

func TestGoalEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, subjectPath("/goals"), map[string]any{
		"target_weight":   150,
		"unit":            "pound",
		"target_date":     "2026-06-01T00:00:00Z",
		"starting_weight": 100,
		"starting_date":   "2026-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var goal models.Goal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &goal))
	require.Equal(t, models.GoalActive, goal.Status)

	// Equal target and starting weight is a 400.
	w = doJSON(t, r, http.MethodPost, subjectPath("/goals"), map[string]any{
		"target_weight":   100,
		"unit":            "pound",
		"target_date":     "2026-06-01T00:00:00Z",
		"starting_weight": 100,
		"starting_date":   "2026-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, r, http.MethodGet, subjectPath("/goals"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Goals []models.Goal `json:"goals"`
		Count int           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
}

func TestTrendEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	for i := 0; i < 5; i++ {
		date := fmt.Sprintf("2026-01-%02d", 1+i)
		doJSON(t, r, http.MethodPost, subjectPath("/measurements"), measurementBody(date, 100+float64(i)*2))
	}

	w := doJSON(t, r, http.MethodGet, subjectPath("/trend?window_days=30"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res analysis.TrendResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Equal(t, analysis.TrendIncreasing, res.Direction)
	require.Equal(t, 5, res.Samples)

	w = doJSON(t, r, http.MethodGet, subjectPath("/trend?window_days=-1"), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatisticsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	doJSON(t, r, http.MethodPost, subjectPath("/measurements"), measurementBody("2026-01-01", 100))
	doJSON(t, r, http.MethodPost, subjectPath("/measurements"), measurementBody("2026-01-11", 115.5))

	// fresh=true recomputes the snapshot that the appends left stale.
	w := doJSON(t, r, http.MethodGet, subjectPath("/statistics?fresh=true"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snap models.StatisticsSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Equal(t, 2, snap.TotalMeasurements)
	require.False(t, snap.Stale)
	require.Equal(t, 115.5, *snap.CurrentWeight)
}
