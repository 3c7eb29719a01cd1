package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/ballast/internal/config"
	"github.com/aristath/ballast/internal/database"
	"github.com/aristath/ballast/internal/di"
	"github.com/aristath/ballast/internal/scheduler"
	testingpkg "github.com/aristath/ballast/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubJob struct {
	name string
	err  error
	runs int
}

func (j *stubJob) Run() error {
	j.runs++
	return j.err
}

func (j *stubJob) Name() string { return j.name }

// heldJob blocks in Run until release is closed.
type heldJob struct {
	name    string
	started chan struct{}
	release chan struct{}
}

func (j *heldJob) Run() error {
	close(j.started)
	<-j.release
	return nil
}

func (j *heldJob) Name() string { return j.name }

func setupTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		DataDir:            t.TempDir(),
		Port:               0,
		DevMode:            true,
		AnalysisServiceURL: "http://127.0.0.1:1",
		AnalysisTimeout:    time.Second,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		RecommendationTTL:  time.Hour,
		CleanupSchedule:    "0 0 * * * *",
		WALCheckpointCron:  "0 30 3 * * *",
		IntegrityCron:      "0 0 4 * * 0",
	}
	log := zerolog.Nop()

	container, err := di.Wire(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	return New(Config{Log: log, Config: cfg, Container: container})
}

func serve(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Health(t *testing.T) {
	s := setupTestServer(t)

	w := serve(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, map[string]string{"cache": "ok", "client_data": "ok"}, response.Databases)
}

func TestServer_HealthUnhealthyWhenDatabaseClosed(t *testing.T) {
	db := testingpkg.NewTestDB(t, database.NameCache)
	h := NewSystemHandlers(zerolog.Nop(), t.TempDir(), []*database.DB{db}, scheduler.New(zerolog.Nop()))
	require.NoError(t, db.Close())

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "unhealthy", response.Status)
	assert.NotEqual(t, "ok", response.Databases["cache"])
}

func TestServer_SystemStatus(t *testing.T) {
	s := setupTestServer(t)

	w := serve(s, http.MethodGet, "/api/system/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response SystemStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
	assert.GreaterOrEqual(t, response.UptimeSeconds, int64(0))
	assert.Greater(t, response.Goroutines, 0)
	assert.NotEmpty(t, response.GoVersion)
}

func TestServer_DatabaseStats(t *testing.T) {
	s := setupTestServer(t)

	w := serve(s, http.MethodGet, "/api/system/database/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response DatabaseStatsResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.Len(t, response.Databases, 2)
	assert.Equal(t, "cache", response.Databases[0].Name)
	assert.Equal(t, "client_data", response.Databases[1].Name)
	require.NotNil(t, response.Databases[0].Stats)
	assert.Greater(t, response.Databases[0].Stats.PageSize, int64(0))
}

func TestServer_Jobs(t *testing.T) {
	s := setupTestServer(t)

	w := serve(s, http.MethodGet, "/api/system/jobs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var listing struct {
		Jobs  []JobRun `json:"jobs"`
		Count int      `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&listing))
	assert.Equal(t, 4, listing.Count)
	assert.Equal(t, "client_data_cleanup", listing.Jobs[0].Name)
	assert.Empty(t, listing.Jobs[0].LastRun)

	w = serve(s, http.MethodPost, "/api/system/jobs/wal_checkpoint", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(s, http.MethodPost, "/api/system/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(s, http.MethodGet, "/api/system/jobs", nil)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&listing))
	assert.Equal(t, "wal_checkpoint", listing.Jobs[2].Name)
	assert.NotEmpty(t, listing.Jobs[2].LastRun)
}

func TestSystemHandlers_TriggerJobFailure(t *testing.T) {
	h := NewSystemHandlers(zerolog.Nop(), t.TempDir(), nil, scheduler.New(zerolog.Nop()))
	failing := &stubJob{name: "failing", err: errors.New("disk full")}
	h.SetJobs(failing, nil)

	router := chi.NewRouter()
	router.Post("/api/system/jobs/{name}", h.HandleTriggerJob)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/system/jobs/failing", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, "disk full", h.lastRun["failing"].Error)
}

func TestSystemHandlers_TriggerJobWhileRunning(t *testing.T) {
	tests := []struct {
		name string
		hold func(t *testing.T, sched *scheduler.Scheduler, router http.Handler, job *heldJob) <-chan int
	}{
		{
			name: "second manual trigger",
			hold: func(t *testing.T, sched *scheduler.Scheduler, router http.Handler, job *heldJob) <-chan int {
				done := make(chan int, 1)
				go func() {
					w := httptest.NewRecorder()
					router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/system/jobs/client_data_cleanup", nil))
					done <- w.Code
				}()
				return done
			},
		},
		{
			name: "scheduler already running the job",
			hold: func(t *testing.T, sched *scheduler.Scheduler, router http.Handler, job *heldJob) <-chan int {
				done := make(chan int, 1)
				go func() {
					if err := sched.RunNow(job); err != nil {
						done <- http.StatusInternalServerError
						return
					}
					done <- http.StatusOK
				}()
				return done
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := scheduler.New(zerolog.Nop())
			h := NewSystemHandlers(zerolog.Nop(), t.TempDir(), nil, sched)
			job := &heldJob{name: "client_data_cleanup", started: make(chan struct{}), release: make(chan struct{})}
			h.SetJobs(job)

			router := chi.NewRouter()
			router.Post("/api/system/jobs/{name}", h.HandleTriggerJob)

			done := tt.hold(t, sched, router, job)
			<-job.started

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/system/jobs/client_data_cleanup", nil))
			assert.Equal(t, http.StatusConflict, w.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Contains(t, body["message"], "job already running")

			close(job.release)
			assert.Equal(t, http.StatusOK, <-done)

			// A refused trigger does not overwrite the last run
			h.mu.RLock()
			last := h.lastRun["client_data_cleanup"]
			h.mu.RUnlock()
			assert.Empty(t, last.Error)
		})
	}
}

func TestServer_RebalancingRoutes(t *testing.T) {
	s := setupTestServer(t)

	body, err := json.Marshal(map[string]interface{}{
		"symbols": []string{"AAPL", "MSFT", "GOOG", "AMZN"},
		"weights": []float64{40, 30, 20, 10},
		"method":  "equal",
	})
	require.NoError(t, err)

	w := serve(s, http.MethodPost, "/api/rebalancing/recommend", body)
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data struct {
			UUID string `json:"uuid"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	require.NotEmpty(t, response.Data.UUID)

	w = serve(s, http.MethodGet, "/api/rebalancing/recommendations/"+response.Data.UUID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(s, http.MethodGet, "/api/rebalancing/settings", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_CORS(t *testing.T) {
	s := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/rebalancing/recommend", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
