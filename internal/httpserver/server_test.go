package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/pestguard-go/internal/conf"
	"github.com/tphakala/pestguard-go/internal/datastore"
	"github.com/tphakala/pestguard-go/internal/diagnostics"
	"github.com/tphakala/pestguard-go/internal/effectiveness"
	"github.com/tphakala/pestguard-go/internal/grouping"
	"github.com/tphakala/pestguard-go/internal/settings"
)

func newTestServer(t *testing.T, mock *datastore.MockStore) *Server {
	t.Helper()

	cfg := &conf.Settings{}
	cfg.Version = "test"
	cfg.Ops.Listen = "127.0.0.1:0"

	tracker := diagnostics.NewTracker()
	grouper := grouping.New(mock, settings.New(mock))
	stats := effectiveness.New(mock)

	return New(cfg, tracker, grouper, stats, nil)
}

func doRequest(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &datastore.MockStore{})
	rec := doRequest(s, http.MethodGet, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Contains(t, body, "cameras")
}

func TestDiagnosticsEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &datastore.MockStore{})
	for range 3 {
		s.tracker.Record("Pond Camera", "HTTP 500", "snapshot failed")
	}

	rec := doRequest(s, http.MethodGet, "/api/v1/diagnostics/Pond%20Camera")
	require.Equal(t, http.StatusOK, rec.Code)

	var body diagnosticsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Pond Camera", body.Camera)
	assert.Len(t, body.Errors, 3)
	assert.NotEmpty(t, body.Suggestions)
}

func TestGroupsEndpoint(t *testing.T) {
	t.Parallel()

	mock := &datastore.MockStore{}
	detections := []datastore.Detection{
		{ID: 1, ImageHash: "0000000000000000", CreatedAt: time.Now()},
		{ID: 2, ImageHash: "0000000000000000", CreatedAt: time.Now().Add(-time.Minute)},
	}
	mock.On("GetRecentDetections", 100).Return(detections, nil)
	mock.On("GetDetectionFoes", uint(1)).Return([]datastore.Foe{}, nil)
	mock.On("GetDetectionFoes", uint(2)).Return([]datastore.Foe{}, nil)
	mock.On("GetSetting", settings.KeySimilarityThreshold).Return("", gorm.ErrRecordNotFound)
	mock.On("GetSetting", settings.KeyMaxGroupSize).Return("", gorm.ErrRecordNotFound)

	s := newTestServer(t, mock)
	rec := doRequest(s, http.MethodGet, "/api/v1/groups")
	require.Equal(t, http.StatusOK, rec.Code)

	var groups []grouping.Group
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &groups))
	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Members, 2)
}

func TestGroupsEndpointRejectsBadLimit(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &datastore.MockStore{})
	rec := doRequest(s, http.MethodGet, "/api/v1/groups?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatsSummary(t *testing.T) {
	t.Parallel()

	mock := &datastore.MockStore{}
	mock.On("GetEffectivenessSummary").Return([]datastore.EffectivenessSummary{
		{PestKind: "CROWS", BestSound: "hawk_cry.wav"},
	}, nil)

	s := newTestServer(t, mock)
	rec := doRequest(s, http.MethodGet, "/api/v1/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hawk_cry.wav")
}

func TestStatsPerPest(t *testing.T) {
	t.Parallel()

	mock := &datastore.MockStore{}
	mock.On("GetSoundStatistics", "HERONS").Return([]datastore.SoundStatistics{
		{PestKind: "HERONS", SoundFile: "banger.wav", MeanEffectiveness: 0.8},
	}, nil)
	mock.On("GetTimePatterns", "HERONS").Return([]datastore.TimeBasedEffectiveness{
		{PestKind: "HERONS", HourOfDay: 6, BestSound: "banger.wav"},
	}, nil)

	s := newTestServer(t, mock)
	rec := doRequest(s, http.MethodGet, "/api/v1/stats?pest=HERONS")
	require.Equal(t, http.StatusOK, rec.Code)

	var body statsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body.Summary)
	assert.NotNil(t, body.Statistics)
	assert.NotNil(t, body.TimePatterns)
}

func TestConfigEndpointRedactsSecrets(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &datastore.MockStore{})
	s.settings.MQTT.Broker = "tcp://broker.local:1883"
	s.settings.MQTT.Password = "hunter2"
	s.settings.Detect.APIKey = "sk-secret"

	rec := doRequest(s, http.MethodGet, "/api/v1/config")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "broker.local")
	assert.NotContains(t, rec.Body.String(), "hunter2")
	assert.NotContains(t, rec.Body.String(), "sk-secret")
}
