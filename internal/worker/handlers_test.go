package worker

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialcraft/caliber/internal/config"
	"github.com/dialcraft/caliber/internal/learning"
	"github.com/dialcraft/caliber/pkg/models"
)

func testService(t *testing.T) (*Service, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "caliber_worker_test_*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	cfg := &config.Config{
		DatabaseDSN: filepath.Join(tmpDir, "test.db"),
		MaxConns:    4,
		WorkerPort:  0,
		ConfigTTL:   time.Minute,
	}

	svc, err := NewService(cfg, zerolog.Nop())
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("NewService failed: %v", err)
	}

	cleanup := func() {
		svc.Shutdown(context.Background())
		os.RemoveAll(tmpDir)
	}

	return svc, cleanup
}

func doRequest(t *testing.T, svc *Service, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	return rec
}

func seedReward(t *testing.T, svc *Service, interactionID, callerID string) {
	t.Helper()

	_, err := svc.rewards.Create(context.Background(), &models.RewardRecord{
		InteractionID: interactionID,
		CallerID:      callerID,
		OutcomeScore:  1.0,
		ParameterDiffs: models.JSONDiffMap{
			"speech_rate": {Target: 0.50, Actual: 0.80},
		},
		TargetSnapshots: models.JSONSnapshotMap{
			"speech_rate": {Scope: models.ScopeIndividual, Value: 0.50, Confidence: 0.60},
		},
	})
	require.NoError(t, err)
}

func TestHandleHealth(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := doRequest(t, svc, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestHandleLearningPreview(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()
	seedReward(t, svc, "call-1", "caller-1")

	rec := doRequest(t, svc, http.MethodGet, "/api/learning/preview", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var result learning.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Len(t, result.Planned, 1)
	assert.Equal(t, "call-1", result.Planned[0].InteractionID)
	assert.Zero(t, result.Processed)

	// Preview leaves the reward selectable.
	stored, err := svc.rewards.GetByInteractionID(context.Background(), "call-1")
	require.NoError(t, err)
	assert.False(t, stored.Processed())
}

func TestHandleLearningRun(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()
	seedReward(t, svc, "call-1", "caller-1")

	rec := doRequest(t, svc, http.MethodPost, "/api/learning/run", RunRequest{})

	assert.Equal(t, http.StatusOK, rec.Code)
	var result learning.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Created)
	assert.Empty(t, result.Errors)

	active, err := svc.targets.FindActive(context.Background(), "speech_rate", models.ScopeIndividual, "caller-1")
	require.NoError(t, err)
	assert.Equal(t, 0.51, active.TargetValue)
}

func TestHandleLearningRun_EmptyBodyIsFine(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := doRequest(t, svc, http.MethodPost, "/api/learning/run", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleLearningRun_BadBody(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/api/learning/run", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetLearningConfig(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := doRequest(t, svc, http.MethodGet, "/api/learning/config", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var cfg models.LearningConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, models.DefaultLearningConfig(), cfg)
}

func TestHandlePutLearningConfig(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	updated := models.DefaultLearningConfig()
	updated.LearningRate = 0.25

	rec := doRequest(t, svc, http.MethodPut, "/api/learning/config", updated)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Cache was invalidated, the next read serves the stored document.
	rec = doRequest(t, svc, http.MethodGet, "/api/learning/config", nil)
	var cfg models.LearningConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	assert.Equal(t, 0.25, cfg.LearningRate)
}

func TestHandlePutLearningConfig_BadBody(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPut, "/api/learning/config", bytes.NewReader([]byte("nope")))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetTargets(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()
	ctx := context.Background()

	old, err := svc.targets.CreateVersion(ctx, &models.BehaviorTarget{
		ParameterID: "speech_rate",
		Scope:       models.ScopeIndividual,
		ScopeKey:    "caller-1",
		Source:      models.SourceDefault,
		TargetValue: 0.50,
		Confidence:  0.30,
	})
	require.NoError(t, err)
	replacement, err := svc.targets.SupersedeAndCreate(ctx, old.ID, &models.BehaviorTarget{
		ParameterID: "speech_rate",
		Scope:       models.ScopeIndividual,
		ScopeKey:    "caller-1",
		Source:      models.SourceLearned,
		TargetValue: 0.55,
		Confidence:  0.40,
	})
	require.NoError(t, err)

	rec := doRequest(t, svc, http.MethodGet, "/api/targets/speech_rate?scope=individual&key=caller-1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp TargetsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "speech_rate", resp.ParameterID)
	require.NotNil(t, resp.Active)
	assert.Equal(t, replacement.ID, resp.Active.ID)
	assert.Len(t, resp.History, 2)
}

func TestHandleGetTargets_BadScope(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := doRequest(t, svc, http.MethodGet, "/api/targets/speech_rate?scope=bogus", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGetTargets_EmptyHistory(t *testing.T) {
	svc, cleanup := testService(t)
	defer cleanup()

	rec := doRequest(t, svc, http.MethodGet, "/api/targets/unknown_param", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp TargetsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Active)
	assert.Empty(t, resp.History)
}
