package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/failure"
	"github.com/storyreel/api/internal/metrics"
	"github.com/storyreel/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRenderer(veo client.VideoGenerator, clock Clock, maxWait time.Duration) (*SceneRenderer, *client.MemoryStorage) {
	storage := client.NewMemoryStorage("http://localhost:8000")
	cfg := &config.VeoConfig{
		FastModel:    "veo-fast",
		ProModel:     "veo-pro",
		PollInterval: 5 * time.Second,
		MaxWait:      maxWait,
	}
	return NewSceneRenderer(veo, storage, cfg, clock, metrics.New(prometheus.NewRegistry()), zap.NewNop()), storage
}

func pending() pollResult {
	return pollResult{op: &client.VideoOperation{Name: "models/veo/operations/op-1"}}
}

func testScene() model.Scene {
	return model.Scene{ID: "scene-1", Order: 1, DurationSec: 8, VisualPrompt: "A fox in snow", Camera: "Slow pan", Lighting: "Dawn", Style: "Cinematic", NegativePrompt: "text"}
}

func TestSceneRenderer_PollsUntilDone(t *testing.T) {
	clock := newFakeClock()
	veo := &fakeVeo{polls: []pollResult{pending(), pending()}}
	r, storage := newTestRenderer(veo, clock, 10*time.Minute)

	var steps []string
	url, err := r.Render(context.Background(), "key", "project-1", testScene(), model.QualityStandard, func(m string) { steps = append(steps, m) })
	require.NoError(t, err)

	assert.Equal(t, 3, veo.pollCount)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, clock.sleeps)
	assert.Equal(t, []string{"Initiating Standard generation...", "Synthesizing frames...", "Downloading clip..."}, steps)

	require.Len(t, veo.submitted, 1)
	req := veo.submitted[0]
	assert.Equal(t, "veo-fast", req.Model)
	assert.Equal(t, "720p", req.Resolution)
	assert.Equal(t, "16:9", req.AspectRatio)
	assert.Equal(t, "A fox in snow. Camera: Slow pan. Lighting: Dawn. Style: Cinematic.", req.Prompt)

	require.True(t, strings.HasPrefix(url, "http://localhost:8000/clips/project-1/scene-1-"))
	key := strings.TrimPrefix(url, "http://localhost:8000/clips/")
	clip, ok := storage.Get(key)
	require.True(t, ok)
	assert.Equal(t, "video/mp4", clip.ContentType)
}

func TestSceneRenderer_UltraUsesProModel(t *testing.T) {
	veo := &fakeVeo{}
	r, _ := newTestRenderer(veo, newFakeClock(), 0)

	var steps []string
	_, err := r.Render(context.Background(), "key", "p", testScene(), model.QualityUltra, func(m string) { steps = append(steps, m) })
	require.NoError(t, err)
	assert.Equal(t, "veo-pro", veo.submitted[0].Model)
	assert.Equal(t, "1080p", veo.submitted[0].Resolution)
	assert.Equal(t, "Initiating Ultra HD generation...", steps[0])
}

func TestSceneRenderer_NotFoundWhilePollingInvalidatesSession(t *testing.T) {
	veo := &fakeVeo{polls: []pollResult{
		pending(),
		{err: failure.NewAPIError("veo", 404, []byte(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`))},
	}}
	r, _ := newTestRenderer(veo, newFakeClock(), 0)

	_, err := r.Render(context.Background(), "key", "p", testScene(), model.QualityStandard, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, failure.ErrSessionInvalid)
	assert.Equal(t, failure.KindSessionInvalid, failure.Classify(err))
}

func TestSceneRenderer_OtherPollErrorIsOrdinary(t *testing.T) {
	veo := &fakeVeo{polls: []pollResult{{err: failure.NewAPIError("veo", 500, []byte(`{"error":{"code":500,"message":"backend hiccup"}}`))}}}
	r, _ := newTestRenderer(veo, newFakeClock(), 0)

	_, err := r.Render(context.Background(), "key", "p", testScene(), model.QualityStandard, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, failure.ErrSessionInvalid)
	assert.Equal(t, "backend hiccup", failure.SceneMessage(err))
}

func TestSceneRenderer_SubmitNotFoundIsOrdinary(t *testing.T) {
	veo := &fakeVeo{submitErr: failure.NewAPIError("veo", 404, []byte(`{"error":{"code":404,"message":"model not found","status":"NOT_FOUND"}}`))}
	r, _ := newTestRenderer(veo, newFakeClock(), 0)

	_, err := r.Render(context.Background(), "key", "p", testScene(), model.QualityStandard, nil)
	require.Error(t, err)
	assert.Equal(t, failure.KindGeneric, failure.Classify(err))
}

func TestSceneRenderer_OperationErrorQuota(t *testing.T) {
	done := &client.VideoOperation{Name: "op", Done: true, Error: &failure.OperationError{Code: 429, Message: "quota", Status: "RESOURCE_EXHAUSTED"}}
	veo := &fakeVeo{polls: []pollResult{{op: done}}}
	r, _ := newTestRenderer(veo, newFakeClock(), 0)

	_, err := r.Render(context.Background(), "key", "p", testScene(), model.QualityStandard, nil)
	require.Error(t, err)
	assert.Equal(t, failure.KindQuota, failure.Classify(err))
	assert.Equal(t, failure.LabelSceneQuota, failure.SceneMessage(err))
}

func TestSceneRenderer_NoVideo(t *testing.T) {
	veo := &fakeVeo{polls: []pollResult{{op: &client.VideoOperation{Name: "op", Done: true}}}}
	r, _ := newTestRenderer(veo, newFakeClock(), 0)

	_, err := r.Render(context.Background(), "key", "p", testScene(), model.QualityStandard, nil)
	assert.ErrorIs(t, err, failure.ErrNoVideo)
}

func TestSceneRenderer_DownloadFailureIsOrdinary(t *testing.T) {
	veo := &fakeVeo{downloadErr: errors.New("connection reset")}
	r, _ := newTestRenderer(veo, newFakeClock(), 0)

	_, err := r.Render(context.Background(), "key", "p", testScene(), model.QualityStandard, nil)
	require.Error(t, err)
	assert.Equal(t, failure.KindGeneric, failure.Classify(err))
	assert.Contains(t, failure.SceneMessage(err), "connection reset")
}

func TestSceneRenderer_TimesOut(t *testing.T) {
	polls := make([]pollResult, 100)
	for i := range polls {
		polls[i] = pending()
	}
	veo := &fakeVeo{polls: polls}
	clock := newFakeClock()
	r, _ := newTestRenderer(veo, clock, 20*time.Second)

	_, err := r.Render(context.Background(), "key", "p", testScene(), model.QualityStandard, nil)
	assert.ErrorIs(t, err, failure.ErrRenderTimeout)
	assert.Equal(t, 4, veo.pollCount)
}

func TestSceneRenderer_CanceledContext(t *testing.T) {
	veo := &fakeVeo{polls: []pollResult{pending()}}
	r, _ := newTestRenderer(veo, newFakeClock(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Render(ctx, "key", "p", testScene(), model.QualityStandard, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
