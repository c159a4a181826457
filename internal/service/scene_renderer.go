package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/config"
	"github.com/storyreel/api/internal/failure"
	"github.com/storyreel/api/internal/metrics"
	"github.com/storyreel/api/internal/model"
	"go.uber.org/zap"
)

// Clock abstracts time for the poll loop.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// SystemClock is the wall clock.
var SystemClock Clock = realClock{}

// ProgressFunc receives human readable render steps.
type ProgressFunc func(message string)

// SceneRenderer renders one scene into a stored clip
type SceneRenderer struct {
	veo       client.VideoGenerator
	storage   client.ClipStorage
	fastModel string
	proModel  string
	interval  time.Duration
	maxWait   time.Duration
	clock     Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewSceneRenderer creates a renderer. A zero maxWait polls without a deadline.
func NewSceneRenderer(veo client.VideoGenerator, storage client.ClipStorage, cfg *config.VeoConfig, clock Clock, m *metrics.Metrics, logger *zap.Logger) *SceneRenderer {
	if clock == nil {
		clock = SystemClock
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SceneRenderer{
		veo:       veo,
		storage:   storage,
		fastModel: cfg.FastModel,
		proModel:  cfg.ProModel,
		interval:  interval,
		maxWait:   cfg.MaxWait,
		clock:     clock,
		metrics:   m,
		logger:    logger.Named("renderer"),
	}
}

func (r *SceneRenderer) modelFor(q model.Quality) string {
	if q == model.QualityUltra {
		return r.proModel
	}
	return r.fastModel
}

// Render submits the scene, waits for the job, downloads the clip and
// stores it. A job handle that disappears while polling yields
// failure.ErrSessionInvalid; every other error is scene local.
func (r *SceneRenderer) Render(ctx context.Context, apiKey, projectID string, scene model.Scene, quality model.Quality, progress ProgressFunc) (url string, err error) {
	if progress == nil {
		progress = func(string) {}
	}
	started := r.clock.Now()
	defer func() {
		r.metrics.SceneRendered(renderOutcome(err), r.clock.Now().Sub(started))
	}()

	log := r.logger.With(zap.String("project_id", projectID), zap.String("scene_id", scene.ID))

	progress(fmt.Sprintf("Initiating %s generation...", quality.Label()))
	op, err := r.veo.SubmitVideo(ctx, apiKey, &client.VideoRequest{
		Model:       r.modelFor(quality),
		Prompt:      scene.Prompt(),
		AspectRatio: model.AspectRatio,
		Resolution:  quality.Resolution(),
	})
	if err != nil {
		log.Warn("submit failed", zap.Error(err))
		return "", fmt.Errorf("submit render job: %w", err)
	}
	name := op.Name

	progress("Synthesizing frames...")
	deadline := started.Add(r.maxWait)
	attempt := 0
	for !op.Done {
		if r.maxWait > 0 && !r.clock.Now().Before(deadline) {
			log.Warn("render timed out", zap.Duration("max_wait", r.maxWait), zap.Int("polls", attempt))
			return "", failure.ErrRenderTimeout
		}
		if err := r.clock.Sleep(ctx, r.interval); err != nil {
			return "", err
		}

		attempt++
		r.metrics.RenderPolled()
		next, err := r.veo.GetVideoOperation(ctx, apiKey, name)
		if err != nil {
			if failure.IsNotFound(err) {
				log.Warn("render job vanished, credential session invalid", zap.String("operation", name))
				return "", fmt.Errorf("poll %s: %w", name, failure.ErrSessionInvalid)
			}
			log.Warn("poll failed", zap.Int("attempt", attempt), zap.Error(err))
			return "", fmt.Errorf("poll render job: %w", err)
		}
		log.Debug("poll", zap.Int("attempt", attempt), zap.Bool("done", next.Done))
		op = next
	}

	if op.Error != nil {
		return "", op.Error
	}
	uri := op.VideoURI()
	if uri == "" {
		return "", failure.ErrNoVideo
	}

	progress("Downloading clip...")
	data, contentType, err := r.veo.DownloadVideo(ctx, apiKey, uri)
	if err != nil {
		return "", fmt.Errorf("download clip: %w", err)
	}

	key := fmt.Sprintf("%s/%s-%s.mp4", projectID, scene.ID, uuid.New().String())
	url, err = r.storage.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return "", fmt.Errorf("store clip: %w", err)
	}
	log.Info("scene rendered", zap.Int("polls", attempt), zap.Int("bytes", len(data)))
	return url, nil
}

func renderOutcome(err error) string {
	if err == nil {
		return "completed"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	switch failure.Classify(err) {
	case failure.KindQuota:
		return "quota"
	case failure.KindSessionInvalid:
		return "session_invalid"
	}
	return "failed"
}
