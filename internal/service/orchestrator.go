package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/storyreel/api/internal/credential"
	"github.com/storyreel/api/internal/failure"
	"github.com/storyreel/api/internal/metrics"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/store"
	"go.uber.org/zap"
)

// Renderer renders one scene into a playable clip URL.
type Renderer interface {
	Render(ctx context.Context, apiKey, projectID string, scene model.Scene, quality model.Quality, progress ProgressFunc) (string, error)
}

// ProgressSink receives render step messages for live clients.
type ProgressSink interface {
	BroadcastProgress(projectID, sceneID, message string)
}

// BatchResult summarises one batch walk.
type BatchResult struct {
	ProjectID string              `json:"projectId"`
	Status    model.ProjectStatus `json:"status"`
	Rendered  int                 `json:"rendered"`
	Completed int                 `json:"completed"`
	Failed    int                 `json:"failed"`
	Skipped   int                 `json:"skipped"`
}

// Orchestrator walks a project's scenes through the renderer one at a time
// and publishes every transition through the user's store.
type Orchestrator struct {
	renderer    Renderer
	credentials credential.Selector
	progress    ProgressSink
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

func NewOrchestrator(renderer Renderer, credentials credential.Selector, progress ProgressSink, m *metrics.Metrics, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		renderer:    renderer,
		credentials: credentials,
		progress:    progress,
		metrics:     m,
		logger:      logger.Named("orchestrator"),
	}
}

func (o *Orchestrator) progressFor(projectID, sceneID string) ProgressFunc {
	if o.progress == nil {
		return nil
	}
	return func(msg string) { o.progress.BroadcastProgress(projectID, sceneID, msg) }
}

// RenderAll renders every scene of the project that is not yet completed,
// strictly in order. It ends with the project ready when every scene has a
// clip and idle otherwise. A session invalidation aborts the walk, reverts
// the in-flight scene and returns failure.ErrSessionInvalid. Any other error
// after the project lookup leaves the project idle.
func (o *Orchestrator) RenderAll(ctx context.Context, userID string, st *store.Store, projectID string) (*BatchResult, error) {
	release, err := st.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	project := st.Current()
	if project == nil {
		return nil, store.ErrNoProject
	}
	if project.ID != projectID {
		return nil, store.ErrStaleProject
	}
	if project.Storyboard == nil {
		return nil, store.ErrNoStoryboard
	}

	result, err := o.walk(ctx, userID, st, project)
	if err != nil {
		o.Settle(st, projectID)
	}
	return result, err
}

func (o *Orchestrator) walk(ctx context.Context, userID string, st *store.Store, project *model.VideoProject) (*BatchResult, error) {
	projectID := project.ID
	log := o.logger.With(zap.String("user_id", userID), zap.String("project_id", projectID))
	result := &BatchResult{ProjectID: projectID}

	if project.Storyboard.AllCompleted() {
		result.Skipped = len(project.Storyboard.Scenes)
		result.Completed = result.Skipped
		result.Status = model.ProjectStatusReady
		if err := st.SetStatus(projectID, model.ProjectStatusReady); err != nil {
			return nil, err
		}
		o.metrics.BatchFinished(string(result.Status))
		return result, nil
	}

	apiKey, err := o.credentials.APIKey(ctx, userID)
	if err != nil {
		if errors.Is(err, failure.ErrCredentialRequired) {
			st.SetAlert(model.AlertSessionInvalid, failure.LabelSessionInvalid)
			_ = st.SetStatus(projectID, model.ProjectStatusIdle)
			result.Status = model.ProjectStatusIdle
			return result, fmt.Errorf("%w: %v", failure.ErrSessionInvalid, err)
		}
		return nil, err
	}

	if err := st.SetStatus(projectID, model.ProjectStatusGenerating); err != nil {
		return nil, err
	}

	scenes := project.Storyboard.Scenes
	quality := project.Config.Quality
	for i, scene := range scenes {
		if scene.Status == model.SceneStatusCompleted {
			result.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return o.abort(st, projectID, result, err)
		}

		log.Info("rendering scene", zap.String("scene_id", scene.ID), zap.Int("index", i+1), zap.Int("total", len(scenes)))
		if err := st.UpdateScene(projectID, scene.Generating()); err != nil {
			return result, err
		}

		url, renderErr := o.renderer.Render(ctx, apiKey, projectID, scene, quality, o.progressFor(projectID, scene.ID))
		result.Rendered++
		if renderErr == nil {
			if err := st.UpdateScene(projectID, scene.Completed(url)); err != nil {
				return result, err
			}
			continue
		}

		if failure.Classify(renderErr) == failure.KindSessionInvalid {
			log.Warn("session invalidated, aborting batch", zap.String("scene_id", scene.ID))
			o.invalidate(ctx, userID, st, projectID, scene)
			_ = st.SetStatus(projectID, model.ProjectStatusIdle)
			result.Status = model.ProjectStatusIdle
			o.metrics.BatchFinished("session_invalid")
			return result, fmt.Errorf("scene %s: %w", scene.ID, failure.ErrSessionInvalid)
		}
		if ctx.Err() != nil && errors.Is(renderErr, ctx.Err()) {
			_ = st.UpdateScene(projectID, scene)
			return o.abort(st, projectID, result, ctx.Err())
		}

		if err := o.fail(st, projectID, scene, renderErr); err != nil {
			return result, err
		}
		log.Warn("scene failed", zap.String("scene_id", scene.ID), zap.Error(renderErr))
	}

	final := st.Current()
	if final == nil || final.ID != projectID || final.Storyboard == nil {
		return result, store.ErrStaleProject
	}
	result.Completed = final.Storyboard.CountStatus(model.SceneStatusCompleted)
	result.Failed = final.Storyboard.CountStatus(model.SceneStatusFailed)

	result.Status = model.ProjectStatusIdle
	if final.Storyboard.AllCompleted() {
		result.Status = model.ProjectStatusReady
	}
	if err := st.SetStatus(projectID, result.Status); err != nil {
		return result, err
	}
	o.metrics.BatchFinished(string(result.Status))
	log.Info("batch finished",
		zap.String("status", string(result.Status)),
		zap.Int("rendered", result.Rendered),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// Regenerate renders a single scene again. Only that scene changes; the
// project status is left alone.
func (o *Orchestrator) Regenerate(ctx context.Context, userID string, st *store.Store, projectID, sceneID string) (*model.Scene, error) {
	release, err := st.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	scene, _, err := st.Scene(projectID, sceneID)
	if err != nil {
		return nil, err
	}
	project := st.Current()

	apiKey, err := o.credentials.APIKey(ctx, userID)
	if err != nil {
		if errors.Is(err, failure.ErrCredentialRequired) {
			st.SetAlert(model.AlertSessionInvalid, failure.LabelSessionInvalid)
			return nil, fmt.Errorf("%w: %v", failure.ErrSessionInvalid, err)
		}
		return nil, err
	}

	if err := st.UpdateScene(projectID, scene.Generating()); err != nil {
		return nil, err
	}

	url, renderErr := o.renderer.Render(ctx, apiKey, projectID, scene, project.Config.Quality, o.progressFor(projectID, sceneID))
	switch {
	case renderErr == nil:
		next := scene.Completed(url)
		if err := st.UpdateScene(projectID, next); err != nil {
			return nil, err
		}
		return &next, nil

	case failure.Classify(renderErr) == failure.KindSessionInvalid:
		o.invalidate(ctx, userID, st, projectID, scene)
		return nil, fmt.Errorf("scene %s: %w", sceneID, failure.ErrSessionInvalid)

	case ctx.Err() != nil && errors.Is(renderErr, ctx.Err()):
		_ = st.UpdateScene(projectID, scene)
		return nil, ctx.Err()
	}

	if err := o.fail(st, projectID, scene, renderErr); err != nil {
		return nil, err
	}
	failed, _, err := st.Scene(projectID, sceneID)
	if err != nil {
		return nil, err
	}
	return &failed, nil
}

// fail records a scene local failure, raising the quota alert when the
// failure came from exhausted usage limits.
func (o *Orchestrator) fail(st *store.Store, projectID string, scene model.Scene, renderErr error) error {
	if err := st.UpdateScene(projectID, scene.Failed(failure.SceneMessage(renderErr))); err != nil {
		return err
	}
	if failure.Classify(renderErr) == failure.KindQuota {
		st.SetAlert(model.AlertQuota, failure.LabelQuotaRemediation)
	}
	return nil
}

// invalidate demotes the credential, restores the in-flight scene to its
// value before the attempt and raises the session alert.
func (o *Orchestrator) invalidate(ctx context.Context, userID string, st *store.Store, projectID string, before model.Scene) {
	if err := o.credentials.Invalidate(context.WithoutCancel(ctx), userID); err != nil {
		o.logger.Error("failed to invalidate credential", zap.String("user_id", userID), zap.Error(err))
	}
	_ = st.UpdateScene(projectID, before)
	st.SetAlert(model.AlertSessionInvalid, failure.LabelSessionInvalid)
}

// Settle returns a project still marked generating to idle. It is called
// whenever a batch ends without reaching a final status of its own.
func (o *Orchestrator) Settle(st *store.Store, projectID string) {
	cur := st.Current()
	if cur == nil || cur.ID != projectID || cur.Status != model.ProjectStatusGenerating {
		return
	}
	if err := st.SetStatus(projectID, model.ProjectStatusIdle); err == nil {
		o.logger.Warn("project left generating, reset to idle", zap.String("project_id", projectID))
	}
}

func (o *Orchestrator) abort(st *store.Store, projectID string, result *BatchResult, cause error) (*BatchResult, error) {
	_ = st.SetStatus(projectID, model.ProjectStatusIdle)
	result.Status = model.ProjectStatusIdle
	o.metrics.BatchFinished("canceled")
	return result, cause
}
