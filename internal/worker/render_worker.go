package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/storyreel/api/internal/failure"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/service"
	"github.com/storyreel/api/internal/store"
	"go.uber.org/zap"
)

// RenderWorker runs queued render tasks against the owning user's store.
type RenderWorker struct {
	orchestrator *service.Orchestrator
	registry     *store.Registry
	logger       *zap.Logger
	lastAttempt  func(ctx context.Context, err error) bool
}

// NewRenderWorker creates a new render worker
func NewRenderWorker(orchestrator *service.Orchestrator, registry *store.Registry, logger *zap.Logger) *RenderWorker {
	return &RenderWorker{
		orchestrator: orchestrator,
		registry:     registry,
		logger:       logger.Named("render_worker"),
		lastAttempt:  lastAttempt,
	}
}

// IsFailure tells the queue which errors count against a task's retries. A
// busy store only means another render of the same user is still running, so
// the batch waits for it instead of burning attempts.
func IsFailure(err error) bool {
	return !errors.Is(err, store.ErrBusy)
}

func lastAttempt(ctx context.Context, err error) bool {
	if !IsFailure(err) {
		return false
	}
	if errors.Is(err, asynq.SkipRetry) {
		return true
	}
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

// HandleError runs after every failed task. When a batch task will not run
// again its project must not stay marked generating.
func (w *RenderWorker) HandleError(ctx context.Context, t *asynq.Task, err error) {
	if t.Type() != service.TaskTypeRenderBatch || !w.lastAttempt(ctx, err) {
		return
	}
	var payload model.RenderBatchPayload
	if json.Unmarshal(t.Payload(), &payload) != nil {
		return
	}
	w.logger.Warn("batch render gave up",
		zap.String("user_id", payload.UserID),
		zap.String("project_id", payload.ProjectID),
		zap.Error(err),
	)
	w.orchestrator.Settle(w.registry.Get(payload.UserID), payload.ProjectID)
}

// Register wires the worker's task types into mux.
func (w *RenderWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(service.TaskTypeRenderBatch, w.ProcessBatch)
	mux.HandleFunc(service.TaskTypeRegenerateScene, w.ProcessRegenerate)
}

// ProcessBatch renders every pending scene of a project.
func (w *RenderWorker) ProcessBatch(ctx context.Context, t *asynq.Task) error {
	var payload model.RenderBatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal render payload: %v: %w", err, asynq.SkipRetry)
	}

	log := w.logger.With(zap.String("user_id", payload.UserID), zap.String("project_id", payload.ProjectID))
	log.Info("starting batch render")

	result, err := w.orchestrator.RenderAll(ctx, payload.UserID, w.registry.Get(payload.UserID), payload.ProjectID)
	if err != nil {
		return w.outcome(log, err)
	}
	log.Info("batch render finished",
		zap.String("status", string(result.Status)),
		zap.Int("completed", result.Completed),
		zap.Int("failed", result.Failed),
	)
	return nil
}

// ProcessRegenerate renders one scene again.
func (w *RenderWorker) ProcessRegenerate(ctx context.Context, t *asynq.Task) error {
	var payload model.RegenerateScenePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal regenerate payload: %v: %w", err, asynq.SkipRetry)
	}

	log := w.logger.With(
		zap.String("user_id", payload.UserID),
		zap.String("project_id", payload.ProjectID),
		zap.String("scene_id", payload.SceneID),
	)
	log.Info("starting scene regeneration")

	scene, err := w.orchestrator.Regenerate(ctx, payload.UserID, w.registry.Get(payload.UserID), payload.ProjectID, payload.SceneID)
	if err != nil {
		return w.outcome(log, err)
	}
	log.Info("scene regeneration finished", zap.String("status", string(scene.Status)))
	return nil
}

// outcome maps an orchestrator error to the queue's retry decision. Scene
// failures are already recorded in the store. A busy project is requeued
// without counting as a failure, see IsFailure.
func (w *RenderWorker) outcome(log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, store.ErrBusy):
		log.Warn("project busy, will retry")
		return err
	case errors.Is(err, failure.ErrSessionInvalid):
		log.Warn("render stopped: credential session invalid")
		return nil
	case errors.Is(err, store.ErrStaleProject),
		errors.Is(err, store.ErrNoProject),
		errors.Is(err, store.ErrNoStoryboard),
		errors.Is(err, store.ErrSceneNotFound):
		log.Info("render dropped", zap.Error(err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		log.Warn("render interrupted", zap.Error(err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	log.Error("render failed", zap.Error(err))
	return err
}
