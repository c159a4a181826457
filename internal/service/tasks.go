package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/storyreel/api/internal/model"
)

const (
	TaskTypeRenderBatch     = "render:batch"
	TaskTypeRegenerateScene = "render:scene"
	QueueRender             = "render"
	renderTaskMaxRetry      = 3
	renderTaskRetention     = 24 * time.Hour

	// sceneSlack covers submit, download and upload around a scene's polling.
	sceneSlack = 2 * time.Minute
)

// Enqueuer is the part of *asynq.Client the studio needs.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func NewRenderBatchTask(payload *model.RenderBatchPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeRenderBatch, data), nil
}

func NewRegenerateSceneTask(payload *model.RegenerateScenePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeRegenerateScene, data), nil
}

func renderTaskOptions(timeout time.Duration) []asynq.Option {
	opts := []asynq.Option{
		asynq.Queue(QueueRender),
		asynq.MaxRetry(renderTaskMaxRetry),
		asynq.Retention(renderTaskRetention),
	}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return opts
}

// renderTimeout widens the configured task deadline so each of the pending
// scenes can spend its full render wait. A zero base means no deadline and a
// zero sceneWait leaves base alone.
func renderTimeout(base, sceneWait time.Duration, pending int) time.Duration {
	if base <= 0 || sceneWait <= 0 {
		return base
	}
	if need := time.Duration(pending) * (sceneWait + sceneSlack); need > base {
		return need
	}
	return base
}
