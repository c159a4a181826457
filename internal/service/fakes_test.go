package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/storyreel/api/internal/client"
	"github.com/storyreel/api/internal/model"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return nil
}

// fakeVeo answers polls from a script of operations or errors.
type fakeVeo struct {
	mu          sync.Mutex
	submitErr   error
	polls       []pollResult
	downloadErr error
	submitted   []*client.VideoRequest
	pollCount   int
}

type pollResult struct {
	op  *client.VideoOperation
	err error
}

func (f *fakeVeo) SubmitVideo(_ context.Context, _ string, req *client.VideoRequest) (*client.VideoOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &client.VideoOperation{Name: "models/veo/operations/op-1"}, nil
}

func (f *fakeVeo) GetVideoOperation(_ context.Context, _ string, name string) (*client.VideoOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCount++
	if len(f.polls) == 0 {
		return client.NewCompletedOperation(name, "https://files/"+name), nil
	}
	next := f.polls[0]
	f.polls = f.polls[1:]
	return next.op, next.err
}

func (f *fakeVeo) DownloadVideo(_ context.Context, _ string, uri string) ([]byte, string, error) {
	if f.downloadErr != nil {
		return nil, "", f.downloadErr
	}
	return []byte("clip:" + uri), "video/mp4", nil
}

// fakeRenderer scripts outcomes per scene id and records call order.
type fakeRenderer struct {
	mu       sync.Mutex
	errs     map[string]error
	calls    []string
	onRender func(sceneID string)
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{errs: make(map[string]error)}
}

func (f *fakeRenderer) Render(_ context.Context, _ string, projectID string, scene model.Scene, _ model.Quality, progress ProgressFunc) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, scene.ID)
	err := f.errs[scene.ID]
	hook := f.onRender
	f.mu.Unlock()

	if hook != nil {
		hook(scene.ID)
	}
	if progress != nil {
		progress("Synthesizing frames...")
	}
	if err != nil {
		return "", err
	}
	return "https://clips/" + projectID + "/" + scene.ID + ".mp4", nil
}

func (f *fakeRenderer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeGenerator stands in for both storyboard backends.
type fakeGenerator struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeGenerator) GenerateJSON(_ context.Context, _ string, prompt string, _ interface{}) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func (f *fakeGenerator) ChatJSON(_ context.Context, _ string, user string) (string, error) {
	f.prompts = append(f.prompts, user)
	return f.reply, f.err
}

// recordingEnqueuer captures queued tasks.
type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (e *recordingEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: uuid.New().String(), Type: task.Type(), Queue: QueueRender}, nil
}

var errBoom = errors.New("Error: upstream exploded")

func threeSceneBoard() *model.Storyboard {
	return &model.Storyboard{
		Title:            "Three",
		TotalDurationSec: 20,
		Scenes: []model.Scene{
			{ID: "scene-1", Order: 1, DurationSec: 8, VisualPrompt: "one", Camera: "pan", Lighting: "soft", Style: "Cinematic", Status: model.SceneStatusIdle},
			{ID: "scene-2", Order: 2, DurationSec: 8, VisualPrompt: "two", Camera: "tilt", Lighting: "hard", Style: "Cinematic", Status: model.SceneStatusIdle},
			{ID: "scene-3", Order: 3, DurationSec: 4, VisualPrompt: "three", Camera: "zoom", Lighting: "neon", Style: "Cinematic", Status: model.SceneStatusIdle},
		},
	}
}

func projectWith(board *model.Storyboard) *model.VideoProject {
	return &model.VideoProject{
		ID:           "project-1",
		OriginalText: "three beats",
		Storyboard:   board,
		Config:       model.ProjectConfig{Duration: board.TotalDurationSec, Style: "Cinematic", AspectRatio: model.AspectRatio, Quality: model.QualityStandard},
		Status:       model.ProjectStatusIdle,
		Version:      1,
	}
}
