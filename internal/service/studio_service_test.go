package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/storyreel/api/internal/credential"
	"github.com/storyreel/api/internal/failure"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/playback"
	"github.com/storyreel/api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type studioFixture struct {
	svc      *StudioService
	registry *store.Registry
	creds    *credential.MemorySelector
	gen      *fakeGenerator
	queue    *recordingEnqueuer
}

func newStudioFixture(t *testing.T) *studioFixture {
	t.Helper()
	f := &studioFixture{
		registry: store.NewRegistry(),
		creds:    credential.NewMemorySelector("server-key"),
		gen:      &fakeGenerator{reply: validReply},
		queue:    &recordingEnqueuer{},
	}
	storyboards := NewStoryboardService(f.gen, nil, nil, zap.NewNop())
	f.svc = NewStudioService(f.registry, storyboards, f.creds, f.queue, playback.StubMerger{}, 0, 0, zap.NewNop())
	require.NoError(t, f.creds.Select(context.Background(), "user-1", ""))
	return f
}

func createReq() *model.CreateProjectRequest {
	return &model.CreateProjectRequest{Text: "A smartwatch in space", Duration: 16, Style: "Futuristic"}
}

func TestStudio_CreateProject(t *testing.T) {
	f := newStudioFixture(t)
	ctx := context.Background()

	p, err := f.svc.CreateProject(ctx, "user-1", createReq())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, model.ProjectStatusIdle, p.Status)
	assert.Equal(t, model.QualityStandard, p.Config.Quality)
	assert.Equal(t, "16:9", p.Config.AspectRatio)
	assert.NotEmpty(t, p.ID)

	again, err := f.svc.CreateProject(ctx, "user-1", createReq())
	require.NoError(t, err)
	assert.Equal(t, 2, again.Version)

	hist := f.svc.History("user-1", 0)
	require.Len(t, hist, 2)
	assert.Equal(t, again.ID, hist[0].ID)
}

func TestStudio_CreateProjectNeedsCredential(t *testing.T) {
	f := newStudioFixture(t)
	_, err := f.svc.CreateProject(context.Background(), "nobody", createReq())
	assert.ErrorIs(t, err, failure.ErrCredentialRequired)
}

func TestStudio_StoryboardErrors(t *testing.T) {
	f := newStudioFixture(t)
	ctx := context.Background()

	f.gen.err = errors.New(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED"}}`)
	_, err := f.svc.CreateProject(ctx, "user-1", createReq())
	var sbErr *StoryboardError
	require.ErrorAs(t, err, &sbErr)
	assert.True(t, sbErr.Quota)
	assert.Equal(t, failure.LabelStoryboardQuota, sbErr.Message)
	assert.Nil(t, f.registry.Get("user-1").Current())

	f.gen.err = nil
	f.gen.reply = `{"scenes":[{"order":1,"durationSec":5,"visualPrompt":"a"}]}`
	_, err = f.svc.CreateProject(ctx, "user-1", createReq())
	require.ErrorAs(t, err, &sbErr)
	assert.False(t, sbErr.Quota)
	assert.Contains(t, sbErr.Message, "Storyboard Error: ")

	studio, err := f.svc.Studio(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, studio.Alert)
	assert.Equal(t, model.AlertStoryboard, studio.Alert.Code)
}

func TestStudio_StartRenderQueuesAndBlocksSecondRequest(t *testing.T) {
	f := newStudioFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreateProject(ctx, "user-1", createReq())
	require.NoError(t, err)

	resp, err := f.svc.StartRender(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, resp.PendingRuns)
	assert.Equal(t, model.ProjectStatusGenerating, resp.Status)
	require.Len(t, f.queue.tasks, 1)
	assert.Equal(t, TaskTypeRenderBatch, f.queue.tasks[0].Type())

	var payload model.RenderBatchPayload
	require.NoError(t, json.Unmarshal(f.queue.tasks[0].Payload(), &payload))
	assert.Equal(t, model.RenderBatchPayload{UserID: "user-1", ProjectID: p.ID}, payload)

	_, err = f.svc.StartRender(ctx, "user-1")
	assert.ErrorIs(t, err, ErrProjectBusy)
	_, err = f.svc.RegenerateScene(ctx, "user-1", "scene-1")
	assert.ErrorIs(t, err, ErrProjectBusy)
	assert.ErrorIs(t, f.svc.Reset("user-1"), ErrProjectBusy)
}

func TestStudio_StartRenderEnqueueFailureRestoresStatus(t *testing.T) {
	f := newStudioFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateProject(ctx, "user-1", createReq())
	require.NoError(t, err)

	f.queue.err = errors.New("redis down")
	_, err = f.svc.StartRender(ctx, "user-1")
	require.Error(t, err)
	cur, _ := f.svc.Current("user-1")
	assert.Equal(t, model.ProjectStatusIdle, cur.Status)
}

func TestStudio_StartRenderPreconditions(t *testing.T) {
	f := newStudioFixture(t)
	ctx := context.Background()

	_, err := f.svc.StartRender(ctx, "user-1")
	assert.ErrorIs(t, err, store.ErrNoProject)

	_, err = f.svc.CreateProject(ctx, "user-1", createReq())
	require.NoError(t, err)
	require.NoError(t, f.svc.DropCredential(ctx, "user-1"))
	_, err = f.svc.StartRender(ctx, "user-1")
	assert.ErrorIs(t, err, failure.ErrCredentialRequired)
	assert.Empty(t, f.queue.tasks)
}

func TestStudio_StartRenderWithEveryClipSkipsCredential(t *testing.T) {
	f := newStudioFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreateProject(ctx, "user-1", createReq())
	require.NoError(t, err)
	st := f.registry.Get("user-1")
	for _, scene := range p.Storyboard.Scenes {
		require.NoError(t, st.UpdateScene(p.ID, scene.Completed("https://clips/"+scene.ID+".mp4")))
	}
	require.NoError(t, f.svc.DropCredential(ctx, "user-1"))

	resp, err := f.svc.StartRender(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, resp.PendingRuns)
	require.Len(t, f.queue.tasks, 1)
}

func TestStudio_RegenerateScene(t *testing.T) {
	f := newStudioFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreateProject(ctx, "user-1", createReq())
	require.NoError(t, err)

	resp, err := f.svc.RegenerateScene(ctx, "user-1", "scene-2")
	require.NoError(t, err)
	assert.Equal(t, "scene-2", resp.SceneID)

	var payload model.RegenerateScenePayload
	require.NoError(t, json.Unmarshal(f.queue.tasks[0].Payload(), &payload))
	assert.Equal(t, p.ID, payload.ProjectID)
	assert.Equal(t, "scene-2", payload.SceneID)

	_, err = f.svc.RegenerateScene(ctx, "user-1", "scene-42")
	assert.ErrorIs(t, err, store.ErrSceneNotFound)
}

func TestStudio_UpdateScene(t *testing.T) {
	f := newStudioFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateProject(ctx, "user-1", createReq())
	require.NoError(t, err)

	prompt, camera := "  a new prompt ", "crane up"
	scene, err := f.svc.UpdateScene("user-1", "scene-1", &model.UpdateSceneRequest{VisualPrompt: &prompt, Camera: &camera})
	require.NoError(t, err)
	assert.Equal(t, "a new prompt", scene.VisualPrompt)
	assert.Equal(t, "crane up", scene.Camera)
	assert.Equal(t, 8, scene.DurationSec)

	_, err = f.svc.UpdateScene("user-1", "scene-1", &model.UpdateSceneRequest{})
	assert.ErrorIs(t, err, ErrEmptySceneUpdate)

	_, err = f.svc.StartRender(ctx, "user-1")
	require.NoError(t, err)
	_, err = f.svc.UpdateScene("user-1", "scene-1", &model.UpdateSceneRequest{Camera: &camera})
	assert.ErrorIs(t, err, ErrProjectBusy)
}

func TestStudio_ViewAndMerge(t *testing.T) {
	f := newStudioFixture(t)
	ctx := context.Background()
	p, err := f.svc.CreateProject(ctx, "user-1", createReq())
	require.NoError(t, err)
	st := f.registry.Get("user-1")

	_, err = f.svc.Merge(ctx, "user-1")
	assert.ErrorIs(t, err, playback.ErrNoClips)

	s1, _, _ := st.Scene(p.ID, "scene-1")
	s2, _, _ := st.Scene(p.ID, "scene-2")
	require.NoError(t, st.UpdateScene(p.ID, s1.Completed("https://clips/1.mp4")))
	require.NoError(t, st.UpdateScene(p.ID, s2.Failed("boom")))

	view, err := f.svc.Studio(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, RenderActionRetry, view.RenderAction)
	assert.Equal(t, 33, view.Progress)
	assert.True(t, view.CredentialSelected)

	list, err := f.svc.Playlist("user-1", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://clips/1.mp4"}, list.Clips)
	assert.Equal(t, "https://clips/1.mp4", list.DownloadURL)
	assert.Equal(t, 1, list.CompletedCount)
	assert.Equal(t, 3, list.TotalCount)

	merged, err := f.svc.Merge(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "https://clips/1.mp4", merged.FinalVideoURL)
	cur, _ := f.svc.Current("user-1")
	assert.Equal(t, "https://clips/1.mp4", cur.FinalVideoURL)
}

func TestStudio_HistoryViewIsCapped(t *testing.T) {
	f := newStudioFixture(t)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, err := f.svc.CreateProject(ctx, "user-1", createReq())
		require.NoError(t, err)
	}
	view, err := f.svc.Studio(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, view.History, HistoryDisplayLimit)
	assert.Len(t, f.svc.History("user-1", 0), 7)
	assert.Equal(t, 7, view.CurrentProject.Version)
}

func TestStudio_SelectCredentialClearsAlert(t *testing.T) {
	f := newStudioFixture(t)
	ctx := context.Background()
	f.registry.Get("user-1").SetAlert(model.AlertSessionInvalid, failure.LabelSessionInvalid)

	require.NoError(t, f.svc.SelectCredential(ctx, "user-1", "another-key"))
	view, err := f.svc.Studio(ctx, "user-1")
	require.NoError(t, err)
	assert.Nil(t, view.Alert)
}
