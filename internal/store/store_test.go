package store

import (
	"sync"
	"testing"
	"time"

	"github.com/storyreel/api/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProject(id string) *model.VideoProject {
	return &model.VideoProject{
		ID:           id,
		OriginalText: "a drone over a glacier",
		Config:       model.ProjectConfig{Duration: 16, Style: "Cinematic", AspectRatio: model.AspectRatio, Quality: model.QualityStandard},
		Status:       model.ProjectStatusIdle,
		Version:      1,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Storyboard: &model.Storyboard{
			Title:            "Glacier",
			TotalDurationSec: 16,
			Scenes: []model.Scene{
				{ID: "scene-1", Order: 1, DurationSec: 8, VisualPrompt: "ice", Status: model.SceneStatusIdle},
				{ID: "scene-2", Order: 2, DurationSec: 8, VisualPrompt: "sea", Status: model.SceneStatusIdle},
			},
		},
	}
}

func TestStore_CreateProjectPrependsHistory(t *testing.T) {
	s := New()
	s.CreateProject(testProject("p1"))
	s.CreateProject(testProject("p2"))

	assert.Equal(t, "p2", s.Current().ID)
	hist := s.History(0)
	require.Len(t, hist, 2)
	assert.Equal(t, "p2", hist[0].ID)
	assert.Equal(t, "p1", hist[1].ID)
	assert.Len(t, s.History(1), 1)
	assert.Equal(t, 2, s.CountVersions("a drone over a glacier"))
}

func TestStore_ReadsAreCopies(t *testing.T) {
	s := New()
	s.CreateProject(testProject("p1"))

	cur := s.Current()
	cur.Storyboard.Scenes[0].VisualPrompt = "mutated"
	cur.Status = model.ProjectStatusReady

	fresh := s.Current()
	assert.Equal(t, "ice", fresh.Storyboard.Scenes[0].VisualPrompt)
	assert.Equal(t, model.ProjectStatusIdle, fresh.Status)
}

func TestStore_UpdateSceneReplacesOnlyTarget(t *testing.T) {
	s := New()
	s.CreateProject(testProject("p1"))
	before := s.Current()

	scene, idx, err := s.Scene("p1", "scene-2")
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	require.NoError(t, s.UpdateScene("p1", scene.Completed("http://clips/2.mp4")))

	after := s.Current()
	assert.Equal(t, before.Storyboard.Scenes[0], after.Storyboard.Scenes[0])
	assert.Equal(t, model.SceneStatusCompleted, after.Storyboard.Scenes[1].Status)
	assert.Equal(t, "http://clips/2.mp4", after.Storyboard.Scenes[1].VideoURL)

	// history keeps the creation snapshot
	assert.Equal(t, model.SceneStatusIdle, s.History(0)[0].Storyboard.Scenes[1].Status)
}

func TestStore_RejectsStaleAndInvalidWrites(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.SetStatus("p1", model.ProjectStatusReady), ErrNoProject)

	s.CreateProject(testProject("p1"))
	scene, _, err := s.Scene("p1", "scene-1")
	require.NoError(t, err)

	assert.ErrorIs(t, s.UpdateScene("old", scene), ErrStaleProject)
	assert.ErrorIs(t, s.UpdateScene("p1", model.Scene{ID: "nope", DurationSec: 8}), ErrSceneNotFound)

	shorter := scene
	shorter.DurationSec = 4
	assert.ErrorIs(t, s.UpdateScene("p1", shorter), ErrDurationLocked)

	assert.ErrorIs(t, s.ApplyScenes("p1", []model.Scene{scene}), ErrSceneMismatch)
}

func TestStore_ApplyScenes(t *testing.T) {
	s := New()
	s.CreateProject(testProject("p1"))
	cur := s.Current()

	scenes := cur.Storyboard.Scenes
	scenes[0] = scenes[0].Failed("boom")
	require.NoError(t, s.ApplyScenes("p1", scenes))

	got := s.Current().Storyboard.Scenes
	assert.Equal(t, model.SceneStatusFailed, got[0].Status)
	assert.Equal(t, "boom", got[0].Error)
}

func TestStore_ListenersSeeOrderedChanges(t *testing.T) {
	s := New()
	var kinds []ChangeKind
	s.Subscribe(func(c Change) { kinds = append(kinds, c.Kind) })

	s.CreateProject(testProject("p1"))
	scene, _, _ := s.Scene("p1", "scene-1")
	require.NoError(t, s.UpdateScene("p1", scene.Generating()))
	require.NoError(t, s.SetStatus("p1", model.ProjectStatusGenerating))
	s.SetAlert(model.AlertQuota, "limit")
	s.ReplaceCurrent(nil)

	assert.Equal(t, []ChangeKind{ChangeProject, ChangeScene, ChangeStatus, ChangeAlert, ChangeReset}, kinds)
	assert.Nil(t, s.Current())
	assert.Len(t, s.History(0), 1)
}

func TestStore_AlertLifecycle(t *testing.T) {
	s := New()
	assert.Nil(t, s.Alert())
	s.SetAlert(model.AlertQuota, "limit")
	require.NotNil(t, s.Alert())
	assert.Equal(t, model.AlertQuota, s.Alert().Code)
	s.ClearAlert()
	assert.Nil(t, s.Alert())
}

func TestStore_AcquireIsExclusive(t *testing.T) {
	s := New()
	release, err := s.Acquire()
	require.NoError(t, err)
	assert.True(t, s.Busy())

	_, err = s.Acquire()
	assert.ErrorIs(t, err, ErrBusy)

	release()
	release()
	assert.False(t, s.Busy())

	again, err := s.Acquire()
	require.NoError(t, err)
	again()
}

func TestStore_ConcurrentSceneWritesAreSerialized(t *testing.T) {
	s := New()
	s.CreateProject(testProject("p1"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "scene-1"
			if i%2 == 1 {
				id = "scene-2"
			}
			scene, _, err := s.Scene("p1", id)
			if err != nil {
				return
			}
			_ = s.UpdateScene("p1", scene.Generating())
		}(i)
	}
	wg.Wait()

	for _, sc := range s.Current().Storyboard.Scenes {
		assert.Equal(t, model.SceneStatusGenerating, sc.Status)
	}
}

func TestRegistry_OneStorePerUser(t *testing.T) {
	r := NewRegistry()
	var created []string
	r.OnCreate(func(userID string, _ *Store) { created = append(created, userID) })

	a := r.Get("alice")
	assert.Same(t, a, r.Get("alice"))
	assert.NotSame(t, a, r.Get("bob"))
	assert.Equal(t, []string{"alice", "bob"}, created)
}
