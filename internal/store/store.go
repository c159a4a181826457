// Package store owns the studio state of one user workspace: the current
// project, the history of created projects and the project-level alert.
//
// Every mutation is applied under a single lock and replaces values rather
// than editing them in place, so readers never observe a half-applied
// storyboard. Reads always return deep copies.
package store

import (
	"errors"
	"sync"
	"time"

	"github.com/storyreel/api/internal/model"
)

var (
	ErrNoProject      = errors.New("no current project")
	ErrStaleProject   = errors.New("project is no longer current")
	ErrSceneNotFound  = errors.New("scene not found")
	ErrBusy           = errors.New("another render is already writing to this project")
	ErrNoStoryboard   = errors.New("project has no storyboard")
	ErrSceneMismatch  = errors.New("scene list does not match the storyboard")
	ErrDurationLocked = errors.New("scene duration cannot change after creation")
)

// ChangeKind identifies what a Change describes.
type ChangeKind string

const (
	ChangeProject    ChangeKind = "project"
	ChangeScene      ChangeKind = "scene"
	ChangeStatus     ChangeKind = "status"
	ChangeAlert      ChangeKind = "alert"
	ChangeFinalVideo ChangeKind = "final_video"
	ChangeReset      ChangeKind = "reset"
)

// Change is emitted to listeners after each mutation.
type Change struct {
	Kind      ChangeKind
	ProjectID string
	Project   *model.VideoProject
	Scene     *model.Scene
	Index     int
	Total     int
	Alert     *model.Alert
}

// Listener receives changes in the order they were applied. Listeners run
// while the store lock is held and must not call back into the store.
type Listener func(Change)

// Store is the state of one user workspace.
type Store struct {
	mu        sync.Mutex
	current   *model.VideoProject
	history   []*model.VideoProject
	alert     *model.Alert
	writing   bool
	listeners []Listener
	now       func() time.Time
}

func New() *Store {
	return &Store{now: time.Now}
}

// Subscribe registers l for every later change.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Store) emit(c Change) {
	for _, l := range s.listeners {
		l(c)
	}
}

// Current returns a copy of the current project, or nil.
func (s *Store) Current() *model.VideoProject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Clone()
}

// History returns copies of the history entries, newest first. A limit of
// zero or less returns everything.
func (s *Store) History(limit int) []*model.VideoProject {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*model.VideoProject, 0, n)
	for _, p := range s.history[:n] {
		out = append(out, p.Clone())
	}
	return out
}

// CountVersions returns how many history entries share originalText.
func (s *Store) CountVersions(originalText string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.history {
		if p.OriginalText == originalText {
			n++
		}
	}
	return n
}

// Alert returns the project-level alert, or nil.
func (s *Store) Alert() *model.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alert == nil {
		return nil
	}
	a := *s.alert
	return &a
}

// CreateProject makes p current and prepends a snapshot of it to history in
// one step.
func (s *Store) CreateProject(p *model.VideoProject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = p.Clone()
	s.history = append([]*model.VideoProject{p.Clone()}, s.history...)
	s.emit(Change{Kind: ChangeProject, ProjectID: p.ID, Project: s.current.Clone()})
}

// ReplaceCurrent swaps the current project wholesale. Passing nil resets the
// workspace; history is kept.
func (s *Store) ReplaceCurrent(p *model.VideoProject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		var id string
		if s.current != nil {
			id = s.current.ID
		}
		s.current = nil
		s.emit(Change{Kind: ChangeReset, ProjectID: id})
		return
	}
	s.current = p.Clone()
	s.emit(Change{Kind: ChangeProject, ProjectID: p.ID, Project: s.current.Clone()})
}

// currentFor returns the current project when it matches projectID.
func (s *Store) currentFor(projectID string) (*model.VideoProject, error) {
	if s.current == nil {
		return nil, ErrNoProject
	}
	if s.current.ID != projectID {
		return nil, ErrStaleProject
	}
	if s.current.Storyboard == nil {
		return nil, ErrNoStoryboard
	}
	return s.current, nil
}

// ApplyScenes replaces the whole scene list of the current project. The new
// list must keep the scene ids and durations of the stored storyboard.
func (s *Store) ApplyScenes(projectID string, scenes []model.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.currentFor(projectID)
	if err != nil {
		return err
	}
	old := cur.Storyboard.Scenes
	if len(old) != len(scenes) {
		return ErrSceneMismatch
	}
	for i := range scenes {
		if scenes[i].ID != old[i].ID {
			return ErrSceneMismatch
		}
		if scenes[i].DurationSec != old[i].DurationSec {
			return ErrDurationLocked
		}
	}

	next := cur.Clone()
	next.Storyboard = cur.Storyboard.WithScenes(scenes)
	s.current = next
	s.emit(Change{Kind: ChangeProject, ProjectID: projectID, Project: next.Clone()})
	return nil
}

// UpdateScene replaces the scene with the same id as scene. Duration is
// immutable once the storyboard exists.
func (s *Store) UpdateScene(projectID string, scene model.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.currentFor(projectID)
	if err != nil {
		return err
	}
	idx := cur.Storyboard.IndexOf(scene.ID)
	if idx < 0 {
		return ErrSceneNotFound
	}
	if cur.Storyboard.Scenes[idx].DurationSec != scene.DurationSec {
		return ErrDurationLocked
	}

	scenes := append([]model.Scene(nil), cur.Storyboard.Scenes...)
	scenes[idx] = scene
	next := *cur
	next.Storyboard = cur.Storyboard.WithScenes(scenes)
	s.current = &next

	published := scene
	s.emit(Change{
		Kind:      ChangeScene,
		ProjectID: projectID,
		Scene:     &published,
		Index:     idx,
		Total:     len(scenes),
	})
	return nil
}

// Scene returns a copy of one scene of the current project.
func (s *Store) Scene(projectID, sceneID string) (model.Scene, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.currentFor(projectID)
	if err != nil {
		return model.Scene{}, -1, err
	}
	idx := cur.Storyboard.IndexOf(sceneID)
	if idx < 0 {
		return model.Scene{}, -1, ErrSceneNotFound
	}
	return cur.Storyboard.Scenes[idx], idx, nil
}

// SetStatus sets the project status.
func (s *Store) SetStatus(projectID string, status model.ProjectStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoProject
	}
	if s.current.ID != projectID {
		return ErrStaleProject
	}
	next := *s.current
	next.Status = status
	s.current = &next
	s.emit(Change{Kind: ChangeStatus, ProjectID: projectID, Project: next.Clone()})
	return nil
}

// SetFinalVideo records the exported video locator.
func (s *Store) SetFinalVideo(projectID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoProject
	}
	if s.current.ID != projectID {
		return ErrStaleProject
	}
	next := *s.current
	next.FinalVideoURL = url
	s.current = &next
	s.emit(Change{Kind: ChangeFinalVideo, ProjectID: projectID, Project: next.Clone()})
	return nil
}

// SetAlert raises the project-level alert.
func (s *Store) SetAlert(code, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alert = &model.Alert{Code: code, Message: message, At: s.now()}
	var id string
	if s.current != nil {
		id = s.current.ID
	}
	a := *s.alert
	s.emit(Change{Kind: ChangeAlert, ProjectID: id, Alert: &a})
}

// ClearAlert drops the project-level alert.
func (s *Store) ClearAlert() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alert = nil
}

// Acquire takes the single-writer token used by render runs. The returned
// release func is idempotent.
func (s *Store) Acquire() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writing {
		return nil, ErrBusy
	}
	s.writing = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.writing = false
			s.mu.Unlock()
		})
	}, nil
}

// Busy reports whether a writer holds the token.
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writing
}
