package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/storyreel/api/internal/credential"
	"github.com/storyreel/api/internal/failure"
	"github.com/storyreel/api/internal/model"
	"github.com/storyreel/api/internal/playback"
	"github.com/storyreel/api/internal/store"
	"go.uber.org/zap"
)

var (
	ErrProjectBusy      = errors.New("project is rendering")
	ErrSceneBusy        = errors.New("scene is rendering")
	ErrEmptySceneUpdate = errors.New("no scene fields to update")
)

// HistoryDisplayLimit caps the history shown in the studio view.
const HistoryDisplayLimit = 5

const (
	RenderActionGenerate = "Generate Video"
	RenderActionRetry    = "Retry Failed Scenes"
)

// StoryboardError is a failed storyboard generation, already normalised for
// display.
type StoryboardError struct {
	Message string
	Quota   bool
	Err     error
}

func (e *StoryboardError) Error() string { return e.Message }
func (e *StoryboardError) Unwrap() error { return e.Err }

// StoryboardGenerator produces a storyboard from free text.
type StoryboardGenerator interface {
	Generate(ctx context.Context, apiKey, text string, totalDuration int, style string) (*model.Storyboard, error)
}

// StudioService implements the user facing studio actions on top of the
// per-user stores. Renders are queued and run by the worker.
type StudioService struct {
	registry    *store.Registry
	storyboards StoryboardGenerator
	credentials credential.Selector
	enqueuer    Enqueuer
	merger      playback.Merger
	taskTimeout time.Duration
	sceneWait   time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

func NewStudioService(
	registry *store.Registry,
	storyboards StoryboardGenerator,
	credentials credential.Selector,
	enqueuer Enqueuer,
	merger playback.Merger,
	taskTimeout time.Duration,
	sceneWait time.Duration,
	logger *zap.Logger,
) *StudioService {
	return &StudioService{
		registry:    registry,
		storyboards: storyboards,
		credentials: credentials,
		enqueuer:    enqueuer,
		merger:      merger,
		taskTimeout: taskTimeout,
		sceneWait:   sceneWait,
		logger:      logger.Named("studio"),
		now:         time.Now,
	}
}

func isRendering(st *store.Store, p *model.VideoProject) bool {
	return st.Busy() || (p != nil && p.Status == model.ProjectStatusGenerating)
}

func (s *StudioService) requireCredential(ctx context.Context, userID string) error {
	ok, err := s.credentials.HasSelected(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return failure.ErrCredentialRequired
	}
	return nil
}

// CreateProject generates a storyboard for the request and makes the result
// the current project. On failure nothing is created and the project level
// alert carries the reason.
func (s *StudioService) CreateProject(ctx context.Context, userID string, req *model.CreateProjectRequest) (*model.VideoProject, error) {
	st := s.registry.Get(userID)
	if isRendering(st, st.Current()) {
		return nil, ErrProjectBusy
	}

	apiKey, err := s.credentials.APIKey(ctx, userID)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(req.Text)
	board, err := s.storyboards.Generate(ctx, apiKey, text, req.Duration, req.Style)
	if err != nil {
		sbErr := &StoryboardError{
			Message: failure.StoryboardMessage(err),
			Quota:   failure.IsQuota(err),
			Err:     err,
		}
		code := model.AlertStoryboard
		if sbErr.Quota {
			code = model.AlertQuota
		}
		st.SetAlert(code, sbErr.Message)
		s.logger.Warn("storyboard failed", zap.String("user_id", userID), zap.Error(err))
		return nil, sbErr
	}

	quality := req.Quality
	if quality == "" {
		quality = model.QualityStandard
	}
	project := &model.VideoProject{
		ID:           uuid.New().String(),
		OriginalText: text,
		Storyboard:   board,
		Config: model.ProjectConfig{
			Duration:    req.Duration,
			Style:       req.Style,
			AspectRatio: model.AspectRatio,
			Quality:     quality,
		},
		Status:    model.ProjectStatusIdle,
		Version:   st.CountVersions(text) + 1,
		CreatedAt: s.now().UTC(),
	}

	st.ClearAlert()
	st.CreateProject(project)
	s.logger.Info("project created",
		zap.String("user_id", userID),
		zap.String("project_id", project.ID),
		zap.Int("scenes", len(board.Scenes)),
		zap.Int("version", project.Version),
	)
	return project, nil
}

// Current returns the current project or store.ErrNoProject.
func (s *StudioService) Current(userID string) (*model.VideoProject, error) {
	p := s.registry.Get(userID).Current()
	if p == nil {
		return nil, store.ErrNoProject
	}
	return p, nil
}

// History returns up to limit history entries, newest first.
func (s *StudioService) History(userID string, limit int) []*model.VideoProject {
	return s.registry.Get(userID).History(limit)
}

// Reset drops the current project. History is kept.
func (s *StudioService) Reset(userID string) error {
	st := s.registry.Get(userID)
	if isRendering(st, st.Current()) {
		return ErrProjectBusy
	}
	st.ReplaceCurrent(nil)
	return nil
}

// UpdateScene edits the descriptive text of one scene. Duration, status and
// clip are never touched here.
func (s *StudioService) UpdateScene(userID, sceneID string, req *model.UpdateSceneRequest) (*model.Scene, error) {
	if req.IsEmpty() {
		return nil, ErrEmptySceneUpdate
	}
	st := s.registry.Get(userID)
	cur := st.Current()
	if cur == nil {
		return nil, store.ErrNoProject
	}
	if isRendering(st, cur) {
		return nil, ErrProjectBusy
	}
	scene, _, err := st.Scene(cur.ID, sceneID)
	if err != nil {
		return nil, err
	}
	if scene.Status == model.SceneStatusGenerating {
		return nil, ErrSceneBusy
	}

	if req.VisualPrompt != nil {
		scene.VisualPrompt = strings.TrimSpace(*req.VisualPrompt)
	}
	if req.Camera != nil {
		scene.Camera = strings.TrimSpace(*req.Camera)
	}
	if req.Lighting != nil {
		scene.Lighting = strings.TrimSpace(*req.Lighting)
	}
	if req.NegativePrompt != nil {
		scene.NegativePrompt = strings.TrimSpace(*req.NegativePrompt)
	}
	if err := st.UpdateScene(cur.ID, scene); err != nil {
		return nil, err
	}
	return &scene, nil
}

// StartRender queues a batch render of every scene not yet completed. The
// project is marked generating right away so a second request is refused.
func (s *StudioService) StartRender(ctx context.Context, userID string) (*model.RenderStartResponse, error) {
	st := s.registry.Get(userID)
	cur := st.Current()
	if cur == nil {
		return nil, store.ErrNoProject
	}
	if cur.Storyboard == nil {
		return nil, store.ErrNoStoryboard
	}
	if isRendering(st, cur) {
		return nil, ErrProjectBusy
	}

	// With every clip in place the batch only marks the project ready, so no
	// credential is needed.
	pending := len(cur.Storyboard.Scenes) - cur.Storyboard.CountStatus(model.SceneStatusCompleted)
	if pending > 0 {
		if err := s.requireCredential(ctx, userID); err != nil {
			return nil, err
		}
	}
	if err := st.SetStatus(cur.ID, model.ProjectStatusGenerating); err != nil {
		return nil, err
	}

	task, err := NewRenderBatchTask(&model.RenderBatchPayload{UserID: userID, ProjectID: cur.ID})
	if err != nil {
		_ = st.SetStatus(cur.ID, cur.Status)
		return nil, err
	}
	info, err := s.enqueuer.Enqueue(task, renderTaskOptions(renderTimeout(s.taskTimeout, s.sceneWait, pending))...)
	if err != nil {
		_ = st.SetStatus(cur.ID, cur.Status)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("render queued", zap.String("user_id", userID), zap.String("project_id", cur.ID), zap.Int("pending", pending))
	return &model.RenderStartResponse{
		TaskID:      info.ID,
		ProjectID:   cur.ID,
		Status:      model.ProjectStatusGenerating,
		SceneCount:  len(cur.Storyboard.Scenes),
		PendingRuns: pending,
		QueuedAt:    s.now().UTC(),
	}, nil
}

// RegenerateScene queues a render of a single scene.
func (s *StudioService) RegenerateScene(ctx context.Context, userID, sceneID string) (*model.RegenerateResponse, error) {
	st := s.registry.Get(userID)
	cur := st.Current()
	if cur == nil {
		return nil, store.ErrNoProject
	}
	if isRendering(st, cur) {
		return nil, ErrProjectBusy
	}
	scene, _, err := st.Scene(cur.ID, sceneID)
	if err != nil {
		return nil, err
	}
	if scene.Status == model.SceneStatusGenerating {
		return nil, ErrSceneBusy
	}
	if err := s.requireCredential(ctx, userID); err != nil {
		return nil, err
	}

	task, err := NewRegenerateSceneTask(&model.RegenerateScenePayload{UserID: userID, ProjectID: cur.ID, SceneID: sceneID})
	if err != nil {
		return nil, err
	}
	info, err := s.enqueuer.Enqueue(task, renderTaskOptions(renderTimeout(s.taskTimeout, s.sceneWait, 1))...)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.RegenerateResponse{
		TaskID:    info.ID,
		ProjectID: cur.ID,
		SceneID:   sceneID,
		QueuedAt:  s.now().UTC(),
	}, nil
}

// SelectCredential selects the caller's generation credential and clears
// any outstanding alert.
func (s *StudioService) SelectCredential(ctx context.Context, userID, apiKey string) error {
	if err := s.credentials.Select(ctx, userID, strings.TrimSpace(apiKey)); err != nil {
		return err
	}
	s.registry.Get(userID).ClearAlert()
	return nil
}

func (s *StudioService) CredentialSelected(ctx context.Context, userID string) (bool, error) {
	return s.credentials.HasSelected(ctx, userID)
}

func (s *StudioService) DropCredential(ctx context.Context, userID string) error {
	return s.credentials.Invalidate(ctx, userID)
}

// Studio returns the whole studio view for the caller.
func (s *StudioService) Studio(ctx context.Context, userID string) (*model.StudioResponse, error) {
	st := s.registry.Get(userID)
	selected, err := s.credentials.HasSelected(ctx, userID)
	if err != nil {
		return nil, err
	}

	cur := st.Current()
	resp := &model.StudioResponse{
		CurrentProject:     cur,
		History:            st.History(HistoryDisplayLimit),
		CredentialSelected: selected,
		Alert:              st.Alert(),
	}
	if cur != nil && cur.Storyboard != nil {
		resp.RenderAction = RenderActionGenerate
		if cur.Storyboard.HasFailures() {
			resp.RenderAction = RenderActionRetry
		}
		resp.Progress = playback.Progress(cur.Storyboard)
	}
	return resp, nil
}

// Playlist returns the clip sequencer view positioned at index.
func (s *StudioService) Playlist(userID string, index int) (*model.PlaylistResponse, error) {
	cur, err := s.Current(userID)
	if err != nil {
		return nil, err
	}
	seq := playback.NewSequencer(playback.Clips(cur.Storyboard))
	seq.Seek(index)

	resp := &model.PlaylistResponse{
		ProjectID:     cur.ID,
		Clips:         playback.Clips(cur.Storyboard),
		CurrentIndex:  seq.Index(),
		CurrentClip:   seq.Current(),
		Progress:      playback.Progress(cur.Storyboard),
		DownloadURL:   playback.DownloadURL(cur, seq),
		FinalVideoURL: cur.FinalVideoURL,
	}
	if resp.Clips == nil {
		resp.Clips = []string{}
	}
	if cur.Storyboard != nil {
		resp.CompletedCount = cur.Storyboard.CountStatus(model.SceneStatusCompleted)
		resp.TotalCount = len(cur.Storyboard.Scenes)
	}
	return resp, nil
}

// Merge exports the completed clips and records the result as the final
// video of the project.
func (s *StudioService) Merge(ctx context.Context, userID string) (*model.MergeResponse, error) {
	st := s.registry.Get(userID)
	cur := st.Current()
	if cur == nil {
		return nil, store.ErrNoProject
	}
	if isRendering(st, cur) {
		return nil, ErrProjectBusy
	}

	url, err := s.merger.Merge(ctx, playback.Clips(cur.Storyboard))
	if err != nil {
		return nil, err
	}
	if err := st.SetFinalVideo(cur.ID, url); err != nil {
		return nil, err
	}
	return &model.MergeResponse{ProjectID: cur.ID, FinalVideoURL: url}, nil
}
