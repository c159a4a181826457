// Package playback sequences the rendered clips of a storyboard and hosts the
// export step that turns them into one downloadable video.
package playback

import (
	"context"
	"errors"
	"time"

	"github.com/storyreel/api/internal/model"
)

// ErrNoClips is returned when there is nothing to play or export.
var ErrNoClips = errors.New("no completed clips")

// Clips returns the clip URLs of completed scenes in scene order.
func Clips(b *model.Storyboard) []string {
	if b == nil {
		return nil
	}
	var out []string
	for _, s := range b.Scenes {
		if s.Status == model.SceneStatusCompleted && s.VideoURL != "" {
			out = append(out, s.VideoURL)
		}
	}
	return out
}

// Progress is the completed share of scenes as a whole percentage.
func Progress(b *model.Storyboard) int {
	if b == nil || len(b.Scenes) == 0 {
		return 0
	}
	return b.CountStatus(model.SceneStatusCompleted) * 100 / len(b.Scenes)
}

// Sequencer plays clips back to back, wrapping to the first clip after the
// last one ends.
type Sequencer struct {
	clips   []string
	current int
}

func NewSequencer(clips []string) *Sequencer {
	return &Sequencer{clips: append([]string(nil), clips...)}
}

// Seek moves to index i, wrapped into range.
func (s *Sequencer) Seek(i int) {
	if len(s.clips) == 0 {
		s.current = 0
		return
	}
	i %= len(s.clips)
	if i < 0 {
		i += len(s.clips)
	}
	s.current = i
}

// Index is the position of the current clip.
func (s *Sequencer) Index() int { return s.current }

// Current returns the clip being played, or "" when there are none.
func (s *Sequencer) Current() string {
	if len(s.clips) == 0 {
		return ""
	}
	return s.clips[s.current]
}

// Next advances on clip end and returns the new current clip.
func (s *Sequencer) Next() string {
	if len(s.clips) == 0 {
		return ""
	}
	s.current = (s.current + 1) % len(s.clips)
	return s.clips[s.current]
}

// Len is the number of clips in the sequence.
func (s *Sequencer) Len() int { return len(s.clips) }

// DownloadURL is the exported video when present, otherwise the clip on
// screen.
func DownloadURL(p *model.VideoProject, seq *Sequencer) string {
	if p != nil && p.FinalVideoURL != "" {
		return p.FinalVideoURL
	}
	if seq == nil {
		return ""
	}
	return seq.Current()
}

// Merger exports a list of clips as a single video.
type Merger interface {
	Merge(ctx context.Context, clips []string) (string, error)
}

// StubMerger stands in for real concatenation: after Delay it returns the
// first clip unchanged.
type StubMerger struct {
	Delay time.Duration
}

func (m StubMerger) Merge(ctx context.Context, clips []string) (string, error) {
	if len(clips) == 0 {
		return "", ErrNoClips
	}
	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	return clips[0], nil
}
