// Package credential tracks which generation credential each user has
// selected. A selection is demoted when the render boundary reports that the
// credential session was invalidated.
package credential

import (
	"context"
	"sync"

	"github.com/storyreel/api/internal/failure"
)

// Selector is the credential boundary consumed by the studio and pipeline.
type Selector interface {
	HasSelected(ctx context.Context, userID string) (bool, error)
	Select(ctx context.Context, userID, apiKey string) error
	APIKey(ctx context.Context, userID string) (string, error)
	Invalidate(ctx context.Context, userID string) error
}

// MemorySelector keeps selections in process memory.
type MemorySelector struct {
	mu         sync.RWMutex
	defaultKey string
	keys       map[string]string
	selected   map[string]bool
}

func NewMemorySelector(defaultKey string) *MemorySelector {
	return &MemorySelector{
		defaultKey: defaultKey,
		keys:       make(map[string]string),
		selected:   make(map[string]bool),
	}
}

func (s *MemorySelector) HasSelected(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected[userID], nil
}

// Select marks a credential as selected. An empty key selects the server
// default credential.
func (s *MemorySelector) Select(_ context.Context, userID, apiKey string) error {
	key := apiKey
	if key == "" {
		key = s.defaultKey
	}
	if key == "" {
		return failure.ErrCredentialRequired
	}
	s.mu.Lock()
	s.keys[userID] = key
	s.selected[userID] = true
	s.mu.Unlock()
	return nil
}

func (s *MemorySelector) APIKey(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.selected[userID] || s.keys[userID] == "" {
		return "", failure.ErrCredentialRequired
	}
	return s.keys[userID], nil
}

// Invalidate demotes the selected flag. The key itself is kept so that a
// reselect without a key can fall back to the default.
func (s *MemorySelector) Invalidate(_ context.Context, userID string) error {
	s.mu.Lock()
	s.selected[userID] = false
	s.mu.Unlock()
	return nil
}
