package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryClip is a clip held by MemoryStorage
type MemoryClip struct {
	Data        []byte
	ContentType string
}

// MemoryStorage keeps clips in process memory and serves them under
// <baseURL>/clips/<key>. It is the server side analogue of a browser object
// URL and suits development and tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	baseURL string
	clips   map[string]MemoryClip
}

func NewMemoryStorage(publicBaseURL string) *MemoryStorage {
	return &MemoryStorage{
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		clips:   make(map[string]MemoryClip),
	}
}

func (m *MemoryStorage) Upload(_ context.Context, key string, body io.Reader, _ int64, contentType string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", fmt.Errorf("failed to buffer clip: %w", err)
	}
	m.mu.Lock()
	m.clips[key] = MemoryClip{Data: buf.Bytes(), ContentType: contentType}
	m.mu.Unlock()
	return fmt.Sprintf("%s/clips/%s", m.baseURL, key), nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.clips, key)
	m.mu.Unlock()
	return nil
}

// Get returns a stored clip by key
func (m *MemoryStorage) Get(key string) (MemoryClip, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clip, ok := m.clips[key]
	return clip, ok
}
