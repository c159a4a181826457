package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var errMockNotFound = errors.New("Requested entity was not found.")

// MockVeoClient simulates the render job boundary for development. Every job
// finishes after a fixed number of polls and downloads a placeholder clip.
type MockVeoClient struct {
	mu        sync.Mutex
	pollsLeft map[string]int
	polls     int
}

func NewMockVeoClient(pollsPerJob int) *MockVeoClient {
	if pollsPerJob < 0 {
		pollsPerJob = 0
	}
	return &MockVeoClient{pollsLeft: make(map[string]int), polls: pollsPerJob}
}

func (m *MockVeoClient) SubmitVideo(_ context.Context, _ string, req *VideoRequest) (*VideoOperation, error) {
	name := fmt.Sprintf("models/%s/operations/mock-%s", req.Model, uuid.New().String())
	m.mu.Lock()
	m.pollsLeft[name] = m.polls
	m.mu.Unlock()
	return &VideoOperation{Name: name}, nil
}

func (m *MockVeoClient) GetVideoOperation(_ context.Context, _ string, name string) (*VideoOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	left, ok := m.pollsLeft[name]
	if !ok {
		return nil, errMockNotFound
	}
	if left > 0 {
		m.pollsLeft[name] = left - 1
		return &VideoOperation{Name: name}, nil
	}
	delete(m.pollsLeft, name)

	return NewCompletedOperation(name, "mock://"+strings.TrimPrefix(name, "models/")), nil
}

func (m *MockVeoClient) DownloadVideo(_ context.Context, _ string, uri string) ([]byte, string, error) {
	if !strings.HasPrefix(uri, "mock://") {
		return nil, "", fmt.Errorf("unknown mock clip %q", uri)
	}
	return []byte("mock clip " + uri), "video/mp4", nil
}
