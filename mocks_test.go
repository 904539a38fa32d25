package talyn_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	talyn "github.com/talyn-hq/go-talyn"
)

// MockAPI replaces the gateway for store tests that don't need a live server.
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) Get(ctx context.Context, path string, out any) error {
	args := m.Called(ctx, path, out)
	return args.Error(0)
}

func (m *MockAPI) Post(ctx context.Context, path string, body any, out any) error {
	args := m.Called(ctx, path, body, out)
	return args.Error(0)
}

func (m *MockAPI) Patch(ctx context.Context, path string, body any, out any) error {
	args := m.Called(ctx, path, body, out)
	return args.Error(0)
}

// recordingSink captures emitted activity events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []talyn.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event talyn.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) Events() []talyn.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]talyn.ActivityEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingSink) Types() []talyn.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]talyn.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
}
