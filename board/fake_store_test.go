package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"taskboard/domain"
)

type stubStore struct {
	listFn   func(ctx context.Context, owner string) ([]domain.Task, error)
	createFn func(ctx context.Context, owner string, draft domain.Draft, key string) (domain.Task, error)
	updateFn func(ctx context.Context, id string, patch domain.Patch) (*domain.Task, error)
	deleteFn func(ctx context.Context, id string) error

	mu    sync.Mutex
	calls []string
}

func (s *stubStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubStore) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	s.record("list " + owner)
	if s.listFn == nil {
		return nil, errors.New("unexpected ListTasks call")
	}
	return s.listFn(ctx, owner)
}

func (s *stubStore) CreateTask(ctx context.Context, owner string, draft domain.Draft, key string) (domain.Task, error) {
	s.record("create " + draft.Title)
	if s.createFn == nil {
		return domain.Task{}, errors.New("unexpected CreateTask call")
	}
	return s.createFn(ctx, owner, draft, key)
}

func (s *stubStore) UpdateTask(ctx context.Context, id string, patch domain.Patch) (*domain.Task, error) {
	s.record("update " + id)
	if s.updateFn == nil {
		return nil, errors.New("unexpected UpdateTask call")
	}
	return s.updateFn(ctx, id, patch)
}

func (s *stubStore) DeleteTask(ctx context.Context, id string) error {
	s.record("delete " + id)
	if s.deleteFn == nil {
		return errors.New("unexpected DeleteTask call")
	}
	return s.deleteFn(ctx, id)
}

// gate blocks a stub call until the test releases it with a result.
type gate struct {
	entered chan struct{}
	release chan error
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan error, 1)}
}

func (g *gate) wait() error {
	close(g.entered)
	return <-g.release
}

// assertConsistent checks that every task sits in exactly one bucket and that
// the bucket matches its category.
func assertConsistent(t *testing.T, snap Snapshot) {
	t.Helper()
	seen := make(map[string]domain.Category)
	for _, c := range domain.Categories {
		for _, tk := range snap[c] {
			if tk.Category != c {
				t.Fatalf("task %s has category %q but sits in bucket %q", tk.Key(), tk.Category, c)
			}
			if prev, dup := seen[tk.Key()]; dup {
				t.Fatalf("task %s appears in buckets %q and %q", tk.Key(), prev, c)
			}
			seen[tk.Key()] = c
		}
	}
	if len(snap) != len(domain.Categories) {
		t.Fatalf("expected %d buckets, got %d", len(domain.Categories), len(snap))
	}
}

func bucketIDs(snap Snapshot, c domain.Category) []string {
	ids := make([]string, 0, len(snap[c]))
	for _, tk := range snap[c] {
		ids = append(ids, tk.Key())
	}
	return ids
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("local-%d", n)
	}
}
