// Package board keeps the in-memory task board in sync with the remote task
// store. Every mutation is applied locally first, then sent to the store, and
// undone if the store rejects it.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/remote"
	"taskboard/session"
)

// Store is the CRUD contract of the remote task store.
type Store interface {
	ListTasks(ctx context.Context, owner string) ([]domain.Task, error)
	CreateTask(ctx context.Context, owner string, draft domain.Draft, idempotencyKey string) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.Patch) (*domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
}

// Board holds all known tasks partitioned into one bucket per category.
//
// The lock is released while a store request is in flight, so operations
// issued in that window see the optimistic state. Requests against the same
// task are not serialized; the later response wins.
type Board struct {
	sess    *session.Session
	store   Store
	logger  *log.Logger
	localID func() string

	mu      sync.Mutex
	buckets map[domain.Category][]domain.Task
	closed  bool

	changes *changeBroker
}

// Option configures a Board.
type Option func(*Board)

func WithLogger(logger *log.Logger) Option {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithLocalIDs overrides how temporary markers for unsaved tasks are generated.
func WithLocalIDs(gen func() string) Option {
	return func(b *Board) {
		if gen != nil {
			b.localID = gen
		}
	}
}

// New creates an empty board bound to the session.
func New(sess *session.Session, store Store, opts ...Option) *Board {
	if store == nil {
		panic("board.New: store is nil")
	}
	b := &Board{
		sess:    sess,
		store:   store,
		logger:  log.StandardLogger(),
		localID: func() string { return "local-" + uuid.NewString() },
		buckets: emptyBuckets(),
		changes: newChangeBroker(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func emptyBuckets() map[domain.Category][]domain.Task {
	buckets := make(map[domain.Category][]domain.Task, len(domain.Categories))
	for _, c := range domain.Categories {
		buckets[c] = nil
	}
	return buckets
}

// Load fetches every task of the session owner and replaces the board. On
// failure the previous board is kept. Tasks still waiting for their create to
// be confirmed survive the reload.
func (b *Board) Load(ctx context.Context) (Outcome, error) {
	owner := b.sess.OwnerEmail()
	if owner == "" {
		return b.reject(ErrFetch, "", ErrNoSession)
	}
	if b.isTornDown() {
		return b.reject(ErrFetch, "", ErrClosed)
	}

	tasks, err := b.store.ListTasks(ctx, owner)
	if err != nil {
		if b.isTornDown() {
			return Outcome{Status: Discarded}, nil
		}
		opErr := opError(ErrFetch, "", err)
		b.logger.WithError(err).WithField("owner", owner).Warn("board load failed")
		return Outcome{Status: Failed, Reason: opErr}, opErr
	}

	b.mu.Lock()
	if b.tornDownLocked() {
		b.mu.Unlock()
		return Outcome{Status: Discarded}, nil
	}
	next := emptyBuckets()
	loaded := 0
	for _, t := range tasks {
		if t.ID == "" || !t.Category.IsValid() {
			b.logger.WithFields(log.Fields{"task": t.ID, "category": t.Category}).Warn("board load skipped unusable task")
			continue
		}
		t.LocalID = ""
		next[t.Category] = append(next[t.Category], t)
		loaded++
	}
	for _, c := range domain.Categories {
		for _, t := range b.buckets[c] {
			if t.Pending() && t.LocalID != "" {
				next[c] = append(next[c], t)
			}
		}
	}
	b.buckets = next
	b.mu.Unlock()

	b.logger.WithFields(log.Fields{"owner": owner, "tasks": loaded}).Debug("board loaded")
	b.changes.notify()
	return Outcome{Status: Applied}, nil
}

// Create validates the draft, shows it in its bucket right away under a
// temporary marker and asks the store to persist it.
func (b *Board) Create(ctx context.Context, draft domain.Draft) (Outcome, error) {
	d := draft.Normalize()
	if err := d.Validate(); err != nil {
		return b.reject(ErrCreate, "", err)
	}
	owner := b.sess.OwnerEmail()
	if owner == "" {
		return b.reject(ErrCreate, "", ErrNoSession)
	}

	localID := b.localID()
	local := d.Task(owner, localID)

	b.mu.Lock()
	if b.tornDownLocked() {
		b.mu.Unlock()
		return b.reject(ErrCreate, "", ErrClosed)
	}
	b.buckets[local.Category] = append(b.buckets[local.Category], local)
	b.mu.Unlock()
	b.changes.notify()

	created, err := b.store.CreateTask(ctx, owner, d, localID)

	b.mu.Lock()
	if b.tornDownLocked() {
		b.mu.Unlock()
		return Outcome{Status: Discarded, Task: local}, nil
	}
	if err != nil {
		b.removeLocked(localID)
		b.mu.Unlock()
		b.changes.notify()
		opErr := opError(ErrCreate, "", err)
		b.logger.WithError(err).WithField("title", d.Title).Warn("create rolled back")
		return Outcome{Status: RolledBack, Task: local, Reason: opErr}, opErr
	}

	created.LocalID = ""
	if created.OwnerEmail == "" {
		created.OwnerEmail = owner
	}
	if !created.Category.IsValid() {
		created.Category = local.Category
	}
	if _, _, exists := b.locateLocked(created.ID); exists {
		// A reload already brought the stored task in.
		b.removeLocked(localID)
		b.putLocked(created)
	} else if cat, idx, ok := b.locateLocked(localID); ok && cat == created.Category {
		b.buckets[cat][idx] = created
	} else {
		b.removeLocked(localID)
		b.buckets[created.Category] = append(b.buckets[created.Category], created)
	}
	b.mu.Unlock()
	b.changes.notify()

	return Outcome{Status: Applied, Task: created}, nil
}

// Move reassigns a task from one category to another. Moving to the same
// category does nothing. If the store rejects the update the task goes back
// to its source bucket.
func (b *Board) Move(ctx context.Context, id string, from, to domain.Category) (Outcome, error) {
	if !from.IsValid() {
		return b.reject(ErrMove, id, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, string(from)))
	}
	if !to.IsValid() {
		return b.reject(ErrMove, id, fmt.Errorf("%w: %q", domain.ErrInvalidCategory, string(to)))
	}
	if from == to {
		return Outcome{Status: NoOp}, nil
	}
	if !b.sess.Active() {
		return b.reject(ErrMove, id, ErrNoSession)
	}

	b.mu.Lock()
	if b.tornDownLocked() {
		b.mu.Unlock()
		return b.reject(ErrMove, id, ErrClosed)
	}
	cat, idx, ok := b.locateLocked(id)
	if !ok {
		b.mu.Unlock()
		return b.reject(ErrMove, id, ErrTaskNotFound)
	}
	task := b.buckets[cat][idx]
	if task.Pending() {
		b.mu.Unlock()
		return b.reject(ErrMove, id, ErrTaskPending)
	}
	if cat != from {
		b.mu.Unlock()
		return b.reject(ErrMove, id, ErrWrongSource)
	}
	b.buckets[cat] = removeAt(b.buckets[cat], idx)
	task.Category = to
	b.buckets[to] = append(b.buckets[to], task)
	b.mu.Unlock()
	b.changes.notify()

	rec, err := b.store.UpdateTask(ctx, id, domain.Patch{Category: domain.CategoryPtr(to)})

	b.mu.Lock()
	if b.tornDownLocked() {
		b.mu.Unlock()
		return Outcome{Status: Discarded, Task: task}, nil
	}
	if err != nil {
		b.revertCategoryLocked(id, to, from, idx)
		current, _ := b.taskLocked(id)
		b.mu.Unlock()
		b.changes.notify()
		opErr := opError(ErrMove, id, err)
		b.logger.WithError(err).WithFields(log.Fields{"task": id, "from": from, "to": to}).Warn("move rolled back")
		return Outcome{Status: RolledBack, Task: current, Reason: opErr}, opErr
	}
	if rec != nil {
		b.mergeLocked(*rec)
	}
	current, _ := b.taskLocked(id)
	b.mu.Unlock()
	b.changes.notify()

	return Outcome{Status: Applied, Task: current}, nil
}

// Edit applies the patch locally and sends it to the store. If the store
// rejects it only a category change is undone; free text edits stay local so
// the caller can retry them.
func (b *Board) Edit(ctx context.Context, id string, patch domain.Patch) (Outcome, error) {
	if !b.sess.Active() {
		return b.reject(ErrEdit, id, ErrNoSession)
	}

	b.mu.Lock()
	if b.tornDownLocked() {
		b.mu.Unlock()
		return b.reject(ErrEdit, id, ErrClosed)
	}
	cat, idx, ok := b.locateLocked(id)
	if !ok {
		b.mu.Unlock()
		return b.reject(ErrEdit, id, ErrTaskNotFound)
	}
	current := b.buckets[cat][idx]
	if current.Pending() {
		b.mu.Unlock()
		return b.reject(ErrEdit, id, ErrTaskPending)
	}
	if err := patch.Validate(current); err != nil {
		b.mu.Unlock()
		return b.reject(ErrEdit, id, err)
	}
	// The owner is never sent; Validate already guaranteed it is unchanged.
	patch.OwnerEmail = nil
	if patch.IsEmpty() {
		b.mu.Unlock()
		return Outcome{Status: NoOp, Task: current}, nil
	}
	if patch.Title != nil {
		patch.Title = domain.StringPtr(strings.TrimSpace(*patch.Title))
	}
	updated := patch.Apply(current)
	if updated.Category == cat {
		b.buckets[cat][idx] = updated
	} else {
		b.buckets[cat] = removeAt(b.buckets[cat], idx)
		b.buckets[updated.Category] = append(b.buckets[updated.Category], updated)
	}
	b.mu.Unlock()
	b.changes.notify()

	rec, err := b.store.UpdateTask(ctx, id, patch)

	b.mu.Lock()
	if b.tornDownLocked() {
		b.mu.Unlock()
		return Outcome{Status: Discarded, Task: updated}, nil
	}
	if err != nil {
		if updated.Category != cat {
			b.revertCategoryLocked(id, updated.Category, cat, idx)
		}
		after, _ := b.taskLocked(id)
		b.mu.Unlock()
		b.changes.notify()
		opErr := opError(ErrEdit, id, err)
		b.logger.WithError(err).WithField("task", id).Warn("edit failed")
		return Outcome{Status: RolledBack, Task: after, Reason: opErr}, opErr
	}
	if rec != nil {
		b.mergeLocked(*rec)
	}
	after, _ := b.taskLocked(id)
	b.mu.Unlock()
	b.changes.notify()

	return Outcome{Status: Applied, Task: after}, nil
}

// Remove deletes the task from its bucket and from the store. Removing a task
// the board does not hold succeeds without a request. If the store rejects
// the delete the task is put back where it was.
func (b *Board) Remove(ctx context.Context, id string) (Outcome, error) {
	if !b.sess.Active() {
		return b.reject(ErrDelete, id, ErrNoSession)
	}

	b.mu.Lock()
	if b.tornDownLocked() {
		b.mu.Unlock()
		return b.reject(ErrDelete, id, ErrClosed)
	}
	cat, idx, ok := b.locateLocked(id)
	if !ok {
		b.mu.Unlock()
		return Outcome{Status: NoOp}, nil
	}
	task := b.buckets[cat][idx]
	if task.Pending() {
		b.mu.Unlock()
		return b.reject(ErrDelete, id, ErrTaskPending)
	}
	b.buckets[cat] = removeAt(b.buckets[cat], idx)
	b.mu.Unlock()
	b.changes.notify()

	err := b.store.DeleteTask(ctx, id)
	if errors.Is(err, remote.ErrNotFound) {
		err = nil
	}

	b.mu.Lock()
	if b.tornDownLocked() {
		b.mu.Unlock()
		return Outcome{Status: Discarded, Task: task}, nil
	}
	if err != nil {
		if _, _, exists := b.locateLocked(id); !exists {
			b.buckets[cat] = insertAt(b.buckets[cat], idx, task)
		}
		b.mu.Unlock()
		b.changes.notify()
		opErr := opError(ErrDelete, id, err)
		b.logger.WithError(err).WithField("task", id).Warn("delete rolled back")
		return Outcome{Status: RolledBack, Task: task, Reason: opErr}, opErr
	}
	b.mu.Unlock()

	return Outcome{Status: Applied, Task: task}, nil
}

// Snapshot returns a copy of every bucket.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(Snapshot, len(b.buckets))
	for _, c := range domain.Categories {
		out[c] = append([]domain.Task(nil), b.buckets[c]...)
	}
	return out
}

// Task returns the task with the given id or temporary marker.
func (b *Board) Task(id string) (domain.Task, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.taskLocked(id)
}

// Subscribe returns a channel that receives a signal whenever the board
// changes. The channel is closed by Unsubscribe or Close.
func (b *Board) Subscribe() <-chan struct{} {
	return b.changes.subscribe()
}

func (b *Board) Unsubscribe(ch <-chan struct{}) {
	b.changes.unsubscribe(ch)
}

// Close tears the board down. Responses to requests still in flight are
// discarded.
func (b *Board) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.changes.close()
}

func (b *Board) reject(kind error, id string, cause error) (Outcome, error) {
	opErr := opError(kind, id, cause)
	return Outcome{Status: Rejected, Reason: opErr}, opErr
}

func (b *Board) isTornDown() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tornDownLocked()
}

func (b *Board) tornDownLocked() bool {
	return b.closed || !b.sess.Active()
}

func (b *Board) locateLocked(key string) (domain.Category, int, bool) {
	if key == "" {
		return "", 0, false
	}
	for _, c := range domain.Categories {
		for i, t := range b.buckets[c] {
			if t.Key() == key {
				return c, i, true
			}
		}
	}
	return "", 0, false
}

func (b *Board) taskLocked(key string) (domain.Task, bool) {
	cat, idx, ok := b.locateLocked(key)
	if !ok {
		return domain.Task{}, false
	}
	return b.buckets[cat][idx], true
}

func (b *Board) removeLocked(key string) {
	if cat, idx, ok := b.locateLocked(key); ok {
		b.buckets[cat] = removeAt(b.buckets[cat], idx)
	}
}

// putLocked replaces the task with the same id, moving it when its category
// changed, or appends it.
func (b *Board) putLocked(t domain.Task) {
	cat, idx, ok := b.locateLocked(t.ID)
	switch {
	case !ok:
		b.buckets[t.Category] = append(b.buckets[t.Category], t)
	case cat == t.Category:
		b.buckets[cat][idx] = t
	default:
		b.buckets[cat] = removeAt(b.buckets[cat], idx)
		b.buckets[t.Category] = append(b.buckets[t.Category], t)
	}
}

// mergeLocked copies the store's canonical record over the local task, if the
// board still holds it.
func (b *Board) mergeLocked(rec domain.Task) {
	if rec.ID == "" || !rec.Category.IsValid() {
		return
	}
	current, ok := b.taskLocked(rec.ID)
	if !ok {
		return
	}
	rec.LocalID = ""
	if rec.OwnerEmail == "" {
		rec.OwnerEmail = current.OwnerEmail
	}
	b.putLocked(rec)
}

// revertCategoryLocked moves the task from applied back to previous at its
// old position, but only while the task still shows the applied category. A
// later operation that already moved it elsewhere wins.
func (b *Board) revertCategoryLocked(id string, applied, previous domain.Category, prevIdx int) {
	cat, idx, ok := b.locateLocked(id)
	if !ok || cat != applied {
		return
	}
	t := b.buckets[cat][idx]
	b.buckets[cat] = removeAt(b.buckets[cat], idx)
	t.Category = previous
	b.buckets[previous] = insertAt(b.buckets[previous], prevIdx, t)
}

func removeAt(tasks []domain.Task, idx int) []domain.Task {
	out := make([]domain.Task, 0, len(tasks)-1)
	out = append(out, tasks[:idx]...)
	return append(out, tasks[idx+1:]...)
}

func insertAt(tasks []domain.Task, idx int, t domain.Task) []domain.Task {
	if idx > len(tasks) {
		idx = len(tasks)
	}
	out := make([]domain.Task, 0, len(tasks)+1)
	out = append(out, tasks[:idx]...)
	out = append(out, t)
	return append(out, tasks[idx:]...)
}
