// Package storage persists tasks for the reference task store in Redis.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

// ErrNotFound is returned when no task exists under the requested id.
var ErrNotFound = errors.New("storage: task not found")

const (
	fieldTitle          = "title"
	fieldDescription    = "description"
	fieldCategory       = "category"
	fieldCompletionDate = "completionDate"
	fieldCompletionTime = "completionTime"
	fieldOwner          = "email"
)

// RedisStore keeps one hash per task plus a sorted set per owner whose scores
// preserve insertion order.
type RedisStore struct {
	client *redis.Client
	newID  func() string
}

// NewRedisStore creates a store on top of the given client.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("storage.NewRedisStore: redis client is nil")
	}
	return &RedisStore{client: client, newID: uuid.NewString}
}

// ListTasks returns the owner's tasks in insertion order.
func (s *RedisStore) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	ids, err := s.client.ZRange(ctx, ownerKey(owner), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(ids))
	if len(ids) == 0 {
		return tasks, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if _, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, taskKey(id))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Index entry without a record; skip it.
			continue
		}
		t, err := taskFromHash(ids[i], fields)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// GetTask loads a single task.
func (s *RedisStore) GetTask(ctx context.Context, id string) (domain.Task, error) {
	fields, err := s.client.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return domain.Task{}, err
	}
	if len(fields) == 0 {
		return domain.Task{}, ErrNotFound
	}
	return taskFromHash(id, fields)
}

// CreateTask stores t under a fresh id and returns the stored record.
func (s *RedisStore) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	if t.OwnerEmail == "" {
		return domain.Task{}, domain.ErrMissingOwner
	}
	t.ID = s.newID()
	t.LocalID = ""

	seq, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, taskKey(t.ID), hashFromTask(t))
		pipe.ZAdd(ctx, ownerKey(t.OwnerEmail), redis.Z{Score: float64(seq), Member: t.ID})
		return nil
	}); err != nil {
		return domain.Task{}, fmt.Errorf("storage: create task: %w", err)
	}
	return t, nil
}

// maxUpdateAttempts bounds the optimistic retries of UpdateTask when another
// writer touches the task between its read and its write.
const maxUpdateAttempts = 5

// UpdateTask applies the patch to the stored task and returns the result. Only
// the fields the patch sets are written, and the write is dropped and retried
// if the task changed after it was read. The owner is never changed.
func (s *RedisStore) UpdateTask(ctx context.Context, id string, patch domain.Patch) (domain.Task, error) {
	key := taskKey(id)
	var (
		updated domain.Task
		// rejected is a not-found or validation result from txf.
		rejected error
	)
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			rejected = ErrNotFound
			return rejected
		}
		current, err := taskFromHash(id, fields)
		if err != nil {
			return err
		}
		if err := patch.Validate(current); err != nil {
			rejected = err
			return rejected
		}
		updated = patch.Apply(current)
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, hashFromPatch(updated, patch))
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		rejected = nil
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return updated, nil
		case rejected != nil:
			return domain.Task{}, rejected
		case errors.Is(err, redis.TxFailedErr):
			continue
		}
		return domain.Task{}, fmt.Errorf("storage: update task %s: %w", id, err)
	}
	return domain.Task{}, fmt.Errorf("storage: update task %s: %w", id, redis.TxFailedErr)
}

// DeleteTask removes the task and returns what was stored.
func (s *RedisStore) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	current, err := s.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	var removed *redis.IntCmd
	if _, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, taskKey(id))
		pipe.ZRem(ctx, ownerKey(current.OwnerEmail), id)
		return nil
	}); err != nil {
		return domain.Task{}, fmt.Errorf("storage: delete task %s: %w", id, err)
	}
	if removed.Val() == 0 {
		// Lost a race with a concurrent delete.
		return domain.Task{}, ErrNotFound
	}
	return current, nil
}

const seqKey = "tasks:seq"

func taskKey(id string) string {
	return "task:" + id
}

func ownerKey(owner string) string {
	return "tasks:owner:" + strings.ToLower(strings.TrimSpace(owner))
}

func hashFromTask(t domain.Task) map[string]any {
	return map[string]any{
		fieldTitle:          t.Title,
		fieldDescription:    t.Description,
		fieldCategory:       t.Category.String(),
		fieldCompletionDate: t.CompletionDate,
		fieldCompletionTime: t.CompletionTime,
		fieldOwner:          t.OwnerEmail,
	}
}

// hashFromPatch returns the hash fields the patch touches, taken from the
// already patched task so they carry normalized values.
func hashFromPatch(t domain.Task, p domain.Patch) map[string]any {
	fields := make(map[string]any, 5)
	if p.Title != nil {
		fields[fieldTitle] = t.Title
	}
	if p.Description != nil {
		fields[fieldDescription] = t.Description
	}
	if p.Category != nil {
		fields[fieldCategory] = t.Category.String()
	}
	if p.CompletionDate != nil {
		fields[fieldCompletionDate] = t.CompletionDate
	}
	if p.CompletionTime != nil {
		fields[fieldCompletionTime] = t.CompletionTime
	}
	return fields
}

func taskFromHash(id string, fields map[string]string) (domain.Task, error) {
	category, err := domain.ParseCategory(fields[fieldCategory])
	if err != nil {
		return domain.Task{}, fmt.Errorf("storage: task %s: %w", id, err)
	}
	return domain.Task{
		ID:             id,
		Title:          fields[fieldTitle],
		Description:    fields[fieldDescription],
		Category:       category,
		CompletionDate: fields[fieldCompletionDate],
		CompletionTime: fields[fieldCompletionTime],
		OwnerEmail:     fields[fieldOwner],
	}, nil
}
