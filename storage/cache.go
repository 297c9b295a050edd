package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"taskboard/domain"
)

type backend interface {
	ListTasks(ctx context.Context, owner string) ([]domain.Task, error)
	GetTask(ctx context.Context, id string) (domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.Patch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) (domain.Task, error)
}

// Cache wraps a backend with a Redis-backed cache of each owner's task list.
// Writes evict the owner's entry.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A zero TTL disables caching.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	if tasks, ok := c.load(ctx, owner); ok {
		return tasks, nil
	}

	gen := c.generation(ctx, owner)
	tasks, err := c.base.ListTasks(ctx, owner)
	if err != nil {
		return nil, err
	}

	c.store(ctx, owner, gen, tasks)
	return tasks, nil
}

func (c *Cache) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return c.base.GetTask(ctx, id)
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.base.CreateTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, created.OwnerEmail)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, id string, patch domain.Patch) (domain.Task, error) {
	updated, err := c.base.UpdateTask(ctx, id, patch)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, updated.OwnerEmail)
	return updated, nil
}

func (c *Cache) DeleteTask(ctx context.Context, id string) (domain.Task, error) {
	deleted, err := c.base.DeleteTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, deleted.OwnerEmail)
	return deleted, nil
}

func (c *Cache) load(ctx context.Context, owner string) ([]domain.Task, bool) {
	if c.redis == nil || c.ttl == 0 {
		return nil, false
	}
	data, err := c.redis.Get(ctx, listCacheKey(owner)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, listCacheKey(owner)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := sonic.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, listCacheKey(owner)).Err()
		return nil, false
	}
	return tasks, true
}

// generation reads the owner's eviction counter. A list read from the backend
// is only cached if no eviction happened since.
func (c *Cache) generation(ctx context.Context, owner string) int64 {
	if c.redis == nil || c.ttl == 0 {
		return 0
	}
	gen, err := c.redis.Get(ctx, generationKey(owner)).Int64()
	if err != nil {
		return 0
	}
	return gen
}

func (c *Cache) store(ctx context.Context, owner string, gen int64, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(tasks)
	if err != nil {
		return
	}
	genKey := generationKey(owner)
	// A concurrent evict bumps the generation, which either shows up here or
	// aborts the EXEC. Both leave the cache empty.
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, listCacheKey(owner), data, c.ttl)
			return nil
		})
		return err
	}, genKey)
}

func (c *Cache) evict(ctx context.Context, owner string) {
	if c.redis == nil || owner == "" {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(owner))
		pipe.Del(ctx, listCacheKey(owner))
		return nil
	})
}

func listCacheKey(owner string) string {
	return "cache:" + ownerKey(owner)
}

func generationKey(owner string) string {
	return "cache:gen:" + ownerKey(owner)
}
