package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"storyboard-api/domain"
)

// Backend is the storage a Cache fronts. *Storage implements it.
type Backend interface {
	ListProjects(ctx context.Context, userID string) ([]domain.Project, error)
	GetProject(ctx context.Context, id string) (domain.Project, error)
	CreateProject(ctx context.Context, p domain.Project) (domain.Project, error)
	UpdateProject(ctx context.Context, id string, patch map[string]any) error
	DeleteProject(ctx context.Context, id string) error

	ListCards(ctx context.Context, projectID string) ([]domain.Card, error)
	InsertCards(ctx context.Context, cards []domain.Card) ([]domain.Card, error)
	UpdateCard(ctx context.Context, id string, patch map[string]any) error
	DeleteCard(ctx context.Context, projectID, id string) error
	EnqueueCleanup(ctx context.Context, projectID string) error
}

// Cache wraps a Backend with Redis-backed caching for project reads. Card
// calls go straight to the backend: open projects keep their cards in the
// editing session.
type Cache struct {
	Backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper around base using the provided Redis
// client and TTL.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Backend: base, redis: client, ttl: ttl}
}

func (c *Cache) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	var projects []domain.Project
	if c.load(ctx, projectsCacheKey(userID), &projects) {
		return projects, nil
	}

	projects, err := c.Backend.ListProjects(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, projectsCacheKey(userID), projects)
	return projects, nil
}

func (c *Cache) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	if c.load(ctx, projectCacheKey(id), &p) {
		return p, nil
	}

	p, err := c.Backend.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}

	c.store(ctx, projectCacheKey(id), p)
	return p, nil
}

func (c *Cache) CreateProject(ctx context.Context, p domain.Project) (domain.Project, error) {
	created, err := c.Backend.CreateProject(ctx, p)
	if err != nil {
		return domain.Project{}, err
	}

	c.evict(ctx, projectsCacheKey(created.UserID))
	return created, nil
}

func (c *Cache) UpdateProject(ctx context.Context, id string, patch map[string]any) error {
	keys := c.projectKeys(ctx, id)
	if err := c.Backend.UpdateProject(ctx, id, patch); err != nil {
		return err
	}

	c.evict(ctx, keys...)
	return nil
}

func (c *Cache) DeleteProject(ctx context.Context, id string) error {
	keys := c.projectKeys(ctx, id)
	if err := c.Backend.DeleteProject(ctx, id); err != nil {
		return err
	}

	c.evict(ctx, keys...)
	return nil
}

// projectKeys returns the cache keys holding project id, including the list
// of its owner when the owner can be resolved.
func (c *Cache) projectKeys(ctx context.Context, id string) []string {
	keys := []string{projectCacheKey(id)}
	if p, err := c.GetProject(ctx, id); err == nil && p.UserID != "" {
		keys = append(keys, projectsCacheKey(p.UserID))
	}
	return keys
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil || len(keys) == 0 {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func projectsCacheKey(userID string) string {
	return "projects:" + userID
}

func projectCacheKey(id string) string {
	return "project:" + id
}
