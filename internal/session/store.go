package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"docuexplore/internal/models"
	"docuexplore/internal/redis"
)

// ErrNotFound is returned when no snapshot exists for a session.
var ErrNotFound = errors.New("session not found")

// Store keeps session snapshots for the lifetime of a session.
type Store interface {
	Save(ctx context.Context, view models.SessionView) error
	Load(ctx context.Context, id string) (*models.SessionView, error)
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	view      models.SessionView
	expiresAt time.Time
}

// MemoryStore is the in-process Store used when redis is disabled.
type MemoryStore struct {
	ttl     time.Duration
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Save(_ context.Context, view models.SessionView) error {
	if view.ID == "" {
		return errors.New("session id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[view.ID] = memoryEntry{view: view, expiresAt: m.expiry()}
	return nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*models.SessionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.entries, id)
		return nil, ErrNotFound
	}
	view := entry.view
	return &view, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) expiry() time.Time {
	if m.ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(m.ttl)
}

// RedisStore keeps snapshots as JSON with the session TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func snapshotKey(id string) string {
	return fmt.Sprintf("docuexplore:session:%s", id)
}

func (r *RedisStore) Save(ctx context.Context, view models.SessionView) error {
	if view.ID == "" {
		return errors.New("session id required")
	}
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKey(view.ID), data, r.ttl); err != nil {
		return fmt.Errorf("save session snapshot: %w", err)
	}
	return nil
}

func (r *RedisStore) Load(ctx context.Context, id string) (*models.SessionView, error) {
	raw, err := r.client.Get(ctx, snapshotKey(id))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}
	var view models.SessionView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	if r.ttl > 0 {
		_ = r.client.Expire(ctx, snapshotKey(id), r.ttl)
	}
	return &view, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, snapshotKey(id)); err != nil && !errors.Is(err, redis.ErrCacheMiss) {
		return fmt.Errorf("delete session snapshot: %w", err)
	}
	return nil
}
