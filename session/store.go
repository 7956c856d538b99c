// Package session holds the per-session "current team" pointer. The pointer
// is ephemeral state: it is seeded at login from the user's default owned
// team, rewritten on explicit team switches, and expires with the session.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"teamgrid/config"
)

// Sessions live as long as a refresh token.
const TTL = 7 * 24 * time.Hour

var ErrNoCurrentTeam = errors.New("no current team for session")

// CurrentTeam is the pointer value stored per session.
type CurrentTeam struct {
	TeamID   uint   `json:"team_id"`
	TeamName string `json:"team_name"`
}

// Store resolves and mutates the current-team pointer for a session key.
type Store interface {
	Get(ctx context.Context, sessionID string) (*CurrentTeam, error)
	Set(ctx context.Context, sessionID string, current CurrentTeam) error
	Delete(ctx context.Context, sessionID string) error
}

// NewStore returns a Redis-backed store when Redis is enabled, otherwise an
// in-process store.
func NewStore(cfg config.RedisConfig) Store {
	if cfg.Enabled {
		return NewRedisStore(cfg)
	}
	return NewMemoryStore()
}

// RedisStore keeps session pointers in Redis so they survive restarts and
// are shared across instances.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func sessionKey(sessionID string) string {
	return "session:current_team:" + sessionID
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*CurrentTeam, error) {
	data, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoCurrentTeam
	}
	if err != nil {
		return nil, err
	}
	var current CurrentTeam
	if err := json.Unmarshal(data, &current); err != nil {
		return nil, err
	}
	return &current, nil
}

func (s *RedisStore) Set(ctx context.Context, sessionID string, current CurrentTeam) error {
	data, err := json.Marshal(current)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(sessionID), data, TTL).Err()
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionKey(sessionID)).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// MemoryStore is the single-instance fallback used when Redis is disabled,
// and by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	current   CurrentTeam
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*CurrentTeam, error) {
	s.mu.RLock()
	entry, ok := s.entries[sessionID]
	s.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrNoCurrentTeam
	}
	current := entry.current
	return &current, nil
}

func (s *MemoryStore) Set(_ context.Context, sessionID string, current CurrentTeam) error {
	s.mu.Lock()
	s.entries[sessionID] = memoryEntry{current: current, expiresAt: time.Now().Add(TTL)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
	return nil
}
