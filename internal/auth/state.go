package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"assistanthub/internal/redis"
)

const stateTTL = 10 * time.Minute

// ErrInvalidState is returned for unknown, expired or reused OAuth states.
var ErrInvalidState = errors.New("invalid or expired oauth state")

// StateStore keeps OAuth states between the consent redirect and the callback.
// Take consumes the state so a callback cannot be replayed.
type StateStore interface {
	Put(ctx context.Context, state, value string, ttl time.Duration) error
	Take(ctx context.Context, state string) (string, error)
}

type redisStateStore struct {
	client *redis.Client
}

// NewRedisStateStore shares OAuth states across server instances.
func NewRedisStateStore(client *redis.Client) StateStore {
	return &redisStateStore{client: client}
}

func stateKey(state string) string {
	return "oauth_state:" + state
}

func (s *redisStateStore) Put(ctx context.Context, state, value string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, stateKey(state), value, ttl)
	if err != nil {
		return fmt.Errorf("store oauth state: %w", err)
	}
	if !ok {
		return errors.New("oauth state collision")
	}
	return nil
}

func (s *redisStateStore) Take(ctx context.Context, state string) (string, error) {
	val, err := s.client.GetDel(ctx, stateKey(state))
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return "", ErrInvalidState
		}
		return "", fmt.Errorf("load oauth state: %w", err)
	}
	return val, nil
}

type memoryEntry struct {
	value   string
	expires time.Time
}

type memoryStateStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStateStore is used when no redis server is configured.
func NewMemoryStateStore() StateStore {
	return &memoryStateStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *memoryStateStore) Put(ctx context.Context, state, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, k)
		}
	}
	if _, ok := s.entries[state]; ok {
		return errors.New("oauth state collision")
	}
	s.entries[state] = memoryEntry{value: value, expires: now.Add(ttl)}
	return nil
}

func (s *memoryStateStore) Take(ctx context.Context, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[state]
	if !ok {
		return "", ErrInvalidState
	}
	delete(s.entries, state)
	if s.now().After(e.expires) {
		return "", ErrInvalidState
	}
	return e.value, nil
}
