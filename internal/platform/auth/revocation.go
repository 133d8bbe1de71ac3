package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore records logged-out token ids until their natural expiry.
// Claim revokes jti only if it was not revoked yet and reports whether this
// call did it; single use tokens are consumed through it.
type RevocationStore interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
	Claim(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
}

// MemoryRevocationStore keeps revoked JTIs in process memory. Expired entries
// are dropped by a background sweep.
type MemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	done    chan struct{}
	once    sync.Once
}

func NewMemoryRevocationStore(sweep time.Duration) *MemoryRevocationStore {
	s := &MemoryRevocationStore{
		entries: make(map[string]time.Time),
		done:    make(chan struct{}),
	}
	go s.cleanupLoop(sweep)
	return s
}

func (s *MemoryRevocationStore) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = expiresAt
	return nil
}

func (s *MemoryRevocationStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok, nil
}

func (s *MemoryRevocationStore) Claim(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[jti]; ok {
		return false, nil
	}
	s.entries[jti] = expiresAt
	return true, nil
}

func (s *MemoryRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the sweep goroutine. Safe to call more than once.
func (s *MemoryRevocationStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryRevocationStore) cleanupLoop(every time.Duration) {
	if every <= 0 {
		every = 5 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.cleanup(now)
		}
	}
}

func (s *MemoryRevocationStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for jti, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, jti)
		}
	}
}

// RedisRevocationStore shares revocations between server instances. Keys
// expire together with the token.
type RedisRevocationStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisRevocationStore(client *redis.Client) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, prefix: "ehr:revoked:", now: time.Now}
}

func (s *RedisRevocationStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+jti, "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return n > 0, nil
}

// Claim uses SET NX so concurrent claims on different instances agree on a
// single winner. An already expired token cannot be claimed.
func (s *RedisRevocationStore) Claim(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return false, nil
	}
	ok, err := s.client.SetNX(ctx, s.prefix+jti, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim token: %w", err)
	}
	return ok, nil
}

// Ping lets the health endpoint report Redis reachability.
func (s *RedisRevocationStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
