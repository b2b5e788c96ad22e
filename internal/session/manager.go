// Package session owns per-visitor session state. Each session carries its own
// memory store; ending or expiring a session discards that memory.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"openlens/internal/config"
	"openlens/internal/memory"
)

var ErrNotFound = errors.New("session not found or expired")

const sessionKeyFmt = "openlens:session:%s"

func sessionKey(id string) string { return fmt.Sprintf(sessionKeyFmt, id) }

type Session struct {
	ID        string
	Memory    memory.Store
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

// StoreFactory builds the empty memory store for a new session.
type StoreFactory func(sessionID string) memory.Store

// LocalStores keeps memory in process.
func LocalStores(capacity int) StoreFactory {
	return func(string) memory.Store { return memory.NewLog(capacity) }
}

// RedisStores keeps memory in Redis, keyed by session id.
func RedisStores(rdb *redis.Client, capacity int, ttl time.Duration) StoreFactory {
	return func(id string) memory.Store { return memory.NewRedisLog(rdb, id, capacity, ttl) }
}

// Manager is the session registry. Sessions idle longer than ttl are expired
// lazily on lookup and by Sweep.
//
// With a Redis client the registry lives in Redis instead: one key per session
// that expires after ttl without a lookup. The local map is then only a cache of
// Session values, and every instance sharing the server sees the same sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	newStore StoreFactory
	ttl      time.Duration
	now      func() time.Time
	rdb      *redis.Client
}

// toucher is implemented by stores whose data expires on its own.
type toucher interface {
	Touch(ctx context.Context) error
}

func NewManager(newStore StoreFactory, ttl time.Duration) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		newStore: newStore,
		ttl:      ttl,
		now:      time.Now,
	}
}

// NewRedisManager keeps both the registry and each session's memory in Redis.
func NewRedisManager(rdb *redis.Client, capacity int, ttl time.Duration) *Manager {
	m := NewManager(RedisStores(rdb, capacity, ttl), ttl)
	m.rdb = rdb
	return m
}

// NewManagerFromConfig picks the memory backend named in cfg. rdb may be nil
// for the local backend.
func NewManagerFromConfig(cfg *config.Config, rdb *redis.Client) *Manager {
	ttl := time.Duration(cfg.Memory.SessionTTLMinutes) * time.Minute
	if cfg.Memory.Backend == config.MemoryBackendRedis && rdb != nil {
		return NewRedisManager(rdb, cfg.Memory.Capacity, ttl)
	}
	return NewManager(LocalStores(cfg.Memory.Capacity), ttl)
}

// Create starts a session with empty memory.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	now := m.now()
	id := uuid.NewString()
	s := &Session{ID: id, Memory: m.newStore(id), CreatedAt: now, lastSeen: now}

	if m.rdb != nil {
		if err := m.rdb.Set(ctx, sessionKey(id), now.Format(time.RFC3339Nano), m.ttl).Err(); err != nil {
			return nil, fmt.Errorf("failed to register session: %w", err)
		}
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	log.Printf("[Sessions] Created %s", id)
	return s, nil
}

// Get returns a live session and refreshes its idle timer.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if m.rdb != nil {
		return m.getShared(ctx, id)
	}
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	now := m.now()
	if m.expired(s, now) {
		m.End(ctx, id)
		return nil, ErrNotFound
	}
	s.touch(now)
	return s, nil
}

// getShared looks the session up in Redis, refreshing the key's expiry, and
// builds a local Session for ids created on another instance.
func (m *Manager) getShared(ctx context.Context, id string) (*Session, error) {
	key := sessionKey(id)
	created, err := m.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		m.forget(id)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
	if m.ttl > 0 {
		if err := m.rdb.Expire(ctx, key, m.ttl).Err(); err != nil {
			log.Printf("[Sessions] Failed to refresh %s: %v", id, err)
		}
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		createdAt, _ := time.Parse(time.RFC3339Nano, created)
		s = &Session{ID: id, Memory: m.newStore(id), CreatedAt: createdAt}
		m.sessions[id] = s
	}
	m.mu.Unlock()

	s.touch(m.now())
	if t, ok := s.Memory.(toucher); ok {
		if err := t.Touch(ctx); err != nil {
			log.Printf("[Sessions] Failed to refresh memory of %s: %v", id, err)
		}
	}
	return s, nil
}

func (m *Manager) forget(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// End removes the session and discards its memory. Ending an unknown session
// is not an error.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.rdb != nil {
		if err := m.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
			return fmt.Errorf("failed to remove session: %w", err)
		}
		if !ok {
			s = &Session{ID: id, Memory: m.newStore(id)}
		}
	} else if !ok {
		return nil
	}
	log.Printf("[Sessions] Ended %s", id)
	return s.Memory.Reset(ctx)
}

// Sweep ends every expired session and returns how many were removed. With
// Redis, a cached session is stale once its key is gone.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	var stale []string
	m.mu.Lock()
	for id, s := range m.sessions {
		if m.rdb != nil || m.expired(s, now) {
			stale = append(stale, id)
		}
	}
	m.mu.Unlock()

	if m.rdb != nil {
		stale = m.missingFromRedis(ctx, stale)
	}

	for _, id := range stale {
		if err := m.End(ctx, id); err != nil {
			log.Printf("[Sessions] Failed to discard memory for %s: %v", id, err)
		}
	}
	return len(stale)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(ctx); n > 0 {
				log.Printf("[Sessions] Expired %d idle sessions", n)
			}
		}
	}
}

func (m *Manager) missingFromRedis(ctx context.Context, ids []string) []string {
	var gone []string
	for _, id := range ids {
		n, err := m.rdb.Exists(ctx, sessionKey(id)).Result()
		if err != nil {
			log.Printf("[Sessions] Failed to check %s: %v", id, err)
			continue
		}
		if n == 0 {
			gone = append(gone, id)
		}
	}
	return gone
}

// Count reports the sessions this instance knows about.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) expired(s *Session, now time.Time) bool {
	return m.ttl > 0 && s.idleSince(now) > m.ttl
}
