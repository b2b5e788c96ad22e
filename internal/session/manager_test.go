package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"openlens/internal/config"
	"openlens/internal/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(ttl time.Duration) (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManager(LocalStores(0), ttl)
	m.now = clock.now
	return m, clock
}

func mustCreate(t *testing.T, m *Manager) *Session {
	t.Helper()
	s, err := m.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return s
}

func TestCreate_StartsEmpty(t *testing.T) {
	m, _ := newTestManager(time.Hour)
	s := mustCreate(t, m)
	if s.ID == "" {
		t.Fatalf("expected session id")
	}
	n, err := s.Memory.Len(context.Background())
	if err != nil || n != 0 {
		t.Errorf("expected empty memory, got %d (%v)", n, err)
	}
	got, err := m.Get(context.Background(), s.ID)
	if err != nil || got != s {
		t.Errorf("expected to find created session, got %v (%v)", got, err)
	}
}

func TestSessions_HaveSeparateMemory(t *testing.T) {
	m, _ := newTestManager(time.Hour)
	a, b := mustCreate(t, m), mustCreate(t, m)
	if _, err := a.Memory.Append(context.Background(), memory.Entry{URL: "u"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if n, _ := b.Memory.Len(context.Background()); n != 0 {
		t.Errorf("memory leaked across sessions: %d entries", n)
	}
}

func TestEnd_DiscardsMemory(t *testing.T) {
	m, _ := newTestManager(time.Hour)
	s := mustCreate(t, m)
	s.Memory.Append(context.Background(), memory.Entry{URL: "u"})

	if err := m.End(context.Background(), s.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if n, _ := s.Memory.Len(context.Background()); n != 0 {
		t.Errorf("expected memory discarded, got %d entries", n)
	}
	if _, err := m.Get(context.Background(), s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after end, got %v", err)
	}
	if err := m.End(context.Background(), s.ID); err != nil {
		t.Errorf("ending twice should be a no-op, got %v", err)
	}
}

func TestGet_ExpiresIdleSession(t *testing.T) {
	m, clock := newTestManager(time.Minute)
	s := mustCreate(t, m)

	clock.advance(50 * time.Second)
	if _, err := m.Get(context.Background(), s.ID); err != nil {
		t.Fatalf("session should still be live: %v", err)
	}
	clock.advance(50 * time.Second)
	if _, err := m.Get(context.Background(), s.ID); err != nil {
		t.Fatalf("lookup should refresh the idle timer: %v", err)
	}
	clock.advance(2 * time.Minute)
	if _, err := m.Get(context.Background(), s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expiry, got %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("expired session should be removed, count=%d", m.Count())
	}
}

func TestSweep(t *testing.T) {
	m, clock := newTestManager(time.Minute)
	mustCreate(t, m)
	mustCreate(t, m)
	clock.advance(30 * time.Second)
	fresh := mustCreate(t, m)
	clock.advance(45 * time.Second)

	if n := m.Sweep(context.Background()); n != 2 {
		t.Errorf("expected 2 swept, got %d", n)
	}
	if _, err := m.Get(context.Background(), fresh.ID); err != nil {
		t.Errorf("fresh session should survive sweep: %v", err)
	}
}

func TestZeroTTLNeverExpires(t *testing.T) {
	m, clock := newTestManager(0)
	s := mustCreate(t, m)
	clock.advance(1000 * time.Hour)
	if _, err := m.Get(context.Background(), s.ID); err != nil {
		t.Errorf("expected no expiry with zero ttl, got %v", err)
	}
}

func TestNewManagerFromConfig_LocalBackend(t *testing.T) {
	cfg := &config.Config{}
	cfg.Memory.Backend = config.MemoryBackendLocal
	cfg.Memory.Capacity = 1
	cfg.Memory.SessionTTLMinutes = 5

	m := NewManagerFromConfig(cfg, nil)
	if m.ttl != 5*time.Minute {
		t.Errorf("expected 5m ttl, got %s", m.ttl)
	}
	s := mustCreate(t, m)
	if _, ok := s.Memory.(*memory.Log); !ok {
		t.Errorf("expected local log, got %T", s.Memory)
	}
	s.Memory.Append(context.Background(), memory.Entry{URL: "a"})
	s.Memory.Append(context.Background(), memory.Entry{URL: "b"})
	if n, _ := s.Memory.Len(context.Background()); n != 1 {
		t.Errorf("expected capacity 1 applied, got %d", n)
	}
}

func TestConcurrentCreateAndEnd(t *testing.T) {
	m, _ := newTestManager(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, _ := m.Create(context.Background())
			m.Get(context.Background(), s.ID)
			m.End(context.Background(), s.ID)
		}()
	}
	wg.Wait()
	if m.Count() != 0 {
		t.Errorf("expected all sessions ended, got %d", m.Count())
	}
}

func newSharedRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb, mr
}

func TestRedisManager_SessionVisibleToOtherInstance(t *testing.T) {
	rdb, _ := newSharedRedis(t)
	ctx := context.Background()
	a := NewRedisManager(rdb, 0, time.Minute)
	b := NewRedisManager(rdb, 0, time.Minute)

	s := mustCreate(t, a)
	if _, err := s.Memory.Append(ctx, memory.Entry{URL: "https://x"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := b.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("second instance should find the session: %v", err)
	}
	if !got.CreatedAt.Equal(s.CreatedAt) {
		t.Errorf("expected created_at %s, got %s", s.CreatedAt, got.CreatedAt)
	}
	if n, _ := got.Memory.Len(ctx); n != 1 {
		t.Errorf("expected shared memory with 1 entry, got %d", n)
	}

	if err := b.End(ctx, s.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := a.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("session ended elsewhere should be gone, got %v", err)
	}
	if n, _ := s.Memory.Len(ctx); n != 0 {
		t.Errorf("expected memory discarded, got %d entries", n)
	}
}

func TestRedisManager_IdleExpiry(t *testing.T) {
	rdb, mr := newSharedRedis(t)
	ctx := context.Background()
	m := NewRedisManager(rdb, 0, time.Minute)
	s := mustCreate(t, m)

	mr.FastForward(50 * time.Second)
	if _, err := m.Get(ctx, s.ID); err != nil {
		t.Fatalf("session should still be live: %v", err)
	}
	mr.FastForward(50 * time.Second)
	if _, err := m.Get(ctx, s.ID); err != nil {
		t.Fatalf("lookup should refresh the expiry: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := m.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expiry, got %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("expired session should leave the cache, count=%d", m.Count())
	}
}

func TestRedisManager_SweepDropsExpired(t *testing.T) {
	rdb, mr := newSharedRedis(t)
	m := NewRedisManager(rdb, 0, time.Minute)
	mustCreate(t, m)
	mr.FastForward(2 * time.Minute)
	fresh := mustCreate(t, m)

	if n := m.Sweep(context.Background()); n != 1 {
		t.Errorf("expected 1 swept, got %d", n)
	}
	if _, err := m.Get(context.Background(), fresh.ID); err != nil {
		t.Errorf("fresh session should survive sweep: %v", err)
	}
}

func TestNewManagerFromConfig_RedisBackend(t *testing.T) {
	rdb, _ := newSharedRedis(t)
	cfg := &config.Config{}
	cfg.Memory.Backend = config.MemoryBackendRedis
	cfg.Memory.SessionTTLMinutes = 5

	m := NewManagerFromConfig(cfg, rdb)
	s := mustCreate(t, m)
	if _, ok := s.Memory.(*memory.RedisLog); !ok {
		t.Errorf("expected redis log, got %T", s.Memory)
	}
	if ttl := rdb.TTL(context.Background(), sessionKey(s.ID)).Val(); ttl != 5*time.Minute {
		t.Errorf("expected session key ttl 5m, got %s", ttl)
	}
}
