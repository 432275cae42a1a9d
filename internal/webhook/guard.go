package webhook

import (
	"context"
	"sync"
	"time"

	"voice-agent-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Guard throttles inbound requests per voice agent and rejects replayed signatures.
type Guard interface {
	Allow(ctx context.Context, voiceAgentID string) (bool, error)
	FirstSeen(ctx context.Context, signature string) (bool, error)
	// Release forgets a signature whose request was not processed, so an
	// identical retry is accepted.
	Release(ctx context.Context, signature string) error
}

// RedisGuard shares its windows across API replicas.
type RedisGuard struct {
	rdb       *redis.Client
	limit     int
	window    time.Duration
	replayTTL time.Duration
}

func NewRedisGuard(rdb *redis.Client, limit int, window, replayTTL time.Duration) *RedisGuard {
	return &RedisGuard{rdb: rdb, limit: limit, window: window, replayTTL: replayTTL}
}

func (g *RedisGuard) Allow(ctx context.Context, voiceAgentID string) (bool, error) {
	if g.limit <= 0 {
		return true, nil
	}
	return utils.AllowInWindow(ctx, g.rdb, "webhook:rate:"+voiceAgentID, g.limit, g.window)
}

func (g *RedisGuard) FirstSeen(ctx context.Context, signature string) (bool, error) {
	return utils.ClaimOnce(ctx, g.rdb, "webhook:sig:"+signature, g.replayTTL)
}

func (g *RedisGuard) Release(ctx context.Context, signature string) error {
	return utils.ReleaseClaim(ctx, g.rdb, "webhook:sig:"+signature)
}

// MemoryGuard is a single-process Guard for tests and local runs.
type MemoryGuard struct {
	mu        sync.Mutex
	limit     int
	window    time.Duration
	replayTTL time.Duration
	now       func() time.Time

	windows map[string]memWindow
	seen    map[string]time.Time
}

type memWindow struct {
	start time.Time
	hits  int
}

func NewMemoryGuard(limit int, window, replayTTL time.Duration) *MemoryGuard {
	return &MemoryGuard{
		limit:     limit,
		window:    window,
		replayTTL: replayTTL,
		now:       time.Now,
		windows:   map[string]memWindow{},
		seen:      map[string]time.Time{},
	}
}

func (g *MemoryGuard) Allow(ctx context.Context, voiceAgentID string) (bool, error) {
	if g.limit <= 0 {
		return true, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	w := g.windows[voiceAgentID]
	if w.start.IsZero() || now.Sub(w.start) >= g.window {
		w = memWindow{start: now}
	}
	w.hits++
	g.windows[voiceAgentID] = w
	return w.hits <= g.limit, nil
}

func (g *MemoryGuard) FirstSeen(ctx context.Context, signature string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for sig, at := range g.seen {
		if now.Sub(at) >= g.replayTTL {
			delete(g.seen, sig)
		}
	}
	if _, dup := g.seen[signature]; dup {
		return false, nil
	}
	g.seen[signature] = now
	return true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, signature string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.seen, signature)
	return nil
}
