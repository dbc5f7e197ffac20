package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key is the composite fingerprint for a cached response. It always carries
// the entity identifier and a hash of the semantically relevant request
// fields, never the feature alone, so two entities can never share a slot.
type Key struct {
	Feature     string
	EntityID    string
	ContentHash string
}

// NewKey fingerprints the request. content is the set of fields whose change
// must invalidate the entry (e.g. deal stage, value, objection text); it is
// hashed via canonical JSON so identical inputs always produce the same key.
func NewKey(feature, entityID string, content any) (Key, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return Key{}, fmt.Errorf("hashing cache content: %w", err)
	}
	sum := sha256.Sum256(data)
	return Key{
		Feature:     feature,
		EntityID:    entityID,
		ContentHash: hex.EncodeToString(sum[:16]),
	}, nil
}

func (k Key) String() string {
	return k.Feature + ":" + k.EntityID + ":" + k.ContentHash
}

type entry struct {
	payload   any
	createdAt time.Time
	ttl       time.Duration
}

func (e entry) expired(now time.Time) bool {
	return now.Sub(e.createdAt) >= e.ttl
}

// Config for the response cache.
type Config struct {
	DefaultTTL time.Duration
	SweepEvery time.Duration
}

// ResponseCache is a process-scoped TTL cache that collapses duplicate
// requests for the same key. On a miss, exactly one caller computes the
// value; concurrent callers for that key wait for and share the in-flight
// computation instead of issuing duplicate paid calls. Entries are evicted
// lazily on read and by a background sweep.
type ResponseCache struct {
	cfg   Config
	group singleflight.Group
	clock func() time.Time

	mu      sync.RWMutex
	entries map[string]entry

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(cfg Config) *ResponseCache {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 15 * time.Minute
	}
	if cfg.SweepEvery == 0 {
		cfg.SweepEvery = 5 * time.Minute
	}
	return &ResponseCache{
		cfg:     cfg,
		clock:   time.Now,
		entries: make(map[string]entry),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the background sweep. Close stops it.
func (c *ResponseCache) Start(ctx context.Context) {
	go func() {
		defer close(c.doneCh)
		ticker := time.NewTicker(c.cfg.SweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				removed := c.sweep()
				if removed > 0 {
					slog.DebugContext(ctx, "cache sweep", "removed", removed)
				}
			}
		}
	}()
}

func (c *ResponseCache) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

// GetOrCompute returns the cached payload for key, or runs computeFn exactly
// once across concurrent callers and stores the result for ttl. The second
// return reports whether the payload came from cache (including a shared
// in-flight computation started by another caller).
func (c *ResponseCache) GetOrCompute(ctx context.Context, key Key, ttl time.Duration, computeFn func(ctx context.Context) (any, error)) (any, bool, error) {
	if ttl == 0 {
		ttl = c.cfg.DefaultTTL
	}

	if payload, ok := c.lookup(key); ok {
		return payload, true, nil
	}

	payload, err, shared := c.group.Do(key.String(), func() (any, error) {
		// Another flight may have stored the value between our lookup
		// and acquiring the flight.
		if payload, ok := c.lookup(key); ok {
			return payload, nil
		}

		payload, err := computeFn(ctx)
		if err != nil {
			return nil, err
		}

		c.store(key, payload, ttl)
		return payload, nil
	})
	if err != nil {
		return nil, false, err
	}

	return payload, shared, nil
}

// Invalidate removes every entry for the given feature and entity, regardless
// of content hash. Returns the number of entries removed. The orchestrator
// calls this when the underlying entity changes; the cache never decides on
// its own.
func (c *ResponseCache) Invalidate(feature, entityID string) int {
	prefix := feature + ":" + entityID + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// InvalidateEntity removes entries for the entity across all features.
func (c *ResponseCache) InvalidateEntity(entityID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		parts := strings.SplitN(k, ":", 3)
		if len(parts) == 3 && parts[1] == entityID {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *ResponseCache) lookup(key Key) (any, bool) {
	k := key.String()

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if e.expired(c.clock()) {
		// Lazy eviction: an expired entry is a miss.
		c.mu.Lock()
		if cur, ok := c.entries[k]; ok && cur.expired(c.clock()) {
			delete(c.entries, k)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.payload, true
}

func (c *ResponseCache) store(key Key, payload any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key.String()] = entry{
		payload:   payload,
		createdAt: c.clock(),
		ttl:       ttl,
	}
}

func (c *ResponseCache) sweep() int {
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}
