// Package cache memoizes rendered transcripts per (content, tier) with a TTL.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/codebuildervaibhav/subtitle-transcriber/internal/metrics"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/subtitle"
	"github.com/codebuildervaibhav/subtitle-transcriber/internal/transcription"
)

// ErrNoIdentity is returned when an input carries no content identity.
var ErrNoIdentity = errors.New("missing content identity")

// Key identifies a cache slot.
type Key struct {
	ContentID string
	Tier      string
}

func (k Key) String() string {
	return k.ContentID + "|" + k.Tier
}

// Input describes the media to transcribe.
type Input struct {
	ContentID string
	AudioPath string
}

// Result is a rendered transcript and whether it came from the cache.
type Result struct {
	Transcript subtitle.Transcript
	Cached     bool
}

type entry struct {
	transcript subtitle.Transcript
	expiresAt  time.Time
}

// Cache runs the recognition engine and the formatter at most once per key
// within the TTL. Expired entries are dropped on lookup or by Reap.
type Cache struct {
	engine  transcription.Engine
	clock   clock.Clock
	format  subtitle.Options
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[Key]entry
	flights singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock injects the time source.
func WithClock(c clock.Clock) Option {
	return func(ca *Cache) { ca.clock = c }
}

// WithFormatOptions sets the formatter options used for new entries.
func WithFormatOptions(o subtitle.Options) Option {
	return func(ca *Cache) { ca.format = o }
}

// WithMetrics records hits, misses and recognitions.
func WithMetrics(m *metrics.Metrics) Option {
	return func(ca *Cache) { ca.metrics = m }
}

// New creates a cache in front of engine.
func New(engine transcription.Engine, opts ...Option) *Cache {
	c := &Cache{
		engine:  engine,
		clock:   clock.New(),
		entries: make(map[Key]entry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetOrCompute returns the transcript for (in.ContentID, tier). On a miss it
// runs the engine and the formatter and keeps the result for ttl. Concurrent
// callers for the same key share one computation. A non-positive ttl computes
// without storing.
func (c *Cache) GetOrCompute(ctx context.Context, in Input, tier transcription.Tier, ttl time.Duration) (Result, error) {
	if in.ContentID == "" {
		return Result{}, ErrNoIdentity
	}
	key := Key{ContentID: in.ContentID, Tier: tier.Label}

	if tr, ok := c.lookup(key); ok {
		c.metrics.CacheHit()
		return Result{Transcript: tr, Cached: true}, nil
	}

	computed := false
	v, err, shared := c.flights.Do(key.String(), func() (any, error) {
		computed = true
		// a flight for this key may have finished since the first lookup
		if tr, ok := c.lookup(key); ok {
			c.metrics.CacheHit()
			return Result{Transcript: tr, Cached: true}, nil
		}
		c.metrics.CacheMiss()

		start := c.clock.Now()
		segments, err := c.engine.Transcribe(ctx, in.AudioPath, tier)
		if err != nil {
			c.metrics.Recognition(tier.Label, "error")
			return nil, fmt.Errorf("%w: %w", transcription.ErrRecognitionFailed, err)
		}
		c.metrics.Recognition(tier.Label, "ok")

		tr, err := subtitle.Format(segments, c.format)
		if err != nil {
			return nil, err
		}

		if ttl > 0 {
			c.store(key, tr, ttl)
		}
		log.Debug().
			Str("tier", tier.Label).
			Str("content_id", shortID(in.ContentID)).
			Int("blocks", tr.Blocks).
			Dur("took", c.clock.Since(start)).
			Msg("Transcript computed")
		return Result{Transcript: tr}, nil
	})
	if err != nil {
		return Result{}, err
	}

	res := v.(Result)
	if shared && !computed {
		res.Cached = true
		log.Debug().Str("content_id", shortID(in.ContentID)).Msg("Joined in-flight transcription")
	}
	return res, nil
}

// Reap removes expired entries and returns how many were dropped.
func (c *Cache) Reap() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) lookup(key Key) (subtitle.Transcript, bool) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return subtitle.Transcript{}, false
	}
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		return subtitle.Transcript{}, false
	}
	return e.transcript, true
}

func (c *Cache) store(key Key, tr subtitle.Transcript, ttl time.Duration) {
	expiresAt := c.clock.Now().Add(ttl)
	c.mu.Lock()
	c.entries[key] = entry{transcript: tr, expiresAt: expiresAt}
	c.mu.Unlock()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
