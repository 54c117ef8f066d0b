// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package storycache keeps precomputed default stories for the most tagged
entities.

The cache is an optimization and never a correctness dependency: a miss
falls through to the [Source] (the story traverser), concurrent misses for
one tag share a single computation, and the in-process set is bounded by LRU
eviction. An optional shared [Tier] (Redis) lets replicas reuse each other's
priming work.

# Lifecycle

  - [Cache.Prime] fills the cache synchronously, typically at startup.
  - [Cache.StartRefresh] re-primes on an interval from one owned goroutine.
  - [Cache.StopRefresh] cancels that goroutine and waits for it to exit.
*/
package storycache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/platform/metrics"
)

// Cache tiers and lookup results used as metric labels.
const (
	tierMemory = "memory"
	tierShared = "shared"

	resultHit  = "hit"
	resultMiss = "miss"
)

// DefaultSize is used when a non-positive size is configured.
const DefaultSize = 50

// Source computes a tag's default story.
type Source interface {
	DefaultStory(ctx context.Context, tagID uuid.UUID, lang string) (*atlas.CachedStory, error)
}

// Ranker lists the tags worth priming, most tagged first.
type Ranker interface {
	MostTaggedStories(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// Tier is a shared store of computed stories.
type Tier interface {
	// Load returns nil without error when the tag is absent.
	Load(ctx context.Context, tagID uuid.UUID) (*atlas.CachedStory, error)
	Store(ctx context.Context, story *atlas.CachedStory) error
}

// Options configures a [Cache].
type Options struct {
	// Size bounds the in-process entries and is the default priming size.
	Size int

	// Lang is the language stories are titled in.
	Lang string

	// Tier is optional.
	Tier Tier
}

// # Cache

// Cache is a bounded LRU of default stories keyed by tag id.
type Cache struct {
	source Source
	ranker Ranker
	tier   Tier
	size   int
	lang   string
	logger *slog.Logger

	mu      sync.Mutex
	order   *list.List
	entries map[uuid.UUID]*list.Element
	ranking []uuid.UUID

	group singleflight.Group

	refreshMu sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// New constructs an empty [Cache].
func New(source Source, ranker Ranker, options Options, logger *slog.Logger) *Cache {
	if options.Size <= 0 {
		options.Size = DefaultSize
	}
	return &Cache{
		source:  source,
		ranker:  ranker,
		tier:    options.Tier,
		size:    options.Size,
		lang:    options.Lang,
		logger:  logger,
		order:   list.New(),
		entries: make(map[uuid.UUID]*list.Element),
	}
}

// Len returns the number of in-process entries.
func (cache *Cache) Len() int {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	return cache.order.Len()
}

// Peek returns an in-process entry and marks it recently used.
func (cache *Cache) Peek(tagID uuid.UUID) (*atlas.CachedStory, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	element, ok := cache.entries[tagID]
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues(tierMemory, resultMiss).Inc()
		return nil, false
	}
	cache.order.MoveToFront(element)
	metrics.CacheLookupsTotal.WithLabelValues(tierMemory, resultHit).Inc()
	return element.Value.(*atlas.CachedStory), true
}

// Top returns the entry of the highest ranked tag still held.
func (cache *Cache) Top() (*atlas.CachedStory, bool) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	for _, tagID := range cache.ranking {
		if element, ok := cache.entries[tagID]; ok {
			return element.Value.(*atlas.CachedStory), true
		}
	}
	return nil, false
}

/*
Get returns the default story of a tag.

Description: Lookups go to the in-process entries, then the shared tier,
then the source. Concurrent misses for one tag wait on the same
computation. Shared tier failures are logged and skipped.

Returns:
  - *atlas.CachedStory
  - error: the source error, e.g. [atlas.MissingResourceError]
*/
func (cache *Cache) Get(ctx context.Context, tagID uuid.UUID) (*atlas.CachedStory, error) {
	if story, ok := cache.Peek(tagID); ok {
		return story, nil
	}

	value, err, _ := cache.group.Do(tagID.String(), func() (any, error) {
		if story, ok := cache.loadShared(ctx, tagID); ok {
			cache.put(story)
			return story, nil
		}

		story, err := cache.source.DefaultStory(ctx, tagID, cache.lang)
		if err != nil {
			return nil, err
		}
		cache.put(story)
		cache.storeShared(ctx, story)
		return story, nil
	})
	if err != nil {
		return nil, err
	}
	return value.(*atlas.CachedStory), nil
}

/*
Prime computes the default stories of the size most tagged entities.

Description: Every story is recomputed from the source, stored in process
and mirrored to the shared tier. Tags without an ordered event are skipped.
A canceled context stops priming early.

Returns:
  - int: the number of stories primed
  - error: ranking failures, source failures other than missing stories, or
    the context error
*/
func (cache *Cache) Prime(ctx context.Context, size int) (int, error) {
	started := time.Now()
	if size <= 0 {
		size = cache.size
	}

	ranking, err := cache.ranker.MostTaggedStories(ctx, size)
	if err != nil {
		return 0, fmt.Errorf("storycache: rank stories: %w", err)
	}

	primed := 0
	var failures []error
	for _, tagID := range ranking {
		if err := ctx.Err(); err != nil {
			return primed, err
		}

		story, err := cache.source.DefaultStory(ctx, tagID, cache.lang)
		if err != nil {
			if !atlas.IsMissing(err) {
				failures = append(failures, fmt.Errorf("tag %s: %w", tagID, err))
			}
			continue
		}
		cache.put(story)
		cache.storeShared(ctx, story)
		primed++
	}

	cache.mu.Lock()
	cache.ranking = ranking
	cache.mu.Unlock()

	metrics.CacheRefreshDuration.Observe(time.Since(started).Seconds())
	cache.logger.Info("story_cache_primed",
		slog.Int("primed", primed),
		slog.Int("ranked", len(ranking)),
		slog.Int("failed", len(failures)),
		slog.Duration("duration", time.Since(started)),
	)
	return primed, errors.Join(failures...)
}

// # Refresh

// StartRefresh re-primes the cache every interval until [Cache.StopRefresh].
// A second call while running is a no-op.
func (cache *Cache) StartRefresh(interval time.Duration) {
	cache.refreshMu.Lock()
	defer cache.refreshMu.Unlock()

	if cache.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cache.cancel, cache.done = cancel, make(chan struct{})

	go cache.refreshLoop(ctx, interval, cache.done)
	cache.logger.Info("story_cache_refresh_started", slog.Duration("interval", interval))
}

// StopRefresh cancels the refresh goroutine, abandoning an in-flight pass,
// and waits for it to return.
func (cache *Cache) StopRefresh() {
	cache.refreshMu.Lock()
	defer cache.refreshMu.Unlock()

	if cache.cancel == nil {
		return
	}
	cache.cancel()
	<-cache.done
	cache.cancel, cache.done = nil, nil
	cache.logger.Info("story_cache_refresh_stopped")
}

func (cache *Cache) refreshLoop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := cache.Prime(ctx, cache.size); err != nil && ctx.Err() == nil {
				cache.logger.Error("story_cache_refresh_failed", slog.Any("error", err))
			}
		}
	}
}

// # LRU

func (cache *Cache) put(story *atlas.CachedStory) {
	cache.mu.Lock()
	defer cache.mu.Unlock()

	tagID := story.Pointer.StoryID
	if element, ok := cache.entries[tagID]; ok {
		element.Value = story
		cache.order.MoveToFront(element)
		return
	}

	cache.entries[tagID] = cache.order.PushFront(story)
	for cache.order.Len() > cache.size {
		oldest := cache.order.Back()
		cache.order.Remove(oldest)
		delete(cache.entries, oldest.Value.(*atlas.CachedStory).Pointer.StoryID)
	}
	metrics.CacheEntries.Set(float64(cache.order.Len()))
}

// # Shared Tier

func (cache *Cache) loadShared(ctx context.Context, tagID uuid.UUID) (*atlas.CachedStory, bool) {
	if cache.tier == nil {
		return nil, false
	}
	story, err := cache.tier.Load(ctx, tagID)
	if err != nil {
		cache.logger.Warn("story_cache_shared_load_failed", slog.String("story_id", tagID.String()), slog.Any("error", err))
		return nil, false
	}
	if story == nil {
		metrics.CacheLookupsTotal.WithLabelValues(tierShared, resultMiss).Inc()
		return nil, false
	}
	metrics.CacheLookupsTotal.WithLabelValues(tierShared, resultHit).Inc()
	return story, true
}

func (cache *Cache) storeShared(ctx context.Context, story *atlas.CachedStory) {
	if cache.tier == nil {
		return
	}
	if err := cache.tier.Store(ctx, story); err != nil {
		cache.logger.Warn("story_cache_shared_store_failed", slog.String("story_id", story.Pointer.StoryID.String()), slog.Any("error", err))
	}
}
