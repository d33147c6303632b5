// Package cache keeps decoded model artifacts in memory so repeated
// predictions and validations do not reload them from the model store.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/seantiz/crucible/internal/estimator"
	"github.com/seantiz/crucible/internal/model"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crucible_model_cache_hits_total",
		Help: "Model cache lookups served from memory.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crucible_model_cache_misses_total",
		Help: "Model cache lookups that invoked the loader.",
	})
	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "crucible_model_cache_entries",
		Help: "Number of artifacts currently cached.",
	})
)

// Artifact is a loaded, ready-to-predict model.
type Artifact struct {
	ID        string
	Info      model.ModelRecord // metadata only; Info.Artifact is nil
	Params    estimator.Params
	Estimator estimator.Estimator
	LoadedAt  time.Time
}

// Loader produces the artifact for a model id on a cache miss.
type Loader func(ctx context.Context, id string) (*Artifact, error)

// ModelCache maps model ids to loaded artifacts. Entries are never evicted
// implicitly; Clear and Remove are the only ways to drop them.
type ModelCache struct {
	mu    sync.RWMutex
	items map[string]*Artifact
	loads singleflight.Group
}

// New creates an empty model cache.
func New() *ModelCache {
	return &ModelCache{items: make(map[string]*Artifact)}
}

// GetOrLoad returns the cached artifact for id, invoking load on a miss.
// Concurrent misses for the same id share a single load, run with the first
// caller's context. Loader failures are returned unchanged and nothing is
// cached.
func (c *ModelCache) GetOrLoad(ctx context.Context, id string, load Loader) (*Artifact, error) {
	if a, ok := c.Get(id); ok {
		cacheHits.Inc()
		return a, nil
	}

	v, err, _ := c.loads.Do(id, func() (any, error) {
		// A flight that finished between Get and Do already stored the entry.
		if a, ok := c.Get(id); ok {
			cacheHits.Inc()
			return a, nil
		}
		cacheMisses.Inc()

		a, err := load(ctx, id)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.items[id] = a
		cacheEntries.Set(float64(len(c.items)))
		c.mu.Unlock()
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifact), nil
}

// Get returns the cached artifact for id without loading.
func (c *ModelCache) Get(id string) (*Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.items[id]
	return a, ok
}

// Remove drops one entry and reports whether it was present.
func (c *ModelCache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[id]
	delete(c.items, id)
	cacheEntries.Set(float64(len(c.items)))
	return ok
}

// Clear drops every entry and returns how many were dropped.
func (c *ModelCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.items)
	c.items = make(map[string]*Artifact)
	cacheEntries.Set(0)
	return n
}

// Len returns the number of cached artifacts.
func (c *ModelCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns the cached model ids.
func (c *ModelCache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}
	return keys
}
