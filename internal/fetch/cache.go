package fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"streamnorm/internal/logger"
	"streamnorm/internal/manifest"
)

type cacheEntry struct {
	body        []byte
	resolvedURL string
	storedAt    time.Time
}

// CachingFetcher wraps a Fetcher with a thread-safe, in-memory body cache.
// SMIL and set-level F4M documents frequently reference the same
// sub-manifest from several media entries; the cache keeps those to one
// request each.
type CachingFetcher struct {
	inner  manifest.Fetcher
	logger logger.Logger
	ttl    time.Duration

	mutex sync.RWMutex
	cache map[string]cacheEntry

	// Control
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCachingFetcher creates a cache around inner with the given entry TTL.
func NewCachingFetcher(inner manifest.Fetcher, log logger.Logger, ttl time.Duration) *CachingFetcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &CachingFetcher{
		inner:  inner,
		logger: log,
		ttl:    ttl,
		cache:  make(map[string]cacheEntry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the background eviction worker.
func (cf *CachingFetcher) Start() {
	go cf.evictionWorker()
}

// Stop shuts down the eviction worker.
func (cf *CachingFetcher) Stop() {
	cf.cancel()
}

// Fetch serves plain GETs from the cache when fresh, delegating everything
// else. Requests with custom headers, query parameters or a body are
// never cached.
func (cf *CachingFetcher) Fetch(rawURL string, headers http.Header, query url.Values, data []byte) ([]byte, string, error) {
	if len(headers) > 0 || len(query) > 0 || data != nil {
		return cf.inner.Fetch(rawURL, headers, query, data)
	}

	cf.mutex.RLock()
	entry, found := cf.cache[rawURL]
	cf.mutex.RUnlock()
	if found && time.Since(entry.storedAt) < cf.ttl {
		cf.logger.Debugf("Cache hit for %s", rawURL)
		return entry.body, entry.resolvedURL, nil
	}

	body, resolvedURL, err := cf.inner.Fetch(rawURL, nil, nil, nil)
	if err != nil {
		return nil, "", err
	}
	cf.mutex.Lock()
	cf.cache[rawURL] = cacheEntry{body: body, resolvedURL: resolvedURL, storedAt: time.Now()}
	cf.mutex.Unlock()
	return body, resolvedURL, nil
}

// Probe delegates to the inner fetcher when it supports probing.
func (cf *CachingFetcher) Probe(rawURL string) error {
	if prober, ok := cf.inner.(manifest.URLProber); ok {
		return prober.Probe(rawURL)
	}
	return nil
}

func (cf *CachingFetcher) evictionWorker() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-cf.ctx.Done():
			return
		case <-ticker.C:
			cf.runEviction()
		}
	}
}

func (cf *CachingFetcher) runEviction() {
	cf.mutex.Lock()
	defer cf.mutex.Unlock()

	evicted := 0
	for key, entry := range cf.cache {
		if time.Since(entry.storedAt) >= cf.ttl {
			delete(cf.cache, key)
			evicted++
		}
	}
	if evicted > 0 {
		cf.logger.Debugf("Evicted %d manifests from cache, %d remain", evicted, len(cf.cache))
	}
}
