package fetch

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamnorm/internal/logger"
)

// countingFetcher records how often each URL was actually fetched.
type countingFetcher struct {
	calls map[string]int
}

func (c *countingFetcher) Fetch(rawURL string, _ http.Header, _ url.Values, _ []byte) ([]byte, string, error) {
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[rawURL]++
	return []byte("body of " + rawURL), rawURL, nil
}

func TestCachingFetcher(t *testing.T) {
	t.Run("repeated GETs hit the cache", func(t *testing.T) {
		inner := &countingFetcher{}
		cf := NewCachingFetcher(inner, logger.Nop(), time.Minute)

		body, resolved, err := cf.Fetch("http://example.com/a.m3u8", nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "body of http://example.com/a.m3u8", string(body))
		assert.Equal(t, "http://example.com/a.m3u8", resolved)

		_, _, err = cf.Fetch("http://example.com/a.m3u8", nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, inner.calls["http://example.com/a.m3u8"])
	})

	t.Run("customized requests bypass the cache", func(t *testing.T) {
		inner := &countingFetcher{}
		cf := NewCachingFetcher(inner, logger.Nop(), time.Minute)

		headers := http.Header{"X-Custom": {"1"}}
		_, _, err := cf.Fetch("http://example.com/b.m3u8", headers, nil, nil)
		require.NoError(t, err)
		_, _, err = cf.Fetch("http://example.com/b.m3u8", headers, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, inner.calls["http://example.com/b.m3u8"])
	})

	t.Run("expired entries are refetched", func(t *testing.T) {
		inner := &countingFetcher{}
		cf := NewCachingFetcher(inner, logger.Nop(), time.Nanosecond)

		_, _, err := cf.Fetch("http://example.com/c.m3u8", nil, nil, nil)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		_, _, err = cf.Fetch("http://example.com/c.m3u8", nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, inner.calls["http://example.com/c.m3u8"])
	})

	t.Run("eviction removes stale entries", func(t *testing.T) {
		inner := &countingFetcher{}
		cf := NewCachingFetcher(inner, logger.Nop(), time.Nanosecond)

		_, _, err := cf.Fetch("http://example.com/d.m3u8", nil, nil, nil)
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
		cf.runEviction()

		cf.mutex.RLock()
		size := len(cf.cache)
		cf.mutex.RUnlock()
		assert.Equal(t, 0, size)
	})
}
