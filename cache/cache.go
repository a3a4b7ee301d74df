package cache

import (
	"sync"
	"time"

	"github.com/karlseguin/ccache/v3"

	"github.com/xeptore/crateclip/discogs"
)

var (
	DefaultReleaseTTL = 1 * time.Hour
	DefaultCoverTTL   = 1 * time.Hour
)

type Cache struct {
	Releases ReleasesCache
	Covers   CoversCache
}

func New() *Cache {
	releasesCache := ccache.New(
		ccache.Configure[*discogs.Release]().
			MaxSize(1000).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	coversCache := ccache.New(
		ccache.Configure[[]byte]().
			MaxSize(100).
			GetsPerPromote(3).
			ItemsToPrune(1),
	)

	return &Cache{
		Releases: ReleasesCache{
			c:   releasesCache,
			mux: sync.Mutex{},
		},
		Covers: CoversCache{
			c:   coversCache,
			mux: sync.Mutex{},
		},
	}
}

type ReleasesCache struct {
	c   *ccache.Cache[*discogs.Release]
	mux sync.Mutex
}

func (c *ReleasesCache) Fetch(k string, ttl time.Duration, fetch func() (*discogs.Release, error)) (*ccache.Item[*discogs.Release], error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.c.Fetch(k, ttl, fetch)
}

type CoversCache struct {
	c   *ccache.Cache[[]byte]
	mux sync.Mutex
}

func (c *CoversCache) Fetch(k string, ttl time.Duration, fetch func() ([]byte, error)) (*ccache.Item[[]byte], error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.c.Fetch(k, ttl, fetch)
}
