// Package listcache implements the directory-listing cache of spec.md
// section 4.4: a TTL- and capacity-bounded memoization of Fs.List results,
// grounded on the teacher's use of github.com/patrickmn/go-cache for
// time-based chunk expiry in backend/cache/storage_memory.go, with an
// added insertion-ordered eviction list for the max_paths bound that
// go-cache itself doesn't provide.
package listcache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/fsspec/filesystem-spec/fs"
)

// Cache memoizes directory listings keyed by path.
type Cache struct {
	mu       sync.Mutex
	store    *gocache.Cache
	maxPaths int
	order    *list.List               // front = most recently inserted
	elems    map[string]*list.Element // path -> its order element
}

// New returns a listing Cache. ttl <= 0 means entries never expire by
// time (spec.md's default). maxPaths <= 0 means unbounded capacity.
func New(ttl time.Duration, maxPaths int) *Cache {
	expiry := gocache.NoExpiration
	if ttl > 0 {
		expiry = ttl
	}
	return &Cache{
		store:    gocache.New(expiry, expiry/2),
		maxPaths: maxPaths,
		order:    list.New(),
		elems:    make(map[string]*list.Element),
	}
}

// Get returns the cached listing for path and whether it was present and
// unexpired.
func (c *Cache) Get(path string) ([]*fs.Entry, bool) {
	v, ok := c.store.Get(path)
	if !ok {
		return nil, false
	}
	return v.([]*fs.Entry), true
}

// Put stores listing for path, evicting the least-recently-inserted entry
// if maxPaths is exceeded.
func (c *Cache) Put(path string, listing []*fs.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.SetDefault(path, listing)
	if elem, ok := c.elems[path]; ok {
		c.order.MoveToFront(elem)
	} else {
		c.elems[path] = c.order.PushFront(path)
	}

	if c.maxPaths > 0 {
		for c.order.Len() > c.maxPaths {
			oldest := c.order.Back()
			if oldest == nil {
				break
			}
			oldestPath := oldest.Value.(string)
			c.order.Remove(oldest)
			delete(c.elems, oldestPath)
			c.store.Delete(oldestPath)
		}
	}
}

// Invalidate removes the cached listing for path and for every ancestor
// directory, since a write under path changes what each ancestor's
// listing should show (spec.md section 4.4).
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range ancestorsAndSelf(path) {
		c.store.Delete(p)
		if elem, ok := c.elems[p]; ok {
			c.order.Remove(elem)
			delete(c.elems, p)
		}
	}
}

// Len reports the number of cached entries, which may include expired
// entries that have not been cleaned up yet.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Flush()
	c.order.Init()
	c.elems = make(map[string]*list.Element)
}

// ancestorsAndSelf returns path and every ancestor directory up to "/",
// innermost first.
func ancestorsAndSelf(path string) []string {
	clean := strings.TrimSuffix(path, "/")
	if clean == "" {
		clean = "/"
	}
	out := []string{clean}
	for clean != "/" && clean != "" {
		idx := strings.LastIndex(clean, "/")
		if idx <= 0 {
			clean = "/"
		} else {
			clean = clean[:idx]
		}
		out = append(out, clean)
	}
	return out
}
