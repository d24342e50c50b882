// Package chunkcache implements the bounded chunk cache (spec.md component
// H): a fixed-capacity map keyed by logical chunk index with single-flight
// builds and LRU eviction among clean entries.
//
// Generalized from sargunv/rom-tools' lib/format/chd/root.go readHunk
// cache-check/build/store shape into proper single-flight semantics: spec.md
// §4.H requires at most one Building state per index, which that reader's
// looser "everyone decompresses, cache just memoizes" model doesn't give.
package chunkcache

import (
	"container/list"
	"sync"

	"github.com/dnpa/goewf/ewferr"
)

// state is a cache slot's lifecycle stage.
type state int

const (
	stateBuilding state = iota
	stateReady
	stateDirty
	stateError
)

type slot struct {
	state   state
	data    []byte
	err     error
	waiters *sync.Cond
	lruElem *list.Element
}

// BuildFunc produces the logical bytes for a chunk index, e.g. reading and
// inflating it from a segment file.
type BuildFunc func(index int) ([]byte, error)

// Cache is a fixed-capacity, concurrency-safe chunk cache. Empty is the
// implicit "index absent from the map" state; Building/Ready/Dirty are
// tracked per slot once a fetch or write touches that index.
type Cache struct {
	mu       sync.Mutex
	capacity int
	slots    map[int]*slot
	lru      *list.List // front = most recently used Ready entry
}

// New returns a cache holding at most capacity entries.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		slots:    make(map[int]*slot),
		lru:      list.New(),
	}
}

// Get returns index's cached bytes, building them via build if absent, and
// collapsing concurrent requests for the same index into a single build
// (single-flight): a second caller for an index already Building blocks on
// the first caller's result instead of invoking build again.
func (c *Cache) Get(index int, build BuildFunc) ([]byte, error) {
	c.mu.Lock()
	if s, ok := c.slots[index]; ok {
		for s.state == stateBuilding {
			s.waiters.Wait()
		}
		if s.err != nil {
			err := s.err
			delete(c.slots, index)
			c.mu.Unlock()
			return nil, err
		}
		c.touch(s)
		data := s.data
		c.mu.Unlock()
		return data, nil
	}

	s := &slot{state: stateBuilding}
	s.waiters = sync.NewCond(&c.mu)
	c.slots[index] = s
	c.mu.Unlock()

	data, err := build(index)

	c.mu.Lock()
	if err != nil {
		s.err = err
		s.state = stateError
		s.waiters.Broadcast()
		delete(c.slots, index)
		c.mu.Unlock()
		return nil, err
	}
	s.state = stateReady
	s.data = data
	s.lruElem = c.lru.PushFront(index)
	s.waiters.Broadcast()
	c.evictIfNeeded()
	c.mu.Unlock()
	return data, nil
}

// Put inserts or overwrites index with data, marking it Dirty: a write-path
// entry pinned against LRU eviction until Flush clears the dirty flag.
func (c *Cache) Put(index int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.slots[index]; ok && old.lruElem != nil {
		c.lru.Remove(old.lruElem)
	}
	c.slots[index] = &slot{state: stateDirty, data: data, waiters: sync.NewCond(&c.mu)}
}

// Flush clears index's Dirty flag, making it eligible for LRU eviction as a
// Ready entry, e.g. once its owning chunk has been durably written out.
func (c *Cache) Flush(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[index]
	if !ok {
		return ewferr.New(ewferr.KindInvalidConfiguration, "chunkcache.Flush", "no such index")
	}
	s.state = stateReady
	s.lruElem = c.lru.PushFront(index)
	c.evictIfNeeded()
	return nil
}

// Len reports the number of entries currently resident.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.slots)
}

func (c *Cache) touch(s *slot) {
	if s.state == stateReady && s.lruElem != nil {
		c.lru.MoveToFront(s.lruElem)
	}
}

// evictIfNeeded drops the least-recently-used Ready entry until the cache is
// back at or under capacity. Dirty entries are pinned and never considered.
func (c *Cache) evictIfNeeded() {
	for len(c.slots) > c.capacity {
		elem := c.lru.Back()
		if elem == nil {
			return
		}
		index := elem.Value.(int)
		c.lru.Remove(elem)
		delete(c.slots, index)
	}
}
