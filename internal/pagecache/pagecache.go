// Package pagecache implements the page cache (C3): an address-keyed
// cache of (bytes, size, perms) entries, keyed per host-analyzer
// session so multiple controllers sharing a session key may share
// cached bytes. Per spec.md §5, any mutating cache operation is the
// exclusive responsibility of whichever controller currently holds
// the session — concurrent use within one session is disallowed by
// contract; the RWMutex here only protects against the read side
// racing a mutation from a different goroutine inspecting the cache
// (e.g. a TUI), not against two controllers mutating concurrently.
package pagecache

import "sync"

// Perms is a guest memory permission bitmask.
type Perms uint8

const (
	PermRead    Perms = 1 << 0
	PermWrite   Perms = 1 << 1
	PermExecute Perms = 1 << 2
)

// Entry is one cached page-ish region.
type Entry struct {
	Addr  uint64
	Bytes []byte
	Perms Perms
}

func (e *Entry) end() uint64 { return e.Addr + uint64(len(e.Bytes)) }

// Cache is one session's page cache.
type Cache struct {
	mu sync.RWMutex
	// entries is kept sorted by Addr so coverage/overlap queries can
	// scan in order; the cache is not expected to hold enough entries
	// for this to matter performance-wise.
	entries []*Entry
}

var (
	sessionsMu sync.Mutex
	sessions   = make(map[uint64]*Cache)
)

// ForSession returns the shared Cache for the given session key,
// creating it if this is the first controller to reference it.
func ForSession(key uint64) *Cache {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	c, ok := sessions[key]
	if !ok {
		c = &Cache{}
		sessions[key] = c
	}
	return c
}

// ReleaseSession drops the session's cache once no controller
// references it. Safe to call even if other controllers still hold a
// key to a different session.
func ReleaseSession(key uint64) {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	delete(sessions, key)
}

func (c *Cache) find(addr uint64) int {
	for i, e := range c.entries {
		if addr >= e.Addr && addr < e.end() {
			return i
		}
	}
	return -1
}

// CachePage caches size bytes starting at addr with the given perms,
// merging with any adjacent cached region that shares the same
// perms. Returns the (possibly earlier) normalized start address and
// the actual length now cached there, plus false if an existing
// cached region overlapping the range has different perms.
func (c *Cache) CachePage(addr uint64, bytes []byte, perms Perms) (uint64, int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := uint64(len(bytes))
	newEntry := &Entry{Addr: addr, Bytes: append([]byte(nil), bytes...), Perms: perms}

	// Reject true overlaps (not mere adjacency) with differing perms.
	for _, e := range c.entries {
		overlaps := addr < e.end() && e.Addr < addr+size
		if overlaps && e.Perms != perms {
			return 0, 0, false
		}
	}

	// Merge with any adjacent (touching) same-perm region, scanning
	// until nothing more merges.
	merged := true
	for merged {
		merged = false
		for i, e := range c.entries {
			if e.Perms != newEntry.Perms {
				continue
			}
			if e.end() == newEntry.Addr {
				combined := append(append([]byte(nil), e.Bytes...), newEntry.Bytes...)
				newEntry = &Entry{Addr: e.Addr, Bytes: combined, Perms: e.Perms}
				c.entries = removeAt(c.entries, i)
				merged = true
				break
			}
			if newEntry.end() == e.Addr {
				combined := append(append([]byte(nil), newEntry.Bytes...), e.Bytes...)
				newEntry = &Entry{Addr: newEntry.Addr, Bytes: combined, Perms: e.Perms}
				c.entries = removeAt(c.entries, i)
				merged = true
				break
			}
			// Fully contained: nothing new to add.
			if newEntry.Addr >= e.Addr && newEntry.end() <= e.end() {
				return e.Addr, len(e.Bytes), true
			}
		}
	}

	c.entries = append(c.entries, newEntry)
	return newEntry.Addr, len(newEntry.Bytes), true
}

func removeAt(s []*Entry, i int) []*Entry {
	return append(s[:i], s[i+1:]...)
}

// UncachePagesTouchingRegion removes every cached entry that
// intersects [addr, addr+length).
func (c *Cache) UncachePagesTouchingRegion(addr, length uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	end := addr + length
	out := c.entries[:0]
	for _, e := range c.entries {
		if addr < e.end() && e.Addr < end {
			continue
		}
		out = append(out, e)
	}
	c.entries = out
}

// Wipe removes the cached entry that exactly matches addr (its start
// address), if any.
func (c *Cache) Wipe(addr uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.Addr == addr {
			c.entries = removeAt(c.entries, i)
			return
		}
	}
}

// Clear drops every cached entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = nil
}

// InCache reports whether addr falls within a cached entry.
func (c *Cache) InCache(addr uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.find(addr) >= 0
}

// MemMapper is the subset of the Engine interface MapCache needs: the
// ability to map a region and write bytes into it.
type MemMapper interface {
	MapRegion(addr, size uint64) error
	MemWrite(addr uint64, data []byte) error
}

// MapCache asks mapper to map and populate every cached range that
// covers [addr, addr+size). Returns true only if full coverage
// exists; on partial coverage, no region is mapped and false is
// returned.
func (c *Cache) MapCache(mapper MemMapper, addr, size uint64) bool {
	c.mu.RLock()
	covering := c.coveringEntries(addr, size)
	c.mu.RUnlock()
	if covering == nil {
		return false
	}
	for _, e := range covering {
		if err := mapper.MapRegion(e.Addr, uint64(len(e.Bytes))); err != nil {
			return false
		}
		if err := mapper.MemWrite(e.Addr, e.Bytes); err != nil {
			return false
		}
	}
	return true
}

// Read copies [addr, addr+len(out)) into out from cached entries,
// returning false without modifying out on partial coverage. Used by
// a Lifter that decodes guest bytes directly from the cache rather
// than through a mapped Engine.
func (c *Cache) Read(addr uint64, out []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	covering := c.coveringEntries(addr, uint64(len(out)))
	if covering == nil {
		return false
	}
	cursor := addr
	remaining := out
	for _, e := range covering {
		off := cursor - e.Addr
		n := uint64(len(remaining))
		if avail := uint64(len(e.Bytes)) - off; avail < n {
			n = avail
		}
		copy(remaining[:n], e.Bytes[off:off+n])
		remaining = remaining[n:]
		cursor += n
	}
	return true
}

// coveringEntries returns the cached entries needed to fully cover
// [addr, addr+size), or nil if coverage is incomplete.
func (c *Cache) coveringEntries(addr, size uint64) []*Entry {
	end := addr + size
	cursor := addr
	var out []*Entry
	for cursor < end {
		idx := c.find(cursor)
		if idx < 0 {
			return nil
		}
		e := c.entries[idx]
		out = append(out, e)
		cursor = e.end()
	}
	return out
}
