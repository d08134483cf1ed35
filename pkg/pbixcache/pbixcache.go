// Package pbixcache is the file cache the Table Extractor façade reads
// from (§3's "Lifecycle", §5's "Shared resource"): once the ABF buffer
// is parsed, every storage file a column depends on is copied into this
// cache as its own owned allocation, and the large buffer is released.
package pbixcache

import (
	"github.com/alecthomas/units"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pbnjay/memory"
)

// averageFileSize is a rough per-entry sizing assumption (an IDF or
// dictionary file rarely exceeds a few hundred KiB) used only to derive
// a default capacity from available system memory.
const averageFileSize = 256 * units.KiB

// defaultBudgetFraction caps how much of system memory the file cache may use by
// default, regardless of how much is free.
const defaultBudgetFraction = 8 // use at most 1/8th of system memory

// FileCache is an LRU-bounded basename -> owned-bytes mapping. Most PBIX
// files are small enough that every file fits, but very large models can
// exceed a practical in-memory budget, so capacity is bounded rather
// than unlimited.
type FileCache struct {
	entries *lru.Cache[string, []byte]
}

// New builds a FileCache sized from available system memory. A
// capacity of zero or less falls back to DefaultCapacity().
func New(capacity int) (*FileCache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity()
	}
	c, err := lru.New[string, []byte](capacity)
	if err != nil {
		return nil, err
	}
	return &FileCache{entries: c}, nil
}

// DefaultCapacity estimates a reasonable entry count from free system
// memory, so the cache scales with the host instead of being a fixed
// magic number.
func DefaultCapacity() int {
	free := memory.FreeMemory()
	if free == 0 {
		return 4096
	}
	budget := free / defaultBudgetFraction
	n := int(budget / uint64(averageFileSize))
	if n < 256 {
		n = 256
	}
	return n
}

// Put stores an independent copy of b under name - the caller's slice
// may alias a larger decompressed buffer that will be released.
func (c *FileCache) Put(name string, b []byte) {
	owned := make([]byte, len(b))
	copy(owned, b)
	c.entries.Add(name, owned)
}

// Get implements extractor.FileCache.
func (c *FileCache) Get(name string) ([]byte, bool) {
	return c.entries.Get(name)
}

// Len reports the number of cached entries.
func (c *FileCache) Len() int {
	return c.entries.Len()
}
