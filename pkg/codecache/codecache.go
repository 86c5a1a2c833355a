// Package codecache stores translated native images in PebbleDB, keyed by
// the bytecode and the instruction catalog that produced them.
package codecache

import (
	"bytes"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// keyPrefix namespaces image entries inside the database
var keyPrefix = []byte("native/")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("codecache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Fixup is a helper address field inside Image. Helper addresses change
// between processes, so they are re-linked after loading.
type Fixup struct {
	At     int `cbor:"1,keyasint"`
	Helper int `cbor:"2,keyasint"`
}

// Entry is one cached translation.
type Entry struct {
	Fingerprint  [32]byte `cbor:"1,keyasint"`
	SourceLen    int      `cbor:"2,keyasint"`
	NativeLen    int      `cbor:"3,keyasint"`
	Instructions int      `cbor:"4,keyasint"`
	Relocations  int      `cbor:"5,keyasint"`
	Fixups       []Fixup  `cbor:"6,keyasint,omitempty"`
	Image        []byte   `cbor:"7,keyasint"`
}

// Cache is a PebbleDB-backed translation cache
type Cache struct {
	db *pebble.DB
}

// Open opens or creates the cache database in dir
func Open(dir string) (*Cache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("codecache: open %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

// Key derives the cache key of code translated under fingerprint.
func Key(fingerprint [32]byte, code []byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write(fingerprint[:])
	h.Write(code)
	return append(append([]byte(nil), keyPrefix...), h.Sum(nil)...)
}

// Get returns the entry stored under key. ok is false on a miss.
func (c *Cache) Get(key []byte) (entry *Entry, ok bool, err error) {
	value, closer, err := c.db.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("codecache: get: %w", err)
	}
	defer closer.Close()

	var e Entry
	if err := cbor.Unmarshal(value, &e); err != nil {
		return nil, false, fmt.Errorf("codecache: unmarshal entry: %w", err)
	}
	if len(e.Image) != e.NativeLen {
		return nil, false, fmt.Errorf("codecache: entry image is %d bytes, header says %d", len(e.Image), e.NativeLen)
	}
	return &e, true, nil
}

// Put stores entry under key
func (c *Cache) Put(key []byte, entry *Entry) error {
	value, err := cborEncMode.Marshal(entry)
	if err != nil {
		return fmt.Errorf("codecache: marshal entry: %w", err)
	}
	if err := c.db.Set(key, value, pebble.Sync); err != nil {
		return fmt.Errorf("codecache: set: %w", err)
	}
	return nil
}

// Delete removes the entry stored under key
func (c *Cache) Delete(key []byte) error {
	return c.db.Delete(key, pebble.Sync)
}

// Prune deletes every entry produced under a fingerprint other than
// current and returns how many were removed.
func (c *Cache) Prune(current [32]byte) (int, error) {
	iter, err := c.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: prefixEnd(keyPrefix),
	})
	if err != nil {
		return 0, fmt.Errorf("codecache: iterate: %w", err)
	}

	batch := c.db.NewBatch()
	defer batch.Close()

	removed := 0
	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := cbor.Unmarshal(iter.Value(), &e); err == nil && bytes.Equal(e.Fingerprint[:], current[:]) {
			continue
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			iter.Close()
			return 0, fmt.Errorf("codecache: delete: %w", err)
		}
		removed++
	}
	if err := iter.Close(); err != nil {
		return 0, fmt.Errorf("codecache: iterate: %w", err)
	}

	if removed == 0 {
		return 0, nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, fmt.Errorf("codecache: commit: %w", err)
	}
	return removed, nil
}

// Close closes the database
func (c *Cache) Close() error {
	return c.db.Close()
}

// prefixEnd returns the smallest key greater than every key with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
