// Package codecache keeps compiled translations in LevelDB, keyed by a
// BLAKE2b digest of everything that determines the generated code.
package codecache

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/colorfulnotion/armlift/lifter"
	"github.com/colorfulnotion/armlift/lifterrors"
	"github.com/colorfulnotion/armlift/log"
)

var keyPrefix = []byte("code/")

type Key [blake2b.Size256]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

func (k Key) dbKey() []byte {
	return append(bytes.Clone(keyPrefix), k[:]...)
}

// KeyFor digests the request: architecture, entry, code address, options
// that change the output, and the ranges together with the code they cover.
func KeyFor(req lifter.Request) (Key, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return Key{}, err
	}
	var buf [8]byte
	u64 := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	h.Write([]byte(req.Architecture))
	h.Write([]byte{0})
	u64(uint64(req.Entry))
	u64(req.CodeAddress)
	if req.Options.InstrumentMemoryAccess {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	for _, r := range lifter.RangesFromList(req.Ranges) {
		u64(uint64(r.Start))
		u64(uint64(r.End))
		if req.Code == nil || r.End <= r.Start {
			continue
		}
		code, err := req.Code.ReadCode(r.Start, int(r.End-r.Start))
		if err != nil {
			return Key{}, fmt.Errorf("%w: range [0x%08x, 0x%08x): %v", lifterrors.ErrBadRequest, r.Start, r.End, err)
		}
		h.Write(code)
	}
	var k Key
	copy(k[:], h.Sum(nil))
	return k, nil
}

type entry struct {
	Address uint64       `json:"address"`
	Code    []byte       `json:"code"`
	Stats   lifter.Stats `json:"stats"`
}

// Cache stores compiled code for requests with a fixed code address.
type Cache struct {
	store *Store
	hits  int
	miss  int
}

func New(store *Store) *Cache {
	return &Cache{store: store}
}

// Lookup returns the cached code for k, or ErrCacheMiss.
func (c *Cache) Lookup(k Key) (*lifter.GeneratedCode, error) {
	data, ok, err := c.store.Get(k.dbKey())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", lifterrors.ErrCacheMiss, k)
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("codecache: corrupt entry %s: %w", k, err)
	}
	return &lifter.GeneratedCode{Address: e.Address, Size: len(e.Code), Code: e.Code, Stats: e.Stats}, nil
}

func (c *Cache) Save(k Key, gc *lifter.GeneratedCode) error {
	data, err := json.Marshal(entry{Address: gc.Address, Code: gc.Code, Stats: gc.Stats})
	if err != nil {
		return err
	}
	return c.store.Put(k.dbKey(), data)
}

// GetOrInstrument returns the cached translation of req or translates and
// caches it. Requests without a code address are mapped into this process
// and bypass the cache. The bool reports a cache hit.
func (c *Cache) GetOrInstrument(req lifter.Request, gen lifter.CodeGenerator) (*lifter.GeneratedCode, bool, error) {
	if req.CodeAddress == 0 {
		gc, err := lifter.Instrument(req, gen)
		return gc, false, err
	}
	k, err := KeyFor(req)
	if err != nil {
		return nil, false, err
	}
	gc, err := c.Lookup(k)
	if err == nil {
		c.hits++
		log.Debug(log.CodeCache, "code cache hit", "key", k.String(), "size", gc.Size)
		return gc, true, nil
	}
	if !errors.Is(err, lifterrors.ErrCacheMiss) {
		return nil, false, err
	}
	c.miss++
	gc, err = lifter.Instrument(req, gen)
	if err != nil {
		return nil, false, err
	}
	if err := c.Save(k, gc); err != nil {
		log.Warn(log.CodeCache, "code cache store failed", "key", k.String(), "err", err)
	}
	return gc, false, nil
}

// Keys lists the cached translations.
func (c *Cache) Keys() ([]Key, error) {
	raw, err := c.store.Keys(keyPrefix)
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(raw))
	for _, r := range raw {
		var k Key
		copy(k[:], r[len(keyPrefix):])
		keys = append(keys, k)
	}
	return keys, nil
}

func (c *Cache) Evict(k Key) error {
	return c.store.Delete(k.dbKey())
}

// Counters returns the hits and misses seen by GetOrInstrument.
func (c *Cache) Counters() (hits, misses int) {
	return c.hits, c.miss
}
