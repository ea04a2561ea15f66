package codecache

import (
	"bytes"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Store wraps LevelDB for raw key-value persistence of compiled code.
// LevelDB handles its own synchronization.
type Store struct {
	db   *leveldb.DB
	path string
}

// Open opens or creates a LevelDB database at path. An empty path keeps
// everything in memory.
func Open(path string) (*Store, error) {
	var db *leveldb.DB
	var err error
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("codecache: open %q: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

func OpenMemory() (*Store, error) {
	return Open("")
}

// Get returns (nil, false, nil) when key is absent.
func (s *Store) Get(key []byte) ([]byte, bool, error) {
	data, err := s.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("codecache: get %x: %w", key, err)
	}
	return data, true, nil
}

func (s *Store) Put(key, value []byte) error {
	return s.db.Put(key, value, nil)
}

func (s *Store) Delete(key []byte) error {
	return s.db.Delete(key, nil)
}

// Keys returns every key starting with prefix, in key order.
func (s *Store) Keys(prefix []byte) ([][]byte, error) {
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	var keys [][]byte
	for iter.Next() {
		keys = append(keys, bytes.Clone(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("codecache: keys %x: %w", prefix, err)
	}
	return keys, nil
}

func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}
