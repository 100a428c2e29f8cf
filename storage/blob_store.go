package storage

import (
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// BlobStore keeps downloaded assignment snapshots on disk. Snapshots are
// immutable per assignment id, so entries never need invalidation.
type BlobStore struct {
	db *leveldb.DB
}

// NewBlobStore opens or creates a LevelDB database at path. An empty path
// keeps everything in memory.
func NewBlobStore(path string) (*BlobStore, error) {
	var db *leveldb.DB
	var err error

	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store at %s: %w", path, err)
	}
	return &BlobStore{db: db}, nil
}

// Get returns (nil, false, nil) when key is absent.
func (b *BlobStore) Get(key []byte) ([]byte, bool, error) {
	data, err := b.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("blob get %s: %w", key, err)
	}
	return data, true, nil
}

func (b *BlobStore) Put(key, value []byte) error {
	return b.db.Put(key, value, nil)
}

// Keys lists the stored keys under prefix, in key order.
func (b *BlobStore) Keys(prefix []byte) ([]string, error) {
	iter := b.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("blob keys %s: %w", prefix, err)
	}
	return keys, nil
}

func (b *BlobStore) Close() error {
	return b.db.Close()
}
