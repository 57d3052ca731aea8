package storage

import (
	"fmt"
	"os"
	"time"

	"github.com/boltdb/bolt"
)

var boltBucket = []byte("kv")

var boltOpenOptions = &bolt.Options{
	Timeout: time.Second,
}

// BoltEngine is a bolt-backed Engine storing all pairs in a single bucket.
// Bolt keeps keys in byte-sorted order, which matches the lexicographic
// ordering the Engine contract asks for.
type BoltEngine struct {
	db   *bolt.DB
	path string
}

func OpenBoltEngine(path string) (*BoltEngine, error) {
	db, err := bolt.Open(path, 0600, boltOpenOptions)
	if err != nil {
		return nil, fmt.Errorf("opening bolt database %s: %w", path, err)
	}
	// Writes become durable through an explicit Flush, matching the Engine
	// contract, instead of an fsync on every transaction.
	db.NoSync = true

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bolt bucket: %w", err)
	}

	return &BoltEngine{db: db, path: path}, nil
}

func (engine *BoltEngine) Set(key []byte, value []byte) error {
	return engine.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
}

func (engine *BoltEngine) Get(key []byte) ([]byte, bool, error) {
	var value []byte
	var found bool

	err := engine.db.View(func(tx *bolt.Tx) error {
		if stored := tx.Bucket(boltBucket).Get(key); stored != nil {
			value = append([]byte(nil), stored...)
			found = true
		}
		return nil
	})

	return value, found, err
}

func (engine *BoltEngine) Delete(key []byte) error {
	return engine.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(key)
	})
}

func (engine *BoltEngine) Flush() error {
	return engine.db.Sync()
}

func (engine *BoltEngine) Status() (Status, error) {
	status := Status{Name: "bolt"}

	err := engine.db.View(func(tx *bolt.Tx) error {
		stats := tx.Bucket(boltBucket).Stats()
		status.KeyCount = uint64(stats.KeyN)
		status.LogicalSize = uint64(stats.LeafInuse)
		return nil
	})
	if err != nil {
		return Status{}, err
	}

	if info, err := os.Stat(engine.path); err == nil {
		status.DiskSize = uint64(info.Size())
	}

	return status, nil
}

func (engine *BoltEngine) Close() error {
	return engine.db.Close()
}
