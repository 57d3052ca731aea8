package storage

import (
	"bytes"

	"github.com/google/btree"
)

const memoryBTreeDegree = 32

type memoryItem struct {
	key   []byte
	value []byte
}

func (item *memoryItem) Less(than btree.Item) bool {
	return bytes.Compare(item.key, than.(*memoryItem).key) < 0
}

// MemoryEngine is an in-memory Engine keeping key-value pairs in a btree
// ordered lexicographically by key. Not durable across restarts; intended
// for tests and in-memory playground clusters.
type MemoryEngine struct {
	tree        *btree.BTree
	logicalSize uint64
}

func CreateMemoryEngine() *MemoryEngine {
	return &MemoryEngine{tree: btree.New(memoryBTreeDegree)}
}

func (engine *MemoryEngine) Set(key []byte, value []byte) error {
	item := &memoryItem{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	}

	if previous := engine.tree.ReplaceOrInsert(item); previous != nil {
		engine.logicalSize -= uint64(len(previous.(*memoryItem).value))
	} else {
		engine.logicalSize += uint64(len(key))
	}
	engine.logicalSize += uint64(len(value))

	return nil
}

func (engine *MemoryEngine) Get(key []byte) ([]byte, bool, error) {
	item := engine.tree.Get(&memoryItem{key: key})
	if item == nil {
		return nil, false, nil
	}

	value := item.(*memoryItem).value
	return append([]byte(nil), value...), true, nil
}

func (engine *MemoryEngine) Delete(key []byte) error {
	if previous := engine.tree.Delete(&memoryItem{key: key}); previous != nil {
		item := previous.(*memoryItem)
		engine.logicalSize -= uint64(len(item.key)) + uint64(len(item.value))
	}

	return nil
}

func (engine *MemoryEngine) Flush() error {
	return nil
}

func (engine *MemoryEngine) Status() (Status, error) {
	return Status{
		Name:        "memory",
		KeyCount:    uint64(engine.tree.Len()),
		LogicalSize: engine.logicalSize,
	}, nil
}
