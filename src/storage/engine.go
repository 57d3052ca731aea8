package storage

// Engine represents a KV storage engine where both keys and values are
// arbitrary byte strings. Key-value pairs are ordered lexicographically by
// key. Writes are only guaranteed durable after a Flush.
type Engine interface {
	// Set stores the key-value pair, overwriting any previous value.
	Set(key []byte, value []byte) error
	// Get returns the value stored against the given key, if it exists.
	Get(key []byte) (value []byte, found bool, err error)
	// Delete removes a key. Does nothing if the key doesn't exist.
	Delete(key []byte) error
	// Flush flushes any buffered data to the underlying storage medium.
	Flush() error
	// Status returns the status of the storage engine.
	Status() (Status, error)
}

// Status describes an engine's contents and footprint.
type Status struct {
	// Engine name
	Name string
	// Number of live keys
	KeyCount uint64
	// Logical size of live key-value pairs
	LogicalSize uint64
	// On-disk size, zero for purely in-memory engines
	DiskSize uint64
}
