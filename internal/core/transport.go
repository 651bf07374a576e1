package core

// Frame is a raw wire payload (one encoded envelope).
type Frame []byte

// Transport abstracts the socket a connection record is bound to.
// Owned by the adapter; the adapter must Close() it, except when the room
// evicts an idle connection.
type Transport interface {
	// TrySend queues f without blocking.
	TrySend(f Frame) error
	IsOpen() bool
	// Close is idempotent.
	Close()
}
