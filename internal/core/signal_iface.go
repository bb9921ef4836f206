package core

import "errors"

// Send errors. Only ErrBackpressure means the peer is slow.
var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is one encoded outbound event.
type Frame []byte

// SignalConnection is the outbound half of a client socket.
// TrySend must not block; it fails when the buffer is full or the socket is closed.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
