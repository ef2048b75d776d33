package connection

// Listener receives notifications for one transport connection.
type Listener interface {
	OnOpen()
	OnMessage(data []byte)
	OnClose(code int, reason string)
	OnError(err error)
}

// Conn is one transport connection.
type Conn interface {
	// Send writes one frame.
	Send(data []byte) error

	// Close closes the connection with a close code and reason.
	// Listener callbacks after Close are not delivered.
	Close(code int, reason string) error
}

// Transport opens connections.
//
// Open must return without invoking the listener; progress (open, messages,
// close, error) is reported later from the transport's own goroutines.
type Transport interface {
	Open(target string, l Listener) (Conn, error)
}
