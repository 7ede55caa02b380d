package chat

// RoutedMessage is one parsed input line: a body addressed to one or more
// peers. Duplicate destinations are kept and each one is delivered.
type RoutedMessage struct {
	From string
	To   []string
	Body string
}

type EventType int

const (
	EventRegister EventType = iota
	EventMessage
)

func (t EventType) String() string {
	switch t {
	case EventRegister:
		return "register"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is what a connection actor sends to the router.
type Event struct {
	Type EventType

	// EventRegister
	Name     string
	Conn     *peerConn
	Shutdown <-chan struct{} // closed when the owning session is torn down

	// EventMessage
	Message RoutedMessage
}

// DisconnectNotice is sent exactly once by a terminating writer.
type DisconnectNotice struct {
	Name    string
	Mailbox *Mailbox
	Err     error // write failure, nil when the writer was told to stop
}

var (
	ErrPeerDisconnected = errorString("peer disconnected before registration")
	ErrLineTooLong      = errorString("line too long")
	ErrMailboxClosed    = errorString("mailbox closed")
	ErrShutdown         = errorString("session shut down")
	ErrServerStopped    = errorString("server stopped")
)

type errorString string

func (e errorString) Error() string { return string(e) }
