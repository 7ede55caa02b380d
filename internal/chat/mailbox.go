package chat

import "sync"

// Mailbox is an unbounded FIFO of encoded payloads with many producers and a
// single consumer. The ring grows by doubling once it is 70% full.
type Mailbox struct {
	mu       sync.Mutex
	buf      [][]byte
	head     int
	tail     int
	count    int
	capacity int
	closed   bool

	// ready holds at most one wakeup for the consumer; closed on Close.
	ready chan struct{}

	pushed  int64
	popped  int64
	resizes int
}

// MailboxStats is a point-in-time view of a mailbox.
type MailboxStats struct {
	Count       int
	Capacity    int
	TotalPushed int64
	TotalPopped int64
	ResizeCount int
}

func NewMailbox(initialCapacity int) *Mailbox {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Mailbox{
		buf:      make([][]byte, initialCapacity),
		capacity: initialCapacity,
		ready:    make(chan struct{}, 1),
	}
}

// Push appends item. It returns false once the mailbox is closed.
func (m *Mailbox) Push(item []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	threshold := (m.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if m.count+1 >= threshold {
		m.grow()
	}

	m.buf[m.tail] = item
	m.tail = (m.tail + 1) % m.capacity
	m.count++
	m.pushed++

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// Next blocks until an item is available, the mailbox is closed and empty
// (ErrMailboxClosed) or shutdown is closed (ErrShutdown). A closed shutdown
// wins over pending items.
func (m *Mailbox) Next(shutdown <-chan struct{}) ([]byte, error) {
	for {
		select {
		case <-shutdown:
			return nil, ErrShutdown
		default:
		}

		m.mu.Lock()
		if m.count > 0 {
			item := m.pop()
			m.mu.Unlock()
			return item, nil
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil, ErrMailboxClosed
		}

		select {
		case <-m.ready:
		case <-shutdown:
			return nil, ErrShutdown
		}
	}
}

// Close stops the mailbox from accepting items. Items already queued stay
// readable. Close is idempotent.
func (m *Mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.ready)
}

func (m *Mailbox) Stats() MailboxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MailboxStats{
		Count:       m.count,
		Capacity:    m.capacity,
		TotalPushed: m.pushed,
		TotalPopped: m.popped,
		ResizeCount: m.resizes,
	}
}

// pop must be called with the lock held and count > 0.
func (m *Mailbox) pop() []byte {
	item := m.buf[m.head]
	m.buf[m.head] = nil
	m.head = (m.head + 1) % m.capacity
	m.count--
	m.popped++
	return item
}

// grow doubles the ring. Must be called with the lock held.
func (m *Mailbox) grow() {
	newCapacity := m.capacity * 2
	newBuf := make([][]byte, newCapacity)

	if m.count > 0 {
		if m.head < m.tail {
			copy(newBuf, m.buf[m.head:m.tail])
		} else {
			n := copy(newBuf, m.buf[m.head:])
			copy(newBuf[n:], m.buf[:m.tail])
		}
	}

	m.buf = newBuf
	m.head = 0
	m.tail = m.count
	m.capacity = newCapacity
	m.resizes++
}
