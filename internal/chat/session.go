package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// session is the connection actor: it registers the peer named by the first
// line and forwards every later line that parses as a message.
type session struct {
	conn         *peerConn
	events       chan<- Event
	maxLineBytes int
	// draining reports whether the server is stopping. A draining session
	// leaves its shutdown signal open so the writer can flush its mailbox.
	draining func() bool
}

// run never unregisters the peer; that only happens when the writer exits.
func (s *session) run() (name string, err error) {
	defer s.conn.releaseRead()

	// Without a registration no writer will ever own the outgoing half.
	registered := false
	defer func() {
		if !registered {
			s.conn.releaseWrite()
		}
	}()

	reader := bufio.NewReader(s.conn)

	name, err = readLine(reader, s.maxLineBytes)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrPeerDisconnected
		}
		return "", err
	}

	shutdown := make(chan struct{})
	defer func() {
		if s.draining == nil || !s.draining() {
			close(shutdown)
		}
	}()

	s.events <- Event{
		Type:     EventRegister,
		Name:     name,
		Conn:     s.conn,
		Shutdown: shutdown,
	}
	registered = true

	for {
		line, err := readLine(reader, s.maxLineBytes)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return name, nil
			}
			return name, err
		}
		msg, ok := ParseLine(name, line)
		if !ok {
			continue
		}
		s.events <- Event{Type: EventMessage, Message: msg}
	}
}

// readLine returns the next line without its terminator. A final line that
// lacks a newline is still returned. max <= 0 means unbounded.
func readLine(r *bufio.Reader, max int) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if max > 0 && len(line)+len(chunk) > max {
			return "", ErrLineTooLong
		}
		line = append(line, chunk...)
		switch {
		case err == nil:
			return trimEOL(line), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case err == io.EOF && len(line) > 0:
			// last line without newline
			return trimEOL(line), nil
		case err == io.EOF:
			return "", io.EOF
		default:
			return "", fmt.Errorf("read: %w", err)
		}
	}
}

func trimEOL(line []byte) string {
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
		if n > 0 && line[n-1] == '\r' {
			n--
		}
	}
	return string(line[:n])
}
