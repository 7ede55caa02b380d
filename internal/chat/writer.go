package chat

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// writer owns the outgoing half of one peer connection and drains its mailbox.
type writer struct {
	name         string
	conn         *peerConn
	mailbox      *Mailbox
	shutdown     <-chan struct{}
	writeTimeout time.Duration
	logger       *slog.Logger
}

// run writes payloads until the mailbox closes, the shutdown signal fires or
// a write fails. The returned notice must be delivered to the router.
func (w *writer) run() DisconnectNotice {
	defer w.conn.releaseWrite()
	defer w.mailbox.Close()

	bw := bufio.NewWriter(w.conn)
	for {
		data, err := w.mailbox.Next(w.shutdown)
		if err != nil {
			if errors.Is(err, ErrShutdown) {
				w.logger.Debug("writer stopped by session shutdown")
			}
			return DisconnectNotice{Name: w.name, Mailbox: w.mailbox}
		}
		if err := w.write(bw, data); err != nil {
			WriterErrorsTotal.Inc()
			w.logger.Warn("write failed", "addr", w.conn.remoteAddr(), "error", err)
			return DisconnectNotice{Name: w.name, Mailbox: w.mailbox, Err: err}
		}
	}
}

func (w *writer) write(bw *bufio.Writer, data []byte) error {
	if w.writeTimeout > 0 {
		if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err := bw.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
