package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// RouterOptions tunes the router and the writers it spawns.
type RouterOptions struct {
	EventBuffer     int
	MailboxCapacity int
	WriteTimeout    time.Duration
}

// RouterStats is readable from any goroutine. The registry itself is not.
type RouterStats struct {
	Peers     int64
	Messages  int64
	Enqueued  int64
	Skipped   int64
	Dropped   int64
	Writers   int64
	Discarded int64 // registrations ignored because the name was taken
}

// Router owns the peer registry. Every registry mutation happens inside Run.
type Router struct {
	opts   RouterOptions
	logger *slog.Logger

	events      chan Event
	disconnects chan DisconnectNotice
	queries     chan chan []string
	doneCh      chan struct{}
	closeOnce   sync.Once

	writers sync.WaitGroup

	peers     atomic.Int64
	messages  atomic.Int64
	enqueued  atomic.Int64
	skipped   atomic.Int64
	dropped   atomic.Int64
	spawned   atomic.Int64
	discarded atomic.Int64
}

func NewRouter(opts RouterOptions, logger *slog.Logger) *Router {
	if opts.EventBuffer < 0 {
		opts.EventBuffer = 0
	}
	if opts.MailboxCapacity <= 0 {
		opts.MailboxCapacity = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		opts:        opts,
		logger:      logger,
		events:      make(chan Event, opts.EventBuffer),
		disconnects: make(chan DisconnectNotice),
		queries:     make(chan chan []string),
		doneCh:      make(chan struct{}),
	}
}

func (r *Router) Events() chan<- Event {
	return r.events
}

// Close ends the application-event stream. Callers must guarantee that no
// session sends on Events afterwards.
func (r *Router) Close() {
	r.closeOnce.Do(func() { close(r.events) })
}

// Wait blocks until Run has returned, which happens only after every writer
// has reported its disconnect.
func (r *Router) Wait() {
	<-r.doneCh
}

func (r *Router) Done() <-chan struct{} {
	return r.doneCh
}

// Peers returns the sorted names currently in the registry.
func (r *Router) Peers(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	select {
	case r.queries <- reply:
	case <-r.doneCh:
		return nil, ErrServerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case names := <-reply:
		return names, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Router) Stats() RouterStats {
	return RouterStats{
		Peers:     r.peers.Load(),
		Messages:  r.messages.Load(),
		Enqueued:  r.enqueued.Load(),
		Skipped:   r.skipped.Load(),
		Dropped:   r.dropped.Load(),
		Writers:   r.spawned.Load(),
		Discarded: r.discarded.Load(),
	}
}

func (r *Router) Run() {
	defer close(r.doneCh)
	// Single-writer ownership: this map is only accessed in this goroutine.
	peers := make(map[string]*Mailbox)

	events := r.events
	for events != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.handleEvent(peers, ev)
		case n := <-r.disconnects:
			r.observe("disconnect", func() { r.handleDisconnect(peers, n) })
		case reply := <-r.queries:
			reply <- peerNames(peers)
		}
	}

	r.logger.Info("event stream closed, draining writers", "peers", len(peers))

	// Dropping the registry: every writer drains what is queued and exits.
	for _, mb := range peers {
		mb.Close()
	}
	go func() {
		r.writers.Wait()
		close(r.disconnects)
	}()
	for n := range r.disconnects {
		r.observe("disconnect", func() { r.handleDisconnect(peers, n) })
	}

	r.logger.Info("router stopped")
}

func (r *Router) handleEvent(peers map[string]*Mailbox, ev Event) {
	switch ev.Type {
	case EventRegister:
		r.observe("register", func() { r.handleRegister(peers, ev) })
	case EventMessage:
		r.observe("message", func() { r.handleMessage(peers, ev.Message) })
	default:
		r.logger.Warn("unknown event type", "type", int(ev.Type))
	}
}

func (r *Router) observe(eventType string, fn func()) {
	start := time.Now()
	fn()
	EventsTotal.WithLabelValues(eventType).Inc()
	EventProcessingDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
}

func (r *Router) handleRegister(peers map[string]*Mailbox, ev Event) {
	if _, exists := peers[ev.Name]; exists {
		// First registration wins. The late connection gets no writer, so the
		// writer's reference is dropped here without half-closing the socket.
		r.discarded.Add(1)
		r.logger.Warn("duplicate registration ignored", "peer", ev.Name, "conn_id", ev.Conn.id)
		ev.Conn.release()
		return
	}

	mb := NewMailbox(r.opts.MailboxCapacity)
	peers[ev.Name] = mb
	r.setPeers(len(peers))

	w := &writer{
		name:         ev.Name,
		conn:         ev.Conn,
		mailbox:      mb,
		shutdown:     ev.Shutdown,
		writeTimeout: r.opts.WriteTimeout,
		logger:       r.logger.With("peer", ev.Name, "conn_id", ev.Conn.id),
	}
	r.spawned.Add(1)
	r.writers.Add(1)
	go func() {
		defer r.writers.Done()
		r.disconnects <- w.run()
	}()

	r.logger.Info("peer registered", "peer", ev.Name, "conn_id", ev.Conn.id, "addr", ev.Conn.remoteAddr())
}

func (r *Router) handleMessage(peers map[string]*Mailbox, msg RoutedMessage) {
	r.messages.Add(1)
	for _, to := range msg.To {
		mb, ok := peers[to]
		if !ok {
			r.skipped.Add(1)
			DeliveriesTotal.WithLabelValues(deliverySkipped).Inc()
			continue
		}
		data, err := EncodePayload(NewPayload(msg.From, to, msg.Body))
		if err != nil {
			r.logger.Error("payload encoding failed", "from", msg.From, "peer", to, "error", err)
			continue
		}
		if !mb.Push(data) {
			// Writer already exited; its notice has not been processed yet.
			r.dropped.Add(1)
			DeliveriesTotal.WithLabelValues(deliveryDropped).Inc()
			continue
		}
		r.enqueued.Add(1)
		DeliveriesTotal.WithLabelValues(deliveryEnqueued).Inc()
	}
}

func (r *Router) handleDisconnect(peers map[string]*Mailbox, n DisconnectNotice) {
	mb, ok := peers[n.Name]
	if !ok || mb != n.Mailbox {
		panic(fmt.Sprintf("router: disconnect notice for unregistered peer %q", n.Name))
	}
	delete(peers, n.Name)
	r.setPeers(len(peers))

	stats := n.Mailbox.Stats()
	if stats.Count > 0 {
		UndeliveredPayloadsTotal.Add(float64(stats.Count))
	}
	r.logger.Info("peer disconnected",
		"peer", n.Name,
		"written", stats.TotalPopped,
		"pending", stats.Count,
		"mailbox_resizes", stats.ResizeCount,
		"error", n.Err,
	)
}

func (r *Router) setPeers(n int) {
	r.peers.Store(int64(n))
	RegisteredPeers.Set(float64(n))
}

func peerNames(peers map[string]*Mailbox) []string {
	names := make([]string, 0, len(peers))
	for name := range peers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
