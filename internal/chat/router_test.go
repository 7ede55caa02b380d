package chat

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type testPeer struct {
	name     string
	client   net.Conn
	conn     *peerConn
	shutdown chan struct{}
	inbox    <-chan Payload
}

// newTestRouter uses an unbuffered event stream so that a completed send
// means the router has taken the event.
func newTestRouter(t *testing.T) *Router {
	t.Helper()
	r := NewRouter(RouterOptions{EventBuffer: 0, MailboxCapacity: 2}, nil)
	go r.Run()
	t.Cleanup(func() {
		r.Close()
		r.Wait()
	})
	return r
}

func registerPeer(t *testing.T, r *Router, name string) *testPeer {
	t.Helper()
	p := connectPeer(t, r, name)
	p.inbox = readPayloads(p.client)
	return p
}

// connectPeer registers name without reading from the client side.
func connectPeer(t *testing.T, r *Router, name string) *testPeer {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	p := &testPeer{
		name:     name,
		client:   client,
		conn:     newPeerConn(server, nil),
		shutdown: make(chan struct{}),
	}
	r.Events() <- Event{Type: EventRegister, Name: name, Conn: p.conn, Shutdown: p.shutdown}
	return p
}

func readPayloads(conn net.Conn) <-chan Payload {
	ch := make(chan Payload, 256)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			p, err := DecodePayload(sc.Bytes())
			if err != nil {
				return
			}
			ch <- p
		}
	}()
	return ch
}

func send(r *Router, from, line string) {
	msg, ok := ParseLine(from, line)
	if !ok {
		return
	}
	r.Events() <- Event{Type: EventMessage, Message: msg}
}

func peers(t *testing.T, r *Router) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	names, err := r.Peers(ctx)
	require.NoError(t, err)
	return names
}

func waitPayload(t *testing.T, ch <-chan Payload) Payload {
	t.Helper()
	select {
	case p, ok := <-ch:
		require.True(t, ok, "payload stream closed")
		return p
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for payload")
	}
	return Payload{}
}

func expectNoPayload(t *testing.T, ch <-chan Payload) {
	t.Helper()
	select {
	case p, ok := <-ch:
		if ok {
			t.Fatalf("unexpected payload: %+v", p)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRouter_DeliversAttributedPayload(t *testing.T) {
	r := newTestRouter(t)
	alice := registerPeer(t, r, "alice")
	registerPeer(t, r, "bob")

	send(r, "bob", "alice:hello")

	p := waitPayload(t, alice.inbox)
	require.Equal(t, "bob", p.From)
	require.Equal(t, Recipient{Kind: RecipientUser, Name: "alice"}, p.To)
	require.NotNil(t, p.Text)
	require.Equal(t, "from bob: hello\n", *p.Text)
	require.Nil(t, p.Media)
	expectNoPayload(t, alice.inbox)
}

func TestRouter_DuplicateDestinationDeliversTwice(t *testing.T) {
	r := newTestRouter(t)
	alice := registerPeer(t, r, "alice")

	send(r, "bob", "alice,alice:hi")

	require.Equal(t, "from bob: hi\n", *waitPayload(t, alice.inbox).Text)
	require.Equal(t, "from bob: hi\n", *waitPayload(t, alice.inbox).Text)
	expectNoPayload(t, alice.inbox)
}

func TestRouter_RepeatedLineIsNotDeduplicated(t *testing.T) {
	r := newTestRouter(t)
	alice := registerPeer(t, r, "alice")

	send(r, "bob", "alice: same")
	send(r, "bob", "alice: same")

	waitPayload(t, alice.inbox)
	waitPayload(t, alice.inbox)
	peers(t, r)
	require.EqualValues(t, 2, r.Stats().Enqueued)
}

func TestRouter_UnknownDestinationIsSkipped(t *testing.T) {
	r := newTestRouter(t)
	alice := registerPeer(t, r, "alice")

	send(r, "alice", "carol, dave :anyone there?")
	peers(t, r)

	stats := r.Stats()
	require.EqualValues(t, 2, stats.Skipped)
	require.EqualValues(t, 0, stats.Enqueued)
	expectNoPayload(t, alice.inbox)
}

func TestRouter_PerDestinationFIFO(t *testing.T) {
	r := newTestRouter(t)
	alice := registerPeer(t, r, "alice")

	for i := 0; i < 50; i++ {
		send(r, "bob", fmt.Sprintf("alice:%d", i))
	}
	for i := 0; i < 50; i++ {
		require.Equal(t, fmt.Sprintf("from bob: %d\n", i), *waitPayload(t, alice.inbox).Text)
	}
}

func TestRouter_DuplicateRegistrationKeepsFirst(t *testing.T) {
	r := newTestRouter(t)
	first := registerPeer(t, r, "alice")
	second := registerPeer(t, r, "alice")

	require.Equal(t, []string{"alice"}, peers(t, r))
	require.EqualValues(t, 1, r.Stats().Discarded)
	require.EqualValues(t, 1, r.Stats().Writers)

	send(r, "bob", "alice:who gets this")
	require.Equal(t, "from bob: who gets this\n", *waitPayload(t, first.inbox).Text)
	expectNoPayload(t, second.inbox)
}

func TestRouter_RegistrySizeTracksDisconnects(t *testing.T) {
	r := newTestRouter(t)
	registerPeer(t, r, "alice")
	bob := registerPeer(t, r, "bob")
	registerPeer(t, r, "carol")

	require.Equal(t, []string{"alice", "bob", "carol"}, peers(t, r))
	require.Equal(t, float64(3), testutil.ToFloat64(RegisteredPeers))

	close(bob.shutdown)
	require.Eventually(t, func() bool {
		return len(peers(t, r)) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"alice", "carol"}, peers(t, r))

	// The name is free again.
	registerPeer(t, r, "bob")
	require.Equal(t, []string{"alice", "bob", "carol"}, peers(t, r))
}

func TestRouter_WriteFailureRemovesPeer(t *testing.T) {
	r := newTestRouter(t)
	alice := registerPeer(t, r, "alice")
	registerPeer(t, r, "bob")

	require.NoError(t, alice.client.Close())
	send(r, "bob", "alice:are you there")

	require.Eventually(t, func() bool {
		names := peers(t, r)
		return len(names) == 1 && names[0] == "bob"
	}, time.Second, 5*time.Millisecond)

	before := r.Stats()
	send(r, "bob", "alice:still there?")
	peers(t, r)
	after := r.Stats()
	require.Equal(t, before.Skipped+1, after.Skipped)
	require.Equal(t, before.Enqueued, after.Enqueued)
}

func TestRouter_ShutdownDrainsPendingMailboxes(t *testing.T) {
	r := newTestRouter(t)
	alice := connectPeer(t, r, "alice")
	bob := connectPeer(t, r, "bob")

	for i := 0; i < 5; i++ {
		send(r, "carol", fmt.Sprintf("alice,bob:%d", i))
	}
	peers(t, r)

	r.Close()
	aliceInbox := readPayloads(alice.client)
	bobInbox := readPayloads(bob.client)

	for i := 0; i < 5; i++ {
		want := fmt.Sprintf("from carol: %d\n", i)
		require.Equal(t, want, *waitPayload(t, aliceInbox).Text)
		require.Equal(t, want, *waitPayload(t, bobInbox).Text)
	}

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("router did not finish draining")
	}
	require.EqualValues(t, 0, r.Stats().Peers)
	expectNoPayload(t, aliceInbox)

	_, err := r.Peers(context.Background())
	require.ErrorIs(t, err, ErrServerStopped)
}

func TestRouter_DisconnectForUnknownPeerPanics(t *testing.T) {
	r := NewRouter(RouterOptions{}, nil)
	registry := map[string]*Mailbox{"alice": NewMailbox(1)}

	require.Panics(t, func() {
		r.handleDisconnect(registry, DisconnectNotice{Name: "bob", Mailbox: NewMailbox(1)})
	})
	require.Panics(t, func() {
		r.handleDisconnect(registry, DisconnectNotice{Name: "alice", Mailbox: NewMailbox(1)})
	})
	require.Contains(t, registry, "alice")
}

func TestRouter_CountsPayloadsLeftInMailbox(t *testing.T) {
	r := newTestRouter(t)
	alice := connectPeer(t, r, "alice")
	before := testutil.ToFloat64(UndeliveredPayloadsTotal)

	// Nobody reads: the writer blocks on the first payload, the rest queue up.
	for i := 0; i < 3; i++ {
		send(r, "bob", fmt.Sprintf("alice:%d", i))
	}
	peers(t, r)
	require.NoError(t, alice.client.Close())

	require.Eventually(t, func() bool {
		return len(peers(t, r)) == 0
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, before+2, testutil.ToFloat64(UndeliveredPayloadsTotal))
}
