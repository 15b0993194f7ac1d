package server

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/session"
)

// pipeServerSide returns one end of an in-memory net.Conn pair, draining
// and discarding everything written to the other end so writes never block.
func pipeServerSide(t *testing.T) net.Conn {
	t.Helper()
	server, client := net.Pipe()
	go io.Copy(io.Discard, client)
	t.Cleanup(func() { server.Close(); client.Close() })
	return server
}

func newTestServer() *Server {
	props := session.DefaultServerProperties()
	props.AlivenessTestDelay = 50 * time.Millisecond
	return New(props, zerolog.Nop())
}

func TestMonotonicClientIDs(t *testing.T) {
	s := newTestServer()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	s.ln = ln

	// Accept each connection through the server's own accept path, in order.
	var dialed []string
	for i := 0; i < 2; i++ {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		t.Cleanup(func() { conn.Close() })
		dialed = append(dialed, conn.LocalAddr().String())
		s.acceptNewPeers()
	}

	if e1, ok := s.peers[1]; !ok || e1.RemoteAddr != dialed[0] {
		t.Fatalf("first id: peer 1 is not the first accepted connection (peers %v)", s.peers)
	}
	if e2, ok := s.peers[2]; !ok || e2.RemoteAddr != dialed[1] {
		t.Fatalf("second id: peer 2 is not the second accepted connection (peers %v)", s.peers)
	}
}

func TestPolicyDenylistRejectsMarkedAddress(t *testing.T) {
	s := newTestServer()
	s.Deny("10.0.0.5")
	if s.permits("10.0.0.5") {
		t.Fatalf("permits: denylisted address was allowed")
	}
	if !s.permits("10.0.0.6") {
		t.Fatalf("permits: unmarked address rejected under denylist mode")
	}
}

func TestPolicyAllowlistAcceptsOnlyListedAddress(t *testing.T) {
	s := newTestServer()
	s.props.UseBlacklist = false
	s.props.UseWhitelist = true
	s.Allow("10.0.0.5")

	if !s.permits("10.0.0.5") {
		t.Fatalf("permits: allowlisted address was rejected")
	}
	if s.permits("10.0.0.6") {
		t.Fatalf("permits: unlisted address was allowed under allowlist mode")
	}
}

func TestReconnectRefusedWhenOldIDHeldByAnotherPeer(t *testing.T) {
	s := newTestServer()
	s.peers[1] = &ClientEntry{ID: 1, state: PeerConnected}
	candidate := &ClientEntry{ID: 2, state: PeerInit}
	s.peers[2] = candidate

	if !s.heldByOther(1, candidate.ID) {
		t.Fatalf("heldByOther: expected id 1 to be held by a different peer")
	}
}

func TestReconnectWithinFlushWindowRestoresUserData(t *testing.T) {
	s := newTestServer()
	s.disconnected[1] = &disconnectedEntry{id: 1, userData: "payload", disconnectedAt: time.Now()}

	candidate := &ClientEntry{ID: 2, state: PeerInit, conn: pipeServerSide(t)}
	s.peers[2] = candidate

	pack := codec.NewPacket(session.Reconnect)
	_ = pack.AddUint32(1)
	s.onReconnect(candidate, pack)

	if candidate.ID != 1 {
		t.Fatalf("rekey: got id %d want 1", candidate.ID)
	}
	if candidate.UserData != "payload" {
		t.Fatalf("UserData: got %v want %q", candidate.UserData, "payload")
	}
	if _, ok := s.peers[2]; ok {
		t.Fatalf("old provisional id 2 should no longer be present in peers map")
	}
}

func TestReconnectRefusedFiresFailedThenConnectedCallbacks(t *testing.T) {
	s := newTestServer()
	var failed, connected bool
	s.SetCallbacks(Callbacks{
		OnClientReconnectFailed: func(e *ClientEntry) { failed = true },
		OnClientConnected:       func(e *ClientEntry) { connected = true },
	})

	// id 1 is held by a third peer (C3) concurrent with candidate C2.
	s.peers[1] = &ClientEntry{ID: 1, state: PeerConnected}
	candidate := &ClientEntry{ID: 2, state: PeerInit, conn: pipeServerSide(t)}
	s.peers[2] = candidate

	pack := codec.NewPacket(session.Reconnect)
	_ = pack.AddUint32(1)
	pack.Reset()
	s.onReconnect(candidate, pack)

	if !failed {
		t.Fatalf("OnClientReconnectFailed was not fired")
	}
	if !connected {
		t.Fatalf("OnClientConnected was not fired for the refused candidate")
	}
	if candidate.ID != 2 {
		t.Fatalf("candidate ID after refused reconnect: got %d want 2 (unchanged)", candidate.ID)
	}
	if candidate.state != PeerDataListExchange {
		t.Fatalf("candidate state after refused reconnect: got %v want PeerDataListExchange", candidate.state)
	}
}

func TestPartialFrameToleranceAcrossChunkBoundaries(t *testing.T) {
	s := newTestServer()
	msgID := s.RegisterName("greeting")

	var got []string
	s.RegisterHandler(msgID, func(pack session.PacketView, method session.Method, peerID uint32) {
		got = append(got, pack.RemoveString())
	})

	p1 := codec.NewPacket(msgID)
	_ = p1.AddString("first")
	b1 := p1.Serialize()
	p2 := codec.NewPacket(msgID)
	_ = p2.AddString("second")
	b2 := p2.Serialize()
	whole := append(append([]byte{}, b1...), b2...)

	// Split mid-header of the second frame, and again mid-payload, feeding
	// each piece through drainFrames as if it arrived in a separate Read.
	splitA := len(b1) + 2
	splitB := len(b1) + codec.HeaderSize() + 1
	chunks := [][]byte{whole[:splitA], whole[splitA:splitB], whole[splitB:]}

	e := &ClientEntry{ID: 1, state: PeerConnected}
	for _, c := range chunks {
		e.tcpAccum = append(e.tcpAccum, c...)
		s.drainFrames(e)
	}

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("dispatched payloads across chunk boundaries: got %v want [first second]", got)
	}
	if len(e.tcpAccum) != 0 {
		t.Fatalf("tcpAccum not fully drained: got %d bytes remaining", len(e.tcpAccum))
	}
}

func TestExpireDisconnectedAfterFlushDelay(t *testing.T) {
	s := newTestServer()
	s.props.DisconnectedClientFlushDelay = 10 * time.Millisecond
	s.disconnected[1] = &disconnectedEntry{id: 1, disconnectedAt: time.Now().Add(-20 * time.Millisecond)}

	s.expireDisconnected()

	if _, ok := s.disconnected[1]; ok {
		t.Fatalf("expireDisconnected: entry was not removed after flush delay elapsed")
	}
}
