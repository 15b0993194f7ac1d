// End-to-end tests driving a real Client and Server against each other over
// loopback TCP/UDP, covering the spec's S1-S4 and S6 scenarios. S5 (refused
// identity reassignment) is covered by internal/server's unit tests.
package crosssock_test

import (
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-crosssock/crosssock/internal/client"
	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/server"
	"github.com/go-crosssock/crosssock/internal/session"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func driveUntil(t *testing.T, cond func() bool, ticks ...func()) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, tick := range ticks {
			tick()
		}
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestS1SimpleConnect(t *testing.T) {
	port := freePort(t)

	srv := server.New(session.DefaultServerProperties(), zerolog.Nop())
	srv.RegisterName("message")
	srv.Start(port)

	cli := client.New(session.DefaultClientProperties(), zerolog.Nop())
	ready := false
	cli.SetCallbacks(client.Callbacks{OnReady: func() { ready = true }})

	driveUntil(t, func() bool { return srv.State() == server.Loop }, srv.Update)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	cli.Connect(addr)

	driveUntil(t, func() bool { return cli.State() == client.Connected }, srv.Update, cli.Update)

	if !ready {
		t.Fatalf("client OnReady was not fired")
	}
	if id, ok := cli.IDOf("message"); !ok || id != session.CustomDataStart {
		t.Fatalf("IDOf(message): got (%d, %v) want (%d, true)", id, ok, session.CustomDataStart)
	}
	if srv.PeerCount() != 1 {
		t.Fatalf("PeerCount: got %d want 1", srv.PeerCount())
	}
}

func TestS2ApplicationRoundTrip(t *testing.T) {
	port := freePort(t)

	srv := server.New(session.DefaultServerProperties(), zerolog.Nop())
	msgID := srv.RegisterName("message")
	var serverSawHi bool
	srv.RegisterHandler(msgID, func(pack session.PacketView, method session.Method, peerID uint32) {
		if pack.RemoveString() == "hi" {
			serverSawHi = true
		}
		entry, _ := srv.Peer(peerID)
		reply := codec.NewPacket(msgID)
		_ = reply.AddString("hi")
		_ = reply.AddUint32(1)
		_, _ = srv.StreamToClient(reply, entry)
	})
	srv.Start(port)

	cli := client.New(session.DefaultClientProperties(), zerolog.Nop())
	var clientSawReply bool
	cli.SetCallbacks(client.Callbacks{})

	driveUntil(t, func() bool { return srv.State() == server.Loop }, srv.Update)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	cli.Connect(addr)
	driveUntil(t, func() bool { return cli.State() == client.Connected }, srv.Update, cli.Update)

	appID, ok := cli.IDOf("message")
	if !ok {
		t.Fatalf("client does not know dataID for message")
	}
	cli.RegisterHandler(appID, func(pack session.PacketView, method session.Method, peerID uint32) {
		if pack.RemoveString() == "hi" {
			clientSawReply = true
		}
	})

	out := codec.NewPacket(appID)
	_ = out.AddString("hi")
	if _, err := cli.Send(out); err != nil {
		t.Fatalf("Send: %v", err)
	}

	driveUntil(t, func() bool { return serverSawHi }, srv.Update, cli.Update)
	driveUntil(t, func() bool { return clientSawReply }, srv.Update, cli.Update)
}

func TestS3HeartbeatTimeoutDrivesClientToReconnecting(t *testing.T) {
	port := freePort(t)

	sprops := session.DefaultServerProperties()
	sprops.AlivenessTestDelay = 15 * time.Millisecond
	srv := server.New(sprops, zerolog.Nop())
	srv.RegisterName("message")
	srv.Start(port)

	cprops := session.DefaultClientProperties()
	cprops.AlivenessTestDelay = 15 * time.Millisecond
	cli := client.New(cprops, zerolog.Nop())
	var disconnected, reconnectedAttempt bool
	cli.SetCallbacks(client.Callbacks{
		OnDisconnect:       func(willReconnect bool) { disconnected = willReconnect },
		OnAttemptReconnect: func() { reconnectedAttempt = true },
	})

	driveUntil(t, func() bool { return srv.State() == server.Loop }, srv.Update)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	cli.Connect(addr)
	driveUntil(t, func() bool { return cli.State() == client.Connected }, srv.Update, cli.Update)

	// Stop driving the server entirely; the client must notice it has not
	// heard an ALIVENESS within its advertised budget and tear itself down.
	driveUntil(t, func() bool { return cli.State() == client.Reconnecting }, cli.Update)

	if !disconnected {
		t.Fatalf("OnDisconnect was not fired with willReconnect=true")
	}
	if !reconnectedAttempt {
		t.Fatalf("OnAttemptReconnect was not fired")
	}
}

func TestS4IdentityResumptionAfterAbruptDrop(t *testing.T) {
	port := freePort(t)

	srv := server.New(session.DefaultServerProperties(), zerolog.Nop())
	srv.RegisterName("message")
	srv.SetCallbacks(server.Callbacks{
		OnInitializeClient: func(e *server.ClientEntry) { e.UserData = "payload" },
	})
	srv.Start(port)

	cli := client.New(session.DefaultClientProperties(), zerolog.Nop())

	driveUntil(t, func() bool { return srv.State() == server.Loop }, srv.Update)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	cli.Connect(addr)
	driveUntil(t, func() bool { return cli.State() == client.Connected }, srv.Update, cli.Update)

	originalID := cli.ClientID()

	var reconnected bool
	cli.SetCallbacks(client.Callbacks{OnReconnect: func() { reconnected = true }})

	// Simulate the client abruptly noticing a broken connection.
	cli.Disconnect(true)
	if cli.State() != client.Reconnecting {
		t.Fatalf("client state after Disconnect(true): got %v want Reconnecting", cli.State())
	}

	// Let the server observe the dropped socket and retain the entry.
	driveUntil(t, func() bool { return srv.PeerCount() == 0 }, srv.Update)

	driveUntil(t, func() bool { return cli.State() == client.Connected }, srv.Update, cli.Update)

	if !reconnected {
		t.Fatalf("OnReconnect was not fired on the client")
	}
	if cli.ClientID() != originalID {
		t.Fatalf("ClientID after reconnect: got %d want %d (resumed)", cli.ClientID(), originalID)
	}
	entry, ok := srv.Peer(originalID)
	if !ok {
		t.Fatalf("server has no live peer with resumed id %d", originalID)
	}
	if entry.UserData != "payload" {
		t.Fatalf("UserData after resumption: got %v want %q", entry.UserData, "payload")
	}
}

func TestS6MalformedFrameDiscardsAccumulatorAndRealigns(t *testing.T) {
	port := freePort(t)

	srv := server.New(session.DefaultServerProperties(), zerolog.Nop())
	var gotErr error
	srv.SetCallbacks(server.Callbacks{
		OnTransmitError: func(dataID uint16, e *server.ClientEntry, method session.Method, err error) {
			gotErr = err
		},
	})
	srv.Start(port)

	driveUntil(t, func() bool { return srv.State() == server.Loop }, srv.Update)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	driveUntil(t, func() bool { return srv.PeerCount() == 1 }, srv.Update)

	// header: dataID=99, payloadSize=MaxPayloadBytes+1, flags=0
	bad := make([]byte, codec.HeaderSize())
	bad[0], bad[1] = 99, 0
	badSize := uint16(codec.MaxPayloadBytes + 1)
	bad[2] = byte(badSize)
	bad[3] = byte(badSize >> 8)
	bad[4] = 0
	if _, err := conn.Write(bad); err != nil {
		t.Fatalf("Write malformed header: %v", err)
	}

	driveUntil(t, func() bool { return gotErr != nil }, srv.Update)
	if !errors.Is(gotErr, session.ErrInvalidPayloadSize) {
		t.Fatalf("OnTransmitError err: got %v want %v", gotErr, session.ErrInvalidPayloadSize)
	}

	// With the accumulator discarded, the next well-formed frame is parsed
	// from its own header: an unregistered dataID reports ErrInvalidDataID
	// instead of another payload-size error.
	gotErr = nil
	follow := codec.NewPacket(99)
	if _, err := conn.Write(follow.Serialize()); err != nil {
		t.Fatalf("Write follow-up frame: %v", err)
	}
	driveUntil(t, func() bool { return gotErr != nil }, srv.Update)
	if !errors.Is(gotErr, session.ErrInvalidDataID) {
		t.Fatalf("OnTransmitError err after realign: got %v want %v", gotErr, session.ErrInvalidDataID)
	}
}

