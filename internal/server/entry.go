package server

import (
	"net"
	"time"
)

// ClientEntry is the per-connected-peer record: identity, transport,
// session state, receive accumulator, heartbeat accounting, and an opaque
// user-data slot the application owns via InitializeClient/DestroyClient.
type ClientEntry struct {
	ID         uint32
	RemoteAddr string
	conn       net.Conn
	state      PeerState
	tcpAccum   []byte

	lastAlivenessSend time.Time
	lastAlivenessRecv time.Time
	timeoutBudgetMS   float64
	prevDelayMS       float64

	UserData any
}

// StateString reports e's session state as a string, for admin surfaces
// and logging that must not reach into the unexported state field.
func (e *ClientEntry) StateString() string { return e.state.String() }

// disconnectedEntry is a retained record for a peer that disconnected but
// whose user-data is kept around in case it reconnects within the flush
// delay window.
type disconnectedEntry struct {
	id         uint32
	userData   any
	disconnectedAt time.Time
}
