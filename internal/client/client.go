package client

import (
	"math/rand"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/session"
)

// Callbacks is the single-target lifecycle event surface (§4.5). Any field
// left nil is simply not invoked.
type Callbacks struct {
	OnConnect           func()
	OnReady             func()
	OnDisconnect        func(willReconnect bool)
	OnAttemptReconnect   func()
	OnReconnect          func()
	OnReconnectFailed    func()
	OnHandshake          func()
	OnReceive            func(dataID uint16, method session.Method)
	OnTransmitError      func(dataID uint16, method session.Method, err error)
}

// Client is the client-side half of the session protocol. It owns exactly
// one TCP socket and, once connected, one UDP companion socket. All state
// transitions and callbacks run on whatever goroutine calls Update.
type Client struct {
	props   session.ClientProperties
	log     zerolog.Logger
	cb      Callbacks
	symbols *session.SymbolTable
	handlers *session.HandlerRegistry

	state     State
	serverAddr string
	clientID  uint32
	priorID   uint32

	tcp        net.Conn
	udp        net.PacketConn
	tcpAccum   []byte

	connectAttempts int
	lastAttempt     time.Time

	lastAlivenessSend time.Time
	lastAlivenessRecv time.Time
	timeoutBudgetMS   float64
	prevDelayMS       float64
	rng               *rand.Rand

	pendingDataListTotal int
	pendingDataListSeen  int
}

// New constructs a Client with the given properties and logger. Register
// application names and handlers before calling Connect.
func New(props session.ClientProperties, log zerolog.Logger) *Client {
	return &Client{
		props:    props,
		log:      log,
		symbols:  session.NewSymbolTable(),
		handlers: session.NewHandlerRegistry(),
		state:    NeedsToConnect,
		rng:      rand.New(rand.NewSource(1)),
	}
}

// SetCallbacks installs the lifecycle callback set.
func (c *Client) SetCallbacks(cb Callbacks) { c.cb = cb }

// RegisterHandler adds a handler for the given application dataID, invoked
// last-registered-first alongside every other handler for that id.
func (c *Client) RegisterHandler(dataID uint16, fn session.HandlerFunc) {
	c.handlers.Register(dataID, fn)
}

// State returns the client's current session state.
func (c *Client) State() State { return c.state }

// ClientID returns the id granted by the server, or 0 before connection.
func (c *Client) ClientID() uint32 { return c.clientID }

// IDOf resolves an application name to its negotiated dataID.
func (c *Client) IDOf(name string) (uint16, bool) { return c.symbols.IDOf(name) }

// Connect begins connecting to addr and runs the first Update tick. It is
// idempotent while already connecting or connected in the sense that it
// simply restarts the attempt counter and clears transient buffers.
func (c *Client) Connect(addr string) {
	c.serverAddr = addr
	c.connectAttempts = 0
	c.tcpAccum = c.tcpAccum[:0]
	c.state = Connecting
	c.log.Info().Str("addr", addr).Msg("client connecting")
	c.Update()
}

// Disconnect tears the session down. If willReconnect is true and the
// client's properties allow it and the prior state was Connected, the
// client transitions to Reconnecting instead of NeedsToConnect.
func (c *Client) Disconnect(willReconnect bool) {
	wasConnected := c.state == Connected
	c.closeSockets()

	if c.cb.OnDisconnect != nil {
		reconnecting := willReconnect && c.props.ShouldAttemptReconnect && wasConnected
		c.cb.OnDisconnect(reconnecting)
	}

	if willReconnect && c.props.ShouldAttemptReconnect && wasConnected {
		c.priorID = c.clientID
		c.connectAttempts = 0
		c.state = Reconnecting
		if c.cb.OnAttemptReconnect != nil {
			c.cb.OnAttemptReconnect()
		}
		return
	}
	c.state = NeedsToConnect
}

func (c *Client) closeSockets() {
	if c.tcp != nil {
		_ = c.tcp.Close()
		c.tcp = nil
	}
	if c.udp != nil {
		_ = c.udp.Close()
		c.udp = nil
	}
}

// sendControl serializes and writes a zero-payload-or-otherwise control
// packet over TCP, which is the only transport control traffic ever uses.
func (c *Client) sendControl(p *codec.Packet) error {
	if c.tcp == nil {
		return session.ErrClientNotConnected
	}
	p.Finalize(false, false, 0)
	_, err := c.tcp.Write(p.Serialize())
	return err
}
