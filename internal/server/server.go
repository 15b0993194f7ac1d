package server

import (
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/session"
)

// Callbacks is the single-target lifecycle event surface (§4.5).
type Callbacks struct {
	OnBind                 func()
	OnClientConnected      func(e *ClientEntry)
	OnClientReady          func(e *ClientEntry)
	OnClientDisconnected   func(e *ClientEntry)
	OnClientReconnected    func(e *ClientEntry)
	OnClientReconnectFailed func(e *ClientEntry)
	OnInitializeClient     func(e *ClientEntry)
	OnDestroyClient        func(e *ClientEntry)
	OnTransmitError        func(dataID uint16, e *ClientEntry, method session.Method, err error)
	OnReceive              func(dataID uint16, e *ClientEntry, method session.Method)
	OnFrameDispatched      func(dataID uint16, method session.Method, d time.Duration)
	OnReject               func(addr string)
	// Validate may veto a new connection; returning false rejects the peer.
	Validate func(remoteAddr string) bool
}

// Server is the server-side half of the session protocol.
type Server struct {
	props   session.ServerProperties
	log     zerolog.Logger
	cb      Callbacks
	symbols *session.SymbolTable
	handlers *session.HandlerRegistry

	state    State
	ln       net.Listener
	udp      net.PacketConn
	port     int

	nextID   uint32
	peers    map[uint32]*ClientEntry
	byAddr   map[string]uint32
	disconnected map[uint32]*disconnectedEntry

	policy map[string]bool

	lastHeartbeatSweep time.Time
}

// New constructs a Server with the given properties and logger. Register
// application names before calling Start.
func New(props session.ServerProperties, log zerolog.Logger) *Server {
	return &Server{
		props:        props,
		log:          log,
		symbols:      session.NewSymbolTable(),
		handlers:     session.NewHandlerRegistry(),
		state:        NeedsStartup,
		nextID:       1,
		peers:        make(map[uint32]*ClientEntry),
		byAddr:       make(map[string]uint32),
		disconnected: make(map[uint32]*disconnectedEntry),
		policy:       make(map[string]bool),
	}
}

// SetCallbacks installs the lifecycle callback set.
func (s *Server) SetCallbacks(cb Callbacks) { s.cb = cb }

// RegisterName assigns the next dataID to name in registration order,
// starting at session.CustomDataStart. Call before Start.
func (s *Server) RegisterName(name string) uint16 {
	return s.symbols.Register(name)
}

// RegisterHandler adds a handler for the given application dataID.
func (s *Server) RegisterHandler(dataID uint16, fn session.HandlerFunc) {
	s.handlers.Register(dataID, fn)
}

// State returns the server's top-level lifecycle state.
func (s *Server) State() State { return s.state }

// PeerCount returns the number of live (non-disconnected) peers.
func (s *Server) PeerCount() int { return len(s.peers) }

// Peer returns the live entry for id, if any.
func (s *Server) Peer(id uint32) (*ClientEntry, bool) {
	e, ok := s.peers[id]
	return e, ok
}

// RangePeers calls fn once per currently connected peer, in unspecified
// order. fn must not mutate the server's peer map.
func (s *Server) RangePeers(fn func(e *ClientEntry)) {
	for _, e := range s.peers {
		fn(e)
	}
}

// Start begins the BINDING/LOOP lifecycle and runs the first Update tick.
// DataIDs were already assigned by RegisterName; Start does not renumber
// or freeze the symbol table.
func (s *Server) Start(port int) {
	s.port = port
	s.state = Binding
	s.Update()
}

func (s *Server) sendControl(e *ClientEntry, p *codec.Packet) error {
	p.Finalize(false, false, 0)
	_, err := e.conn.Write(p.Serialize())
	return err
}
