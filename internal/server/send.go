package server

import (
	"net"

	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/session"
)

// SendToClient writes pack over peer's TCP channel.
func (s *Server) SendToClient(pack *codec.Packet, e *ClientEntry) (int, error) {
	if e.state != PeerConnected {
		return -1, session.ErrClientNotConnected
	}
	pack.Finalize(true, false, 0)
	n, err := e.conn.Write(pack.Serialize())
	if err != nil {
		return -1, err
	}
	return n, nil
}

// StreamToClient writes pack over the shared UDP socket to peer's remote
// address, auto-finalizing it with checksum and sender-id (0: the server's
// own reserved id) set.
func (s *Server) StreamToClient(pack *codec.Packet, e *ClientEntry) (int, error) {
	if s.udp == nil {
		return -1, session.ErrStreamNotBound
	}
	if e.state != PeerConnected {
		return -1, session.ErrClientNotConnected
	}
	pack.Finalize(true, true, 0)
	addr, err := net.ResolveUDPAddr("udp", e.RemoteAddr)
	if err != nil {
		return -1, err
	}
	n, err := s.udp.WriteTo(pack.Serialize(), addr)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// SendToAll writes pack over TCP to every connected peer, best-effort.
func (s *Server) SendToAll(pack *codec.Packet) {
	pack.Finalize(true, false, 0)
	wire := pack.Serialize()
	for _, e := range s.peers {
		if e.state != PeerConnected {
			continue
		}
		_, _ = e.conn.Write(wire)
	}
}

// StreamToAll writes pack over UDP to every connected peer, auto-finalized
// with senderID = 0, sending exactly once per peer.
func (s *Server) StreamToAll(pack *codec.Packet) {
	if s.udp == nil {
		return
	}
	pack.Finalize(true, true, 0)
	wire := pack.Serialize()
	for _, e := range s.peers {
		if e.state != PeerConnected {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", e.RemoteAddr)
		if err != nil {
			continue
		}
		_, _ = s.udp.WriteTo(wire, addr)
	}
}

// DisconnectClient forcibly disconnects peer id, firing DISCONNECT to the
// wire first on a best-effort basis.
func (s *Server) DisconnectClient(id uint32) {
	e, ok := s.peers[id]
	if !ok {
		return
	}
	p := codec.NewPacket(session.Disconnect)
	p.Finalize(false, false, 0)
	_, _ = e.conn.Write(p.Serialize())
	s.disconnectPeer(e, false)
}

// DisconnectAddress forcibly disconnects whichever peer is connected from
// addr, if any.
func (s *Server) DisconnectAddress(addr string) {
	id, ok := s.byAddr[addr]
	if !ok {
		return
	}
	s.DisconnectClient(id)
}
