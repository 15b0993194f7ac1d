package server

import (
	"time"

	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/session"
)

// onFrame routes one decoded inbound frame from peer e to either control
// handling (identity issuance, resumption, symbol-table exchange) or
// application dispatch.
func (s *Server) onFrame(e *ClientEntry, pack *codec.Packet, method session.Method) {
	switch pack.DataID() {
	case session.InitClientID:
		s.onInitClientID(e)
	case session.Reconnect:
		s.onReconnect(e, pack)
	case session.DataListEntry:
		s.onDataListTrigger(e)
	case session.Handshake:
		s.onSecondHandshake(e)
	case session.Aliveness:
		s.onAliveness(e, pack)
	case session.Disconnect:
		s.disconnectPeer(e, false)
	default:
		s.dispatchApplication(e, pack, method)
	}
}

func (s *Server) onInitClientID(e *ClientEntry) {
	if e.state != PeerInit {
		return
	}
	p := codec.NewPacket(session.InitClientID)
	_ = p.AddUint32(e.ID)
	_ = s.sendControl(e, p)

	e.state = PeerDataListExchange
	if s.cb.OnClientConnected != nil {
		s.cb.OnClientConnected(e)
	}
	if s.cb.OnInitializeClient != nil {
		s.cb.OnInitializeClient(e)
	}
}

func (s *Server) onReconnect(e *ClientEntry, pack *codec.Packet) {
	oldID := pack.RemoveUint32()

	if oldID == 0 || s.heldByOther(oldID, e.ID) {
		if s.cb.OnClientReconnectFailed != nil {
			s.cb.OnClientReconnectFailed(e)
		}
		p := codec.NewPacket(session.InitClientID)
		_ = p.AddUint32(e.ID)
		_ = s.sendControl(e, p)
		e.state = PeerDataListExchange
		if s.cb.OnClientConnected != nil {
			s.cb.OnClientConnected(e)
		}
		if s.cb.OnInitializeClient != nil {
			s.cb.OnInitializeClient(e)
		}
		return
	}

	s.rekey(e, oldID)
	if d, ok := s.disconnected[oldID]; ok {
		e.UserData = d.userData
		delete(s.disconnected, oldID)
	} else if s.cb.OnInitializeClient != nil {
		s.cb.OnInitializeClient(e)
	}

	p := codec.NewPacket(session.Reconnect)
	_ = p.AddUint32(oldID)
	_ = s.sendControl(e, p)
	e.state = PeerDataListExchange
	if s.cb.OnClientReconnected != nil {
		s.cb.OnClientReconnected(e)
	}
}

// heldByOther reports whether oldID is currently assigned to a live peer
// other than candidate.
func (s *Server) heldByOther(oldID, candidateID uint32) bool {
	for id := range s.peers {
		if id == oldID && id != candidateID {
			return true
		}
	}
	return false
}

// rekey moves e from its provisional id to oldID in the live peer map.
func (s *Server) rekey(e *ClientEntry, oldID uint32) {
	delete(s.peers, e.ID)
	e.ID = oldID
	s.peers[oldID] = e
	s.byAddr[e.RemoteAddr] = oldID
}

func (s *Server) onDataListTrigger(e *ClientEntry) {
	for _, entry := range s.symbols.Entries() {
		p := codec.NewPacket(session.DataListEntry)
		_ = p.AddUint32(uint32(entry.Total))
		_ = p.AddUint32(uint32(entry.Index))
		_ = p.AddString(entry.Name)
		_ = p.AddUint16(entry.ID)
		_ = s.sendControl(e, p)
	}
}

func (s *Server) onSecondHandshake(e *ClientEntry) {
	if e.state != PeerDataListExchange {
		return
	}
	e.state = PeerConnected
	if s.cb.OnClientReady != nil {
		s.cb.OnClientReady(e)
	}
}

func (s *Server) onAliveness(e *ClientEntry, pack *codec.Packet) {
	budget := pack.RemoveUint32()
	e.timeoutBudgetMS = float64(budget) / 1000.0
	e.lastAlivenessRecv = time.Now()
}

func (s *Server) dispatchApplication(e *ClientEntry, pack *codec.Packet, method session.Method) {
	dataID := pack.DataID()
	if _, ok := s.symbols.NameOf(dataID); !ok {
		if s.cb.OnTransmitError != nil {
			s.cb.OnTransmitError(dataID, e, method, session.ErrInvalidDataID)
		}
		return
	}
	if method == session.MethodUDP && !pack.IsValid() {
		if s.cb.OnTransmitError != nil {
			s.cb.OnTransmitError(dataID, e, method, session.ErrInvalidChecksum)
		}
		return
	}
	if s.cb.OnReceive != nil {
		s.cb.OnReceive(dataID, e, method)
	}
	start := time.Now()
	s.handlers.Dispatch(dataID, pack, method, e.ID, func() bool { return e.state == PeerDisconnected })
	if s.cb.OnFrameDispatched != nil {
		s.cb.OnFrameDispatched(dataID, method, time.Since(start))
	}
}
