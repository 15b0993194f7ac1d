package server

import (
	"fmt"
	"net"
	"time"

	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/session"
)

// Update drives one tick of the server state machine.
func (s *Server) Update() {
	switch s.state {
	case NeedsStartup:
		return
	case Binding:
		s.updateBinding()
	case Loop:
		s.updateLoop()
	}
}

func (s *Server) updateBinding() {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		s.log.Error().Err(err).Msg("server bind failed")
		return
	}
	s.ln = ln
	udp, err := net.ListenPacket("udp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		s.log.Warn().Err(err).Msg("server udp bind failed, udp disabled")
	} else {
		s.udp = udp
	}
	s.state = Loop
	s.lastHeartbeatSweep = time.Now()
	if s.cb.OnBind != nil {
		s.cb.OnBind()
	}
}

func (s *Server) updateLoop() {
	s.acceptNewPeers()
	s.heartbeatSweep()
	s.expireDisconnected()
	s.receiveTCP()
	s.receiveUDP()
	s.sweepDisconnectedLivePeers()
}

func (s *Server) acceptNewPeers() {
	if s.ln == nil {
		return
	}
	for i := 0; i < s.props.NewConnectionBacklog; i++ {
		if tl, ok := s.ln.(interface{ SetDeadline(time.Time) error }); ok {
			// A deadline already in the past fails Accept even with a
			// connection queued, so poll with a deadline just ahead of now.
			_ = tl.SetDeadline(time.Now().Add(time.Millisecond))
		}
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		addr := conn.RemoteAddr().String()
		host, _, _ := net.SplitHostPort(addr)
		if !s.permits(host) || (s.cb.Validate != nil && !s.cb.Validate(addr)) {
			if s.cb.OnReject != nil {
				s.cb.OnReject(addr)
			}
			disc := codec.NewPacket(session.Disconnect)
			disc.Finalize(false, false, 0)
			_, _ = conn.Write(disc.Serialize())
			_ = conn.Close()
			continue
		}

		id := s.nextID
		s.nextID++
		entry := &ClientEntry{
			ID:                id,
			RemoteAddr:        addr,
			conn:              conn,
			state:             PeerInit,
			lastAlivenessSend: time.Now(),
			lastAlivenessRecv: time.Now(),
		}
		s.peers[id] = entry
		s.byAddr[addr] = id

		hs := codec.NewPacket(session.Handshake)
		if err := s.sendControl(entry, hs); err != nil {
			s.disconnectPeer(entry, true)
		}
	}
}

func (s *Server) heartbeatSweep() {
	if time.Since(s.lastHeartbeatSweep) < s.props.AlivenessTestDelay {
		return
	}
	s.lastHeartbeatSweep = time.Now()
	for _, e := range s.peers {
		elapsed := float64(time.Since(e.lastAlivenessSend).Milliseconds())
		ping := session.PingMS(elapsed, e.prevDelayMS)
		budget := session.AdvertisedBudgetMS(float64(s.props.AlivenessTestDelay.Milliseconds()), ping)
		e.prevDelayMS = budget
		e.lastAlivenessSend = time.Now()

		p := codec.NewPacket(session.Aliveness)
		_ = p.AddUint32(uint32(budget * 1000))
		if err := s.sendControl(e, p); err != nil {
			s.disconnectPeer(e, true)
			continue
		}
		if e.timeoutBudgetMS > 0 && time.Since(e.lastAlivenessRecv).Milliseconds() > int64(e.timeoutBudgetMS) {
			s.disconnectPeer(e, true)
		}
	}
}

func (s *Server) expireDisconnected() {
	if !s.props.ShouldFlushDisconnectedClientData {
		return
	}
	for id, d := range s.disconnected {
		if time.Since(d.disconnectedAt) >= s.props.DisconnectedClientFlushDelay {
			delete(s.disconnected, id)
			if s.cb.OnDestroyClient != nil {
				s.cb.OnDestroyClient(&ClientEntry{ID: d.id, UserData: d.userData, state: PeerDisconnected})
			}
		}
	}
}

func (s *Server) receiveTCP() {
	for _, e := range s.peers {
		s.receiveTCPForPeer(e)
	}
}

func (s *Server) receiveTCPForPeer(e *ClientEntry) {
	readBuf := make([]byte, session.ReceiveBufferBytes)
	for i := 0; i < s.props.MaxTCPTransmitsPerUpdate; i++ {
		_ = e.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, err := e.conn.Read(readBuf)
		if n > 0 {
			e.tcpAccum = append(e.tcpAccum, readBuf[:n]...)
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			s.disconnectPeer(e, true)
			return
		}
		if n == 0 {
			break
		}
	}
	s.drainFrames(e)
}

func (s *Server) drainFrames(e *ClientEntry) {
	for {
		if len(e.tcpAccum) < codec.HeaderSize() {
			return
		}
		h, err := codec.PeekHeader(e.tcpAccum)
		if err != nil {
			return
		}
		if int(h.PayloadSize) > codec.MaxPayloadBytes {
			if s.cb.OnTransmitError != nil {
				s.cb.OnTransmitError(h.DataID, e, session.MethodTCP, session.ErrInvalidPayloadSize)
			}
			e.tcpAccum = e.tcpAccum[:0]
			return
		}
		frameLen := codec.FrameSize(h)
		if len(e.tcpAccum) < frameLen {
			return
		}
		// Decode before compacting: compaction overwrites the frame's bytes.
		pack, err := codec.Decode(e.tcpAccum[:frameLen])
		e.tcpAccum = append(e.tcpAccum[:0], e.tcpAccum[frameLen:]...)
		if err != nil {
			continue
		}
		s.onFrame(e, pack, session.MethodTCP)
	}
}

func (s *Server) receiveUDP() {
	if s.udp == nil {
		return
	}
	buf := make([]byte, session.MaxFrameBytes)
	for i := 0; i < s.props.MaxUDPTransmitsPerUpdate; i++ {
		_ = s.udp.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, _, err := s.udp.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			break
		}
		if n == 0 {
			continue
		}
		h, err := codec.PeekHeader(buf[:n])
		if err != nil {
			continue
		}
		if h.Flags&codec.FlagSenderID == 0 {
			if s.cb.OnTransmitError != nil {
				s.cb.OnTransmitError(h.DataID, nil, session.MethodUDP, session.ErrClientNotFound)
			}
			continue
		}
		if int(h.PayloadSize) > codec.MaxPayloadBytes || codec.HeaderSize()+int(h.PayloadSize)+codec.FooterSize(h) > n {
			if s.cb.OnTransmitError != nil {
				s.cb.OnTransmitError(h.DataID, nil, session.MethodUDP, session.ErrInvalidPayloadSize)
			}
			continue
		}
		footer, err := codec.PeekFooter(buf[codec.HeaderSize()+int(h.PayloadSize):n], h)
		if err != nil {
			continue
		}
		e, ok := s.peers[footer.SenderID]
		if !ok {
			if s.cb.OnTransmitError != nil {
				s.cb.OnTransmitError(h.DataID, nil, session.MethodUDP, session.ErrClientNotFound)
			}
			continue
		}
		pack, err := codec.Decode(buf[:n])
		if err != nil {
			continue
		}
		s.onFrame(e, pack, session.MethodUDP)
	}
}

func (s *Server) sweepDisconnectedLivePeers() {
	for id, e := range s.peers {
		if e.state == PeerDisconnected {
			delete(s.peers, id)
			delete(s.byAddr, e.RemoteAddr)
		}
	}
}

// disconnectPeer tears a peer down. If retain is true and the server keeps
// disconnected client data, the peer's user-data is preserved for possible
// reconnection within the flush delay window.
func (s *Server) disconnectPeer(e *ClientEntry, retain bool) {
	if e.state == PeerDisconnected {
		return
	}
	e.state = PeerDisconnected
	_ = e.conn.Close()

	if retain && s.props.ShouldFlushDisconnectedClientData {
		s.disconnected[e.ID] = &disconnectedEntry{
			id:             e.ID,
			userData:       e.UserData,
			disconnectedAt: time.Now(),
		}
	} else if s.cb.OnDestroyClient != nil {
		s.cb.OnDestroyClient(e)
	}

	if s.cb.OnClientDisconnected != nil {
		s.cb.OnClientDisconnected(e)
	}
}
