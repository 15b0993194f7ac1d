package client

import (
	"net"
	"time"

	"github.com/go-crosssock/crosssock/internal/backoff"
	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/session"
)

// dialPollTimeout bounds how long a single Update() tick may block on a
// connect attempt before treating it as not-yet-resolved and retrying.
const dialPollTimeout = 20 * time.Millisecond

// Update drives one tick of the client state machine. The application is
// expected to call this in a loop; nothing happens on any other thread.
func (c *Client) Update() {
	switch c.state {
	case NeedsToConnect:
		return
	case Connecting:
		c.updateConnecting(false)
	case Reconnecting:
		c.updateConnecting(true)
	case ReceivingID, RequestingID, ReceivingDataList, Connected:
		c.updateConnected()
	}
}

func (c *Client) updateConnecting(reconnect bool) {
	if c.tcp == nil {
		delay := c.props.ConnectionDelay
		if c.props.Backoff.Enabled() {
			delay = backoff.Next(c.connectAttempts, c.props.Backoff, c.rng)
		}
		if !c.lastAttempt.IsZero() && time.Since(c.lastAttempt) < delay {
			return
		}
		c.lastAttempt = time.Now()
		// A short per-attempt deadline keeps Update() non-blocking in spirit:
		// a single tick never stalls for longer than dialPollTimeout, at the
		// cost of treating a slow-to-resolve dial as one failed attempt among
		// MaxConnectionAttempts/MaxReconnectionAttempts, same as any other
		// connect error.
		conn, err := net.DialTimeout("tcp", c.serverAddr, dialPollTimeout)
		if err != nil {
			c.connectAttempts++
			limit := c.props.MaxConnectionAttempts
			if reconnect {
				limit = c.props.MaxReconnectionAttempts
			}
			if c.connectAttempts >= limit {
				c.log.Warn().Int("attempts", c.connectAttempts).Msg("client giving up connecting")
				c.state = NeedsToConnect
				if c.cb.OnDisconnect != nil {
					c.cb.OnDisconnect(false)
				}
			}
			return
		}
		c.tcp = conn
	}

	c.lastAlivenessRecv = time.Now()
	c.lastAlivenessSend = time.Now()
	c.timeoutBudgetMS = session.AdvertisedBudgetMS(float64(c.props.AlivenessTestDelay.Milliseconds()), 0)
	if reconnect {
		c.state = RequestingID
	} else {
		c.state = ReceivingID
	}
}

func (c *Client) updateConnected() {
	if c.tcp == nil {
		return
	}
	c.pumpTCP()
	if c.props.AllowUDPPackets && c.state == Connected {
		c.ensureUDP()
		c.pumpUDP()
	}
	c.runHeartbeat()
}

// ensureUDP lazily binds the companion UDP socket once the session is
// CONNECTED, on the TCP connection's local address and port.
func (c *Client) ensureUDP() {
	if c.udp != nil {
		return
	}
	// Bind the companion UDP socket to the same local address/port as the
	// TCP connection so the server can reach it via the peer's TCP remote
	// address without a separate UDP registration handshake.
	local := c.tcp.LocalAddr().String()
	conn, err := net.ListenPacket("udp", local)
	if err != nil {
		c.log.Warn().Err(err).Msg("client failed to bind udp companion")
		return
	}
	c.udp = conn
}

func (c *Client) pumpTCP() {
	readBuf := make([]byte, session.ReceiveBufferBytes)
	for i := 0; i < c.props.MaxTCPTransmitsPerUpdate; i++ {
		// A deadline already in the past fails the read without returning
		// buffered data, so poll with a deadline just ahead of now.
		_ = c.tcp.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, err := c.tcp.Read(readBuf)
		if n > 0 {
			c.tcpAccum = append(c.tcpAccum, readBuf[:n]...)
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			c.log.Info().Err(err).Msg("client tcp read error")
			c.Disconnect(true)
			return
		}
		if n == 0 {
			break
		}
	}
	c.drainFrames()
}

func (c *Client) drainFrames() {
	for {
		if len(c.tcpAccum) < codec.HeaderSize() {
			return
		}
		h, err := codec.PeekHeader(c.tcpAccum)
		if err != nil {
			return
		}
		if int(h.PayloadSize) > codec.MaxPayloadBytes {
			if c.cb.OnTransmitError != nil {
				c.cb.OnTransmitError(h.DataID, session.MethodTCP, session.ErrInvalidPayloadSize)
			}
			c.tcpAccum = c.tcpAccum[:0]
			return
		}
		frameLen := codec.FrameSize(h)
		if len(c.tcpAccum) < frameLen {
			return
		}
		// Decode before compacting: compaction overwrites the frame's bytes.
		pack, err := codec.Decode(c.tcpAccum[:frameLen])
		c.tcpAccum = append(c.tcpAccum[:0], c.tcpAccum[frameLen:]...)
		if err != nil {
			continue
		}
		c.onFrame(pack, session.MethodTCP)
	}
}

func (c *Client) pumpUDP() {
	if c.udp == nil {
		return
	}
	buf := make([]byte, session.MaxFrameBytes)
	for i := 0; i < c.props.MaxUDPTransmitsPerUpdate; i++ {
		_ = c.udp.SetReadDeadline(time.Now().Add(time.Millisecond))
		n, addr, err := c.udp.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			break
		}
		if n == 0 {
			continue
		}
		if addr.String() != c.serverAddr {
			continue
		}
		pack, err := codec.Decode(buf[:n])
		if err != nil {
			continue
		}
		c.onFrame(pack, session.MethodUDP)
	}
}
