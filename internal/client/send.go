package client

import (
	"net"

	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/session"
)

// Send writes pack over the TCP channel. It returns the number of bytes
// written, or a negative sentinel error if the session cannot currently
// transmit.
func (c *Client) Send(pack *codec.Packet) (int, error) {
	if c.state != Connected {
		return -1, session.ErrClientNotConnected
	}
	if c.tcp == nil {
		return -1, session.ErrClientNotConnected
	}
	pack.Finalize(true, false, 0)
	wire := pack.Serialize()
	n, err := c.tcp.Write(wire)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Stream writes pack over the UDP companion channel, auto-finalizing it
// with the checksum and sender-id flags set as application UDP packets
// require.
func (c *Client) Stream(pack *codec.Packet) (int, error) {
	if c.state != Connected {
		return -1, session.ErrClientNotConnected
	}
	if c.udp == nil {
		return -1, session.ErrStreamNotBound
	}
	pack.Finalize(true, true, c.clientID)
	wire := pack.Serialize()
	addr, err := net.ResolveUDPAddr("udp", c.serverAddr)
	if err != nil {
		return -1, err
	}
	n, err := c.udp.WriteTo(wire, addr)
	if err != nil {
		return -1, err
	}
	return n, nil
}
