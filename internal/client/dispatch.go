package client

import (
	"time"

	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/session"
)

// onFrame routes one decoded inbound frame to either control handling
// (state-machine transitions) or application dispatch.
func (c *Client) onFrame(pack *codec.Packet, method session.Method) {
	switch pack.DataID() {
	case session.Handshake:
		c.onHandshake()
	case session.InitClientID:
		c.onInitClientID(pack)
	case session.Reconnect:
		c.onReconnectGranted(pack)
	case session.DataListEntry:
		c.onDataListEntry(pack)
	case session.Aliveness:
		c.onAliveness(pack)
	case session.Disconnect:
		c.Disconnect(true)
	default:
		c.dispatchApplication(pack, method)
	}
}

func (c *Client) onHandshake() {
	if c.cb.OnHandshake != nil {
		c.cb.OnHandshake()
	}
	switch c.state {
	case ReceivingID:
		p := codec.NewPacket(session.InitClientID)
		_ = c.sendControl(p)
	case RequestingID:
		p := codec.NewPacket(session.Reconnect)
		_ = p.AddUint32(c.priorID)
		_ = c.sendControl(p)
	case ReceivingDataList:
		// second handshake on the wire going the other direction is the
		// client's own CONNECTED-confirmation echo; nothing further to do
		// here, the transition happens when the data list completes.
	}
}

func (c *Client) onInitClientID(pack *codec.Packet) {
	id := pack.RemoveUint32()
	if id == 0 {
		p := codec.NewPacket(session.InitClientID)
		_ = c.sendControl(p)
		return
	}
	// An INIT_CLIENT_ID answering a RECONNECT request means the server
	// refused resumption (old id gone or held by another peer) and is
	// issuing a fresh identity instead.
	reconnectDenied := c.state == RequestingID
	c.clientID = id
	c.state = ReceivingDataList
	if reconnectDenied && c.cb.OnReconnectFailed != nil {
		c.cb.OnReconnectFailed()
	}
	if c.cb.OnConnect != nil {
		c.cb.OnConnect()
	}
	trigger := codec.NewPacket(session.DataListEntry)
	_ = c.sendControl(trigger)
}

func (c *Client) onReconnectGranted(pack *codec.Packet) {
	id := pack.RemoveUint32()
	c.clientID = id
	c.state = ReceivingDataList
	if c.cb.OnReconnect != nil {
		c.cb.OnReconnect()
	}
	trigger := codec.NewPacket(session.DataListEntry)
	_ = c.sendControl(trigger)
}

func (c *Client) onDataListEntry(pack *codec.Packet) {
	total := int(pack.RemoveUint32())
	index := int(pack.RemoveUint32())
	name := pack.RemoveString()
	id := pack.RemoveUint16()
	c.symbols.Upsert(name, id)

	if index >= total-1 {
		p := codec.NewPacket(session.Handshake)
		_ = c.sendControl(p)
		c.state = Connected
		if c.cb.OnReady != nil {
			c.cb.OnReady()
		}
	}
}

func (c *Client) onAliveness(pack *codec.Packet) {
	budget := pack.RemoveUint32() // encoded as milliseconds*1000 fixed point; see send side
	c.timeoutBudgetMS = float64(budget) / 1000.0
	c.lastAlivenessRecv = time.Now()
}

func (c *Client) dispatchApplication(pack *codec.Packet, method session.Method) {
	dataID := pack.DataID()
	if _, ok := c.symbols.NameOf(dataID); !ok {
		if c.cb.OnTransmitError != nil {
			c.cb.OnTransmitError(dataID, method, session.ErrInvalidDataID)
		}
		return
	}
	if method == session.MethodUDP && !pack.IsValid() {
		if c.cb.OnTransmitError != nil {
			c.cb.OnTransmitError(dataID, method, session.ErrInvalidChecksum)
		}
		return
	}
	if c.cb.OnReceive != nil {
		c.cb.OnReceive(dataID, method)
	}
	c.handlers.Dispatch(dataID, pack, method, 0, func() bool { return c.state != Connected })
}
