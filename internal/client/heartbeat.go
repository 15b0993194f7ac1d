package client

import (
	"time"

	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/session"
)

// alivenessFixedPoint encodes a millisecond float as a uint32 with three
// decimal digits of precision (value * 1000), avoiding a bespoke
// endian-aware float codec for a single heartbeat field.
func alivenessFixedPoint(ms float64) uint32 {
	return uint32(ms * 1000)
}

// runHeartbeat sends an ALIVENESS packet once the configured cadence has
// elapsed, and declares the session dead if no ALIVENESS has arrived within
// the currently advertised timeout budget.
func (c *Client) runHeartbeat() {
	now := time.Now()
	if now.Sub(c.lastAlivenessSend) >= c.props.AlivenessTestDelay {
		elapsed := float64(now.Sub(c.lastAlivenessSend).Milliseconds())
		ping := session.PingMS(elapsed, c.prevDelayMS)
		budget := session.AdvertisedBudgetMS(float64(c.props.AlivenessTestDelay.Milliseconds()), ping)
		c.prevDelayMS = budget

		p := codec.NewPacket(session.Aliveness)
		_ = p.AddUint32(alivenessFixedPoint(budget))
		if err := c.sendControl(p); err != nil {
			c.Disconnect(true)
			return
		}
		c.lastAlivenessSend = now
	}

	if c.timeoutBudgetMS > 0 && now.Sub(c.lastAlivenessRecv).Milliseconds() > int64(c.timeoutBudgetMS) {
		c.log.Info().Msg("client heartbeat timeout")
		c.Disconnect(true)
	}
}
