package session

import (
	"fmt"
	"time"

	"github.com/go-crosssock/crosssock/internal/backoff"
)

// ClientProperties mirrors the client-side configuration table in the
// session protocol's external interface: tunable limits on transmit
// fan-out per tick, reconnection policy, and heartbeat cadence.
type ClientProperties struct {
	AllowUDPPackets          bool          `toml:"allow_udp_packets"`
	MaxUDPTransmitsPerUpdate int           `toml:"max_udp_transmits_per_update"`
	MaxTCPTransmitsPerUpdate int           `toml:"max_tcp_transmits_per_update"`
	ShouldAttemptReconnect   bool          `toml:"should_attempt_reconnect"`
	MaxConnectionAttempts    int           `toml:"max_connection_attempts"`
	MaxReconnectionAttempts  int           `toml:"max_reconnection_attempts"`
	ConnectionDelay          time.Duration `toml:"connection_delay"`
	AlivenessTestDelay       time.Duration `toml:"aliveness_test_delay"`
	Backoff                  backoff.Config `toml:"backoff"`
}

// DefaultClientProperties returns the spec's documented client defaults.
func DefaultClientProperties() ClientProperties {
	return ClientProperties{
		AllowUDPPackets:          true,
		MaxUDPTransmitsPerUpdate: 256,
		MaxTCPTransmitsPerUpdate: 4,
		ShouldAttemptReconnect:   true,
		MaxConnectionAttempts:    50,
		MaxReconnectionAttempts:  100,
		ConnectionDelay:          200 * time.Millisecond,
		AlivenessTestDelay:       1000 * time.Millisecond,
	}
}

// Validate rejects configuration combinations that make the protocol's
// timing math meaningless.
func (c ClientProperties) Validate() error {
	if c.AlivenessTestDelay <= 0 {
		return errInvalidDuration("aliveness_test_delay")
	}
	if c.ConnectionDelay < 0 {
		return fmt.Errorf("session: connection_delay must not be negative")
	}
	if c.MaxConnectionAttempts <= 0 {
		return errInvalidCount("max_connection_attempts")
	}
	if c.MaxReconnectionAttempts <= 0 {
		return errInvalidCount("max_reconnection_attempts")
	}
	return nil
}

// ServerProperties mirrors the server-side configuration table: as client
// where applicable, plus accept backlog and policy/retention knobs.
type ServerProperties struct {
	AllowUDPPackets                  bool          `toml:"allow_udp_packets"`
	MaxUDPTransmitsPerUpdate         int           `toml:"max_udp_transmits_per_update"`
	MaxTCPTransmitsPerUpdate         int           `toml:"max_tcp_transmits_per_update"`
	NewConnectionBacklog             int           `toml:"new_connection_backlog"`
	UseBlacklist                     bool          `toml:"use_blacklist"`
	UseWhitelist                     bool          `toml:"use_whitelist"`
	AlivenessTestDelay                time.Duration `toml:"aliveness_test_delay"`
	ShouldFlushDisconnectedClientData bool          `toml:"should_flush_disconnected_client_data"`
	DisconnectedClientFlushDelay      time.Duration `toml:"disconnected_client_flush_delay"`
}

// DefaultServerProperties returns the spec's documented server defaults.
func DefaultServerProperties() ServerProperties {
	return ServerProperties{
		AllowUDPPackets:                   true,
		MaxUDPTransmitsPerUpdate:          256,
		MaxTCPTransmitsPerUpdate:          4,
		NewConnectionBacklog:              32,
		UseBlacklist:                      true,
		UseWhitelist:                      false,
		AlivenessTestDelay:                1000 * time.Millisecond,
		ShouldFlushDisconnectedClientData: true,
		DisconnectedClientFlushDelay:      time.Duration(MaxTimeoutMS) * time.Millisecond,
	}
}

// Validate rejects configuration combinations that make the protocol's
// timing or policy math meaningless.
func (s ServerProperties) Validate() error {
	if s.AlivenessTestDelay <= 0 {
		return errInvalidDuration("aliveness_test_delay")
	}
	if s.NewConnectionBacklog <= 0 {
		return errInvalidCount("new_connection_backlog")
	}
	if s.UseBlacklist && s.UseWhitelist {
		return errConflictingPolicy
	}
	return nil
}
