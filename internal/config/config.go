// Package config loads client and server properties from TOML files,
// overlaying only the keys present in the file onto the built-in defaults,
// following the teacher's miragectl/ghostctl decode-then-overlay convention.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/go-crosssock/crosssock/internal/backoff"
	"github.com/go-crosssock/crosssock/internal/session"
)

type backoffFile struct {
	BaseDelayMS int64   `toml:"base_delay_ms"`
	Multiplier  float64 `toml:"multiplier"`
	MaxDelayMS  int64   `toml:"max_delay_ms"`
	Jitter      float64 `toml:"jitter"`
}

type clientFile struct {
	Addr                     string      `toml:"addr"`
	AllowUDPPackets          bool        `toml:"allow_udp_packets"`
	MaxUDPTransmitsPerUpdate int         `toml:"max_udp_transmits_per_update"`
	MaxTCPTransmitsPerUpdate int         `toml:"max_tcp_transmits_per_update"`
	ShouldAttemptReconnect   bool        `toml:"should_attempt_reconnect"`
	MaxConnectionAttempts    int         `toml:"max_connection_attempts"`
	MaxReconnectionAttempts  int         `toml:"max_reconnection_attempts"`
	ConnectionDelayMS        int64       `toml:"connection_delay_ms"`
	AlivenessTestDelayMS     int64       `toml:"aliveness_test_delay_ms"`
	Backoff                  backoffFile `toml:"backoff"`
}

// ClientFile is the decoded result of a client TOML document: the connect
// address (which has no counterpart in session.ClientProperties) alongside
// the overlaid properties.
type ClientFile struct {
	Addr  string
	Props session.ClientProperties
}

// LoadClient decodes path and overlays any keys it defines onto
// session.DefaultClientProperties().
func LoadClient(path string) (ClientFile, error) {
	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ClientFile{}, fmt.Errorf("load client config: %w", err)
	}

	out := ClientFile{Addr: strings.TrimSpace(raw.Addr), Props: session.DefaultClientProperties()}
	if meta.IsDefined("allow_udp_packets") {
		out.Props.AllowUDPPackets = raw.AllowUDPPackets
	}
	if meta.IsDefined("max_udp_transmits_per_update") {
		out.Props.MaxUDPTransmitsPerUpdate = raw.MaxUDPTransmitsPerUpdate
	}
	if meta.IsDefined("max_tcp_transmits_per_update") {
		out.Props.MaxTCPTransmitsPerUpdate = raw.MaxTCPTransmitsPerUpdate
	}
	if meta.IsDefined("should_attempt_reconnect") {
		out.Props.ShouldAttemptReconnect = raw.ShouldAttemptReconnect
	}
	if meta.IsDefined("max_connection_attempts") {
		out.Props.MaxConnectionAttempts = raw.MaxConnectionAttempts
	}
	if meta.IsDefined("max_reconnection_attempts") {
		out.Props.MaxReconnectionAttempts = raw.MaxReconnectionAttempts
	}
	if meta.IsDefined("connection_delay_ms") {
		out.Props.ConnectionDelay = time.Duration(raw.ConnectionDelayMS) * time.Millisecond
	}
	if meta.IsDefined("aliveness_test_delay_ms") {
		out.Props.AlivenessTestDelay = time.Duration(raw.AlivenessTestDelayMS) * time.Millisecond
	}
	if meta.IsDefined("backoff") {
		out.Props.Backoff = backoff.Config{
			BaseDelay:  time.Duration(raw.Backoff.BaseDelayMS) * time.Millisecond,
			Multiplier: raw.Backoff.Multiplier,
			MaxDelay:   time.Duration(raw.Backoff.MaxDelayMS) * time.Millisecond,
			Jitter:     raw.Backoff.Jitter,
		}
	}

	if err := out.Props.Validate(); err != nil {
		return ClientFile{}, fmt.Errorf("load client config: %w", err)
	}
	return out, nil
}

type serverFile struct {
	Port                              int      `toml:"port"`
	AllowUDPPackets                   bool     `toml:"allow_udp_packets"`
	MaxUDPTransmitsPerUpdate          int      `toml:"max_udp_transmits_per_update"`
	MaxTCPTransmitsPerUpdate          int      `toml:"max_tcp_transmits_per_update"`
	NewConnectionBacklog              int      `toml:"new_connection_backlog"`
	UseBlacklist                      bool     `toml:"use_blacklist"`
	UseWhitelist                      bool     `toml:"use_whitelist"`
	AlivenessTestDelayMS              int64    `toml:"aliveness_test_delay_ms"`
	ShouldFlushDisconnectedClientData bool     `toml:"should_flush_disconnected_client_data"`
	DisconnectedClientFlushDelayMS    int64    `toml:"disconnected_client_flush_delay_ms"`
	AdminListenAddr                   string   `toml:"admin_listen_addr"`
	Denylist                          []string `toml:"denylist"`
	Allowlist                         []string `toml:"allowlist"`
}

// ServerFile is the decoded result of a server TOML document: the
// process-level knobs (listen port, admin address, static policy lists)
// that have no counterpart in session.ServerProperties, alongside the
// overlaid properties.
type ServerFile struct {
	Port            int
	AdminListenAddr string
	Denylist        []string
	Allowlist       []string
	Props           session.ServerProperties
}

// LoadServer decodes path and overlays any keys it defines onto
// session.DefaultServerProperties().
func LoadServer(path string) (ServerFile, error) {
	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return ServerFile{}, fmt.Errorf("load server config: %w", err)
	}

	out := ServerFile{
		Port:            raw.Port,
		AdminListenAddr: strings.TrimSpace(raw.AdminListenAddr),
		Denylist:        raw.Denylist,
		Allowlist:       raw.Allowlist,
		Props:           session.DefaultServerProperties(),
	}
	if meta.IsDefined("allow_udp_packets") {
		out.Props.AllowUDPPackets = raw.AllowUDPPackets
	}
	if meta.IsDefined("max_udp_transmits_per_update") {
		out.Props.MaxUDPTransmitsPerUpdate = raw.MaxUDPTransmitsPerUpdate
	}
	if meta.IsDefined("max_tcp_transmits_per_update") {
		out.Props.MaxTCPTransmitsPerUpdate = raw.MaxTCPTransmitsPerUpdate
	}
	if meta.IsDefined("new_connection_backlog") {
		out.Props.NewConnectionBacklog = raw.NewConnectionBacklog
	}
	if meta.IsDefined("use_blacklist") {
		out.Props.UseBlacklist = raw.UseBlacklist
	}
	if meta.IsDefined("use_whitelist") {
		out.Props.UseWhitelist = raw.UseWhitelist
	}
	if meta.IsDefined("aliveness_test_delay_ms") {
		out.Props.AlivenessTestDelay = time.Duration(raw.AlivenessTestDelayMS) * time.Millisecond
	}
	if meta.IsDefined("should_flush_disconnected_client_data") {
		out.Props.ShouldFlushDisconnectedClientData = raw.ShouldFlushDisconnectedClientData
	}
	if meta.IsDefined("disconnected_client_flush_delay_ms") {
		out.Props.DisconnectedClientFlushDelay = time.Duration(raw.DisconnectedClientFlushDelayMS) * time.Millisecond
	}

	if err := out.Props.Validate(); err != nil {
		return ServerFile{}, fmt.Errorf("load server config: %w", err)
	}
	return out, nil
}

// WriteTemplate writes a starter TOML document for kind ("client" or
// "server") to path, refusing to overwrite an existing file unless
// overwrite is set.
func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

// Template returns the starter TOML document for kind.
func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		return clientTemplate, nil
	case "server":
		return serverTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

const clientTemplate = `addr = "127.0.0.1:7777"
allow_udp_packets = true
max_udp_transmits_per_update = 256
max_tcp_transmits_per_update = 4
should_attempt_reconnect = true
max_connection_attempts = 50
max_reconnection_attempts = 100
connection_delay_ms = 200
aliveness_test_delay_ms = 1000

[backoff]
base_delay_ms = 250
multiplier = 2.0
max_delay_ms = 8000
jitter = 0.2
`

const serverTemplate = `port = 7777
admin_listen_addr = ":9090"
allow_udp_packets = true
max_udp_transmits_per_update = 256
max_tcp_transmits_per_update = 4
new_connection_backlog = 32
use_blacklist = true
use_whitelist = false
aliveness_test_delay_ms = 1000
should_flush_disconnected_client_data = true
disconnected_client_flush_delay_ms = 30000
denylist = []
allowlist = []
`
