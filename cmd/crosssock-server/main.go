// Command crosssock-server runs a standalone CrossSock server: it accepts
// client sessions, echoes every "message" frame back with an incrementing
// counter, and serves an admin HTTP surface alongside the session loop.
//
// This mirrors the reference CrossSockServerDemo: a single data handler
// wired up before Start, driven by a plain Update() loop.
package main

import (
	"flag"
	"time"

	"github.com/go-crosssock/crosssock/internal/admin"
	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/config"
	"github.com/go-crosssock/crosssock/internal/logging"
	"github.com/go-crosssock/crosssock/internal/server"
	"github.com/go-crosssock/crosssock/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to a server TOML config (optional)")
	port := flag.Int("port", 7425, "TCP/UDP listen port")
	adminAddr := flag.String("admin", ":9090", "admin HTTP listen address")
	flag.Parse()

	log := logging.ConfigureRuntime("crosssock-server")

	props := session.DefaultServerProperties()
	listenPort := *port
	var denylist, allowlist []string
	if *configPath != "" {
		sf, err := config.LoadServer(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load server config")
		}
		props = sf.Props
		if sf.Port != 0 {
			listenPort = sf.Port
		}
		denylist, allowlist = sf.Denylist, sf.Allowlist
	}

	srv := server.New(props, log)
	for _, addr := range denylist {
		srv.Deny(addr)
	}
	for _, addr := range allowlist {
		srv.Allow(addr)
	}
	msgID := srv.RegisterName("message")

	var messageCounter uint32
	srv.RegisterHandler(msgID, func(pack session.PacketView, method session.Method, peerID uint32) {
		text := pack.RemoveString()
		messageCounter++
		entry, ok := srv.Peer(peerID)
		if !ok {
			return
		}
		reply := codec.NewPacket(msgID)
		_ = reply.AddString(text)
		_ = reply.AddUint32(messageCounter)
		if _, err := srv.SendToClient(reply, entry); err != nil {
			log.Warn().Err(err).Uint32("peer", peerID).Msg("failed to reply to message")
		}
	})

	srv.SetCallbacks(server.Callbacks{
		OnBind: func() { log.Info().Int("port", listenPort).Msg("server bound") },
		OnClientConnected: func(e *server.ClientEntry) {
			log.Info().Uint32("id", e.ID).Str("addr", e.RemoteAddr).Msg("client connected")
			admin.RecordConnect("crosssock-server")
		},
		OnClientReady: func(e *server.ClientEntry) {
			log.Info().Uint32("id", e.ID).Msg("client ready")
		},
		OnClientDisconnected: func(e *server.ClientEntry) {
			log.Info().Uint32("id", e.ID).Msg("client disconnected")
			admin.RecordDisconnect("crosssock-server")
		},
		OnClientReconnected: func(e *server.ClientEntry) {
			log.Info().Uint32("id", e.ID).Msg("client reconnected")
			admin.RecordReconnect("crosssock-server")
		},
		OnReject: func(addr string) {
			log.Warn().Str("addr", addr).Msg("connection rejected by policy")
			admin.RecordReject("crosssock-server", "policy")
		},
		OnTransmitError: func(dataID uint16, e *server.ClientEntry, method session.Method, err error) {
			log.Warn().Uint16("dataID", dataID).Str("method", method.String()).Err(err).Msg("transmit error")
		},
		OnFrameDispatched: func(dataID uint16, method session.Method, d time.Duration) {
			admin.RecordFrameDispatch("crosssock-server", method.String(), d)
		},
	})

	srv.Start(listenPort)

	adminSurface := admin.New("crosssock-server", srv, log, nil)
	go func() {
		if err := adminSurface.Run(*adminAddr); err != nil {
			log.Error().Err(err).Msg("admin surface exited")
		}
	}()

	log.Info().Int("port", listenPort).Str("admin", *adminAddr).Msg("starting crosssock-server")
	for {
		srv.Update()
		admin.SetPeerCount("crosssock-server", srv.PeerCount())
		time.Sleep(5 * time.Millisecond)
	}
}
