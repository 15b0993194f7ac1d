// Command crosssock-client connects to a CrossSock server, sends a
// "message" frame once per second while ready, and logs every reply.
//
// This mirrors the reference CrossSockClientDemo: lifecycle callbacks wired
// up before Connect, plus a single data handler installed once the server
// has sent the "message" dataID, driven by a plain Update() loop.
package main

import (
	"flag"
	"time"

	"github.com/go-crosssock/crosssock/internal/client"
	"github.com/go-crosssock/crosssock/internal/codec"
	"github.com/go-crosssock/crosssock/internal/config"
	"github.com/go-crosssock/crosssock/internal/logging"
	"github.com/go-crosssock/crosssock/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to a client TOML config (optional)")
	addr := flag.String("addr", "127.0.0.1:7425", "server address")
	flag.Parse()

	log := logging.ConfigureRuntime("crosssock-client")

	props := session.DefaultClientProperties()
	connectAddr := *addr
	if *configPath != "" {
		cf, err := config.LoadClient(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load client config")
		}
		props = cf.Props
		if cf.Addr != "" {
			connectAddr = cf.Addr
		}
	}

	cli := client.New(props, log)

	cli.SetCallbacks(client.Callbacks{
		OnConnect: func() { log.Info().Uint32("id", cli.ClientID()).Msg("connected to server") },
		OnReady:   func() { log.Info().Msg("ready to transmit") },
		OnDisconnect: func(willReconnect bool) {
			log.Warn().Bool("willReconnect", willReconnect).Msg("disconnected from server")
		},
		OnAttemptReconnect: func() { log.Info().Msg("attempting to reconnect") },
		OnReconnect:        func() { log.Info().Msg("reconnected, re-initializing") },
		OnReconnectFailed:  func() { log.Warn().Msg("reconnect failed, requesting new identity") },
		OnTransmitError: func(dataID uint16, method session.Method, err error) {
			log.Warn().Uint16("dataID", dataID).Str("method", method.String()).Err(err).Msg("transmit error")
		},
	})

	cli.Connect(connectAddr)

	handlerInstalled := false
	last := time.Now()
	for {
		cli.Update()

		if !handlerInstalled {
			if id, ok := cli.IDOf("message"); ok {
				cli.RegisterHandler(id, func(pack session.PacketView, method session.Method, peerID uint32) {
					text := pack.RemoveString()
					n := pack.RemoveUint32()
					log.Info().Str("via", method.String()).Uint32("n", n).Str("text", text).Msg("received message")
				})
				handlerInstalled = true
			}
		}

		if cli.State() == client.Connected && time.Since(last) >= time.Second {
			last = time.Now()
			if id, ok := cli.IDOf("message"); ok {
				out := codec.NewPacket(id)
				_ = out.AddString("hello")
				if _, err := cli.Send(out); err != nil {
					log.Warn().Err(err).Msg("send failed")
				}
			}
		}

		time.Sleep(5 * time.Millisecond)
	}
}
