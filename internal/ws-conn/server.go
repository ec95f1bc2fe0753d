// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package ws_conn

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gorilla/websocket"

	transit_core "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/transit-core"
)

// Subprotocol is the WebSocket subprotocol label clients negotiate for the
// message-framed form of the relay.
const Subprotocol = "transit_relay"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
	Subprotocols:    []string{Subprotocol},
}

// Handler returns an http.Handler that upgrades every request to a
// WebSocket and wraps it with New.
func Handler(core *transit_core.TransitCore, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", "error", err)
			return
		}
		log.Debug("accepted websocket connection", "remote", r.RemoteAddr)
		New(core, ws)
	})
}

// Serve runs an HTTP server bound to ln, upgrading every request to a
// WebSocket relay connection, until ctx is cancelled.
func Serve(ctx context.Context, core *transit_core.TransitCore, ln net.Listener, log *slog.Logger) error {
	srv := &http.Server{Handler: Handler(core, log)}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	err := srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
