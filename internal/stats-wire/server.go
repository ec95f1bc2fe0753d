// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package stats_wire

import (
	"context"
	"errors"
	"log/slog"
	"net"

	transit_core "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/transit-core"
)

// Serve answers debug-stats requests on ln until ctx is cancelled. Intended
// for a local unix-domain socket, separate from the client-facing relay
// protocol.
func Serve(ctx context.Context, core *transit_core.TransitCore, ln net.Listener, log *slog.Logger) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go handleConn(core, nc, log)
	}
}

func handleConn(core *transit_core.TransitCore, nc net.Conn, log *slog.Logger) {
	defer nc.Close()

	typ, _, err := ReadFrame(nc)
	if err != nil {
		return
	}
	if typ != TypeStatsRequest {
		return
	}

	payload := EncodeStatsResponse(core.SnapshotStats())
	if err := WriteFrame(nc, TypeStatsResponse, payload); err != nil {
		log.Debug("stats debug write failed", "error", err)
	}
}
