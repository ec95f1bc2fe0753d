// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package line_conn

import (
	"context"
	"errors"
	"log/slog"
	"net"

	transit_core "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/transit-core"
)

// Serve accepts connections on ln until ctx is cancelled, wrapping each one
// with New.
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
		if tc, ok := nc.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
		}
		log.Debug("accepted line connection", "remote", nc.RemoteAddr())
		New(core, nc)
	}
}
