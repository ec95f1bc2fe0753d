// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Command transit-relay runs the magic-wormhole transit relay: a
// rendezvous service that pairs two inbound connections sharing an opaque
// token and splices them into a bidirectional byte pipe.
package main

import (
	"context"
	"flag"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	line_conn "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/line-conn"
	relay_log "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/relay-log"
	"github.com/magic-wormhole/magic-wormhole-transit-relay/internal/rlimit"
	stats_wire "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/stats-wire"
	transit_core "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/transit-core"
	usage_tracker "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/usage-tracker"
	ws_conn "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/ws-conn"
)

func main() {
	listen := flag.String("listen", ":4001", "TCP endpoint to accept line-protocol relay connections on")
	wsListen := flag.String("websocket", "", "optional host:port to accept WebSocket relay connections on")
	wsURL := flag.String("websocket-url", "", "advertised URL for the websocket listener, informational only")
	statsSocket := flag.String("stats-socket", "", "optional unix-domain socket path for the debug stats endpoint")
	blurUsage := flag.Int("blur-usage", 0, "coarsen recorded timestamps/byte counts to a window of this many seconds; 0 disables")
	usageLog := flag.String("usage-log", "", "path to a JSON-lines usage log file, '-' for stdout; empty disables")
	usageDB := flag.String("usage-db", "", "path to a sqlite usage database; empty disables")
	statsInterval := flag.Duration("stats-interval", 5*time.Minute, "how often to push a stats snapshot to the usage tracker")
	flag.Parse()

	log := relay_log.Init()

	rlimit.Increase(log)

	tracker := usage_tracker.New(time.Duration(*blurUsage)*time.Second, log.With("component", "usage-tracker"))
	if *usageLog != "" {
		w, err := openUsageLog(*usageLog)
		if err != nil {
			log.Error("unable to open usage log", "path", *usageLog, "error", err)
			os.Exit(1)
		}
		tracker.AddSink(usage_tracker.NewLogSink(w))
	}
	if *usageDB != "" {
		sink, err := usage_tracker.OpenDBSink(*usageDB)
		if err != nil {
			log.Error("unable to open usage database", "path", *usageDB, "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		tracker.AddSink(sink)
	}

	core := transit_core.New(tracker, log.With("component", "transit-core"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go core.RunStatsLoop(ctx, *statsInterval)

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		log.Error("unable to listen", "addr", *listen, "error", err)
		os.Exit(1)
	}
	log.Info("listening for line-protocol relay connections", "addr", ln.Addr())
	go func() {
		if err := line_conn.Serve(ctx, core, ln, log.With("component", "line-conn")); err != nil {
			log.Error("line listener stopped", "error", err)
		}
	}()

	if *wsListen != "" {
		wln, err := net.Listen("tcp", *wsListen)
		if err != nil {
			log.Error("unable to listen for websocket", "addr", *wsListen, "error", err)
			os.Exit(1)
		}
		log.Info("listening for websocket relay connections", "addr", wln.Addr(), "advertised-url", *wsURL)
		go func() {
			if err := ws_conn.Serve(ctx, core, wln, log.With("component", "ws-conn")); err != nil {
				log.Error("websocket listener stopped", "error", err)
			}
		}()
	}

	if *statsSocket != "" {
		_ = os.Remove(*statsSocket)
		sln, err := net.Listen("unix", *statsSocket)
		if err != nil {
			log.Error("unable to listen for stats socket", "addr", *statsSocket, "error", err)
			os.Exit(1)
		}
		log.Info("listening for debug stats requests", "addr", *statsSocket)
		go func() {
			if err := stats_wire.Serve(ctx, core, sln, log.With("component", "stats-wire")); err != nil {
				log.Error("stats listener stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")
}

func openUsageLog(path string) (io.Writer, error) {
	if path == "-" {
		return os.Stdout, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}
