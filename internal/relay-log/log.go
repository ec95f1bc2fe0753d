// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package relay_log is the relay's ambient structured-logging setup: a
// lazily initialized global slog.Logger backed by a JSON handler, with a
// runtime-adjustable atomic level resolved from a -log.level flag or the
// TRANSIT_LOG_LEVEL env var.
package relay_log

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

const envLogLevel = "TRANSIT_LOG_LEVEL"

var (
	flagLevel = flag.String("log.level", "", "log level (debug, info, warn, error)")

	atomicLevel = newDynamicLevel()
	initOnce    sync.Once
	global      *slog.Logger
)

type dynamicLevel struct {
	v int64
}

func newDynamicLevel() *dynamicLevel { return &dynamicLevel{v: int64(slog.LevelInfo)} }

func (d *dynamicLevel) Level() slog.Level { return slog.Level(atomic.LoadInt64(&d.v)) }

func (d *dynamicLevel) set(l slog.Level) { atomic.StoreInt64(&d.v, int64(l)) }

// Init initializes the global logger. Safe to call more than once; only
// the first call constructs the handler.
func Init() *slog.Logger {
	initOnce.Do(func() {
		atomicLevel.set(detectLevel())
		global = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: atomicLevel,
		}))
	})
	return global
}

func detectLevel() slog.Level {
	if *flagLevel != "" {
		if lvl, ok := parseLevel(*flagLevel); ok {
			return lvl
		}
	}
	if env := os.Getenv(envLogLevel); env != "" {
		if lvl, ok := parseLevel(env); ok {
			return lvl
		}
	}
	return slog.LevelInfo
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error", "err":
		return slog.LevelError, true
	}
	return 0, false
}

// SetLevel changes the runtime log level, e.g. in response to a signal or
// an admin endpoint.
func SetLevel(level string) error {
	Init()
	lvl, ok := parseLevel(level)
	if !ok {
		return fmt.Errorf("relay_log: invalid log level %q", level)
	}
	atomicLevel.set(lvl)
	return nil
}
