// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

//go:build !windows

// Package rlimit best-effort raises the process's open-file limit at
// startup: try a descending list of candidate values, log and continue on
// failure rather than treating it as fatal.
package rlimit

import (
	"log/slog"
	"syscall"
)

var candidates = []uint64{10000, 3200, 1024}

// Increase raises RLIMIT_NOFILE's soft limit towards the hard limit,
// falling back through candidates if the hard limit itself is rejected.
func Increase(log *slog.Logger) {
	var rl syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rl); err != nil {
		log.Warn("unable to read RLIMIT_NOFILE, leaving it alone", "error", err)
		return
	}
	if rl.Cur >= candidates[0] {
		log.Info("RLIMIT_NOFILE already sufficient, leaving it alone", "soft", rl.Cur)
		return
	}

	targets := append([]uint64{rl.Max}, candidates...)
	for _, target := range targets {
		candidate := rl
		candidate.Cur = target
		if candidate.Cur > candidate.Max {
			candidate.Cur = candidate.Max
		}
		if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &candidate); err == nil {
			log.Info("raised RLIMIT_NOFILE", "soft", candidate.Cur, "hard", candidate.Max)
			return
		}
	}
	log.Warn("unable to raise RLIMIT_NOFILE, leaving it alone")
}
