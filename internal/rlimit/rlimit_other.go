// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

//go:build windows

package rlimit

import "log/slog"

// Increase is a no-op on platforms without POSIX rlimits.
func Increase(log *slog.Logger) {
	log.Debug("rlimit tuning not available on this platform")
}
