// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package transit_core

import (
	"testing"
	"time"
)

func TestPendingRequestsWaitingCountTracksDistinctTokens(t *testing.T) {
	core, _ := testCore(t)

	a := core.NewConnection(newFakeChannel(time.Now()))
	a.PleaseRelayForSide(Token(tokenA), Side(sideA))
	if got := core.pending.WaitingCount(); got != 1 {
		t.Fatalf("expected 1 waiting token, got %d", got)
	}

	const tokenB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	b := core.NewConnection(newFakeChannel(time.Now()))
	b.PleaseRelayForSide(Token(tokenB), Side(sideB))
	if got := core.pending.WaitingCount(); got != 2 {
		t.Fatalf("expected 2 waiting tokens, got %d", got)
	}

	// a disconnects before pairing: its token entry is fully removed.
	a.ConnectionLost()
	if got := core.pending.WaitingCount(); got != 1 {
		t.Fatalf("expected 1 waiting token after a left, got %d", got)
	}
}

func TestPendingRequestsUnregisterIsNoOpForUnknownEntry(t *testing.T) {
	active := NewActiveConnections()
	p := NewPendingRequests(active)
	// Unregistering a token never registered must not panic and must leave
	// the map untouched.
	core, _ := testCore(t)
	phantom := core.NewConnection(newFakeChannel(time.Now()))
	p.Unregister(Token(tokenA), Side(sideA), phantom)
	if got := p.WaitingCount(); got != 0 {
		t.Fatalf("expected 0 waiting tokens, got %d", got)
	}
}
