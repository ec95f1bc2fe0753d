// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package transit_core

// pendingEntry is one candidate waiting for a partner under a given token.
type pendingEntry struct {
	side Side
	conn *ConnectionState
}

// PendingRequests is the token -> waiting-candidate-set matchmaking index.
// Callers must already hold the owning TransitCore's dispatch lock; this
// type has no locking of its own.
type PendingRequests struct {
	active   *ActiveConnections
	requests map[Token][]pendingEntry
}

func NewPendingRequests(active *ActiveConnections) *PendingRequests {
	return &PendingRequests{active: active, requests: make(map[Token][]pendingEntry)}
}

// sidesMatch reports whether two candidates are allowed to pair: either
// side is unset, or the two sides differ.
func sidesMatch(a, b Side) bool {
	return a == "" || b == "" || a != b
}

// Register records conn's interest in token/side. If a waiting candidate
// matches, the two are paired (any other waiting candidates for the same
// token are evicted as redundant) and Register reports false (conn was not
// the first arrival). Otherwise conn is queued and Register reports true.
func (p *PendingRequests) Register(token Token, side Side, conn *ConnectionState) bool {
	candidates := p.requests[token]
	for i, c := range candidates {
		if !sidesMatch(c.side, side) {
			continue
		}
		matched := c.conn
		leftover := append(append([]pendingEntry{}, candidates[:i]...), candidates[i+1:]...)
		delete(p.requests, token)
		for _, spare := range leftover {
			spare.conn.handlePartnerConnectionLost()
		}
		p.active.Register(conn, matched)
		conn.handleGotPartner(matched)
		matched.handleGotPartner(conn)
		return false
	}
	p.requests[token] = append(candidates, pendingEntry{side: side, conn: conn})
	return true
}

// Unregister removes conn from the waiting set for token/side. Safe to
// call even if conn was already paired and removed (no-op in that case).
func (p *PendingRequests) Unregister(token Token, side Side, conn *ConnectionState) {
	candidates := p.requests[token]
	for i, c := range candidates {
		if c.side == side && c.conn == conn {
			candidates = append(candidates[:i], candidates[i+1:]...)
			break
		}
	}
	if len(candidates) == 0 {
		delete(p.requests, token)
	} else {
		p.requests[token] = candidates
	}
}

// WaitingCount returns the number of distinct tokens with at least one
// pending candidate, for stats snapshots.
func (p *PendingRequests) WaitingCount() int {
	return len(p.requests)
}
