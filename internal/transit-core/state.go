// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package transit_core

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type state int

const (
	stateListening state = iota
	stateWaitRelay
	stateWaitPartner
	stateRelaying
	stateDone
)

func (s state) String() string {
	switch s {
	case stateListening:
		return "listening"
	case stateWaitRelay:
		return "wait_relay"
	case stateWaitPartner:
		return "wait_partner"
	case stateRelaying:
		return "relaying"
	case stateDone:
		return "done"
	default:
		return "unknown"
	}
}

// ConnectionState is the per-connection protocol state machine:
// LISTENING -> WAIT_RELAY -> WAIT_PARTNER -> RELAYING -> DONE.
// Every exported method acquires the owning TransitCore's dispatch lock
// before touching any shared state, so all transitions across all
// connections are serialized on a single lock.
type ConnectionState struct {
	id   string
	core *TransitCore
	log  *slog.Logger

	state state

	channel ClientChannel
	partner *ConnectionState

	token Token
	side  Side

	firstArrival bool
	mood         Mood
	bytesRelayed uint64
	startedAt    time.Time
}

func newConnectionState(core *TransitCore) *ConnectionState {
	id := uuid.NewString()
	return &ConnectionState{
		id:    id,
		core:  core,
		log:   core.log.With("conn", id),
		state: stateListening,
		mood:  MoodEmpty,
	}
}

// ID is an opaque per-connection identifier, used only for log
// correlation — never the token or side.
func (c *ConnectionState) ID() string { return c.id }

// -- exported entry points: each is one FSM input, and acquires core.mu --

func (c *ConnectionState) ConnectionMade(ch ClientChannel) {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()
	c.handleConnectionMade(ch)
}

func (c *ConnectionState) PleaseRelay(token Token) {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()
	c.handlePleaseRelay(token)
}

func (c *ConnectionState) PleaseRelayForSide(token Token, side Side) {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()
	c.handlePleaseRelayForSide(token, side)
}

func (c *ConnectionState) BadToken() {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()
	c.handleBadToken()
}

func (c *ConnectionState) GotBytes(data []byte) {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()
	c.handleGotBytes(data)
}

func (c *ConnectionState) ConnectionLost() {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()
	c.handleConnectionLost()
}

// Mood reports the connection's final (or current) mood.
func (c *ConnectionState) Mood() Mood {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()
	return c.mood
}

// -- unlocked internal transition handlers: callers must already hold core.mu --

func (c *ConnectionState) handleConnectionMade(ch ClientChannel) {
	if c.state != stateListening {
		c.programmingError("connection_made")
		return
	}
	c.channel = ch
	c.startedAt = ch.StartedAt()
	c.state = stateWaitRelay
}

func (c *ConnectionState) handlePleaseRelay(token Token) {
	if c.state != stateWaitRelay {
		c.programmingError("please_relay")
		return
	}
	c.mood = MoodLonely
	// Enter WAIT_PARTNER before registering: a match delivers got_partner
	// from inside Register, and that input is only valid in WAIT_PARTNER.
	c.state = stateWaitPartner
	c.registerPending(token, "")
}

func (c *ConnectionState) handlePleaseRelayForSide(token Token, side Side) {
	if c.state != stateWaitRelay {
		c.programmingError("please_relay_for_side")
		return
	}
	c.mood = MoodLonely
	c.state = stateWaitPartner
	c.registerPending(token, side)
}

func (c *ConnectionState) registerPending(token Token, side Side) {
	c.token = token
	c.side = side
	c.firstArrival = c.core.pending.Register(token, side, c)
}

func (c *ConnectionState) handleBadToken() {
	if c.state != stateWaitRelay {
		c.programmingError("bad_token")
		return
	}
	c.mood = MoodErrory
	c.channel.Send([]byte("bad handshake\n"))
	c.channel.Disconnect()
	c.state = stateDone
	c.recordUsage()
}

func (c *ConnectionState) handleGotBytes(data []byte) {
	switch c.state {
	case stateWaitRelay:
		c.countBytes(data)
		c.mood = MoodErrory
		c.channel.Disconnect()
		c.state = stateDone
		c.recordUsage()
	case stateWaitPartner:
		c.mood = MoodImpatient
		c.channel.Send([]byte("impatient\n"))
		c.channel.Disconnect()
		c.unregister()
		c.state = stateDone
		c.recordUsage()
	case stateRelaying:
		c.countBytes(data)
		c.partner.channel.Send(data)
	case stateDone:
		// late bytes after teardown: swallow.
	default:
		c.programmingError("got_bytes")
	}
}

func (c *ConnectionState) handleGotPartner(other *ConnectionState) {
	if c.state != stateWaitPartner {
		c.programmingError("got_partner")
		return
	}
	c.partner = other
	c.mood = MoodHappy
	c.channel.Send([]byte("ok\n"))
	c.channel.ConnectPartner(other.channel)
	c.state = stateRelaying
}

func (c *ConnectionState) handlePartnerConnectionLost() {
	switch c.state {
	case stateWaitPartner:
		c.mood = MoodRedundant
		c.channel.Disconnect()
		c.state = stateDone
		c.recordUsage()
	case stateDone:
		// already torn down.
	default:
		c.programmingError("partner_connection_lost")
	}
}

func (c *ConnectionState) handleConnectionLost() {
	switch c.state {
	case stateListening:
		c.mood = MoodErrory
		c.state = stateDone
		c.recordUsage()
	case stateWaitRelay:
		c.channel.Disconnect()
		c.state = stateDone
		c.recordUsage()
	case stateWaitPartner:
		c.mood = MoodLonely
		c.unregister()
		c.state = stateDone
		c.recordUsage()
	case stateRelaying:
		if c.firstArrival {
			c.mood = MoodHappy
		} else {
			c.mood = MoodJilted
		}
		c.channel.DisconnectPartner()
		c.unregister()
		c.state = stateDone
		c.recordUsage()
	case stateDone:
		// races between our own close and the partner's forced close both
		// land here; the second one is a no-op.
	}
}

func (c *ConnectionState) countBytes(data []byte) {
	c.bytesRelayed += uint64(len(data))
}

func (c *ConnectionState) unregister() {
	c.core.pending.Unregister(c.token, c.side, c)
	c.core.active.Unregister(c)
}

// recordUsage emits one usage record for this connection, unless it is the
// jilted half of a pairing whose partner's mood is happy — that partner
// reports the pairing (before or after this side closes), which avoids
// double-counting a single completed pairing.
func (c *ConnectionState) recordUsage() {
	if c.mood == MoodJilted && c.partner != nil && c.partner.mood == MoodHappy {
		return
	}
	var buddyStarted *time.Time
	var buddyBytes *uint64
	if c.partner != nil {
		bs := c.partner.startedAt
		bb := c.partner.bytesRelayed
		buddyStarted = &bs
		buddyBytes = &bb
	}
	c.core.usage.Record(c.startedAt, buddyStarted, c.mood, c.bytesRelayed, buddyBytes)
}

// programmingError handles an FSM input with no defined transition for the
// current state: log and terminate the offending connection rather than
// corrupt shared state.
func (c *ConnectionState) programmingError(input string) {
	c.log.Error("fsm input has no defined transition for current state",
		"input", input, "state", c.state.String())
	if c.channel != nil {
		c.channel.Disconnect()
	}
	c.state = stateDone
}
