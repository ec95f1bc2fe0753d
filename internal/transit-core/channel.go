// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package transit_core

import "time"

// ClientChannel is the capability set a connected peer exposes to its
// ConnectionState. Adapters (line_conn, ws_conn) implement this; the FSM
// never touches a net.Conn or websocket.Conn directly.
type ClientChannel interface {
	// Send queues data for delivery to the peer. Never blocks the caller;
	// backpressure is handled internally by the adapter.
	Send(data []byte)

	// Disconnect closes this channel. Idempotent.
	Disconnect()

	// ConnectPartner wires this channel as a producer for other's
	// consumer side, so other can pause/resume this channel's reads when
	// its own outbound buffer backs up.
	ConnectPartner(other ClientChannel)

	// DisconnectPartner closes the channel registered via ConnectPartner.
	// Idempotent.
	DisconnectPartner()

	// StartedAt is the time this channel's connection was established,
	// used for usage accounting.
	StartedAt() time.Time
}

// BackpressureProducer is implemented by adapters whose reads can be
// paused and resumed by a downstream consumer. Optional: the FSM never
// calls it; only ConnectPartner wiring between adapters does.
type BackpressureProducer interface {
	Pause()
	Resume()
}

// BackpressureRegistrar is implemented by adapters that accept a producer
// registration, letting two different adapter implementations (TCP, WS)
// pair with each other and still get working backpressure.
type BackpressureRegistrar interface {
	RegisterProducer(BackpressureProducer)
}
