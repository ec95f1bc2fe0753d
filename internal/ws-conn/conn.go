// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package ws_conn adapts a gorilla/websocket connection into the
// transit_core.ClientChannel contract, using one binary WebSocket message
// per logical send — the handshake arrives as the first binary message,
// every message after it is relayed raw.
package ws_conn

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/magic-wormhole/magic-wormhole-transit-relay/internal/backpressure"
	transit_core "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/transit-core"
)

const highWaterMark = 10 * 1024 * 1024

// Conn implements transit_core.ClientChannel over a *websocket.Conn.
type Conn struct {
	ws        *websocket.Conn
	startedAt time.Time
	state     *transit_core.ConnectionState

	readGate *backpressure.Gate

	writeMu   sync.Mutex
	writeCond *sync.Cond
	outbox    [][]byte
	queued    int
	closed    bool
	closeOnce sync.Once

	mu       sync.Mutex
	partner  transit_core.ClientChannel
	producer transit_core.BackpressureProducer
}

// New wraps ws, registers it with core, and starts its read/write
// goroutines.
func New(core *transit_core.TransitCore, ws *websocket.Conn) *Conn {
	c := &Conn{
		ws:        ws,
		startedAt: time.Now(),
		readGate:  backpressure.New(),
	}
	c.writeCond = sync.NewCond(&c.writeMu)
	c.state = core.NewConnection(c)
	go c.writeLoop()
	go c.readLoop()
	return c
}

func (c *Conn) StartedAt() time.Time { return c.startedAt }

func (c *Conn) Send(data []byte) {
	c.writeMu.Lock()
	if c.closed {
		c.writeMu.Unlock()
		return
	}
	c.outbox = append(c.outbox, data)
	c.queued += len(data)
	over := c.queued >= highWaterMark
	c.writeCond.Signal()
	c.writeMu.Unlock()

	if over {
		c.mu.Lock()
		p := c.producer
		c.mu.Unlock()
		if p != nil {
			p.Pause()
		}
	}
}

func (c *Conn) writeLoop() {
	c.writeMu.Lock()
	for {
		for len(c.outbox) == 0 && !c.closed {
			c.writeCond.Wait()
		}
		if c.closed && len(c.outbox) == 0 {
			c.writeMu.Unlock()
			return
		}
		batch := c.outbox
		c.outbox = nil
		c.queued = 0
		c.writeMu.Unlock()

		var writeErr error
		for _, b := range batch {
			if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
				writeErr = err
				break
			}
		}

		c.mu.Lock()
		p := c.producer
		c.mu.Unlock()
		if p != nil {
			p.Resume()
		}

		if writeErr != nil {
			c.Disconnect()
			return
		}
		c.writeMu.Lock()
	}
}

func (c *Conn) Disconnect() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		c.writeCond.Signal()
		c.writeMu.Unlock()
		_ = c.ws.Close()
		c.readGate.Resume()
	})
}

func (c *Conn) ConnectPartner(other transit_core.ClientChannel) {
	c.mu.Lock()
	c.partner = other
	c.mu.Unlock()

	if reg, ok := other.(transit_core.BackpressureRegistrar); ok {
		reg.RegisterProducer(c)
	}
}

func (c *Conn) DisconnectPartner() {
	c.mu.Lock()
	p := c.partner
	c.partner = nil
	c.mu.Unlock()
	if p != nil {
		p.Disconnect()
	}
}

func (c *Conn) RegisterProducer(p transit_core.BackpressureProducer) {
	c.mu.Lock()
	c.producer = p
	c.mu.Unlock()
}

func (c *Conn) Pause()  { c.readGate.Pause() }
func (c *Conn) Resume() { c.readGate.Resume() }

func (c *Conn) readLoop() {
	defer c.state.ConnectionLost()

	first := true
	for {
		c.readGate.Wait()
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage {
			c.state.BadToken()
			return
		}

		if first {
			first = false
			ph, err := transit_core.ParseHandshake(data)
			if err != nil {
				c.state.BadToken()
				return
			}
			if ph.Side == "" {
				c.state.PleaseRelay(ph.Token)
			} else {
				c.state.PleaseRelayForSide(ph.Token, ph.Side)
			}
			continue
		}

		cp := make([]byte, len(data))
		copy(cp, data)
		c.state.GotBytes(cp)
	}
}
