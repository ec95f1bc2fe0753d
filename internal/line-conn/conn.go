// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package line_conn adapts a raw net.Conn stream into the
// transit_core.ClientChannel contract, using newline-delimited framing for
// the handshake line and raw bytes after it.
//
// One goroutine reads off the net.Conn and one drains the write queue,
// with explicit teardown instead of a raw io.Copy, since the first line
// has to be parsed as a handshake before the connection can switch to
// forwarding raw bytes.
package line_conn

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/magic-wormhole/magic-wormhole-transit-relay/internal/backpressure"
	transit_core "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/transit-core"
)

const (
	maxHandshakeLine = 1024
	highWaterMark    = 10 * 1024 * 1024
	readBufSize      = 32 * 1024
)

var errHandshakeTooLong = errors.Wrap(transit_core.ErrBadHandshake, "handshake line exceeds maximum length")

// Conn implements transit_core.ClientChannel over a net.Conn.
type Conn struct {
	nc        net.Conn
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

// New wraps nc, registers it with core, and starts its read/write
// goroutines. The returned Conn has already been fed connection_made.
func New(core *transit_core.TransitCore, nc net.Conn) *Conn {
	c := &Conn{
		nc:        nc,
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

// Send implements transit_core.ClientChannel. Never blocks the caller: data
// is queued and a high-water crossing pauses whichever producer is
// registered with us, rather than blocking here under the FSM's dispatch
// lock.
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
			if _, err := c.nc.Write(b); err != nil {
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

// Disconnect implements transit_core.ClientChannel. Idempotent.
func (c *Conn) Disconnect() {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		c.writeCond.Signal()
		c.writeMu.Unlock()
		_ = c.nc.Close()
		c.readGate.Resume()
	})
}

// ConnectPartner implements transit_core.ClientChannel.
func (c *Conn) ConnectPartner(other transit_core.ClientChannel) {
	c.mu.Lock()
	c.partner = other
	c.mu.Unlock()

	if reg, ok := other.(transit_core.BackpressureRegistrar); ok {
		reg.RegisterProducer(c)
	}
}

// DisconnectPartner implements transit_core.ClientChannel.
func (c *Conn) DisconnectPartner() {
	c.mu.Lock()
	p := c.partner
	c.partner = nil
	c.mu.Unlock()
	if p != nil {
		p.Disconnect()
	}
}

// RegisterProducer implements transit_core.BackpressureRegistrar: other is
// paused/resumed whenever our own outbox backs up.
func (c *Conn) RegisterProducer(p transit_core.BackpressureProducer) {
	c.mu.Lock()
	c.producer = p
	c.mu.Unlock()
}

// Pause and Resume implement transit_core.BackpressureProducer, gating our
// own read loop.
func (c *Conn) Pause()  { c.readGate.Pause() }
func (c *Conn) Resume() { c.readGate.Resume() }

func (c *Conn) readLoop() {
	defer c.state.ConnectionLost()

	br := bufio.NewReaderSize(c.nc, 4096)
	line, extra, err := readHandshakeLine(br, maxHandshakeLine)
	if err != nil {
		if errors.Is(err, transit_core.ErrBadHandshake) {
			c.state.BadToken()
		}
		return
	}

	ph, err := transit_core.ParseHandshake(line)
	if err != nil {
		c.state.BadToken()
		return
	}
	if ph.Side == "" {
		c.state.PleaseRelay(ph.Token)
	} else {
		c.state.PleaseRelayForSide(ph.Token, ph.Side)
	}

	if len(extra) > 0 {
		c.state.GotBytes(extra)
	}

	buf := make([]byte, readBufSize)
	for {
		c.readGate.Wait()
		n, rerr := br.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			c.state.GotBytes(data)
		}
		if rerr != nil {
			return
		}
	}
}

// readHandshakeLine reads bytes up to the first '\n', enforcing maxLen on
// the pre-delimiter portion, and returns any bytes already buffered beyond
// the delimiter (already read off the wire in the same chunk) as extra —
// a client that raced ahead of its own handshake and is impatient for a
// reply.
func readHandshakeLine(br *bufio.Reader, maxLen int) (line, extra []byte, err error) {
	buf := make([]byte, 0, 128)
	for {
		b, rerr := br.ReadByte()
		if rerr != nil {
			return nil, nil, rerr
		}
		if b == '\n' {
			break
		}
		buf = append(buf, b)
		if len(buf) > maxLen {
			return nil, nil, errHandshakeTooLong
		}
	}
	if n := br.Buffered(); n > 0 {
		extra = make([]byte, n)
		_, _ = br.Read(extra)
	}
	return buf, extra, nil
}
