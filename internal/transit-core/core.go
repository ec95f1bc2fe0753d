// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package transit_core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// UsageRecorder is the subset of usage_tracker.Tracker the core needs,
// kept as an interface so core tests can fake it without importing the
// usage package.
type UsageRecorder interface {
	Record(started time.Time, buddyStarted *time.Time, mood Mood, bytesSent uint64, buddyBytes *uint64)
	UpdateStats(rebootedAt, updatedAt time.Time, connected, waiting int, incompleteBytes uint64)
}

// Stats is a periodic point-in-time snapshot of the registries.
type Stats struct {
	RebootedAt      time.Time
	UpdatedAt       time.Time
	Connected       int
	Waiting         int
	IncompleteBytes uint64
}

// TransitCore owns the registries and usage tracker and is the factory for
// ConnectionState values. A single mutex serializes every FSM transition
// and every registry mutation, so no two connections' transitions ever
// run concurrently.
type TransitCore struct {
	mu sync.Mutex

	pending *PendingRequests
	active  *ActiveConnections
	usage   UsageRecorder

	now        func() time.Time
	rebootedAt time.Time

	log *slog.Logger
}

func New(usage UsageRecorder, log *slog.Logger) *TransitCore {
	if log == nil {
		log = slog.Default()
	}
	active := NewActiveConnections()
	return &TransitCore{
		pending:    NewPendingRequests(active),
		active:     active,
		usage:      usage,
		now:        time.Now,
		rebootedAt: time.Now(),
		log:        log,
	}
}

// NewConnection wires a fresh FSM to channel and feeds it connection_made.
func (t *TransitCore) NewConnection(channel ClientChannel) *ConnectionState {
	c := newConnectionState(t)
	c.ConnectionMade(channel)
	return c
}

// SnapshotStats takes a point-in-time reading of the registries.
func (t *TransitCore) SnapshotStats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		RebootedAt:      t.rebootedAt,
		UpdatedAt:       t.now(),
		Connected:       t.active.Count(),
		Waiting:         t.pending.WaitingCount(),
		IncompleteBytes: t.active.SumBytesRelayed(),
	}
}

// PushStats snapshots and forwards the result to the usage tracker.
func (t *TransitCore) PushStats() {
	s := t.SnapshotStats()
	t.usage.UpdateStats(s.RebootedAt, s.UpdatedAt, s.Connected, s.Waiting, s.IncompleteBytes)
}

// RunStatsLoop calls PushStats on interval until ctx is cancelled.
func (t *TransitCore) RunStatsLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.PushStats()
		}
	}
}
