// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package usage_tracker implements the usage-accounting side of the relay:
// one record per completed connection pairing, fanned out to pluggable
// sinks, with optional blur-window coarsening of timestamps and byte
// counts.
package usage_tracker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	transit_core "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/transit-core"
)

// Record is one completed connection's accounting entry.
type Record struct {
	Started     int64 // unix seconds, possibly blurred
	TotalTime   float64
	WaitingTime *float64
	TotalBytes  uint64
	Mood        transit_core.Mood
}

// StatsUpdate is the periodic snapshot pushed to sinks that track it.
type StatsUpdate struct {
	RebootedAt      time.Time
	UpdatedAt       time.Time
	Connected       int
	Waiting         int
	IncompleteBytes uint64
}

// Sink is a downstream writer of usage records.
type Sink interface {
	RecordUsage(Record) error
}

// StatsSink is additionally implemented by sinks that persist the periodic
// `current` snapshot — only the database sink does.
type StatsSink interface {
	Sink
	UpdateStats(StatsUpdate) error
}

// Tracker fans usage records out to every configured sink and implements
// transit_core.UsageRecorder.
type Tracker struct {
	mu         sync.Mutex
	sinks      []Sink
	blurWindow time.Duration
	now        func() time.Time
	log        *slog.Logger
}

// New builds a Tracker. blurWindow of 0 disables blurring.
func New(blurWindow time.Duration, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	if blurWindow > 0 {
		log.Info("blurring access times", "window", blurWindow)
	} else {
		log.Info("not blurring access times")
	}
	return &Tracker{blurWindow: blurWindow, now: time.Now, log: log}
}

func (t *Tracker) AddSink(s Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = append(t.sinks, s)
}

// Record implements transit_core.UsageRecorder.
func (t *Tracker) Record(started time.Time, buddyStarted *time.Time, mood transit_core.Mood, bytesSent uint64, buddyBytes *uint64) {
	finished := t.now()

	var totalTime time.Duration
	var waitingTime *time.Duration
	var totalBytes uint64

	if buddyStarted != nil {
		earliest, latest := started, *buddyStarted
		if earliest.After(latest) {
			earliest, latest = latest, earliest
		}
		totalTime = finished.Sub(earliest)
		wt := latest.Sub(earliest)
		waitingTime = &wt
		var bb uint64
		if buddyBytes != nil {
			bb = *buddyBytes
		}
		totalBytes = bytesSent + bb
	} else {
		totalTime = finished.Sub(started)
		totalBytes = bytesSent
	}

	startedUnix := started.Unix()
	if t.blurWindow > 0 {
		if win := int64(t.blurWindow / time.Second); win > 0 {
			startedUnix = win * (startedUnix / win)
		}
		totalBytes = BlurSize(totalBytes)
	}

	rec := Record{
		Started:    startedUnix,
		TotalTime:  totalTime.Seconds(),
		TotalBytes: totalBytes,
		Mood:       mood,
	}
	if waitingTime != nil {
		wtSec := waitingTime.Seconds()
		rec.WaitingTime = &wtSec
	}

	t.mu.Lock()
	sinks := append([]Sink(nil), t.sinks...)
	t.mu.Unlock()

	for _, s := range sinks {
		t.notify(s, rec)
	}
}

// UpdateStats implements transit_core.UsageRecorder.
func (t *Tracker) UpdateStats(rebootedAt, updatedAt time.Time, connected, waiting int, incompleteBytes uint64) {
	su := StatsUpdate{
		RebootedAt:      rebootedAt,
		UpdatedAt:       updatedAt,
		Connected:       connected,
		Waiting:         waiting,
		IncompleteBytes: incompleteBytes,
	}

	t.mu.Lock()
	sinks := append([]Sink(nil), t.sinks...)
	t.mu.Unlock()

	for _, s := range sinks {
		if ss, ok := s.(StatsSink); ok {
			t.safeUpdateStats(ss, su)
		}
	}
}

// notify delivers rec to s, logging and continuing on failure so one
// misbehaving sink never blocks the others.
func (t *Tracker) notify(s Sink, rec Record) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("usage sink panicked", "sink", fmt.Sprintf("%T", s), "error", r)
		}
	}()
	if err := s.RecordUsage(rec); err != nil {
		t.log.Error("usage sink failed to record usage", "sink", fmt.Sprintf("%T", s), "error", err)
	}
}

func (t *Tracker) safeUpdateStats(s StatsSink, u StatsUpdate) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("usage sink panicked during stats update", "sink", fmt.Sprintf("%T", s), "error", r)
		}
	}()
	if err := s.UpdateStats(u); err != nil {
		t.log.Error("usage sink failed to update stats", "sink", fmt.Sprintf("%T", s), "error", err)
	}
}
