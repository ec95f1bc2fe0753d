// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package usage_tracker

import (
	"encoding/json"
	"io"
	"sync"
)

type logRecordJSON struct {
	Started     int64    `json:"started"`
	TotalTime   float64  `json:"total_time"`
	WaitingTime *float64 `json:"waiting_time"`
	TotalBytes  uint64   `json:"total_bytes"`
	Mood        string   `json:"mood"`
}

// LogSink writes one JSON object per line, flushed after every record.
type LogSink struct {
	mu  sync.Mutex
	w   io.Writer
	enc *json.Encoder
}

func NewLogSink(w io.Writer) *LogSink {
	return &LogSink{w: w, enc: json.NewEncoder(w)}
}

func (l *LogSink) RecordUsage(r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.enc.Encode(logRecordJSON{
		Started:     r.Started,
		TotalTime:   r.TotalTime,
		WaitingTime: r.WaitingTime,
		TotalBytes:  r.TotalBytes,
		Mood:        string(r.Mood),
	}); err != nil {
		return err
	}

	switch f := l.w.(type) {
	case interface{ Sync() error }:
		return f.Sync()
	case interface{ Flush() error }:
		return f.Flush()
	default:
		return nil
	}
}
