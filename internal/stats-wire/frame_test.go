// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package stats_wire

import (
	"bytes"
	"testing"
	"time"

	transit_core "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/transit-core"
)

func TestStatsResponseRoundTrip(t *testing.T) {
	want := transit_core.Stats{
		RebootedAt:      time.Unix(1700000000, 0),
		UpdatedAt:       time.Unix(1700000123, 0),
		Connected:       4,
		Waiting:         2,
		IncompleteBytes: 123456,
	}

	got, err := DecodeStatsResponse(EncodeStatsResponse(want))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if !got.RebootedAt.Equal(want.RebootedAt) || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Fatalf("timestamps did not round-trip: got %+v, want %+v", got, want)
	}
	if got.Connected != want.Connected || got.Waiting != want.Waiting || got.IncompleteBytes != want.IncompleteBytes {
		t.Fatalf("counters did not round-trip: got %+v, want %+v", got, want)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5}
	var buf bytes.Buffer

	if err := WriteFrame(&buf, TypeStatsResponse, payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	typ, got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if typ != TypeStatsResponse {
		t.Fatalf("expected type %d, got %d", TypeStatsResponse, typ)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected payload %v, got %v", payload, got)
	}
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("XXXX")
	buf.Write([]byte{0, 0, 0, 0})

	if _, _, err := ReadFrame(&buf); err == nil {
		t.Fatalf("expected an error for a frame with the wrong magic")
	}
}
