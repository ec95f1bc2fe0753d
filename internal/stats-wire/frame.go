// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

// Package stats_wire implements an optional local debug-stats frame
// protocol, letting an operator dump TransitCore.SnapshotStats over a
// unix-domain socket. Frames are magic + LE16 length + LE16 type +
// payload; the payload itself is hand-encoded with
// google.golang.org/protobuf's low-level protowire package rather than a
// protoc-generated type, since there is only one message shape to encode.
package stats_wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	transit_core "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/transit-core"
)

const magic = "TRLY"

const (
	TypeStatsRequest  uint16 = 0x0001
	TypeStatsResponse uint16 = 0x0002
)

// EncodeStatsResponse wire-encodes a Stats snapshot as five varint fields.
func EncodeStatsResponse(s transit_core.Stats) []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.RebootedAt.Unix()))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.UpdatedAt.Unix()))
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Connected))
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(s.Waiting))
	b = protowire.AppendTag(b, 5, protowire.VarintType)
	b = protowire.AppendVarint(b, s.IncompleteBytes)
	return b
}

// DecodeStatsResponse parses bytes produced by EncodeStatsResponse.
func DecodeStatsResponse(b []byte) (transit_core.Stats, error) {
	var s transit_core.Stats
	var rebooted, updated int64

	for len(b) > 0 {
		num, _, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		b = b[n:]
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return s, protowire.ParseError(n)
		}
		b = b[n:]

		switch num {
		case 1:
			rebooted = int64(v)
		case 2:
			updated = int64(v)
		case 3:
			s.Connected = int(v)
		case 4:
			s.Waiting = int(v)
		case 5:
			s.IncompleteBytes = v
		}
	}

	s.RebootedAt = time.Unix(rebooted, 0)
	s.UpdatedAt = time.Unix(updated, 0)
	return s, nil
}

// WriteFrame writes magic + LE16 length + LE16 type + payload.
func WriteFrame(w io.Writer, typ uint16, payload []byte) error {
	if len(payload) > 0xFFFF {
		return fmt.Errorf("stats_wire: frame too large: %d bytes", len(payload))
	}
	hdr := make([]byte, 0, len(magic)+4)
	hdr = append(hdr, magic...)
	var lenBuf, typBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	binary.LittleEndian.PutUint16(typBuf[:], typ)
	hdr = append(hdr, lenBuf[:]...)
	hdr = append(hdr, typBuf[:]...)

	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) (typ uint16, payload []byte, err error) {
	var hdr [8]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	if string(hdr[:4]) != magic {
		return 0, nil, fmt.Errorf("stats_wire: bad magic")
	}
	length := binary.LittleEndian.Uint16(hdr[4:6])
	typ = binary.LittleEndian.Uint16(hdr[6:8])
	payload = make([]byte, length)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return typ, payload, nil
}
