// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package transit_core

import (
	"regexp"

	"github.com/pkg/errors"
)

type Token string

type Side string

var (
	handshakeV2Re = regexp.MustCompile(`^please relay ([0-9a-f]{64}) for side ([0-9a-f]{16})$`)
	handshakeV1Re = regexp.MustCompile(`^please relay ([0-9a-f]{64})$`)
)

// ErrBadHandshake is the sentinel cause wrapped by ParseHandshake and by
// the channel adapters whenever a connection's first line or message
// fails to parse as a handshake. Callers compare against it with
// errors.Is rather than matching error strings.
var ErrBadHandshake = errors.New("bad handshake")

// ParsedHandshake is the result of a successful handshake parse. Side is
// empty for the legacy v1 form.
type ParsedHandshake struct {
	Token Token
	Side  Side
}

// ParseHandshake validates line (handshake bytes with any trailing
// delimiter already stripped by the caller) against the two accepted
// forms. Any deviation — wrong prefix, wrong hex width, trailing garbage —
// returns an error wrapping ErrBadHandshake.
func ParseHandshake(line []byte) (ParsedHandshake, error) {
	if m := handshakeV2Re.FindSubmatch(line); m != nil {
		return ParsedHandshake{Token: Token(m[1]), Side: Side(m[2])}, nil
	}
	if m := handshakeV1Re.FindSubmatch(line); m != nil {
		return ParsedHandshake{Token: Token(m[1])}, nil
	}
	return ParsedHandshake{}, errors.Wrap(ErrBadHandshake, "line does not match either handshake form")
}
