// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package transit_core

import (
	"log/slog"
	"testing"
	"time"
)

func testCore(t *testing.T) (*TransitCore, *fakeUsageRecorder) {
	t.Helper()
	usage := &fakeUsageRecorder{}
	core := New(usage, slog.New(slog.NewTextHandler(testWriter{t}, nil)))
	return core, usage
}

// testWriter adapts testing.T into an io.Writer for slog output.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

const tokenA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
const sideA = "0101010101010101"
const sideB = "0202020202020202"

// S1. Both-sided pairing.
func TestBothSidedPairing(t *testing.T) {
	core, usage := testCore(t)

	chA := newFakeChannel(time.Now())
	chB := newFakeChannel(time.Now())

	a := core.NewConnection(chA)
	b := core.NewConnection(chB)

	a.PleaseRelayForSide(Token(tokenA), Side(sideA))
	b.PleaseRelayForSide(Token(tokenA), Side(sideB))

	if !chA.wasSent("ok\n") || !chB.wasSent("ok\n") {
		t.Fatalf("expected both sides to receive ok\\n: A=%v B=%v", chA.sent, chB.sent)
	}

	a.GotBytes([]byte("data1"))
	if !chB.wasSent("data1") {
		t.Fatalf("expected B to receive forwarded bytes, got %v", chB.sent)
	}

	a.ConnectionLost()

	recs := usage.snapshot()
	if len(recs) != 1 {
		t.Fatalf("expected exactly one usage record (B's jilted record suppressed), got %d: %+v", len(recs), recs)
	}
	if recs[0].mood != MoodHappy {
		t.Fatalf("expected happy mood, got %s", recs[0].mood)
	}
	if recs[0].bytesSent != 5 {
		t.Fatalf("expected 5 bytes_sent, got %d", recs[0].bytesSent)
	}
	if !chA.partnerDis {
		t.Fatalf("expected A's channel to force-disconnect B via disconnect_partner")
	}

	// B's own transport now independently observes the forced close.
	b.ConnectionLost()
	recs = usage.snapshot()
	if len(recs) != 1 {
		t.Fatalf("expected B's jilted record to remain suppressed, got %d: %+v", len(recs), recs)
	}
}

// S2. Lonely.
func TestLonely(t *testing.T) {
	core, usage := testCore(t)
	ch := newFakeChannel(time.Now())
	c := core.NewConnection(ch)

	c.PleaseRelayForSide(Token(tokenA), Side(sideA))
	c.ConnectionLost()

	recs := usage.snapshot()
	if len(recs) != 1 {
		t.Fatalf("expected one record, got %d", len(recs))
	}
	if recs[0].mood != MoodLonely {
		t.Fatalf("expected lonely, got %s", recs[0].mood)
	}
	if recs[0].buddyStarted != nil {
		t.Fatalf("expected no buddy_started for a lonely record")
	}
	if recs[0].bytesSent != 0 {
		t.Fatalf("expected 0 bytes_sent, got %d", recs[0].bytesSent)
	}
}

// S3. Bad handshake.
func TestBadHandshake(t *testing.T) {
	core, usage := testCore(t)
	ch := newFakeChannel(time.Now())
	c := core.NewConnection(ch)

	_, err := ParseHandshake([]byte("please DELAY " + tokenA))
	if err == nil {
		t.Fatalf("expected this line not to parse as a valid handshake")
	}
	c.BadToken()

	if !ch.wasSent("bad handshake\n") {
		t.Fatalf("expected bad handshake\\n to be sent, got %v", ch.sent)
	}
	if !ch.isDisconnected() {
		t.Fatalf("expected channel to be disconnected")
	}
	recs := usage.snapshot()
	if len(recs) != 1 || recs[0].mood != MoodErrory {
		t.Fatalf("expected one errory record, got %+v", recs)
	}
}

// S4. Impatient.
func TestImpatient(t *testing.T) {
	core, usage := testCore(t)
	ch := newFakeChannel(time.Now())
	c := core.NewConnection(ch)

	c.PleaseRelayForSide(Token(tokenA), Side(sideA))
	c.GotBytes([]byte("NOWNOWNOW"))

	if !ch.wasSent("impatient\n") {
		t.Fatalf("expected impatient\\n to be sent, got %v", ch.sent)
	}
	if !ch.isDisconnected() {
		t.Fatalf("expected channel to be disconnected")
	}
	recs := usage.snapshot()
	if len(recs) != 1 || recs[0].mood != MoodImpatient {
		t.Fatalf("expected one impatient record, got %+v", recs)
	}
}

// S5. Same-side triple: three same-side candidates, a fourth on the other
// side pairs with exactly one; the other two are evicted as redundant.
func TestSameSideTripleEviction(t *testing.T) {
	core, usage := testCore(t)

	var spares []*ConnectionState
	var spareChans []*fakeChannel
	for i := 0; i < 3; i++ {
		ch := newFakeChannel(time.Now())
		c := core.NewConnection(ch)
		c.PleaseRelayForSide(Token(tokenA), Side(sideA))
		spares = append(spares, c)
		spareChans = append(spareChans, ch)
	}

	chB := newFakeChannel(time.Now())
	b := core.NewConnection(chB)
	b.PleaseRelayForSide(Token(tokenA), Side(sideB))

	if !chB.wasSent("ok\n") {
		t.Fatalf("expected the fourth connection to pair and receive ok\\n")
	}

	pairedCount, redundantCount := 0, 0
	for _, ch := range spareChans {
		if ch.wasSent("ok\n") {
			pairedCount++
		}
		if ch.isDisconnected() {
			redundantCount++
		}
	}
	if pairedCount != 1 {
		t.Fatalf("expected exactly one spare to pair, got %d", pairedCount)
	}
	if redundantCount != 2 {
		t.Fatalf("expected exactly two spares disconnected as redundant, got %d", redundantCount)
	}

	recs := usage.snapshot()
	redundant := 0
	for _, r := range recs {
		if r.mood == MoodRedundant {
			redundant++
		}
	}
	if redundant != 2 {
		t.Fatalf("expected two redundant usage records, got %d (all: %+v)", redundant, recs)
	}
	_ = spares
}

// S6. Binary pre-handshake.
func TestBinaryPreHandshake(t *testing.T) {
	_, err := ParseHandshake([]byte("\x00\x01\xe0\x0f"))
	if err == nil {
		t.Fatalf("expected binary garbage to fail handshake parsing")
	}

	core, usage := testCore(t)
	ch := newFakeChannel(time.Now())
	c := core.NewConnection(ch)
	c.BadToken()

	if !ch.wasSent("bad handshake\n") || !ch.isDisconnected() {
		t.Fatalf("expected bad handshake response and disconnect")
	}
	recs := usage.snapshot()
	if len(recs) != 1 || recs[0].mood != MoodErrory {
		t.Fatalf("expected one errory record, got %+v", recs)
	}
}

func TestDoneStateSwallowsRepeatedInputs(t *testing.T) {
	core, usage := testCore(t)
	ch := newFakeChannel(time.Now())
	c := core.NewConnection(ch)
	c.PleaseRelayForSide(Token(tokenA), Side(sideA))
	c.ConnectionLost()
	c.ConnectionLost() // race: must be a safe no-op
	c.handlePartnerConnectionLostForTest()

	recs := usage.snapshot()
	if len(recs) != 1 {
		t.Fatalf("expected exactly one record despite repeated terminal inputs, got %d", len(recs))
	}
}

// handlePartnerConnectionLostForTest exercises the DONE|partner_connection_lost
// no-op transition without exporting an input that production code never
// needs to call post-teardown.
func (c *ConnectionState) handlePartnerConnectionLostForTest() {
	c.core.mu.Lock()
	defer c.core.mu.Unlock()
	c.handlePartnerConnectionLost()
}

func TestV1HandshakeHasNoSide(t *testing.T) {
	ph, err := ParseHandshake([]byte("please relay " + tokenA))
	if err != nil {
		t.Fatalf("expected v1 handshake to parse, got %v", err)
	}
	if ph.Side != "" {
		t.Fatalf("expected v1 handshake to have no side, got %q", ph.Side)
	}
	if ph.Token != Token(tokenA) {
		t.Fatalf("expected token %s, got %s", tokenA, ph.Token)
	}
}

func TestV1SidelessPairingAllowed(t *testing.T) {
	core, usage := testCore(t)
	chA := newFakeChannel(time.Now())
	chB := newFakeChannel(time.Now())
	a := core.NewConnection(chA)
	b := core.NewConnection(chB)

	a.PleaseRelay(Token(tokenA))
	b.PleaseRelay(Token(tokenA))

	if !chA.wasSent("ok\n") || !chB.wasSent("ok\n") {
		t.Fatalf("expected v1<->v1 sideless pairing to succeed")
	}
	_ = usage
}
