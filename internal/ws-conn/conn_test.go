// Copyright 2026 Transit Relay Authors
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-FEL

package ws_conn

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	transit_core "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/transit-core"
	usage_tracker "github.com/magic-wormhole/magic-wormhole-transit-relay/internal/usage-tracker"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return ws
}

// Both sides pair over the WebSocket adapter and bytes sent by a are
// relayed to b, mirroring S1 but exercised end to end over a real HTTP
// upgrade instead of the fakeChannel test double.
func TestWebSocketPairingRelaysBytes(t *testing.T) {
	log := discardLogger()
	tracker := usage_tracker.New(0, log)
	core := transit_core.New(tracker, log)

	srv := httptest.NewServer(Handler(core, log))
	defer srv.Close()

	const token = "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"

	a := dial(t, srv.URL)
	defer a.Close()
	b := dial(t, srv.URL)
	defer b.Close()

	if err := a.WriteMessage(websocket.BinaryMessage, []byte("please relay "+token+" for side 0101010101010101")); err != nil {
		t.Fatalf("a handshake write failed: %v", err)
	}
	if err := b.WriteMessage(websocket.BinaryMessage, []byte("please relay "+token+" for side 0202020202020202")); err != nil {
		t.Fatalf("b handshake write failed: %v", err)
	}

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	b.SetReadDeadline(time.Now().Add(2 * time.Second))

	_, ackA, err := a.ReadMessage()
	if err != nil || string(ackA) != "ok\n" {
		t.Fatalf("expected a to receive ok, got %q err=%v", ackA, err)
	}
	_, ackB, err := b.ReadMessage()
	if err != nil || string(ackB) != "ok\n" {
		t.Fatalf("expected b to receive ok, got %q err=%v", ackB, err)
	}

	if err := a.WriteMessage(websocket.BinaryMessage, []byte("hello")); err != nil {
		t.Fatalf("a payload write failed: %v", err)
	}
	_, got, err := b.ReadMessage()
	if err != nil || string(got) != "hello" {
		t.Fatalf("expected b to receive relayed payload, got %q err=%v", got, err)
	}
}

// A non-binary first frame is rejected as a bad handshake: the handshake
// must arrive as a binary message.
func TestWebSocketRejectsNonBinaryHandshake(t *testing.T) {
	log := discardLogger()
	tracker := usage_tracker.New(0, log)
	core := transit_core.New(tracker, log)

	srv := httptest.NewServer(Handler(core, log))
	defer srv.Close()

	a := dial(t, srv.URL)
	defer a.Close()

	if err := a.WriteMessage(websocket.TextMessage, []byte("please relay not-binary")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	a.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := a.ReadMessage(); err == nil {
		t.Fatalf("expected the connection to be closed after a non-binary handshake frame")
	}
}
