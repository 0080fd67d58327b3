package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rtckit/internal/core/domain"
	"rtckit/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestServer(t *testing.T, opts Options) (*WebSocketServer, *httptest.Server) {
	t.Helper()
	srv := NewWebSocketServer(memory.NewMemoryPeerRepository(), nil, zaptest.NewLogger(t), opts)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server, peerID, roomID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "?peer_id=" + peerID + "&room_id=" + roomID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) SignalMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg SignalMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestRelayOfferToRoom(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	alice := dial(t, ts, "alice", "room1")
	bob := dial(t, ts, "bob", "room1")
	// A third peer in another room must not receive the offer.
	dial(t, ts, "carol", "room2")

	// Give the server a moment to register all peers.
	time.Sleep(50 * time.Millisecond)

	payload, _ := json.Marshal(DescriptionPayload{Type: "offer", SDP: "v=0\r\n"})
	require.NoError(t, alice.WriteJSON(SignalMessage{Type: "offer", Payload: payload}))

	msg := readMessage(t, bob)
	assert.Equal(t, "offer", msg.Type)
	assert.Equal(t, domain.PeerID("alice"), msg.PeerID)

	var desc DescriptionPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &desc))
	assert.Equal(t, "v=0\r\n", desc.SDP)
}

func TestRelayCandidateToTargetPeer(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	alice := dial(t, ts, "alice", "room1")
	bob := dial(t, ts, "bob", "room1")
	eve := dial(t, ts, "eve", "room1")

	time.Sleep(50 * time.Millisecond)

	payload, _ := json.Marshal(CandidatePayload{
		Candidate:     "candidate:1 1 UDP 1 192.0.2.1 5000 typ host",
		SDPMid:        "0",
		SDPMLineIndex: 0,
	})
	require.NoError(t, alice.WriteJSON(SignalMessage{Type: "candidate", To: "bob", Payload: payload}))

	msg := readMessage(t, bob)
	assert.Equal(t, "candidate", msg.Type)

	var cand CandidatePayload
	require.NoError(t, json.Unmarshal(msg.Payload, &cand))
	assert.True(t, strings.HasPrefix(cand.Candidate, "candidate:"))

	// Eve saw nothing.
	eve.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var stray SignalMessage
	assert.Error(t, eve.ReadJSON(&stray))
}

func TestUnknownMessageTypeReturnsError(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	alice := dial(t, ts, "alice", "room1")
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, alice.WriteJSON(SignalMessage{Type: "bogus"}))

	msg := readMessage(t, alice)
	assert.Equal(t, "error", msg.Type)
}

func TestRateLimitRejectsFlood(t *testing.T) {
	_, ts := newTestServer(t, Options{
		MessagesPerSecond: 1,
		Burst:             1,
	})

	alice := dial(t, ts, "alice", "room1")
	dial(t, ts, "bob", "room1")
	time.Sleep(50 * time.Millisecond)

	payload, _ := json.Marshal(DescriptionPayload{Type: "offer", SDP: "v=0\r\n"})
	for i := 0; i < 5; i++ {
		require.NoError(t, alice.WriteJSON(SignalMessage{Type: "offer", Payload: payload}))
	}

	// The flood trips the limiter; alice eventually sees an error envelope.
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "no rate limit error received")
		msg := readMessage(t, alice)
		if msg.Type == "error" {
			break
		}
	}
}

func TestMissingIdentifiersRejected(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
