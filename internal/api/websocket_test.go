package api

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomify/backend/internal/models"
)

func dialWidget(t *testing.T, env *testEnv, id string) *websocket.Conn {
	t.Helper()
	srv := serveEnv(t, env, 0)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/widgets/" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, match func(WSMessage) bool) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func TestWebSocket_PingAndUpload(t *testing.T) {
	env := newTestEnv(t)
	id := env.openWidget(t)
	conn := dialWidget(t, env, id)

	readUntil(t, conn, func(m WSMessage) bool { return m.Type == MsgTypeConnected })

	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypePing, ID: "p1"}))
	pong := readUntil(t, conn, func(m WSMessage) bool { return m.Type == MsgTypePong })
	assert.Equal(t, "p1", pong.ID)

	payload, _ := json.Marshal(FileUploadPayload{
		Name:   "plan.png",
		Type:   "image/png",
		Source: "drop",
		Data:   base64.StdEncoding.EncodeToString(pngBytes),
	})
	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypeUploadFile, ID: "u1", Payload: payload}))

	ack := readUntil(t, conn, func(m WSMessage) bool { return m.Type == MsgTypeAck })
	assert.Equal(t, "u1", ack.ID)
	assert.Contains(t, string(ack.Payload), `"verdict":"admitted"`)

	readUntil(t, conn, func(m WSMessage) bool {
		if m.Type != MsgTypeSnapshot {
			return false
		}
		var snap models.UploadSnapshot
		require.NoError(t, json.Unmarshal(m.Payload, &snap))
		return snap.Handoff != nil && snap.Handoff.Status == models.HandoffNavigated
	})
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	env := newTestEnv(t)
	id := env.openWidget(t)
	conn := dialWidget(t, env, id)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: "bogus"}))
	msg := readUntil(t, conn, func(m WSMessage) bool { return m.Type == MsgTypeError })
	assert.Contains(t, string(msg.Payload), "INVALID_TYPE")

	payload, _ := json.Marshal(FileUploadPayload{Name: "a.png", Type: "image/png", Data: "!!!"})
	require.NoError(t, conn.WriteJSON(WSMessage{Type: MsgTypeUploadFile, Payload: payload}))
	msg = readUntil(t, conn, func(m WSMessage) bool { return m.Type == MsgTypeError })
	assert.Contains(t, string(msg.Payload), "INVALID_DATA")
}

func TestWebSocket_ClosesWithWidget(t *testing.T) {
	env := newTestEnv(t)
	id := env.openWidget(t)
	conn := dialWidget(t, env, id)
	readUntil(t, conn, func(m WSMessage) bool { return m.Type == MsgTypeConnected })

	require.NoError(t, env.sessions.Close(id))

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
			return
		}
	}
}

func TestDeliver(t *testing.T) {
	replies := make(chan WSMessage, 1)
	writerDone := make(chan struct{})

	assert.True(t, deliver(replies, writerDone, WSMessage{Type: MsgTypePong}))

	close(writerDone)
	finished := make(chan bool, 1)
	go func() { finished <- deliver(replies, writerDone, WSMessage{Type: MsgTypePong}) }()

	select {
	case ok := <-finished:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("deliver blocked after the writer returned")
	}
}
