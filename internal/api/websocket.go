package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/roomify/backend/internal/ingest"
	"github.com/roomify/backend/internal/session"
)

// WebSocket message types for the widget protocol
const (
	// Client -> Server messages
	MsgTypeUploadFile = "upload:file"
	MsgTypeDragEnter  = "drag:enter"
	MsgTypeDragOver   = "drag:over"
	MsgTypeDragLeave  = "drag:leave"
	MsgTypePing       = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeSnapshot  = "snapshot"
	MsgTypeAck       = "ack"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

// WSMessage is the envelope for every frame
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// FileUploadPayload carries a whole file in one message
type FileUploadPayload struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Source string `json:"source,omitempty"` // "picker" or "drop"
	Data   string `json:"data"`             // Base64 encoded file
}

// WSAckResponse reports the gate verdict for an uploaded file
type WSAckResponse struct {
	Verdict string `json:"verdict"`
}

// WSErrorResponse is sent for malformed client messages
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WebSocketHandler streams widget snapshots and accepts widget input
type WebSocketHandler struct {
	sessions *session.Manager
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocket widget handler
func NewWebSocketHandler(sessions *session.Manager, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		log: log.With().Str("component", "websocket").Logger(),
	}
}

// HandleWebSocket upgrades the connection and pumps snapshots to the client
// until the widget closes or the client disconnects.
func (wsh *WebSocketHandler) HandleWebSocket(c echo.Context) error {
	id := c.Param("id")
	updates, cancel, err := wsh.sessions.Subscribe(id)
	if err != nil {
		return sessionError(err, id)
	}
	defer cancel()

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	signedIn := SignedIn(c)
	wsh.log.Debug().Str("widget", id).Msg("client connected")

	// gorilla allows one writer; the reader hands replies to this loop.
	replies := make(chan WSMessage, 8)
	readerDone := make(chan struct{})
	writerDone := make(chan struct{})
	defer close(writerDone)
	go func() {
		defer close(readerDone)
		wsh.readLoop(ws, id, signedIn, replies, writerDone)
	}()

	if err := wsh.send(ws, WSMessage{Type: MsgTypeConnected, ID: id}); err != nil {
		return nil
	}

	for {
		select {
		case <-readerDone:
			wsh.log.Debug().Str("widget", id).Msg("client disconnected")
			return nil
		case msg := <-replies:
			if err := wsh.send(ws, msg); err != nil {
				return nil
			}
		case snap, ok := <-updates:
			if !ok {
				ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "widget closed"),
					time.Now().Add(time.Second))
				return nil
			}
			if err := wsh.send(ws, WSMessage{Type: MsgTypeSnapshot, ID: id, Payload: mustJSON(snap)}); err != nil {
				return nil
			}
		}
	}
}

func (wsh *WebSocketHandler) readLoop(ws *websocket.Conn, id string, signedIn bool, replies chan<- WSMessage, writerDone <-chan struct{}) {
	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wsh.log.Warn().Err(err).Str("widget", id).Msg("connection error")
			}
			return
		}

		var reply WSMessage
		switch msg.Type {
		case MsgTypePing:
			reply = WSMessage{Type: MsgTypePong}
		case MsgTypeDragEnter, MsgTypeDragOver, MsgTypeDragLeave:
			ev := session.DragEvent(msg.Type[len("drag:"):])
			if _, err := wsh.sessions.Drag(id, ev, signedIn); err != nil {
				reply = errorMessage(err.Error(), "WIDGET_ERROR")
			} else {
				continue
			}
		case MsgTypeUploadFile:
			reply = wsh.handleUploadFile(id, signedIn, msg)
		default:
			reply = errorMessage("Unknown message type: "+msg.Type, "INVALID_TYPE")
		}

		reply.ID = msg.ID
		if !deliver(replies, writerDone, reply) {
			return
		}
	}
}

// deliver hands a reply to the writer. It gives up once the writer has
// returned.
func deliver(replies chan<- WSMessage, writerDone <-chan struct{}, msg WSMessage) bool {
	select {
	case replies <- msg:
		return true
	case <-writerDone:
		return false
	}
}

// handleUploadFile decodes an inline file and offers it to the widget
func (wsh *WebSocketHandler) handleUploadFile(id string, signedIn bool, msg WSMessage) WSMessage {
	var payload FileUploadPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return errorMessage("Invalid upload payload: "+err.Error(), "INVALID_PAYLOAD")
	}

	var file ingest.File
	if signedIn {
		data, err := base64.StdEncoding.DecodeString(payload.Data)
		if err != nil {
			return errorMessage("Invalid base64 data: "+err.Error(), "INVALID_DATA")
		}
		file = ingest.MemFile{FileName: payload.Name, MIME: payload.Type, Data: data}
	}

	_, verdict, err := wsh.sessions.Accept(id, file, ingest.ParseSource(payload.Source), signedIn)
	if err != nil {
		return errorMessage(err.Error(), "WIDGET_ERROR")
	}
	return WSMessage{Type: MsgTypeAck, Payload: mustJSON(WSAckResponse{Verdict: verdict.String()})}
}

func (wsh *WebSocketHandler) send(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	if err := ws.WriteJSON(msg); err != nil {
		wsh.log.Debug().Err(err).Msg("failed to send message")
		return err
	}
	return nil
}

func errorMessage(message, code string) WSMessage {
	return WSMessage{
		Type:    MsgTypeError,
		Payload: mustJSON(WSErrorResponse{Message: message, Code: code}),
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
