package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/storefront-admin/backend/internal/imagery"
	"github.com/storefront-admin/backend/internal/notify"
)

// WebSocket message types for the image edit protocol
const (
	// Client -> Server messages
	MsgTypeEditSubmit = "edit:submit"
	MsgTypeEditCancel = "edit:cancel"
	MsgTypeEditStatus = "edit:status"
	MsgTypePing       = "ping"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypeAck       = "ack"
	MsgTypeStatus    = "status"
	MsgTypeJobs      = "jobs"
	MsgTypeNotices   = "notices"
	MsgTypeError     = "error"
	MsgTypePong      = "pong"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
)

// WebSocket message structure
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// EditStatusPayload selects a job, or every job of a room when JobID is empty.
type EditStatusPayload struct {
	JobID  string `json:"jobId,omitempty"`
	RoomID string `json:"roomId,omitempty"`
}

// WebSocket error response
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan WSMessage
}

// EditHub serves the image edit channel. Every connected client receives
// status updates for all jobs.
type EditHub struct {
	edits    *imagery.EditManager
	notices  *notify.Recorder
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewEditHub creates the hub and subscribes it to job updates. notices may
// be nil; when set, recorded notices are replayed to new clients.
func NewEditHub(edits *imagery.EditManager, notices *notify.Recorder) *EditHub {
	h := &EditHub{
		edits:   edits,
		notices: notices,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Allow connections from dev server
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		log:     slog.With("component", "edit-ws"),
		clients: make(map[*wsClient]struct{}),
	}
	edits.OnUpdate(h.broadcast)
	return h
}

// HandleWebSocket upgrades the connection and runs the edit protocol
func (h *EditHub) HandleWebSocket(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &wsClient{conn: ws, send: make(chan WSMessage, clientSendBuffer)}
	go h.writePump(client)
	h.register(client)
	defer h.unregister(client)

	h.log.Info("client connected", "remote", c.RealIP())
	h.enqueue(client, WSMessage{Type: MsgTypeConnected})
	if h.notices != nil {
		if notices := h.notices.Notices(); len(notices) > 0 {
			h.enqueue(client, WSMessage{Type: MsgTypeNotices, Payload: mustJSON(notices)})
		}
	}

	for {
		var msg WSMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("connection error", "error", err)
			}
			break
		}

		switch msg.Type {
		case MsgTypePing:
			h.enqueue(client, WSMessage{Type: MsgTypePong, ID: msg.ID})
		case MsgTypeEditSubmit:
			h.handleSubmit(client, msg)
		case MsgTypeEditCancel:
			h.handleCancel(client, msg)
		case MsgTypeEditStatus:
			h.handleStatus(client, msg)
		default:
			h.sendError(client, msg.ID, "Unknown message type: "+msg.Type, "INVALID_TYPE")
		}
	}

	h.log.Info("client disconnected", "remote", c.RealIP())
	return nil
}

func (h *EditHub) handleSubmit(client *wsClient, msg WSMessage) {
	var req imagery.EditRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		h.sendError(client, msg.ID, "Invalid submit payload: "+err.Error(), "INVALID_PAYLOAD")
		return
	}
	job, err := h.edits.Submit(req)
	if err != nil {
		h.sendDomainError(client, msg.ID, err)
		return
	}
	h.enqueue(client, WSMessage{Type: MsgTypeAck, ID: msg.ID, Payload: mustJSON(job)})
}

func (h *EditHub) handleCancel(client *wsClient, msg WSMessage) {
	var payload EditStatusPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.JobID == "" {
		h.sendError(client, msg.ID, "Invalid cancel payload", "INVALID_PAYLOAD")
		return
	}
	job, err := h.edits.Cancel(payload.JobID)
	if err != nil {
		h.sendDomainError(client, msg.ID, err)
		return
	}
	h.enqueue(client, WSMessage{Type: MsgTypeStatus, ID: msg.ID, Payload: mustJSON(job)})
}

func (h *EditHub) handleStatus(client *wsClient, msg WSMessage) {
	var payload EditStatusPayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(client, msg.ID, "Invalid status payload: "+err.Error(), "INVALID_PAYLOAD")
			return
		}
	}
	if payload.JobID == "" {
		h.enqueue(client, WSMessage{Type: MsgTypeJobs, ID: msg.ID, Payload: mustJSON(h.edits.List(payload.RoomID))})
		return
	}
	job, ok := h.edits.Get(payload.JobID)
	if !ok {
		h.sendError(client, msg.ID, "Edit job not found: "+payload.JobID, "NOT_FOUND")
		return
	}
	h.enqueue(client, WSMessage{Type: MsgTypeStatus, ID: msg.ID, Payload: mustJSON(job)})
}

// broadcast runs on edit job goroutines; slow clients miss updates rather
// than stalling the job.
func (h *EditHub) broadcast(job imagery.Job) {
	h.record(job)
	msg := WSMessage{
		Type:      MsgTypeStatus,
		ID:        job.ID,
		Payload:   mustJSON(job),
		Timestamp: time.Now().UnixMilli(),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.log.Warn("dropping status update for slow client", "job", job.ID)
		}
	}
}

// record keeps finished edits for replay. Cancellation is not reported.
func (h *EditHub) record(job imagery.Job) {
	if h.notices == nil {
		return
	}
	switch job.Status {
	case imagery.StatusComplete:
		h.notices.Success("Image edit applied to room " + job.RoomID)
	case imagery.StatusError:
		h.notices.Error("Image edit failed for room "+job.RoomID, errors.New(job.Error))
	}
}

// ClientCount returns the number of connected clients.
func (h *EditHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *EditHub) register(client *wsClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
}

func (h *EditHub) unregister(client *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
	h.mu.Unlock()
}

func (h *EditHub) writePump(client *wsClient) {
	defer client.conn.Close()
	for msg := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteJSON(msg); err != nil {
			h.log.Warn("failed to send message", "type", msg.Type, "error", err)
			return
		}
	}
	client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Helper methods

func (h *EditHub) enqueue(client *wsClient, msg WSMessage) {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- msg:
	default:
		h.log.Warn("dropping reply for slow client", "type", msg.Type)
	}
}

func (h *EditHub) sendError(client *wsClient, id, message, code string) {
	h.enqueue(client, WSMessage{
		Type:    MsgTypeError,
		ID:      id,
		Payload: mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

func (h *EditHub) sendDomainError(client *wsClient, id string, err error) {
	apiErr := FromDomainError(err)
	h.sendError(client, id, err.Error(), apiErr.Code)
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
