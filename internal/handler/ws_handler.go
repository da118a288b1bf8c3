// Package handler terminates WebSocket connections and routes decoded
// protocol commands into the engine.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	pkglog "github.com/slatecast/slatecast/pkg/log"

	"github.com/slatecast/slatecast/internal/config"
	"github.com/slatecast/slatecast/internal/hub"
	"github.com/slatecast/slatecast/internal/protocol"
	"github.com/slatecast/slatecast/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Loopback-oriented endpoint, origins are not filtered
	},
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub     *hub.Hub
	engine  service.Engine
	version string
	cfg     config.WebSocketConfig
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, engine service.Engine, version string, cfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:     h,
		engine:  engine,
		version: version,
		cfg:     cfg,
	}
}

// HandleWebSocket upgrades the connection and starts the client's
// pumps. Once the handshake completes, the client immediately receives
// CONNECTED followed by a full STATE snapshot, so every newly joined
// client starts from a consistent baseline.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	l := pkglog.L()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	clientID := uuid.New().String()
	client := &hub.Client{
		ID:   clientID,
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, h.cfg.SendBuffer),
	}
	client.SetState(hub.StateConnecting)

	h.hub.Register(client)

	client.SendEvent(protocol.NewConnected(h.version))
	client.SendEvent(h.engine.StateSnapshot())
	client.SetState(hub.StateReady)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendEvent(protocol.NewError("Invalid message format"))
		return
	}

	switch base.Type {
	case protocol.CmdNextPage:
		h.respond(client, h.engine.NextPage())

	case protocol.CmdPreviousPage:
		h.respond(client, h.engine.PreviousPage())

	case protocol.CmdGoToPage:
		var cmd protocol.GoToPageCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			client.SendEvent(protocol.NewError("Invalid GO_TO_PAGE command"))
			return
		}
		h.respond(client, h.engine.GoToPage(cmd.Page))

	case protocol.CmdSetZoom:
		var cmd protocol.SetZoomCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			client.SendEvent(protocol.NewError("Invalid SET_ZOOM command"))
			return
		}
		h.respond(client, h.engine.SetZoom(cmd.Zoom))

	case protocol.CmdTogglePresenter:
		h.respond(client, h.engine.TogglePresenter())

	case protocol.CmdAddAnnotation:
		var cmd protocol.AddAnnotationCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			client.SendEvent(protocol.NewError("Invalid ADD_ANNOTATION command"))
			return
		}
		h.respond(client, h.engine.AddAnnotation(cmd.Page, cmd.Annotation))

	case protocol.CmdClearAnnotations:
		h.respond(client, h.engine.ClearAnnotations())

	case protocol.CmdGetState:
		client.SendEvent(h.engine.StateSnapshot())

	case protocol.CmdPing:
		client.SendEvent(protocol.NewPong())

	default:
		client.SendEvent(protocol.NewError("Unknown message type"))
	}
}

// respond delivers the direct response to the originating connection
// first, then re-publishes broadcast-worthy events for everyone else.
// Errors and other informational responses never leave the originator.
func (h *WSHandler) respond(client *hub.Client, ev protocol.Event) {
	client.SendEvent(ev)
	if protocol.Broadcastable(ev.Kind()) {
		h.hub.BroadcastFrom(client, ev)
	}
}

// RegisterRoutes registers the WebSocket route.
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.HandleWebSocket)
}
