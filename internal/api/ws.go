package api

import (
	"net"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"

	"LocalChat/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkLocalOrigin,
}

// checkLocalOrigin admits non-browser clients (no Origin header), desktop
// shells (file, app, or null origins), and pages served from loopback.
// Everything else is refused even if the server was bound beyond loopback.
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "file", "app":
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// wsRequest is one inbound chat turn over the websocket.
type wsRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

// wsReply is one outbound frame: delta fragments, then done or error.
type wsReply struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleWebSocket upgrades and serves chat turns until the peer closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if req.Message == "" || req.SessionID == "" {
			conn.WriteJSON(wsReply{Event: "error", Error: "sessionId and message are required"})
			continue
		}

		fragments, err := s.ctrl.RespondStream(ctx, req.SessionID, req.Message, session.DefaultGenerationConfig())
		if err != nil {
			conn.WriteJSON(wsReply{Event: "error", SessionID: req.SessionID, Error: err.Error()})
			continue
		}

		conn.WriteJSON(wsReply{Event: "start", SessionID: req.SessionID})
		failed := false
		for frag := range fragments {
			if frag.Err != nil {
				conn.WriteJSON(wsReply{Event: "error", SessionID: req.SessionID, Error: frag.Err.Error()})
				failed = true
				break
			}
			if err := conn.WriteJSON(wsReply{Event: "delta", SessionID: req.SessionID, Content: frag.Text}); err != nil {
				s.logger.Warn("websocket write failed", "error", err)
				return
			}
		}
		if !failed {
			conn.WriteJSON(wsReply{Event: "done", SessionID: req.SessionID})
		}
	}
}
