package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gyaneshwarpardhi/flowcode/internal/codegen"
	"github.com/gyaneshwarpardhi/flowcode/internal/ctxlog"
	"github.com/gyaneshwarpardhi/flowcode/internal/editor"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// liveRequest is one client message on the live socket.
type liveRequest struct {
	Type string `json:"type"`

	Changes     []editor.Change `json:"changes,omitempty"`
	Handle      string          `json:"handle,omitempty"`
	Value       any             `json:"value,omitempty"`
	Incremental *bool           `json:"incremental,omitempty"`
	Instrument  *bool           `json:"instrument,omitempty"`
}

// liveReply answers a client message. Graph pushes use graphMessage.
type liveReply struct {
	Type    string           `json:"type"`
	Program *codegen.Program `json:"program,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// GET /v1/editors/{id}/live — websocket carrying graph pushes and edit commands.
//
// Client messages: {"type":"changes","changes":[...]}, {"type":"inspection",
// "handle":..., "value":...} and {"type":"code"}. Every committed change is pushed
// to all subscribers as {"type":"graph","graph":...}.
func (h *Handler) live(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessions.get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("editor %q not found", r.PathValue("id")))
		return
	}
	logger := ctxlog.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.subscribe()
	defer unsubscribe()

	// The server's read timeout survives the upgrade; pongs keep extending it.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	replies := make(chan liveReply, 4)
	done := make(chan struct{})
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		defer close(done)
		for {
			var req liveRequest
			if err := conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Warn("live read failed", "err", err)
				}
				return
			}
			select {
			case replies <- h.handleLive(s, req):
			case <-stopped:
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	s.lock()
	initial := s.ed.Graph()
	s.unlock()
	if err := writeLive(conn, graphMessage{Type: "graph", Graph: initial}); err != nil {
		return
	}

	for {
		select {
		case msg := <-updates:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case rep := <-replies:
			if rep.Type == "" {
				continue
			}
			if err := writeLive(conn, rep); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func writeLive(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func (h *Handler) handleLive(s *session, req liveRequest) liveReply {
	s.lock()
	defer s.unlock()

	var err error
	switch req.Type {
	case "changes":
		err = s.ed.Apply(req.Changes...)
	case "inspection":
		err = s.ed.UpdateInspection(req.Handle, req.Value)
	case "code":
		incremental := true
		if req.Incremental != nil {
			incremental = *req.Incremental
		}
		instrument := h.loader.Config().Codegen.Instrument
		if req.Instrument != nil {
			instrument = *req.Instrument
		}
		p, cerr := s.ed.Code(incremental, instrument)
		if cerr != nil {
			return liveReply{Type: "error", Error: cerr.Error()}
		}
		return liveReply{Type: "code", Program: p}
	default:
		err = fmt.Errorf("unknown message type %q", req.Type)
	}
	if err != nil {
		return liveReply{Type: "error", Error: err.Error()}
	}
	return liveReply{}
}
