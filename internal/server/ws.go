package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lucasvieira/soletra/internal/landmark"
	"github.com/lucasvieira/soletra/internal/recognition"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the API is served to the local practice UI only
	},
}

// streamFrame is one client message on the live recognition socket.
type streamFrame struct {
	Landmarks    []landmark.Point `json:"landmarks"`
	CollectForML *bool            `json:"collect_for_ml"`
}

const streamWriteTimeout = 5 * time.Second

// handleStream upgrades the connection and recognizes incoming landmark
// frames until the client disconnects. Each frame gets exactly one reply,
// so clients can pipeline at their own capture rate.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		var frame streamFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		result, err := s.cfg.Service.Recognize(ctx, frame.Landmarks, collectForML(frame.CollectForML))
		reply := recognizeResponse{Success: err == nil && result.Letter != "", Result: result}
		if err != nil {
			reply.Result = recognition.Result{Method: recognition.MethodNone}
			reply.Message = err.Error()
		} else if !reply.Success {
			reply.Message = "no gesture recognized"
		}

		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}
