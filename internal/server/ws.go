package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/landloop/territory-engine/internal/engine"
	"github.com/landloop/territory-engine/internal/logging"
	"github.com/landloop/territory-engine/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Collaborators connect from app backends, not browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamMessage is the envelope for everything the server pushes on a
// session stream.
type streamMessage struct {
	Type string `json:"type"` // proximity | ingest | error
	// Proximity carries the latest monitor evaluation.
	Proximity *model.CollisionResult `json:"proximity,omitempty"`
	// Ingest acknowledges one submitted fix.
	Ingest *engine.IngestResult `json:"ingest,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// handleStream upgrades to a WebSocket carrying the owner's live session:
// the client sends fixes as JSON, the server pushes ingest acknowledgements
// and every proximity evaluation. The stream closes when the session ends.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	owner := mux.Vars(r)["owner"]
	ctx := r.Context()

	results, cancel, err := s.eng.Subscribe(owner)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn(ctx, "websocket upgrade failed", logging.Err(err))
		return
	}
	defer conn.Close()

	// Writer side: one goroutine owns all writes to the connection.
	outbound := make(chan streamMessage, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case res, ok := <-results:
				if !ok {
					// Session ended; say goodbye and drop the stream.
					deadline := time.Now().Add(time.Second)
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), deadline)
					return
				}
				if err := conn.WriteJSON(streamMessage{Type: "proximity", Proximity: &res}); err != nil {
					return
				}
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			}
		}
	}()

	// Reader side: every inbound message is one fix.
	for {
		var wf wireFix
		if err := conn.ReadJSON(&wf); err != nil {
			break
		}
		fix, err := wf.canonical()
		if err != nil {
			select {
			case outbound <- streamMessage{Type: "error", Error: err.Error()}:
			default:
			}
			continue
		}
		res, err := s.eng.IngestFix(ctx, owner, fix)
		if err != nil {
			if errors.Is(err, engine.ErrNoSession) {
				break
			}
			select {
			case outbound <- streamMessage{Type: "error", Error: err.Error()}:
			default:
			}
			continue
		}
		select {
		case outbound <- streamMessage{Type: "ingest", Ingest: &res}:
		default:
		}
	}

	close(outbound)
	<-done
}
