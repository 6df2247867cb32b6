package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"trivia-service/internal/eventlog"
	"trivia-service/internal/game"
)

// WSHandler relays the session's event log over a websocket. Clients pass
// `after` to resume exactly where their last connection left off: stored
// events past that sequence are replayed first, then live events stream as
// they are appended. Answers may also be submitted inbound on the socket.
type WSHandler struct {
	engine   *game.Engine
	events   *eventlog.Log
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *game.Engine, events *eventlog.Log) *WSHandler {
	return &WSHandler{
		engine: engine,
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	PlayerID    string `json:"playerId"`
	QuestionID  string `json:"questionId"`
	OptionIndex int    `json:"optionIndex"`
}

type answerResult struct {
	QuestionID string `json:"questionId"`
	Accepted   bool   `json:"accepted"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and streams events until the client hangs up.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}
	after, _ := strconv.ParseInt(r.URL.Query().Get("after"), 10, 64)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	activeSockets.Inc()
	defer activeSockets.Dec()

	// Subscribe before replaying so nothing appended in between is lost;
	// the forwarder skips anything at or below the replayed high-water mark.
	updates, cancel := h.events.Bus().Subscribe(sessionID)
	defer cancel()

	stored, err := h.events.List(r.Context(), sessionID, after, 0)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	send := make(chan outboundMessage[any], 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	// enqueue parks on the outbound buffer but gives up as soon as the
	// writer dies, so a client hanging up mid-replay can never wedge this
	// goroutine on a full channel.
	enqueue := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	lastSeq := after
	for _, ev := range stored {
		if !enqueue(outboundMessage[any]{Type: "event", Payload: ev}) {
			close(send)
			return
		}
		eventsRelayed.Inc()
		lastSeq = ev.Seq
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				if ev.Seq <= lastSeq {
					continue
				}
				lastSeq = ev.Seq
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: ev}:
					eventsRelayed.Inc()
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

readLoop:
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				if !enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}) {
					break readLoop
				}
				continue
			}
			accepted, err := h.engine.SubmitAnswer(r.Context(), sessionID, payload.PlayerID, payload.QuestionID, payload.OptionIndex)
			if err != nil {
				if !enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}) {
					break readLoop
				}
				continue
			}
			if accepted {
				answersAccepted.Inc()
			} else {
				answersRejected.Inc()
			}
			if !enqueue(outboundMessage[any]{Type: "answerResult", Payload: answerResult{
				QuestionID: payload.QuestionID,
				Accepted:   accepted,
			}}) {
				break readLoop
			}
		default:
			if !enqueue(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}) {
				break readLoop
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
