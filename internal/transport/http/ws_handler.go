package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"trivia-live-service/internal/app"
	"trivia-live-service/internal/domain"
	"trivia-live-service/internal/notify"
)

type WSHandler struct {
	engine     *app.Engine
	hub        *notify.Hub
	hostSecret string
	upgrader   websocket.Upgrader

	mu       sync.Mutex
	attached map[string]int
}

// NewWSHandler serves player and host sockets. An empty hostSecret lets any
// host connect.
func NewWSHandler(engine *app.Engine, hub *notify.Hub, hostSecret string) *WSHandler {
	return &WSHandler{
		engine:     engine,
		hub:        hub,
		hostSecret: hostSecret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		attached: make(map[string]int),
	}
}

// attach counts a socket bound to a team.
func (h *WSHandler) attach(competitionID, teamID string) {
	h.mu.Lock()
	h.attached[competitionID+"/"+teamID]++
	h.mu.Unlock()
}

// release drops a socket binding. The team leaves the live list once its last
// socket is gone.
func (h *WSHandler) release(competitionID, teamID string) {
	key := competitionID + "/" + teamID
	h.mu.Lock()
	h.attached[key]--
	last := h.attached[key] <= 0
	if last {
		delete(h.attached, key)
	}
	h.mu.Unlock()
	if last {
		h.engine.DetachTeam(competitionID, teamID)
	}
}

// NewMux wires the socket endpoints, the health check and, when given, the
// metrics handler.
func NewMux(ws *WSHandler, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", ws.ServePlayer)
	mux.HandleFunc("/ws/host", ws.ServeHost)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type timerPayload struct {
	TimeRemaining int `json:"timeRemaining"`
}

// client owns one socket. Only the writer goroutine writes to conn.
type client struct {
	conn         *websocket.Conn
	send         chan outboundMessage[any]
	closeSignals chan struct{}
	writerDone   chan struct{}
	updatesDone  chan struct{}
}

// push queues a message; it gives up once the writer has stopped.
func (c *client) push(typ string, payload any) {
	select {
	case c.send <- outboundMessage[any]{Type: typ, Payload: payload}:
	case <-c.writerDone:
	}
}

func (c *client) fail(message string) {
	c.push("error", errorPayload{Message: message})
}

// serve subscribes the socket to its competition, sends the current state and
// hands every inbound message to handle until the peer goes away.
func (h *WSHandler) serve(conn *websocket.Conn, competitionID string, handle func(*client, inboundMessage)) {
	events, cancel := h.hub.Subscribe(competitionID)
	defer cancel()

	c := &client{
		conn:         conn,
		send:         make(chan outboundMessage[any], 16),
		closeSignals: make(chan struct{}),
		writerDone:   make(chan struct{}),
		updatesDone:  make(chan struct{}),
	}

	go func() {
		defer close(c.writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws: write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(c.updatesDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				msg := eventMessage(ev)
				select {
				case c.send <- msg:
				case <-c.closeSignals:
					return
				case <-c.writerDone:
					return
				}
			case <-c.closeSignals:
				return
			}
		}
	}()

	c.push(domain.EventState, h.engine.State(competitionID))

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		handle(c, inbound)
	}

	close(c.closeSignals)
	<-c.updatesDone
	close(c.send)
	<-c.writerDone
}

func eventMessage(ev domain.Event) outboundMessage[any] {
	switch ev.Type {
	case domain.EventTimer:
		remaining := 0
		if ev.TimeRemaining != nil {
			remaining = *ev.TimeRemaining
		}
		return outboundMessage[any]{Type: ev.Type, Payload: timerPayload{TimeRemaining: remaining}}
	case domain.EventScores:
		return outboundMessage[any]{Type: ev.Type, Payload: ev.Teams}
	}
	return outboundMessage[any]{Type: ev.Type, Payload: ev.State}
}

type joinPayload struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type reconnectPayload struct {
	TeamID string `json:"teamId"`
}

type answerPayload struct {
	QuestionID string          `json:"questionId"`
	Answer     json.RawMessage `json:"answer"`
}

type answerAck struct {
	Success  bool   `json:"success"`
	Pending  bool   `json:"pending"`
	AnswerID string `json:"answerId,omitempty"`
}

// ServePlayer handles a team's socket: join or reconnect, then answers.
func (h *WSHandler) ServePlayer(w http.ResponseWriter, r *http.Request) {
	competitionID := r.URL.Query().Get("competitionId")
	if competitionID == "" {
		http.Error(w, "missing competitionId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	var teamID string
	bind := func(id string) {
		if id == teamID {
			return
		}
		if teamID != "" {
			h.release(competitionID, teamID)
		}
		teamID = id
		h.attach(competitionID, teamID)
	}
	defer func() {
		if teamID != "" {
			h.release(competitionID, teamID)
		}
	}()
	h.serve(conn, competitionID, func(c *client, in inboundMessage) {
		switch in.Type {
		case "join":
			var p joinPayload
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				c.fail("invalid join payload")
				return
			}
			team, err := h.engine.AddTeam(ctx, competitionID, p.Name, p.Color)
			if err != nil {
				c.fail(err.Error())
				return
			}
			bind(team.ID)
			c.push("joined", team)
		case "reconnect":
			var p reconnectPayload
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				c.fail("invalid reconnect payload")
				return
			}
			team, err := h.engine.ReconnectTeam(ctx, competitionID, p.TeamID)
			if err != nil {
				c.fail(err.Error())
				return
			}
			if team == nil {
				c.push("reconnectFailed", p)
				return
			}
			bind(team.ID)
			c.push("joined", team)
		case "answer":
			if teamID == "" {
				c.fail("join before answering")
				return
			}
			var p answerPayload
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				c.fail("invalid answer payload")
				return
			}
			res, err := h.engine.SubmitAnswer(ctx, competitionID, teamID, p.QuestionID, p.Answer)
			if err != nil {
				log.Printf("ws: submit answer for team %s: %v", teamID, err)
			}
			c.push("answerAck", answerAck{Success: res.Accepted, Pending: res.Pending, AnswerID: res.AnswerID})
		default:
			c.fail("unsupported message type")
		}
	})
}

type startQuestionPayload struct {
	QuestionID string `json:"questionId"`
}

type startTimerPayload struct {
	Seconds int `json:"seconds"`
}

type setPhasePayload struct {
	Phase string `json:"phase"`
}

type gradeDecisionPayload struct {
	AnswerID string `json:"answerId"`
	Correct  bool   `json:"correct"`
}

// ServeHost handles the control surface of a competition. Command failures
// are logged rather than sent back.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request) {
	competitionID := r.URL.Query().Get("competitionId")
	if competitionID == "" {
		http.Error(w, "missing competitionId", http.StatusBadRequest)
		return
	}
	if !h.authorized(r.URL.Query().Get("secret")) {
		http.Error(w, domain.ErrUnauthorized.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	h.serve(conn, competitionID, func(c *client, in inboundMessage) {
		if err := h.command(ctx, c, competitionID, in); err != nil {
			log.Printf("ws: host command %s on %s: %v", in.Type, competitionID, err)
		}
	})
}

func (h *WSHandler) authorized(secret string) bool {
	if h.hostSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(h.hostSecret)) == 1
}

func (h *WSHandler) command(ctx context.Context, c *client, competitionID string, in inboundMessage) error {
	switch in.Type {
	case "startQuestion":
		var p startQuestionPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return err
		}
		return h.engine.StartQuestion(ctx, competitionID, p.QuestionID)
	case "startTimer":
		var p startTimerPayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &p); err != nil {
				return err
			}
		}
		h.engine.StartTimer(competitionID, p.Seconds, nil)
	case "pauseTimer":
		h.engine.PauseTimer(competitionID)
	case "resumeTimer":
		h.engine.ResumeTimer(competitionID)
	case "revealAnswer":
		h.engine.RevealAnswer(competitionID)
	case "next":
		return h.engine.Next(ctx, competitionID, nil)
	case "setPhase":
		var p setPhasePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return err
		}
		return h.engine.SetPhase(competitionID, domain.Phase(p.Phase))
	case "gradeDecision":
		var p gradeDecisionPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return err
		}
		return h.engine.HandleGradeDecision(ctx, competitionID, p.AnswerID, p.Correct)
	case "pendingAnswers":
		answers, err := h.engine.PendingAnswers(ctx, competitionID)
		if err != nil {
			return err
		}
		c.push("pendingAnswers", answers)
	default:
		log.Printf("ws: unknown host command %q", in.Type)
	}
	return nil
}
