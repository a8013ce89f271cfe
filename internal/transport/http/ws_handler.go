package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pfp-quiz-service/internal/app"
	"pfp-quiz-service/internal/domain"
)

const (
	sendBuffer      = 32
	presenceRefresh = time.Minute
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
	// Verbose logs every inbound command.
	Verbose bool
	// PresenceRefresh is how often an idle connection refreshes the
	// player's presence marker. It must stay below the marker TTL.
	PresenceRefresh time.Duration
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		PresenceRefresh: presenceRefresh,
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type modePayload struct {
	Mode string `json:"mode"`
}

type startPayload struct {
	Mode          string `json:"mode"`
	QuestionLimit string `json:"questionLimit"`
}

type answerPayload struct {
	Username string `json:"username"`
}

type historyPayload struct {
	Index int `json:"index"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// outbox queues messages for the writer goroutine. Controller events arrive
// while the controller is locked, so push never blocks: when the buffer is
// full the oldest queued message is dropped.
type outbox struct {
	mu     sync.Mutex
	ch     chan outboundMessage
	closed bool
}

func newOutbox(size int) *outbox {
	return &outbox{ch: make(chan outboundMessage, size)}
}

func (o *outbox) push(msg outboundMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	for {
		select {
		case o.ch <- msg:
			return
		default:
		}
		select {
		case dropped := <-o.ch:
			log.Printf("ws outbox full, dropping %s", dropped.Type)
		default:
		}
	}
}

func (o *outbox) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

// OnEvent forwards controller events to the socket.
func (o *outbox) OnEvent(e app.Event) {
	o.push(outboundMessage{Type: string(e.Type), Payload: e.Payload})
}

func (o *outbox) fail(err error) {
	o.push(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error(), Code: errorCode(err)}})
}

// ServeWS upgrades HTTP requests to websockets and drives one player's controller.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	out := newOutbox(sendBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range out.ch {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()
	defer func() {
		out.close()
		<-writerDone
	}()

	ctx := r.Context()
	c, _, err := h.service.SignIn(ctx, token, out)
	if err != nil {
		out.fail(err)
		return
	}
	fid := c.Profile().FID
	defer h.service.SignOut(fid, c)

	stopRefresh := make(chan struct{})
	defer close(stopRefresh)
	go h.refreshPresence(fid, stopRefresh)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.service.Touch(ctx, fid)
		h.logf("ws player %d: %s", fid, inbound.Type)
		if err := h.dispatch(ctx, c, out, inbound); err != nil {
			h.logf("ws player %d: %s failed: %v", fid, inbound.Type, err)
			out.fail(err)
		}
	}
}

// refreshPresence keeps the presence marker alive while the socket is open,
// even when the player sends nothing.
func (h *WSHandler) refreshPresence(fid int64, stop <-chan struct{}) {
	interval := h.PresenceRefresh
	if interval <= 0 {
		interval = presenceRefresh
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.service.Touch(context.Background(), fid)
		}
	}
}

// dispatch runs one inbound command. Successful commands answer through
// controller events; only failures and acknowledgements are sent from here.
func (h *WSHandler) dispatch(ctx context.Context, c *app.Controller, out *outbox, inbound inboundMessage) error {
	switch inbound.Type {
	case "selectMode":
		var payload modePayload
		if err := decode(inbound.Payload, &payload); err != nil {
			return err
		}
		if err := c.SelectMode(domain.Mode(payload.Mode)); err != nil {
			return err
		}
		out.push(outboundMessage{Type: "questionSelect", Payload: payload})
		return nil
	case "start":
		var payload startPayload
		if err := decode(inbound.Payload, &payload); err != nil {
			return err
		}
		limit, err := domain.ParseQuestionLimit(payload.QuestionLimit)
		if err != nil {
			return err
		}
		mode := domain.Mode(payload.Mode)
		if mode == "" {
			mode = c.State().Mode
		}
		_, err = c.StartSession(ctx, mode, limit)
		return err
	case "answer":
		var payload answerPayload
		if err := decode(inbound.Payload, &payload); err != nil {
			return err
		}
		_, err := c.SubmitAnswer(payload.Username)
		return err
	case "viewProfile":
		_, err := c.PauseForProfileView()
		return err
	case "viewHistory":
		var payload historyPayload
		if err := decode(inbound.Payload, &payload); err != nil {
			return err
		}
		_, err := c.ViewHistoryProfile(payload.Index)
		return err
	case "resume":
		_, err := c.ResumeFromProfile(ctx)
		return err
	case "quit":
		_, err := c.Quit(ctx)
		return err
	case "summary":
		_, err := c.ShowSummary()
		return err
	case "leaderboard":
		_, err := c.ShowLeaderboard(ctx)
		return err
	case "back":
		_, err := c.Back()
		return err
	case "playAgain":
		return c.PlayAgain()
	case "settings":
		// Fields missing from the payload keep their current values.
		payload := c.Progress().Settings
		if err := decode(inbound.Payload, &payload); err != nil {
			return err
		}
		_, err := c.UpdateSettings(ctx, payload)
		return err
	default:
		return errUnsupported
	}
}

func (h *WSHandler) logf(format string, args ...any) {
	if h.Verbose {
		log.Printf(format, args...)
	}
}

var (
	errUnsupported    = errors.New("unsupported message type")
	errInvalidPayload = errors.New("invalid payload")
)

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errInvalidPayload
	}
	return nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrAuthenticationFailed):
		return "unauthenticated"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, domain.ErrUnknownChoice):
		return "unknown_choice"
	case errors.Is(err, domain.ErrInvalidMode), errors.Is(err, domain.ErrInvalidQuestionLimit),
		errors.Is(err, domain.ErrInvalidSettings), errors.Is(err, errInvalidPayload):
		return "bad_request"
	case errors.Is(err, domain.ErrNoProfiles):
		return "no_profiles"
	case errors.Is(err, errUnsupported):
		return "unsupported"
	}
	return ""
}
