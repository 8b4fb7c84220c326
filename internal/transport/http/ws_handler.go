// Package http exposes the quiz engine to the messaging surface over
// WebSocket. Each connected surface session is registered in a Gateway that
// implements flow.Messenger, so the controller can push question and summary
// messages to whichever connection currently serves the user.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"wellness-quiz-engine/internal/flow"
	"wellness-quiz-engine/internal/quizdef"
)

// Gateway routes controller output to connected users. It implements
// flow.Messenger.
type Gateway struct {
	mu     sync.RWMutex
	conns  map[string]*client
	nextID uint64
}

func NewGateway() *Gateway {
	return &Gateway{conns: make(map[string]*client)}
}

type client struct {
	send chan outboundMessage[any]
}

type messagePayload struct {
	MessageID string        `json:"messageId"`
	Text      string        `json:"text"`
	Image     string        `json:"image,omitempty"`
	Buttons   []flow.Button `json:"buttons,omitempty"`
}

type deletedPayload struct {
	MessageID string `json:"messageId"`
}

func (g *Gateway) SendText(_ context.Context, userID, text string, buttons []flow.Button) (string, error) {
	return g.push(userID, messagePayload{Text: text, Buttons: buttons})
}

func (g *Gateway) SendPhoto(_ context.Context, userID, image, caption string, buttons []flow.Button) (string, error) {
	return g.push(userID, messagePayload{Text: caption, Image: image, Buttons: buttons})
}

func (g *Gateway) DeleteMessage(_ context.Context, userID, messageID string) error {
	conn, ok := g.lookup(userID)
	if !ok {
		return fmt.Errorf("user %s not connected", userID)
	}
	conn.send <- outboundMessage[any]{Type: "deleted", Payload: deletedPayload{MessageID: messageID}}
	return nil
}

func (g *Gateway) push(userID string, payload messagePayload) (string, error) {
	conn, ok := g.lookup(userID)
	if !ok {
		return "", fmt.Errorf("user %s not connected", userID)
	}
	payload.MessageID = fmt.Sprintf("m%d", atomic.AddUint64(&g.nextID, 1))
	conn.send <- outboundMessage[any]{Type: "message", Payload: payload}
	return payload.MessageID, nil
}

func (g *Gateway) lookup(userID string) (*client, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	conn, ok := g.conns[userID]
	return conn, ok
}

func (g *Gateway) attach(userID string, conn *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[userID] = conn
}

func (g *Gateway) detach(userID string, conn *client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conns[userID] == conn {
		delete(g.conns, userID)
	}
}

// WSHandler upgrades surface connections and feeds their taps into the flow
// controller.
type WSHandler struct {
	controller *flow.Controller
	defs       *quizdef.Store
	gateway    *Gateway
	upgrader   websocket.Upgrader
}

func NewWSHandler(controller *flow.Controller, defs *quizdef.Store, gateway *Gateway) *WSHandler {
	return &WSHandler{
		controller: controller,
		defs:       defs,
		gateway:    gateway,
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

type startPayload struct {
	Quiz string `json:"quiz"`
}

type tapPayload struct {
	MessageID string `json:"messageId"`
	Data      string `json:"data"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type quizListPayload struct {
	Names []string `json:"names"`
}

// ServeWS handles one surface connection. Inbound messages are processed
// sequentially, which is the per-user ordering the flow relies on.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	cl := &client{send: make(chan outboundMessage[any], 16)}
	h.gateway.attach(userID, cl)
	defer h.gateway.detach(userID, cl)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range cl.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			var payload startPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Quiz == "" {
				cl.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid start payload"}}
				continue
			}
			if err := h.controller.Start(r.Context(), userID, payload.Quiz); err != nil {
				log.Printf("start quiz %s for %s: %v", payload.Quiz, userID, err)
			}
		case "tap":
			var payload tapPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				cl.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid tap payload"}}
				continue
			}
			if err := h.controller.HandleEvent(r.Context(), flow.Event{
				UserID:    userID,
				MessageID: payload.MessageID,
				Token:     payload.Data,
			}); err != nil {
				log.Printf("tap for %s: %v", userID, err)
			}
		case "quizzes":
			names, err := h.defs.Names(r.Context())
			if err != nil {
				cl.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "quiz list unavailable"}}
				continue
			}
			cl.send <- outboundMessage[any]{Type: "quizzes", Payload: quizListPayload{Names: names}}
		default:
			cl.send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(cl.send)
	<-writerDone
}
