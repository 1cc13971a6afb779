// Package remote exposes a WebSocket bridge through which clients inject
// text commands and vision frames into the pipeline and receive transcript
// and response events.
package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Inbound is one client message.
type Inbound struct {
	Type string `json:"type"` // "text" or "vision"
	Data string `json:"data"` // command text, or base64 image bytes
}

// Event is one server-to-client notification.
type Event struct {
	Type string `json:"type"` // "transcript" or "response"
	Data string `json:"data"`
}

// Sink is the slice of the pipeline the bridge feeds.
type Sink interface {
	PushText(source, text string)
	PushVision(image []byte)
}

// Bridge serves /ws and fans events out to connected clients.
type Bridge struct {
	sink   Sink
	server *http.Server

	mu      sync.Mutex
	clients map[string]*websocket.Conn
}

// NewBridge creates a bridge feeding sink.
func NewBridge(sink Sink) *Bridge {
	return &Bridge{
		sink:    sink,
		clients: make(map[string]*websocket.Conn),
	}
}

// Start listens on addr until Shutdown.
func (b *Bridge) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)

	b.server = &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️  WebSocket bridge stopped: %v", err)
		}
	}()
	log.Printf("🌐 WebSocket bridge listening on %s", addr)
	return nil
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("⚠️  WebSocket accept failed: %v", err)
		return
	}

	id := uuid.NewString()
	b.mu.Lock()
	b.clients[id] = conn
	b.mu.Unlock()

	log.Printf("🌐 Remote client connected: %s", id)
	defer func() {
		b.mu.Lock()
		delete(b.clients, id)
		b.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		log.Printf("🌐 Remote client disconnected: %s", id)
	}()

	ctx := r.Context()
	for {
		var msg Inbound
		if err := readJSON(ctx, conn, &msg); err != nil {
			return
		}

		switch msg.Type {
		case "text":
			b.sink.PushText("ws:"+id[:8], msg.Data)
		case "vision":
			image, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				log.Printf("⚠️  Ignoring malformed vision frame from %s: %v", id[:8], err)
				continue
			}
			b.sink.PushVision(image)
		default:
			log.Printf("⚠️  Unknown message type %q from %s", msg.Type, id[:8])
		}
	}
}

func readJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// Broadcast sends an event to every connected client, one after another.
// Each write is bounded by a one-second timeout and a failed write is
// ignored.
func (b *Bridge) Broadcast(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for _, c := range b.clients {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = c.Write(ctx, websocket.MessageText, data)
		cancel()
	}
}

// Shutdown closes the listener and all client connections.
func (b *Bridge) Shutdown(ctx context.Context) {
	if b.server != nil {
		_ = b.server.Shutdown(ctx)
	}

	b.mu.Lock()
	for _, c := range b.clients {
		c.Close(websocket.StatusGoingAway, "shutting down")
	}
	b.clients = make(map[string]*websocket.Conn)
	b.mu.Unlock()
}
