package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/facewatch/internal/types"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type resultMessage struct {
	FaceID     string     `json:"face_id"`
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Known      bool       `json:"known"`
	Box        types.BBox `json:"box"`
	Timestamp  int64      `json:"timestamp"`
}

// ResultFeed broadcasts recognition results to WebSocket clients.
type ResultFeed struct {
	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

// NewResultFeed creates a feed with no clients.
func NewResultFeed() *ResultFeed {
	return &ResultFeed{clients: make(map[*websocket.Conn]bool)}
}

// ServeHTTP handles WebSocket upgrade requests.
func (f *ResultFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	f.mu.Lock()
	f.clients[conn] = true
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.clients, conn)
		f.mu.Unlock()
	}()

	// Reading keeps control frames flowing and notices the close
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// Publish sends r to every connected client. Clients whose write fails
// are dropped.
func (f *ResultFeed) Publish(r types.RecognitionResult) {
	msg, err := json.Marshal(resultMessage{
		FaceID:     r.FaceID,
		Label:      r.Label,
		Confidence: r.Confidence,
		Known:      r.Known(),
		Box:        r.Box,
		Timestamp:  r.Timestamp.UnixMilli(),
	})
	if err != nil {
		slog.Debug("result encode failed", "error", err)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for conn := range f.clients {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			delete(f.clients, conn)
		}
	}
}

// Clients returns the number of connected clients.
func (f *ResultFeed) Clients() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}
