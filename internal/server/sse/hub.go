package sse

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"presence-gate/internal/core/processor"

	log "github.com/sirupsen/logrus"
)

// Event-Typen
const (
	EventPresence = "presence"
	EventCommit   = "commit"
)

// Client repräsentiert einen einzelnen verbundenen SSE-Client
type Client chan []byte

// Message ist eine typisierte SSE-Nachricht
type Message struct {
	Event string `json:"event"`
	Data  []byte `json:"-"`
}

// Hub verwaltet die Menge der aktiven Clients und sendet Broadcasts an sie
type Hub struct {
	clients    map[Client]bool
	broadcast  chan Message
	register   chan Client
	unregister chan Client
	done       chan struct{}

	mu sync.Mutex
}

// PresenceData wird bei jeder Änderung der stabilen Anwesenheit gesendet
type PresenceData struct {
	Present    bool                `json:"present"`
	FaceStable bool                `json:"face_stable"`
	PoseStable bool                `json:"pose_stable"`
	FacesCount int                 `json:"faces_count"`
	Indicator  processor.Indicator `json:"indicator"`
	FPS        float64             `json:"fps"`
	Timestamp  time.Time           `json:"timestamp"`
}

// CommitData beschreibt ein Commit-Urteil
type CommitData struct {
	ID         string    `json:"id"`
	Accepted   bool      `json:"accepted"`
	Compared   bool      `json:"compared"`
	Similarity float64   `json:"similarity"`
	NoFrame    bool      `json:"no_frame"`
	FrameSeq   uint64    `json:"frame_seq"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewHub erstellt eine neue Hub-Instanz
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 100), // Puffer für 100 Nachrichten
		register:   make(chan Client),
		unregister: make(chan Client),
		done:       make(chan struct{}),
		clients:    make(map[Client]bool),
	}
}

// Run startet die Verarbeitungsschleife des Hubs bis ctx beendet wird.
// Dies sollte in einer separaten Goroutine ausgeführt werden.
func (h *Hub) Run(ctx context.Context) {
	log.Info("SSE Hub started and running")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.Info("SSE Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Infof("SSE client registered. Total clients: %d", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Infof("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			frame := encode(msg)
			h.mu.Lock()
			log.Debugf("Broadcasting %s event to %d SSE clients", msg.Event, len(h.clients))
			for client := range h.clients {
				select {
				case client <- frame:
				default:
					// Client-Kanal ist voll: Client entfernen
					log.Warn("SSE client channel full, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// encode bringt eine Nachricht in das Format "event: <typ>\ndata: <json>\n\n"
func encode(msg Message) []byte {
	out := make([]byte, 0, len(msg.Data)+len(msg.Event)+16)
	out = append(out, "event: "...)
	out = append(out, msg.Event...)
	out = append(out, "\ndata: "...)
	out = append(out, msg.Data...)
	out = append(out, "\n\n"...)
	return out
}

// Register registriert einen neuen Client am Hub
func (h *Hub) Register(client Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client)
	}
}

// Unregister meldet einen Client vom Hub ab
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount liefert die Anzahl verbundener Clients
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sendet eine Nachricht an alle registrierten Clients
func (h *Hub) Broadcast(event string, data []byte) {
	// Blockieren vermeiden, wenn der Broadcast-Kanal voll ist
	select {
	case h.broadcast <- Message{Event: event, Data: data}:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

func (h *Hub) broadcastJSON(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("Failed to marshal %s event for SSE: %v", event, err)
		return
	}
	h.Broadcast(event, data)
}

// OnPresenceChanged sendet den neuen Anwesenheitszustand
func (h *Hub) OnPresenceChanged(status processor.Status) {
	h.broadcastJSON(EventPresence, PresenceData{
		Present:    status.Present,
		FaceStable: status.FaceStable,
		PoseStable: status.PoseStable,
		FacesCount: status.FacesCount,
		Indicator:  status.Indicator,
		FPS:        status.FPS,
		Timestamp:  status.UpdatedAt,
	})
}

// OnCommit sendet das Urteil eines Commits
func (h *Hub) OnCommit(res processor.CommitResult) {
	h.broadcastJSON(EventCommit, CommitData{
		ID:         res.ID,
		Accepted:   res.Decision.Accepted,
		Compared:   res.Decision.Compared,
		Similarity: res.Decision.Similarity,
		NoFrame:    res.NoFrame,
		FrameSeq:   res.FrameSeq,
		Timestamp:  res.At,
	})
}
