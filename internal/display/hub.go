package display

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wastesort/internal/logger"
	"wastesort/internal/vision"
)

const (
	// Frames are dropped instead of blocking the loop when viewers lag.
	broadcastBuffer = 8
	writeTimeout    = 5 * time.Second
)

// Message is the JSON sent to websocket viewers.
type Message struct {
	Type      string    `json:"type"`
	Image     string    `json:"image,omitempty"`
	Text      string    `json:"text,omitempty"`
	Seq       uint64    `json:"seq,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HubService broadcasts annotated frames and advisories to websocket viewers.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger

	encode func(*vision.Frame) ([]byte, error)

	advisoryMu   sync.Mutex
	lastAdvisory []byte
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
		encode:     (*vision.Frame).EncodeJPEG,
	}
}

// Run serves register, unregister and broadcast requests until ctx is done.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", count)

			// The advisory stays on screen until replaced, new viewers get it too
			if last := h.LastAdvisory(); last != nil {
				h.write(client, last)
			}

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", count)

		case message := <-h.broadcast:
			h.mutex.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mutex.RUnlock()

			for _, client := range clients {
				h.write(client, message)
			}
		}
	}
}

func (h *HubService) write(client *websocket.Conn, message []byte) {
	client.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
		h.logger.Error("Error sending message: %v", err)
		h.mutex.Lock()
		delete(h.clients, client)
		h.mutex.Unlock()
		client.Close()
	}
}

func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Present broadcasts the frame as a base64 JPEG. Skipped when nobody watches.
func (h *HubService) Present(frame *vision.Frame) {
	if h.GetClientCount() == 0 {
		return
	}

	jpeg, err := h.encode(frame)
	if err != nil {
		h.logger.Error("Failed to encode frame %d: %v", frame.Seq, err)
		return
	}

	h.send(Message{
		Type:      "frame",
		Image:     base64.StdEncoding.EncodeToString(jpeg),
		Seq:       frame.Seq,
		Timestamp: frame.CapturedAt,
	})
}

// PresentAdvisory broadcasts the advisory text and keeps it for replay.
func (h *HubService) PresentAdvisory(text string) {
	message, err := json.Marshal(Message{Type: "advisory", Text: text, Timestamp: time.Now()})
	if err != nil {
		h.logger.Error("Failed to marshal advisory: %v", err)
		return
	}

	h.advisoryMu.Lock()
	h.lastAdvisory = message
	h.advisoryMu.Unlock()

	h.enqueue(message)
}

// LastAdvisory returns the last advisory message, or nil.
func (h *HubService) LastAdvisory() []byte {
	h.advisoryMu.Lock()
	defer h.advisoryMu.Unlock()
	return h.lastAdvisory
}

func (h *HubService) send(msg Message) {
	message, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal %s message: %v", msg.Type, err)
		return
	}
	h.enqueue(message)
}

func (h *HubService) enqueue(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warning("Viewers are lagging, dropping message")
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
