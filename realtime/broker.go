package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"
)

// Event names pushed to dashboard clients
const (
	EventJobCompleted  = "job.completed"
	EventJobFailed     = "job.failed"
	EventDataRefreshed = "data.refreshed"
)

// Message is the envelope every client receives
type Message struct {
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher fans an event out to connected clients
type Publisher interface {
	Broadcast(event string, payload interface{})
}

// Multi broadcasts to every publisher in order
type Multi []Publisher

// Broadcast implements Publisher
func (m Multi) Broadcast(event string, payload interface{}) {
	for _, p := range m {
		if p != nil {
			p.Broadcast(event, payload)
		}
	}
}

func encode(event string, payload interface{}) ([]byte, error) {
	return json.Marshal(Message{Event: event, Payload: payload, Timestamp: time.Now().UTC()})
}

// Broker handles Server-Sent Events (SSE) clients and broadcasting
type Broker struct {
	clients    map[chan []byte]bool
	register   chan chan []byte
	unregister chan chan []byte
	broadcast  chan []byte
	done       chan struct{}
	mu         sync.RWMutex
}

// NewBroker creates a new SSE broker
func NewBroker() *Broker {
	return &Broker{
		clients:    make(map[chan []byte]bool),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the broker loop and returns when ctx is done
func (b *Broker) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for client := range b.clients {
				delete(b.clients, client)
				close(client)
			}
			b.mu.Unlock()
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			total := len(b.clients)
			b.mu.Unlock()
			log.Printf("SSE client connected. Total: %d", total)

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
				log.Printf("SSE client disconnected. Total: %d", len(b.clients))
			}
			b.mu.Unlock()

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// Slow client, drop rather than block the loop
				}
			}
			b.mu.RUnlock()
		}
	}
}

// Clients returns the number of connected SSE clients
func (b *Broker) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// ServeHTTP handles the SSE endpoint
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientChan := make(chan []byte, 16)
	select {
	case b.register <- clientChan:
	case <-b.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			select {
			case b.unregister <- clientChan:
			case <-b.done:
			}
			return
		case msg, ok := <-clientChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Broadcast queues an event for every connected client
func (b *Broker) Broadcast(event string, payload interface{}) {
	jsonBytes, err := encode(event, payload)
	if err != nil {
		log.Printf("⚠️  Failed to encode %s event: %v", event, err)
		return
	}

	select {
	case b.broadcast <- jsonBytes:
	default:
		log.Printf("⚠️  SSE broadcast buffer full, dropping %s", event)
	}
}
