// Package hub maintains the registry of connected WebSocket clients and
// fans out JSON events to all of them. Registration is append-only for the
// life of the process; a slow or gone peer drops messages, it is never
// pruned.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/cubesync/cube-server/internal/metrics"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

const sendQueueSize = 256

// CopyFilesRequest is the inbound control message asking connected peers
// to upload the files matching the given hashes.
type CopyFilesRequest struct {
	Name    string `json:"name"`
	Payload struct {
		Hashes []string `json:"hashes"`
	} `json:"payload"`
}

// Hub tracks connected outbound channels and broadcasts events to them.
type Hub struct {
	mu      sync.Mutex
	clients []chan []byte

	redisClient  *redis.Client
	redisChannel string
	redisWarn    sync.Once
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{}
}

// SetRedisMirror additionally publishes every broadcast to a Redis channel.
// Publish failures are non-fatal.
func (h *Hub) SetRedisMirror(client *redis.Client, channel string) {
	h.redisClient = client
	h.redisChannel = channel
}

// register adds an outbound channel to the broadcast set. There is no
// unregister: membership lasts until process exit.
func (h *Hub) register(send chan []byte) {
	h.mu.Lock()
	h.clients = append(h.clients, send)
	n := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(n))
	log.Debugf("WS client registered (%d connected)", n)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast serializes the event once and sends it to every registered
// client. A full or abandoned queue drops that client's copy silently and
// never aborts the loop.
func (h *Hub) Broadcast(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Errorf("Failed to marshal broadcast event: %v", err)
		return
	}
	h.broadcastRaw(data)
}

func (h *Hub) broadcastRaw(data []byte) {
	h.mu.Lock()
	for _, send := range h.clients {
		select {
		case send <- data:
		default:
			metrics.BroadcastDropsTotal.Inc()
		}
	}
	h.mu.Unlock()

	metrics.BroadcastsTotal.Inc()
	h.mirrorToRedis(data)
}

func (h *Hub) mirrorToRedis(data []byte) {
	if h.redisClient == nil {
		return
	}
	if err := h.redisClient.Publish(context.Background(), h.redisChannel, data).Err(); err != nil {
		// Broadcasts run concurrently; warn exactly once.
		h.redisWarn.Do(func() {
			log.Warnf("Redis event mirror unavailable: %v", err)
		})
	}
}

// HandleControlMessage dispatches one inbound client message. A
// "copy_files" request rebroadcasts a send_raw request per hash to all
// connected clients, the requester included. Anything else is logged and
// ignored.
func (h *Hub) HandleControlMessage(raw []byte) {
	var req CopyFilesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Warnf("Error decoding WS JSON: %v", err)
		return
	}

	switch req.Name {
	case "copy_files":
		for _, hash := range req.Payload.Hashes {
			log.Debugf("Requesting raw upload for %s", hash)
			h.Broadcast(map[string]string{
				"action": "send_raw",
				"hash":   hash,
			})
		}
	default:
		log.Warnf("Unknown WS action: %q", req.Name)
	}
}
