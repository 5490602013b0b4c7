package chat

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"
)

// eventsChannel is the Redis pub/sub channel every instance subscribes
// to. Each instance delivers an envelope to whichever identities it
// currently holds; everyone else ignores it.
const eventsChannel = "chat-events"

// Hub owns the connection lifecycle and the delivery path. Mutating
// operations go through the Dispatcher first (persist), which then
// hands the canonical event to Send (broadcast).
type Hub struct {
	// Registered clients. Only the Run goroutine touches this map,
	// so it needs no lock.
	clients map[*Client]bool

	presence *Presence

	Register   chan *Client
	Unregister chan *Client

	outbound  chan *Envelope // from Dispatcher, to Redis (or straight to delivery)
	broadcast chan *Envelope // from Redis, to local connections

	redis *redis.Client // nil = single instance, local loop only
}

func NewHub(redisClient *redis.Client, presence *Presence) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		presence:   presence,
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		outbound:   make(chan *Envelope, 256),
		broadcast:  make(chan *Envelope, 256),
		redis:      redisClient,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.clients[client] = true
			h.presence.Register(client.Code, client)

		case client := <-h.Unregister:
			// Always check if they exist to avoid double-close panics
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.presence.Unregister(client)
				close(client.Send)
			}

		case env := <-h.outbound:
			if h.redis == nil {
				h.deliver(env)
				continue
			}
			payload, _ := json.Marshal(env)
			if err := h.redis.Publish(context.Background(), eventsChannel, payload).Err(); err != nil {
				log.Printf("❌ Redis publish error: %v", err)
			}

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

// SubscribeToRedis listens for envelopes published by any instance
// (this one included) and feeds them to the delivery loop.
func (h *Hub) SubscribeToRedis() {
	if h.redis == nil {
		return
	}
	pubsub := h.redis.Subscribe(context.Background(), eventsChannel)
	ch := pubsub.Channel()

	for msg := range ch {
		env := &Envelope{}
		if err := json.Unmarshal([]byte(msg.Payload), env); err != nil {
			log.Printf("❌ Dropping malformed envelope: %v", err)
			continue
		}
		h.broadcast <- env
	}
}

// Send queues an event for the identity. No live connection is not an
// error: the message is already persisted and the target catches up on
// its next REST fetch.
func (h *Hub) Send(to string, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("❌ Marshal error for %s event: %v", event, err)
		return
	}
	h.outbound <- &Envelope{To: to, Event: event, Data: data}
}

// deliver routes an envelope to the local connection holding the
// identity, if any. Runs on the Run goroutine only.
func (h *Hub) deliver(env *Envelope) {
	client := h.presence.Route(env.To)
	if client == nil || !h.clients[client] {
		return
	}
	frame, _ := json.Marshal(Event{Name: env.Event, Data: env.Data})
	select {
	case client.Send <- frame:
	default:
		// Slow consumer: drop the connection, keep the hub moving.
		delete(h.clients, client)
		h.presence.Unregister(client)
		close(client.Send)
	}
}
