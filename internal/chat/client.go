package chat

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Configuration constants (Good practice to avoid magic numbers)
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 8192                // Maximum message size allowed from peer.
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	Hub      *Hub
	Dispatch *Dispatcher
	Conn     *websocket.Conn
	// Buffered channel of outbound frames.
	Send chan []byte
	// The authenticated identity behind this connection.
	Code string
}

// ReadPump pumps frames from the websocket connection to the dispatcher.
func (c *Client) ReadPump() {
	defer func() {
		// Cleanup: If connection dies, tell Hub to unregister
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)

	// Heartbeat logic (Keep-Alive)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws error [%s]: %v", c.Code, err)
			}
			break
		}
		c.handleFrame(raw)
	}
}

// handleFrame decodes one client frame. A malformed or failing frame is
// logged and dropped; it never takes the connection down.
func (c *Client) handleFrame(raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		log.Printf("dropping malformed frame from %s: %v", c.Code, err)
		return
	}

	switch ev.Name {
	case EventNewMessage:
		var req SendRequest
		if err := json.Unmarshal(ev.Data, &req); err != nil {
			log.Printf("dropping malformed send from %s: %v", c.Code, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := c.Dispatch.Send(ctx, c.Code, &req); err != nil {
			log.Printf("send failed [%s -> %s]: %v", c.Code, req.To, err)
		}
	default:
		log.Printf("dropping unknown frame %q from %s", ev.Name, c.Code)
	}
}

// WritePump pumps frames from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			// Set a write deadline so we don't hang forever
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The Hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)

			// Optimization: If there are queued frames, write them all in one go
			// This reduces system calls (syscalls are expensive).
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			// Heartbeat: Send a Ping to keep the connection alive
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
