package chatclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"intern-chat/internal/chat"
)

// Client is the full chat client: REST for snapshots and fallbacks,
// the websocket for real-time events, and a Reconciler holding the
// merged view.
type Client struct {
	BaseURL string
	WSURL   string

	httpc *http.Client
	token string
	Me    string
	Rec   *Reconciler

	connMu sync.Mutex
	conn   *websocket.Conn
}

func New(baseURL, wsURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		WSURL:   wsURL,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	Code        string `json:"code"`
}

// Register creates the identity. A conflict (already registered) is
// not an error worth surfacing here; Login decides.
func (c *Client) Register(code, displayName, password string) {
	body, _ := json.Marshal(map[string]string{
		"code": code, "display_name": displayName, "password": password,
	})
	resp, err := c.httpc.Post(c.BaseURL+"/register", "application/json", bytes.NewReader(body))
	if err == nil {
		resp.Body.Close()
	}
}

func (c *Client) Login(code, password string) error {
	body, _ := json.Marshal(map[string]string{"code": code, "password": password})
	resp, err := c.httpc.Post(c.BaseURL+"/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: %s", resp.Status)
	}

	var data loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return err
	}
	c.token = data.AccessToken
	c.Me = data.Code
	c.Rec = NewReconciler(c.Me)
	c.Rec.SetAutoRead(func(counterpart string) {
		// Fire-and-forget: a failed mark-read leaves the server flag
		// set and the next full fetch re-syncs it.
		go func() {
			if _, err := c.MarkRead(counterpart); err != nil {
				log.Printf("mark-read %s: %v", counterpart, err)
			}
		}()
	})
	return nil
}

// Connect dials the real-time channel and starts the event loop.
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", c.WSURL, c.token), nil)
	if err != nil {
		return err
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	go c.listen(conn)
	return nil
}

func (c *Client) Close() {
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
}

// listen pumps server frames into the reconciler. The server coalesces
// queued frames into one websocket message separated by newlines, so
// decode until the payload is exhausted.
func (c *Client) listen(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		for {
			var ev chat.Event
			if err := dec.Decode(&ev); err != nil {
				if err != io.EOF {
					log.Printf("dropping malformed frame: %v", err)
				}
				break
			}
			if err := c.Rec.HandleEvent(ev); err != nil {
				log.Printf("dropping event: %v", err)
			}
		}
	}
}

// OpenConversation switches the reconciler to the counterpart and
// seeds it from REST. The server marks the history read as part of the
// fetch, which is why the local badge clears optimistically in Open.
func (c *Client) OpenConversation(counterpart string) ([]Entry, error) {
	ticket := c.Rec.Open(counterpart)

	var msgs []*chat.Message
	if err := c.doJSON(http.MethodGet, "/api/messages/"+counterpart, nil, &msgs); err != nil {
		return nil, err
	}
	c.Rec.ApplySnapshot(ticket, msgs)
	return c.Rec.Messages(), nil
}

// Send renders the message optimistically, then pushes it over the
// socket, falling back to REST when the socket is down. A send that
// fails both ways keeps the optimistic entry on screen: the user
// already saw their own message; they retry manually.
func (c *Client) Send(to, body, kind string) (*Entry, error) {
	entry := c.Rec.SendOptimistic(to, body, kind)

	req := chat.SendRequest{To: to, Message: body, Type: kind, TempID: entry.TempID}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn != nil {
		data, _ := json.Marshal(req)
		frame, _ := json.Marshal(chat.Event{Name: chat.EventNewMessage, Data: data})
		if err := conn.WriteMessage(websocket.TextMessage, frame); err == nil {
			return entry, nil
		}
	}

	// Socket unavailable: same persist-and-broadcast via REST.
	if err := c.doJSON(http.MethodPost, "/api/send-message", req, nil); err != nil {
		return entry, err
	}
	return entry, nil
}

func (c *Client) Edit(id int, body string) error {
	return c.doJSON(http.MethodPut, fmt.Sprintf("/api/message/%d", id), map[string]string{"message": body}, nil)
}

func (c *Client) Recall(id int) error {
	return c.doJSON(http.MethodDelete, fmt.Sprintf("/api/message/%d", id), nil, nil)
}

func (c *Client) React(id int, emoji string) error {
	return c.doJSON(http.MethodPost, fmt.Sprintf("/api/message/%d/reaction", id), map[string]string{"emoji": emoji}, nil)
}

func (c *Client) MarkRead(counterpart string) (int, error) {
	var out map[string]int
	if err := c.doJSON(http.MethodPut, "/api/read/"+counterpart, nil, &out); err != nil {
		return 0, err
	}
	return out["read"], nil
}

// Conversations fetches the derived list and re-syncs the local unread
// badges from the server-side truth.
func (c *Client) Conversations() ([]chat.ConversationSummary, error) {
	var out []chat.ConversationSummary
	if err := c.doJSON(http.MethodGet, "/api/conversations", nil, &out); err != nil {
		return nil, err
	}
	for _, s := range out {
		if s.Counterpart != c.Rec.Current() {
			c.Rec.Unread().Set(s.Counterpart, s.UnreadCount)
		}
	}
	return out, nil
}

func (c *Client) DeleteConversation(counterpart string) error {
	return c.doJSON(http.MethodDelete, "/api/conversation/"+counterpart, nil, nil)
}

func (c *Client) doJSON(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
