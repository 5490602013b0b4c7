package chat

import "sync"

// Presence maps a logical identity to its live connection on this
// instance. Routing is by identity, never by connection handle: a
// later connection for the same code silently replaces the earlier
// one as the delivery target.
type Presence struct {
	mu     sync.RWMutex
	byCode map[string]*Client
}

func NewPresence() *Presence {
	return &Presence{byCode: make(map[string]*Client)}
}

func (p *Presence) Register(code string, c *Client) {
	p.mu.Lock()
	p.byCode[code] = c
	p.mu.Unlock()
}

// Unregister removes the client only if it is still the active route
// for its identity. A stale connection unregistering must not knock
// out its replacement.
func (p *Presence) Unregister(c *Client) {
	p.mu.Lock()
	if cur, ok := p.byCode[c.Code]; ok && cur == c {
		delete(p.byCode, c.Code)
	}
	p.mu.Unlock()
}

// Route returns whoever is currently connected as the identity, or nil.
func (p *Presence) Route(code string) *Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byCode[code]
}

func (p *Presence) Online(code string) bool {
	return p.Route(code) != nil
}
