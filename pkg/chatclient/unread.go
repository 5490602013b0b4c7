package chatclient

import "sync"

// UnreadCounter tracks per-counterpart unread badges. The whole map is
// re-derivable from the server (unread state lives on the messages),
// so a lost update here costs nothing more than a stale badge until
// the next conversations fetch.
type UnreadCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewUnreadCounter() *UnreadCounter {
	return &UnreadCounter{counts: make(map[string]int)}
}

func (u *UnreadCounter) Inc(counterpart string) {
	u.mu.Lock()
	u.counts[counterpart]++
	u.mu.Unlock()
}

func (u *UnreadCounter) Clear(counterpart string) {
	u.mu.Lock()
	delete(u.counts, counterpart)
	u.mu.Unlock()
}

// Get returns 0 for any counterpart without unread messages.
func (u *UnreadCounter) Get(counterpart string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[counterpart]
}

// Set overwrites a badge from a server-derived count (conversations
// fetch), winning over whatever was accumulated locally.
func (u *UnreadCounter) Set(counterpart string, n int) {
	u.mu.Lock()
	if n <= 0 {
		delete(u.counts, counterpart)
	} else {
		u.counts[counterpart] = n
	}
	u.mu.Unlock()
}
