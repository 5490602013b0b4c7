package main

import (
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"intern-chat/pkg/chatclient"
)

var (
	baseURL   = flag.String("base", "http://localhost:8080", "server base URL")
	wsURL     = flag.String("ws", "ws://localhost:8080/ws", "websocket URL")
	pairCount = flag.Int("pairs", 50, "conversation pairs to run")
	msgCount  = flag.Int("msgs", 20, "messages per side")
)

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d pairs, %d messages each side...", *pairCount, *msgCount)

	var wg sync.WaitGroup
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	codeA := fmt.Sprintf("LT%dA", pairID)
	codeB := fmt.Sprintf("LT%dB", pairID)
	pass := "password123"

	a := connect(codeA, pass)
	b := connect(codeB, pass)
	if a == nil || b == nil {
		return
	}
	defer a.Close()
	defer b.Close()

	// A types while B's conversation view is closed, so B's unread
	// badge should climb to msgCount.
	if _, err := a.OpenConversation(codeB); err != nil {
		log.Printf("❌ Open failed [%s]: %v", codeA, err)
		return
	}
	for i := 0; i < *msgCount; i++ {
		if _, err := a.Send(codeB, fmt.Sprintf("LoadTest msg %d from %s", i, codeA), ""); err != nil {
			log.Printf("❌ Send failed [%s]: %v", codeA, err)
			return
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	// Let the last events land before checking the derived view.
	time.Sleep(500 * time.Millisecond)

	summaries, err := b.Conversations()
	if err != nil {
		log.Printf("❌ Conversations failed [%s]: %v", codeB, err)
		return
	}
	for _, s := range summaries {
		if s.Counterpart == codeA && s.UnreadCount != *msgCount {
			log.Printf("⚠️ %s expected %d unread from %s, got %d", codeB, *msgCount, codeA, s.UnreadCount)
		}
	}

	// B opens the conversation: unread drains, A gets the read receipt.
	entries, err := b.OpenConversation(codeA)
	if err != nil {
		log.Printf("❌ Open failed [%s]: %v", codeB, err)
		return
	}
	if len(entries) != *msgCount {
		log.Printf("⚠️ %s expected %d messages, got %d", codeB, *msgCount, len(entries))
	}

	// B replies over the socket.
	for i := 0; i < *msgCount; i++ {
		if _, err := b.Send(codeA, fmt.Sprintf("LoadTest reply %d from %s", i, codeB), ""); err != nil {
			log.Printf("❌ Send failed [%s]: %v", codeB, err)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	log.Printf("✅ pair %d finished", pairID)
}

func connect(code, pass string) *chatclient.Client {
	c := chatclient.New(*baseURL, *wsURL)
	c.Register(code, "Load Tester "+code, pass)
	if err := c.Login(code, pass); err != nil {
		log.Printf("❌ Login failed [%s]: %v", code, err)
		return nil
	}
	if err := c.Connect(); err != nil {
		log.Printf("❌ WS connect failed [%s]: %v", code, err)
		return nil
	}
	return c
}
