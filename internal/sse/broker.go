// Package sse streams tracker events to browsers over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeTaskUpdated     = "task.updated"
	TypeProgressUpdated = "progress.updated"
	TypeGraphReplaced   = "graph.replaced"
)

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TaskChange is the payload of task.updated.
type TaskChange struct {
	ID   string `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Broker fans events out to every connected client.
//
// A single goroutine owns the client set and the progress throttle clock;
// the exported methods talk to it over channels.
type Broker struct {
	progressEvery time.Duration

	join     chan chan []byte
	leave    chan chan []byte
	events   chan Event
	tasks    chan TaskChange
	countReq chan chan int

	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. progress.updated is emitted at most once per
// progressEvery, following a task change.
func NewBroker(progressEvery time.Duration) *Broker {
	if progressEvery <= 0 {
		progressEvery = 2 * time.Second
	}
	b := &Broker{
		progressEvery: progressEvery,
		join:          make(chan chan []byte),
		leave:         make(chan chan []byte),
		events:        make(chan Event, 256),
		tasks:         make(chan TaskChange, 256),
		countReq:      make(chan chan int),
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastProgress time.Time

	send := func(ev Event) {
		payload, err := json.Marshal(ev.Data)
		if err != nil {
			return
		}
		frame := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, payload))
		for ch := range clients {
			select {
			case ch <- frame:
			default:
				// Slow client; drop rather than stall everyone else.
			}
		}
	}

	for {
		select {
		case <-b.stop:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.join:
			clients[ch] = struct{}{}

		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.events:
			send(ev)

		case change := <-b.tasks:
			send(Event{Type: TypeTaskUpdated, Data: change})
			if now := time.Now(); now.Sub(lastProgress) >= b.progressEvery {
				lastProgress = now
				send(Event{Type: TypeProgressUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReq:
			resp <- len(clients)
		}
	}
}

// Close stops the broker and closes every client channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.stopped
}

// Subscribe registers a client. The returned channel is closed on
// Unsubscribe or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leave <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReq <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts ev as is.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- ev:
	case <-b.stopped:
	}
}

// PublishTaskUpdated broadcasts task.updated and, throttled, progress.updated.
func (b *Broker) PublishTaskUpdated(id, from, to string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.tasks <- TaskChange{ID: id, From: from, To: to}:
	case <-b.stopped:
	}
}

// PublishGraphReplaced broadcasts graph.replaced with the impact summary.
func (b *Broker) PublishGraphReplaced(summary string) {
	b.Publish(Event{Type: TypeGraphReplaced, Data: map[string]string{"summary": summary}})
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(frame)
			flusher.Flush()
		}
	}
}
