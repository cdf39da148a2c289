// Package sse streams sync progress to HTTP clients as Server-Sent Events.
//
// Card events are forwarded as they happen and tallied per note. When the
// note.synced event for a note arrives, the broker sends the note summary
// and schedules a ledger.updated, sent at most once per interval with a
// trailing send so the last change is never swallowed. Every frame carries
// an id; a client reconnecting with Last-Event-ID gets the frames it missed
// from a short history.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Stream event types.
const (
	CardCreated   = "card.created"
	CardUpdated   = "card.updated"
	CardDeleted   = "card.deleted"
	NoteSynced    = "note.synced"
	LedgerUpdated = "ledger.updated"
)

const (
	historySize = 128
	clientBuf   = 64
	retryMillis = 3000
)

// Event is a message to broadcast as is.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CardEvent is the payload of the card.* events.
type CardEvent struct {
	NotePath string `json:"note_path"`
	CardID   int64  `json:"card_id"`
}

// NoteSummary is the payload of note.synced: the card events of the note
// since its previous note.synced.
type NoteSummary struct {
	NotePath string `json:"note_path"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Deleted  int    `json:"deleted"`
}

type syncEvent struct {
	kind   string
	path   string
	cardID int64
}

type subscription struct {
	ch     chan []byte
	lastID uint64
}

type frame struct {
	id  uint64
	raw []byte
}

// Broker fans sync events out to SSE clients. One goroutine owns the
// clients, the history, the per-note tallies and the ledger timer; the
// exported methods talk to it over channels.
type Broker struct {
	ledgerEvery time.Duration

	subscribe   chan subscription
	unsubscribe chan chan []byte
	publish     chan Event
	sync        chan syncEvent
	count       chan chan int

	stop   chan struct{}
	done   chan struct{}
	closed atomic.Bool
}

// NewBroker starts a broker sending ledger.updated at most once per
// interval, two seconds when interval is not positive.
func NewBroker(interval time.Duration) *Broker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	b := &Broker{
		ledgerEvery: interval,
		subscribe:   make(chan subscription),
		unsubscribe: make(chan chan []byte),
		publish:     make(chan Event, 256),
		sync:        make(chan syncEvent, 256),
		count:       make(chan chan int),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	go b.run()
	return b
}

// loop is the state owned by the run goroutine.
type loop struct {
	clients map[chan []byte]struct{}
	history []frame
	seq     uint64
	tallies map[string]*NoteSummary

	lastLedger time.Time
	flush      *time.Timer
}

func (l *loop) send(typ string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	l.seq++
	raw := fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", l.seq, typ, payload)
	if len(l.history) == historySize {
		copy(l.history, l.history[1:])
		l.history = l.history[:historySize-1]
	}
	l.history = append(l.history, frame{id: l.seq, raw: raw})
	for ch := range l.clients {
		offer(ch, raw)
	}
}

// offer drops the frame for a client whose buffer is full.
func offer(ch chan []byte, raw []byte) {
	select {
	case ch <- raw:
	default:
	}
}

func (l *loop) tally(path string) *NoteSummary {
	t, ok := l.tallies[path]
	if !ok {
		t = &NoteSummary{NotePath: path}
		l.tallies[path] = t
	}
	return t
}

func (b *Broker) handleSync(l *loop, ev syncEvent) {
	switch ev.kind {
	case CardCreated:
		l.tally(ev.path).Created++
	case CardUpdated:
		l.tally(ev.path).Updated++
	case CardDeleted:
		l.tally(ev.path).Deleted++
	case NoteSynced:
		sum := l.tally(ev.path)
		delete(l.tallies, ev.path)
		l.send(NoteSynced, sum)
		b.ledgerChanged(l)
		return
	}
	l.send(ev.kind, CardEvent{NotePath: ev.path, CardID: ev.cardID})
}

func (b *Broker) ledgerChanged(l *loop) {
	if l.flush != nil {
		return
	}
	wait := b.ledgerEvery - time.Since(l.lastLedger)
	if wait <= 0 {
		l.lastLedger = time.Now()
		l.send(LedgerUpdated, struct{}{})
		return
	}
	l.flush = time.NewTimer(wait)
}

func (b *Broker) run() {
	defer close(b.done)
	l := &loop{
		clients: make(map[chan []byte]struct{}),
		tallies: make(map[string]*NoteSummary),
	}

	for {
		var flush <-chan time.Time
		if l.flush != nil {
			flush = l.flush.C
		}

		select {
		case <-b.stop:
			if l.flush != nil {
				l.flush.Stop()
			}
			for ch := range l.clients {
				close(ch)
			}
			return

		case sub := <-b.subscribe:
			l.clients[sub.ch] = struct{}{}
			if sub.lastID == 0 {
				continue
			}
			for _, f := range l.history {
				if f.id > sub.lastID {
					offer(sub.ch, f.raw)
				}
			}

		case ch := <-b.unsubscribe:
			if _, ok := l.clients[ch]; ok {
				delete(l.clients, ch)
				close(ch)
			}

		case ev := <-b.publish:
			l.send(ev.Type, ev.Data)

		case ev := <-b.sync:
			b.handleSync(l, ev)

		case <-flush:
			l.flush = nil
			l.lastLedger = time.Now()
			l.send(LedgerUpdated, struct{}{})

		case resp := <-b.count:
			resp <- len(l.clients)
		}
	}
}

// Close stops the broker and closes every client channel. It is safe to
// call more than once.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.done
}

// Subscribe registers a client. With a non-zero lastID the client first
// receives the retained frames sent after that id.
func (b *Broker) Subscribe(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuf)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribe <- subscription{ch: ch, lastID: lastID}:
	case <-b.done:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribe <- ch:
	case <-b.done:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.count <- resp:
	case <-b.done:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.done:
		return 0
	}
}

// Publish broadcasts an event unchanged.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publish <- event:
	case <-b.done:
	}
}

// PublishSyncEvent feeds one event of the sync service to the broker.
// cardID is ignored for note.synced.
func (b *Broker) PublishSyncEvent(kind, notePath string, cardID int64) {
	if b.closed.Load() {
		return
	}
	select {
	case b.sync <- syncEvent{kind: kind, path: notePath, cardID: cardID}:
	case <-b.done:
	}
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.Subscribe(lastID)
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
