// Package feed broadcasts slot-availability snapshot updates to WebSocket
// subscribers watching a doctor's date. Adapted from internal/market/feed.go:
// the same per-key subscriber map and update-channel broadcast loop,
// rekeyed from symbol to (doctorId, date) and carrying
// cache.DoctorDateSnapshot payloads instead of market quotes.
package feed

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aniket1251/opd-token-allocation-engine/internal/cache"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
)

// Subscriber is a single connected WebSocket client watching one
// doctor-date.
type Subscriber struct {
	ID   uuid.UUID
	Conn *websocket.Conn
	Send chan []byte
	Done chan struct{}
}

// Feed fans out snapshot updates to subscribers grouped by doctor-date.
type Feed struct {
	mu          sync.RWMutex
	subscribers map[string]map[uuid.UUID]*Subscriber
}

func New() *Feed {
	return &Feed{subscribers: make(map[string]map[uuid.UUID]*Subscriber)}
}

func scopeKey(doctorID uuid.UUID, date civildate.Date) string {
	return doctorID.String() + "|" + date.String()
}

// Subscribe registers conn to receive updates for (doctorID, date) and
// starts its write pump. The caller owns reading from conn (typically just
// to detect disconnect), since this feed is broadcast-only.
func (f *Feed) Subscribe(doctorID uuid.UUID, date civildate.Date, conn *websocket.Conn) *Subscriber {
	sub := &Subscriber{
		ID:   uuid.New(),
		Conn: conn,
		Send: make(chan []byte, 8),
		Done: make(chan struct{}),
	}

	key := scopeKey(doctorID, date)
	f.mu.Lock()
	if f.subscribers[key] == nil {
		f.subscribers[key] = make(map[uuid.UUID]*Subscriber)
	}
	f.subscribers[key][sub.ID] = sub
	f.mu.Unlock()

	go f.writePump(key, sub)
	return sub
}

func (f *Feed) writePump(key string, sub *Subscriber) {
	defer func() {
		f.mu.Lock()
		delete(f.subscribers[key], sub.ID)
		if len(f.subscribers[key]) == 0 {
			delete(f.subscribers, key)
		}
		f.mu.Unlock()
		sub.Conn.Close()
	}()

	for {
		select {
		case msg := <-sub.Send:
			if err := sub.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-sub.Done:
			return
		}
	}
}

// Unsubscribe stops a subscriber's write pump and removes it.
func (f *Feed) Unsubscribe(sub *Subscriber) {
	select {
	case <-sub.Done:
	default:
		close(sub.Done)
	}
}

// Broadcast sends snap to every subscriber watching its doctor-date. A
// subscriber with a full send buffer is skipped rather than blocking the
// broadcaster — a slow reader must not stall the rest of the fan-out.
func (f *Feed) Broadcast(snap *cache.DoctorDateSnapshot) error {
	date, err := civildate.ParseDate(snap.Date)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	key := scopeKey(snap.DoctorID, date)
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subscribers[key] {
		select {
		case sub.Send <- payload:
		default:
		}
	}
	return nil
}
