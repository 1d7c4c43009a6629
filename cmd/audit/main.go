// cmd/audit is the downstream audit-trail consumer: it subscribes to
// every event internal/audit.Emitter publishes and serves the trail
// read-only, in-memory, over HTTP. Spec §1 calls the audit transport's
// actual storage an opaque external collaborator ("downstream storage is
// opaque") — this binary is that collaborator, kept deliberately simple
// (a bounded in-memory ring, not a database) since the engine's own
// commit never depends on it succeeding.
//
// Grounded on cmd/ledger/main.go's gin read-endpoint shape, consuming
// over NATS the way cmd/ledger's "Subscribe to trade events for
// settlement" block does.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"

	"github.com/aniket1251/opd-token-allocation-engine/internal/audit"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/messaging"
	"github.com/aniket1251/opd-token-allocation-engine/shared/events"
)

const ringCapacity = 10000

// ring is a bounded, mutex-guarded buffer of the most recent audit events.
type ring struct {
	mu     sync.RWMutex
	events []*events.BaseEvent
}

func newRing(capacity int) *ring {
	return &ring{events: make([]*events.BaseEvent, 0, capacity)}
}

func (r *ring) add(evt *events.BaseEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	if len(r.events) > ringCapacity {
		r.events = r.events[len(r.events)-ringCapacity:]
	}
}

func (r *ring) snapshot(limit int) []*events.BaseEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]*events.BaseEvent, limit)
	copy(out, r.events[len(r.events)-limit:])
	return out
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func main() {
	port := getEnv("PORT", "8009")
	natsURL := getEnv("NATS_URL", "nats://localhost:4222")

	msgClient, err := messaging.NewClient(messaging.Config{
		URL:            natsURL,
		Name:           "audit-consumer",
		ReconnectWait:  time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer msgClient.Close()

	trail := newRing(ringCapacity)

	err = msgClient.Subscribe(audit.SubjectWildcard, func(msg *nats.Msg) {
		var evt events.BaseEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			log.Printf("audit-consumer: malformed event on %s: %v", msg.Subject, err)
			return
		}
		trail.add(&evt)
	})
	if err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", audit.SubjectWildcard, err)
	}

	r := gin.Default()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/api/v1/audit/events", func(c *gin.Context) {
		limit := 200
		c.JSON(http.StatusOK, gin.H{"events": trail.snapshot(limit)})
	})

	srv := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		log.Printf("Audit consumer listening on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start audit consumer HTTP server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down audit consumer...")
	_ = msgClient.Unsubscribe(audit.SubjectWildcard)
	log.Println("Audit consumer stopped")
}
