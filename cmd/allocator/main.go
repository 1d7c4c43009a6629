// cmd/allocator is an asynchronous intake worker: external systems that
// cannot call the gateway's synchronous HTTP API directly (a kiosk queue,
// a batch import from another EMR) publish a create-token command over
// NATS instead, and this process runs it through the same engine and
// replies with the result. It is a second front door onto
// internal/engine, not a replacement for cmd/gateway's direct HTTP path.
//
// Grounded on cmd/matching/main.go's shape (connect to NATS, construct one
// engine, run until signalled) with request/reply added the way
// pkg/messaging.Client.Request expects a replying subscriber on the other
// end.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/aniket1251/opd-token-allocation-engine/internal/audit"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/engine"
	"github.com/aniket1251/opd-token-allocation-engine/internal/metrics"
	"github.com/aniket1251/opd-token-allocation-engine/internal/naming"
	"github.com/aniket1251/opd-token-allocation-engine/internal/priority"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/internal/token"
	"github.com/aniket1251/opd-token-allocation-engine/internal/txn"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/circuit"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/messaging"
)

const createSubject = "opd.token.create.request"
const queueGroup = "allocators"

// createCommand is the wire shape for an asynchronous create-token
// request, field-for-field the same as gateway.CreateTokenRequest so a
// caller can switch transports without reshaping its payload.
type createCommand struct {
	DoctorID       string `json:"doctor_id"`
	Date           string `json:"date"`
	IdempotencyKey string `json:"idempotency_key"`
	PatientName    string `json:"patient_name"`
	Phone          string `json:"phone"`
	Age            int    `json:"age"`
	Notes          string `json:"notes"`
	Source         string `json:"source"`
	Priority       string `json:"priority"`
}

type createReply struct {
	Error   string `json:"error,omitempty"`
	TokenID string `json:"token_id,omitempty"`
	SlotID  string `json:"slot_id,omitempty"`
	Message string `json:"message,omitempty"`
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func main() {
	databaseURL := getEnv("DATABASE_URL", "postgres://localhost/opd?sslmode=disable")
	natsURL := getEnv("NATS_URL", "nats://localhost:4222")
	etcdEndpoint := getEnv("ETCD_ENDPOINT", "localhost:2379")
	timezone := getEnv("TZ_NAME", "Asia/Kolkata")

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", timezone, err)
	}

	store, err := storage.NewPostgres(databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer store.Close()

	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   []string{etcdEndpoint},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to etcd: %v", err)
	}
	defer etcdClient.Close()
	locks := txn.NewEtcdLockManager(etcdClient, 10)

	breakers := circuit.NewBreakerGroup(circuit.Config{MaxFailures: 5, Timeout: 30 * time.Second, HalfOpenMax: 3})
	orch := txn.NewOrchestrator(store, locks, breakers)
	namer := naming.NewSequentialNamer(store)

	msgClient, err := messaging.NewClient(messaging.Config{
		URL:            natsURL,
		Name:           "allocator",
		ReconnectWait:  time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer msgClient.Close()
	auditor := audit.NewEmitter(msgClient)

	eng := engine.New(orch, namer, auditor, metrics.NoopSink{}, clock.Real{}, loc)

	err = msgClient.QueueSubscribe(createSubject, queueGroup, func(msg *nats.Msg) {
		handleCreate(eng, msg)
	})
	if err != nil {
		log.Fatalf("Failed to subscribe to %s: %v", createSubject, err)
	}
	log.Printf("Allocator listening on %s (queue=%s)", createSubject, queueGroup)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down allocator...")
	_ = msgClient.Unsubscribe(createSubject)
	log.Println("Allocator stopped")
}

func handleCreate(eng *engine.Engine, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var cmd createCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		respond(msg, createReply{Error: "malformed command: " + err.Error()})
		return
	}

	input, err := toCreateInput(cmd)
	if err != nil {
		respond(msg, createReply{Error: err.Error()})
		return
	}

	result, err := eng.CreateToken(ctx, input)
	if err != nil {
		respond(msg, createReply{Error: err.Error()})
		return
	}

	reply := createReply{TokenID: result.Token.ID.String(), Message: result.Message}
	if result.Slot != nil {
		reply.SlotID = result.Slot.ID.String()
	}
	respond(msg, reply)
}

func toCreateInput(cmd createCommand) (engine.CreateInput, error) {
	date, err := civildate.ParseDate(cmd.Date)
	if err != nil {
		return engine.CreateInput{}, err
	}
	src, err := token.ParseSource(cmd.Source)
	if err != nil {
		return engine.CreateInput{}, err
	}
	prio, err := priority.Parse(cmd.Priority)
	if err != nil {
		return engine.CreateInput{}, err
	}
	doctorID, err := uuid.Parse(cmd.DoctorID)
	if err != nil {
		return engine.CreateInput{}, err
	}
	return engine.CreateInput{
		DoctorID:       doctorID,
		Date:           date,
		IdempotencyKey: cmd.IdempotencyKey,
		PatientName:    cmd.PatientName,
		Phone:          cmd.Phone,
		Age:            cmd.Age,
		Notes:          cmd.Notes,
		Source:         src,
		Priority:       prio,
	}, nil
}

func respond(msg *nats.Msg, reply createReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		log.Printf("allocator: marshal reply: %v", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		log.Printf("allocator: respond: %v", err)
	}
}
