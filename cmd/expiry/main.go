// cmd/expiry runs the end-of-day expiry scheduler (spec §4.10) as a
// standalone process, independent of the gateway's HTTP lifecycle so a
// gateway restart or deploy never skips a cutover. Grounded on
// cmd/alerts/main.go's shape: connect collaborators, start one background
// loop, wait on a signal, stop.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/aniket1251/opd-token-allocation-engine/internal/audit"
	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/engine"
	"github.com/aniket1251/opd-token-allocation-engine/internal/expiry"
	"github.com/aniket1251/opd-token-allocation-engine/internal/metrics"
	"github.com/aniket1251/opd-token-allocation-engine/internal/naming"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/internal/txn"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/circuit"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/messaging"
)

type Config struct {
	DatabaseURL   string
	NATSUrl       string
	EtcdEndpoints []string
	Timezone      string
	Cutover       string
	PollInterval  time.Duration
}

func loadConfig() *Config {
	return &Config{
		DatabaseURL:   getEnv("DATABASE_URL", "postgres://localhost/opd?sslmode=disable"),
		NATSUrl:       getEnv("NATS_URL", "nats://localhost:4222"),
		EtcdEndpoints: []string{getEnv("ETCD_ENDPOINT", "localhost:2379")},
		Timezone:      getEnv("TZ_NAME", "Asia/Kolkata"),
		Cutover:       getEnv("EXPIRY_CUTOVER", "18:00"),
		PollInterval:  time.Minute,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func main() {
	cfg := loadConfig()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", cfg.Timezone, err)
	}

	cutover, err := civildate.ParseClockTime(cfg.Cutover)
	if err != nil {
		log.Fatalf("Invalid EXPIRY_CUTOVER %q: %v", cfg.Cutover, err)
	}

	store, err := storage.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer store.Close()

	etcdClient, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.EtcdEndpoints,
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
		URL:            cfg.NATSUrl,
		Name:           "expiry",
		ReconnectWait:  time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer msgClient.Close()
	auditor := audit.NewEmitter(msgClient)

	realClock := clock.Real{}
	eng := engine.New(orch, namer, auditor, metrics.NoopSink{}, realClock, loc)

	sched := expiry.New(eng, store, realClock, loc, cutover, cfg.PollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	go sched.Run(ctx)
	log.Printf("Expiry scheduler started, cutover=%s tz=%s", cfg.Cutover, cfg.Timezone)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down expiry scheduler...")
	sched.Stop()
	cancel()
	log.Println("Expiry scheduler stopped")
}
