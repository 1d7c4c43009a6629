// cmd/gateway runs the OPD token allocation HTTP+WebSocket API: the
// engine facade, the Postgres store, the etcd advisory lock, the Redis
// snapshot cache, and the live feed, all wired around one gin router.
// Grounded on cmd/gateway/main.go's env-var loadConfig/getEnv pattern and
// graceful-shutdown shape, rebound from the teacher's NATS-only gateway
// (which had no database of its own) to this service's storage+lock+cache
// stack.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/aniket1251/opd-token-allocation-engine/internal/audit"
	"github.com/aniket1251/opd-token-allocation-engine/internal/auth"
	"github.com/aniket1251/opd-token-allocation-engine/internal/cache"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/engine"
	"github.com/aniket1251/opd-token-allocation-engine/internal/feed"
	"github.com/aniket1251/opd-token-allocation-engine/internal/gateway"
	"github.com/aniket1251/opd-token-allocation-engine/internal/metrics"
	"github.com/aniket1251/opd-token-allocation-engine/internal/naming"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
	"github.com/aniket1251/opd-token-allocation-engine/internal/txn"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/circuit"
	"github.com/aniket1251/opd-token-allocation-engine/pkg/messaging"
)

type Config struct {
	Port            string
	DatabaseURL     string
	RedisAddr       string
	NATSUrl         string
	EtcdEndpoints   []string
	JWTSecret       string
	InfluxURL       string
	InfluxToken     string
	InfluxOrg       string
	InfluxBucket    string
	Timezone        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RateLimitMax    int
	RateLimitWindow time.Duration
}

func loadConfig() *Config {
	return &Config{
		Port:            getEnv("PORT", "8000"),
		DatabaseURL:     getEnv("DATABASE_URL", "postgres://localhost/opd?sslmode=disable"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		NATSUrl:         getEnv("NATS_URL", "nats://localhost:4222"),
		EtcdEndpoints:   []string{getEnv("ETCD_ENDPOINT", "localhost:2379")},
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret-change-me"),
		InfluxURL:       getEnv("INFLUX_URL", ""),
		InfluxToken:     getEnv("INFLUX_TOKEN", ""),
		InfluxOrg:       getEnv("INFLUX_ORG", "opd"),
		InfluxBucket:    getEnv("INFLUX_BUCKET", "allocation"),
		Timezone:        getEnv("TZ_NAME", "Asia/Kolkata"),
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		RateLimitMax:    envInt("RATE_LIMIT_MAX", 100),
		RateLimitWindow: time.Minute,
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func main() {
	cfg := loadConfig()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("Invalid timezone %q: %v", cfg.Timezone, err)
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

	breakers := circuit.NewBreakerGroup(circuit.Config{
		MaxFailures: 5,
		Timeout:     30 * time.Second,
		HalfOpenMax: 3,
	})
	orch := txn.NewOrchestrator(store, locks, breakers)

	namer := naming.NewSequentialNamer(store)

	msgClient, err := messaging.NewClient(messaging.Config{
		URL:            cfg.NATSUrl,
		Name:           "gateway",
		ReconnectWait:  time.Second,
		MaxReconnects:  60,
		ConnectTimeout: 10 * time.Second,
	})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer msgClient.Close()
	auditor := audit.NewEmitter(msgClient)

	var metricsSink metrics.Sink = metrics.NoopSink{}
	if cfg.InfluxURL != "" {
		influxSink := metrics.NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		defer influxSink.Close()
		metricsSink = influxSink
	}

	realClock := clock.Real{}
	eng := engine.New(orch, namer, auditor, metricsSink, realClock, loc)

	authSvc := auth.NewService(cfg.JWTSecret, 12*time.Hour)

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	snapCache := cache.NewStore(redisClient)
	loader := engine.NewSnapshotLoader(store, realClock, loc)
	liveFeed := feed.New()

	gw := gateway.New(gateway.Config{
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
	}, eng, authSvc, snapCache, loader, liveFeed)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      gw.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Printf("Gateway starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start gateway: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Gateway shutdown error: %v", err)
	}

	log.Println("Gateway stopped")
}
