package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Alkatripathi-004/chat-fanout/internal/broadcast"
	"github.com/Alkatripathi-004/chat-fanout/internal/broker"
	"github.com/Alkatripathi-004/chat-fanout/internal/config"
	"github.com/Alkatripathi-004/chat-fanout/internal/dedup"
	"github.com/Alkatripathi-004/chat-fanout/internal/handler"
	"github.com/Alkatripathi-004/chat-fanout/internal/hub"
	pkglog "github.com/Alkatripathi-004/chat-fanout/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	pkglog.Init(cfg.Log)

	serverID := uuid.New().String()
	log.Printf("Starting chat server %s on %s:%d", serverID, cfg.Server.Host, cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session registry
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run(ctx)

	// Work topic producer (ingest -> dedup)
	workProducer, err := broker.NewConfluentProducer(cfg.Kafka, cfg.Kafka.WorkTopic)
	if err != nil {
		log.Fatalf("Failed to create work producer: %v", err)
	}
	defer workProducer.Close()

	// Broadcast + dead-letter producers (dedup -> all instances)
	broadcastProducer, err := broker.NewConfluentProducer(cfg.Kafka, cfg.Kafka.BroadcastTopic)
	if err != nil {
		log.Fatalf("Failed to create broadcast producer: %v", err)
	}
	defer broadcastProducer.Close()

	deadLetterProducer, err := broker.NewConfluentProducer(cfg.Kafka, cfg.Kafka.DeadLetterTopic)
	if err != nil {
		log.Fatalf("Failed to create dead-letter producer: %v", err)
	}
	defer deadLetterProducer.Close()

	// Dedup ledger
	var ledger dedup.Ledger
	if cfg.Dedup.UseRedis {
		ledger, err = dedup.NewRedisLedger(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect dedup ledger to Redis: %v", err)
		}
		log.Printf("Using Redis dedup ledger at %s", cfg.Redis.Address)
	} else {
		ledger = dedup.NewMemoryLedger(cfg.Dedup.LedgerWindow)
	}
	defer ledger.Close()

	dedupConsumer := dedup.NewConsumer(ledger, broadcastProducer, deadLetterProducer, cfg.Dedup.RedeliverCap)

	g, gctx := errgroup.WithContext(ctx)

	// Replicated dedup consumers share one group on the work topic.
	for i := 0; i < cfg.Dedup.Workers; i++ {
		c, err := broker.NewConfluentConsumer(broker.ConsumerOptions{
			Brokers:             cfg.Kafka.Brokers,
			Topic:               cfg.Kafka.WorkTopic,
			GroupID:             cfg.Kafka.GroupID,
			ManualAck:           true,
			MaxPollIntervalMs:   cfg.Kafka.MaxPollIntervalMs,
			SessionTimeoutMs:    cfg.Kafka.SessionTimeoutMs,
			HeartbeatIntervalMs: cfg.Kafka.HeartbeatIntervalMs,
		}, dedupConsumer.HandleDelivery)
		if err != nil {
			log.Fatalf("Failed to create dedup consumer: %v", err)
		}
		defer c.Close()
		g.Go(func() error { return c.Run(gctx) })
	}

	// Broadcast consumer: unique group per instance so every instance
	// receives every republished message.
	broadcastConsumer, err := broker.NewConfluentConsumer(broker.ConsumerOptions{
		Brokers:     cfg.Kafka.Brokers,
		Topic:       cfg.Kafka.BroadcastTopic,
		GroupID:     fmt.Sprintf("chat-broadcast-%s", serverID),
		OffsetReset: "latest",
	}, broadcast.NewConsumer(wsHub, serverID).HandleDelivery)
	if err != nil {
		log.Fatalf("Failed to create broadcast consumer: %v", err)
	}
	defer broadcastConsumer.Close()
	g.Go(func() error { return broadcastConsumer.Run(gctx) })

	// Ingest WebSocket handler
	wsHandler := handler.NewWSHandler(wsHub, workProducer, serverID, cfg.WebSocket)

	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Chat server listening on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down chat server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Printf("Consumer shutdown error: %v", err)
	}

	log.Println("Chat server stopped")
}
