package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"qrattendance/internal/config"
	"qrattendance/internal/queue"
	"qrattendance/internal/store"
	"qrattendance/internal/summary"
)

// Worker consumes marked events from redis and keeps the daily tallies.
func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; the memory queue is consumed inside the api process")
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable, will keep retrying", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	tally := summary.NewRedisTally(redisClient.Client, summary.DefaultPrefix, summary.DefaultTTL)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	applied := summary.Run(ctx, messages, tally)
	log.Printf("worker stopped after %d events", applied)
}
