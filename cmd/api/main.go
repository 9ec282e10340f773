package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"qrattendance/internal/attendance"
	"qrattendance/internal/auth"
	"qrattendance/internal/config"
	"qrattendance/internal/httpapi"
	"qrattendance/internal/metrics"
	"qrattendance/internal/queue"
	"qrattendance/internal/store"
	"qrattendance/internal/summary"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	start, err := cfg.StartOffset()
	if err != nil {
		return err
	}

	repo := attendance.NewRepository(db)
	if cfg.SeedFile != "" {
		if err := seedCards(ctx, repo, cfg.SeedFile); err != nil {
			log.Printf("warning: seed failed: %v", err)
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var (
		q     queue.Queue
		tally summary.Tally
	)
	checks := map[string]httpapi.HealthCheck{"db": func(ctx context.Context) bool {
		return db.Client.PingContext(ctx) == nil
	}}
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		memTally := summary.NewMemoryTally()
		messages, err := mem.Consume(ctx)
		if err != nil {
			return fmt.Errorf("queue consume init: %w", err)
		}
		go summary.Run(ctx, messages, memTally)
		q, tally = mem, memTally
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
		tally = summary.NewRedisTally(redisClient.Client, summary.DefaultPrefix, summary.DefaultTTL)
		checks["redis"] = redisClient.Healthy
	}

	scans := metrics.NewScans(prometheus.DefaultRegisterer)
	svc := attendance.NewService(repo, attendance.Schedule{
		Location:    cfg.Location(),
		StartOffset: start,
		GracePeriod: cfg.GracePeriod,
	}, queue.MarkedPublisher{Queue: q}, scans)

	h := httpapi.New(httpapi.Options{
		Classifier: svc,
		Rows:       repo,
		Tally:      tally,
		Issuer: auth.Issuer{
			Name:        cfg.NonceIssuer,
			Key:         cfg.NonceSigningKey,
			TTL:         cfg.NonceTTL,
			OperatorKey: cfg.OperatorKey,
			AdminKey:    cfg.AdminKey,
		},
		APIURL:   cfg.PublicAPIURL,
		Location: cfg.Location(),
		Checks:   checks,
	})
	r := httpapi.NewRouter(h, httpapi.RouterConfig{
		SigningKey:      cfg.NonceSigningKey,
		Issuer:          cfg.NonceIssuer,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Metrics:         promhttp.Handler(),
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (db=%s, queue=%s)", cfg.HTTPPort, cfg.DBDriver, cfg.QueueBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

type seedCard struct {
	CardNo    string `json:"card_no"`
	StudentID int64  `json:"student_id"`
	ClassID   int64  `json:"class_id"`
	Name      string `json:"name"`
}

// seedCards loads card registrations from a JSON array, for dev databases.
func seedCards(ctx context.Context, repo *attendance.Repository, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var cards []seedCard
	if err := json.Unmarshal(raw, &cards); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	for _, c := range cards {
		st := attendance.Student{ID: c.StudentID, ClassID: c.ClassID, Name: c.Name}
		if err := repo.RegisterCard(ctx, c.CardNo, st); err != nil {
			return fmt.Errorf("register %s: %w", c.CardNo, err)
		}
	}
	log.Printf("seeded %d cards from %s", len(cards), path)
	return nil
}
