package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"qrattendance/internal/apiclient"
	"qrattendance/internal/attendance"
	"qrattendance/internal/config"
	"qrattendance/internal/scanner"
)

// Scanner reads decoded QR payloads from stdin, one per line, and submits them.
func main() {
	config.LoadDotEnv()
	cfg := config.LoadScanner()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.Nonce == "" && cfg.OperatorKey != "" {
		sess, err := openSession(ctx, cfg)
		if err != nil {
			log.Printf("warning: session not opened: %v", err)
		} else {
			cfg.APIURL = sess.APIURL
			cfg.Nonce = sess.Nonce
			cfg.IsAdmin = sess.IsAdmin
			log.Printf("session opened for %s (admin=%t, expires %s)", cfg.OperatorID, sess.IsAdmin,
				time.Unix(sess.ExpiresAt, 0).Format(time.RFC3339))
		}
	}
	if cfg.APIURL == "" {
		log.Println("warning: SCANNER_API_URL not set, scans will fail locally")
	}

	client := apiclient.New(cfg.APIURL, cfg.Nonce, cfg.RetryAttempts, cfg.RetryBackoff)
	decoder := scanner.NewLineDecoder(os.Stdin)
	ctrl := scanner.New(scanner.Config{
		APIURL:         cfg.APIURL,
		IsAdmin:        cfg.IsAdmin,
		Mode:           attendance.Mode(cfg.Mode),
		Cooldown:       cfg.Cooldown,
		BannerTTL:      cfg.BannerTTL,
		RequestTimeout: cfg.RequestTimeout,
		OnUpdate: func(r scanner.Record) {
			switch r.SyncStatus {
			case scanner.Syncing:
				log.Printf("[%s] %s: syncing", r.Mode, r.DecodedText)
			case scanner.Synced:
				log.Printf("[%s] %s: %s %s", r.Mode, r.DecodedText, r.AttendanceStatus, r.SyncMessage)
			case scanner.Failed:
				log.Printf("[%s] %s: error: %s", r.Mode, r.DecodedText, r.SyncMessage)
			}
		},
	}, decoder, client)
	ctrl.Start()

	log.Printf("scanner ready (mode=%s), reading payloads from stdin", ctrl.Mode())
	if err := decoder.Run(ctx, func(text string, at time.Time) {
		if mode, ok := modeCommand(text); ok {
			if err := ctrl.SetMode(mode); err != nil {
				log.Printf("mode not changed: %v", err)
			} else {
				log.Printf("mode set to %s", mode)
			}
			return
		}
		if ctrl.HandleDecode(text, at) {
			return
		}
		// the decoder resumed while the previous scan was still syncing
		ctrl.Wait()
		if !ctrl.HandleDecode(text, time.Now()) {
			log.Printf("scan %q ignored (state %s)", text, ctrl.State())
		}
	}, ctrl.HandleDecodeError); err != nil && ctx.Err() == nil {
		log.Printf("input read failed: %v", err)
	}

	ctrl.Wait()
	ctrl.Stop()

	synced, failed := 0, 0
	for _, r := range ctrl.Records() {
		switch r.SyncStatus {
		case scanner.Synced:
			synced++
		case scanner.Failed:
			failed++
		}
	}
	log.Printf("scanner stopped: %d synced, %d failed", synced, failed)
}

// modeCommand recognises the ":mode Teacher" console command.
func modeCommand(line string) (attendance.Mode, bool) {
	rest, ok := strings.CutPrefix(line, ":mode ")
	if !ok {
		return "", false
	}
	return attendance.Mode(strings.TrimSpace(rest)), true
}

func openSession(ctx context.Context, cfg config.Scanner) (*apiclient.Session, error) {
	base := cfg.APIURL
	if i := strings.Index(base, "/v1/"); i >= 0 {
		base = base[:i]
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	return apiclient.OpenSession(ctx, nil, base, cfg.OperatorID, cfg.OperatorKey)
}
