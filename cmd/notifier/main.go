/**
 * @description
 * This is the main entry point for the wallet notifier. It consumes the wallet
 * events published by the engine (balance changes, top-up reviews, invoice
 * settlements) from RabbitMQ and mails summaries to the finance inbox. It also
 * exposes a minimal HTTP health endpoint for deployment probes.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for building Go HTTP services.
 * - The service's internal packages for config, notification handling, and RabbitMQ integration.
 */
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/easybooking/wallet-service/internal/config"
	"github.com/easybooking/wallet-service/internal/domain"
	"github.com/easybooking/wallet-service/internal/notifier"
	"github.com/easybooking/wallet-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8081"
	}

	// Wire the mailer. Without SMTP configuration the notifier still consumes
	// events and logs them, so the queue never backs up.
	var mailer notifier.Mailer
	if strings.TrimSpace(cfg.SMTPHost) != "" {
		mailer = &notifier.SMTPMailer{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			From: cfg.SMTPFrom,
		}
		log.Printf("level=info component=bootstrap msg=\"smtp mailer configured\" host=%s", cfg.SMTPHost)
	} else {
		log.Println("level=warn component=bootstrap msg=\"smtp not configured; notifications are log-only\"")
	}
	walletNotifier := notifier.New(mailer, cfg.FinanceEmail)

	// Consume the wallet events.
	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", err)
	}
	defer consumer.Close()

	if err := consumer.ConsumeWithBindings(domain.EventExchange, cfg.WalletEventQueue, walletNotifier.Bindings()); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"consumer start failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"consuming wallet events\" queue=%s", cfg.WalletEventQueue)

	// Health endpoint for deployment probes.
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
