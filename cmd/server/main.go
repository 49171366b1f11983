package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/novabank/novabank/internal/auth"
	"github.com/novabank/novabank/internal/config"
	"github.com/novabank/novabank/internal/events/kafka"
	"github.com/novabank/novabank/internal/interfaces"
	"github.com/novabank/novabank/internal/ledger"
	"github.com/novabank/novabank/internal/server"
	"github.com/novabank/novabank/internal/storage/memory"
	"github.com/novabank/novabank/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	var accounts interfaces.AccountStore
	var entries interfaces.LedgerStore

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("opening database: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			log.Fatalf("pinging database: %v", err)
		}

		store := postgres.NewStore(db)
		if err := store.Init(context.Background()); err != nil {
			log.Fatalf("initializing schema: %v", err)
		}
		accounts, entries = store, store
		log.Println("Connected to Postgres")
	} else {
		store := memory.NewStore()
		accounts, entries = store, store
		log.Println("Using in-memory store")
	}

	var publisher interfaces.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		publisher = kp
		log.Printf("Publishing events to %v", cfg.KafkaBrokers)
	}

	ledgerService := ledger.New(accounts, entries, publisher)
	srv := server.NewServer(accounts, ledgerService, auth.NewTokens(cfg.JWTSecret))

	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Router(),
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("Server exited")
}
