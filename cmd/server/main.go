package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"kalshigw/internal/api"
	"kalshigw/internal/config"
	"kalshigw/internal/fix"
	"kalshigw/internal/orders"
	"kalshigw/internal/repository"
	"kalshigw/internal/transport"
	ws "kalshigw/internal/websocket"
	"kalshigw/pkg/crypto"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ключ оператора: подпись HTTP запросов и FIX логона
	var signer *crypto.Signer
	if cfg.API.PrivateKeyPath != "" {
		signer, err = crypto.LoadSigner(cfg.API.PrivateKeyPath)
		if err != nil {
			log.Fatalf("Failed to load private key: %v", err)
		}
	} else {
		log.Println("API_PRIVATE_KEY_PATH not set, requests will be unsigned (demo only)")
	}

	// Живое состояние ордеров и его потребители
	cache := orders.NewCache()
	hub := ws.NewHub()
	go hub.Run()
	cache.Subscribe(hub.BroadcastOrderUpdate)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Журнал ордеров в Postgres (опционален: шлюз живёт и без него)
	if db, err := openDatabase(cfg); err != nil {
		log.Printf("Order journal disabled, database unavailable: %v", err)
	} else {
		defer db.Close()
		journal := repository.NewJournal(repository.NewOrderRepository(db))
		go journal.Run(ctx)
		cache.Subscribe(journal.Record)
		log.Println("Connected to database, order journal enabled")
	}

	// REST транспорт нужен всегда: основной в режиме rest, запасной в fallback
	restTransport := transport.NewREST(transport.RESTConfig{
		BaseURL:   cfg.API.BaseURL,
		KeyID:     cfg.API.KeyID,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	}, signer)

	orderTransport, sessionManager := buildTransport(ctx, cfg, restTransport, signer, cache)

	// Ops API
	var sessionState func() string
	if sessionManager != nil {
		sessionState = func() string { return sessionManager.State().String() }
	}

	router := api.SetupRoutes(api.Dependencies{
		Transport:    orderTransport,
		Cache:        cache,
		Hub:          hub,
		SessionState: sessionState,
		PasswordHash: cfg.Server.PasswordHash,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("Ops API listening on %s (transport mode: %s)", server.Addr, cfg.Transport.Mode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Graceful shutdown по сигналу
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if sessionManager != nil {
		sessionManager.Stop()
	}
	cancel()
	log.Println("Shutdown complete")
}

// buildTransport собирает транспорт ордеров по режиму из конфигурации.
// Возвращает менеджер сессии для диагностики и остановки (nil в режиме rest).
func buildTransport(ctx context.Context, cfg *config.Config, restTransport *transport.REST,
	signer *crypto.Signer, cache *orders.Cache) (transport.OrderTransport, *fix.SessionManager) {

	if cfg.Transport.Mode == config.ModeREST {
		log.Println("Transport mode: REST")
		return restTransport, nil
	}

	// FIX требует идентификатор API ключа в роли SenderCompID
	if cfg.FIX.SenderCompID == "" {
		log.Println("FIX_SENDER_COMP_ID not set. FIX transport requires an API key UUID. Using REST.")
		return restTransport, nil
	}

	sessionManager := fix.NewSessionManager(cfg.FIX, signer)
	tracker := fix.NewTracker(cfg.Transport.OrderTimeout)

	// Слушатели регистрируются строго до старта сессии
	sessionManager.AddMessageListener(tracker)
	tracker.SetUpdateSink(cache.Apply)

	fixTransport := fix.NewTransport(sessionManager, tracker, cfg.Transport.OrderTimeout)

	var orderTransport transport.OrderTransport
	if cfg.Transport.Mode == config.ModeFIX {
		orderTransport = fixTransport
		log.Println("Transport mode: FIX only")
	} else {
		orderTransport = transport.NewFallback(fixTransport, restTransport)
		log.Println("Transport mode: FIX with REST fallback")
	}

	if err := sessionManager.Start(); err != nil {
		log.Fatalf("Failed to start FIX session: %v", err)
	}

	// Защитная уборка протухших запросов раз в секунду
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tracker.CleanupStale()
			}
		}
	}()

	if sessionManager.AwaitLogon(cfg.Transport.LogonTimeout) {
		log.Println("FIX session logged on successfully")
	} else if cfg.Transport.Mode == config.ModeFIXWithFallback {
		log.Printf("FIX session logon timeout after %s. Will use REST fallback.", cfg.Transport.LogonTimeout)
	} else {
		log.Printf("FIX session logon timeout after %s. FIX orders will fail until connected.", cfg.Transport.LogonTimeout)
	}

	return orderTransport, sessionManager
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
