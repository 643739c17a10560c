package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vasiliy-maslov/dessert-shop/internal/cart"
	"github.com/vasiliy-maslov/dessert-shop/internal/config"
	"github.com/vasiliy-maslov/dessert-shop/internal/db"
	shopHttp "github.com/vasiliy-maslov/dessert-shop/internal/handler/http"
	"github.com/vasiliy-maslov/dessert-shop/internal/notify"
	"github.com/vasiliy-maslov/dessert-shop/internal/order"
	"github.com/vasiliy-maslov/dessert-shop/internal/store/memory"
	"github.com/vasiliy-maslov/dessert-shop/internal/store/postgres"
)

type cartRepository interface {
	cart.Repository
	order.Cart
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	setupLogger(cfg.App)
	log.Info().Str("store", cfg.App.Store).Msg("Checkout service starting...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store      order.Store
		carts      cartRepository
		recipients order.Recipients
	)

	switch cfg.App.Store {
	case config.StorePostgres:
		dbConn, err := db.New(ctx, cfg.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbConn.Close()

		pgStore := postgres.NewStore(dbConn.Pool, postgres.Options{
			TxTimeout:   cfg.Postgres.TxTimeout,
			LockTimeout: cfg.Postgres.LockTimeout,
		})
		defer pgStore.Close()

		store = pgStore
		carts = cart.NewRepository(dbConn.Pool)
		recipients = postgres.NewCustomers(dbConn.Pool)
	default:
		log.Warn().Msg("Using in-memory store, data is lost on restart")
		memStore := memory.NewStore()
		store = memStore
		carts = memory.NewCarts(memStore)
		recipients = memory.NewCustomers()
	}

	queue, closeQueue := newQueue(ctx, cfg)
	defer closeQueue()

	dispatcher := notify.NewDispatcher(queue, newMailer(cfg.SMTP), notify.Options{
		Workers:      cfg.Notify.Workers,
		MaxAttempts:  cfg.Notify.MaxAttempts,
		RetryBackoff: cfg.Notify.RetryBackoff,
		PollInterval: cfg.Notify.PollInterval,
	})

	orderSvc := order.NewService(store, carts, dispatcher, recipients)
	cartSvc := cart.NewService(carts)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(shopHttp.RequestLogger)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	shopHttp.NewOrderHandler(orderSvc).RegisterRoutes(router)
	shopHttp.NewCartHandler(cartSvc).RegisterRoutes(router)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(gCtx)
	})

	g.Go(func() error {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Checkout service stopped with error")
		return
	}

	log.Info().Msg("Checkout service stopped gracefully")
}

func setupLogger(cfg config.AppConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Env == "local" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", "checkout-service").Logger()
}

func newQueue(ctx context.Context, cfg *config.Config) (notify.Queue, func()) {
	if cfg.Redis.URL == "" {
		return notify.NewMemoryQueue(cfg.Notify.QueueSize), func() {}
	}

	queue, err := notify.NewRedisQueue(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	log.Info().Msg("Notification queue backed by Redis")

	return queue, func() {
		if err := queue.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis client")
		}
	}
}

func newMailer(cfg config.SMTPConfig) notify.Mailer {
	if cfg.Host == "" {
		log.Warn().Msg("SMTP_HOST is not set, notifications are only logged")
		return notify.LogMailer{}
	}

	mailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		From:     cfg.From,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure SMTP mailer")
	}
	return mailer
}
