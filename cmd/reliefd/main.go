// Package main provides the reliefline daemon: USSD gateway callback,
// JSON API, and the background matching loops.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/reliefline/reliefline/internal/automatch"
	"github.com/reliefline/reliefline/internal/config"
	"github.com/reliefline/reliefline/internal/db/sqlite"
	"github.com/reliefline/reliefline/internal/fraud"
	"github.com/reliefline/reliefline/internal/matching"
	"github.com/reliefline/reliefline/internal/notify"
	"github.com/reliefline/reliefline/internal/server"
	"github.com/reliefline/reliefline/internal/session"
	"github.com/reliefline/reliefline/internal/ussd"
	"github.com/reliefline/reliefline/internal/watcher"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	listenAddr := flag.String("listen", "", "Listen address override")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if cfg.PhoneSalt == "" {
		log.Warn().Msg("phone_salt is empty; caller hashes are unsalted")
	}

	store, err := sqlite.NewStore(sqlite.StoreConfig{
		Path:     cfg.DBPath,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("Failed to open database")
	}
	defer store.Close()

	callers := sqlite.NewCallerStore(store)
	activity := sqlite.NewActivityStore(store)
	requests := sqlite.NewRequestStore(store)
	resources := sqlite.NewResourceStore(store)

	var sessions session.Store
	if cfg.RedisAddr != "" {
		redisStore := session.NewRedisStore(cfg.RedisAddr)
		if err := redisStore.Ping(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Redis unreachable")
		}
		defer redisStore.Close()
		sessions = redisStore
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis session backend")
	} else {
		sessions = sqlite.NewSessionStore(store)
	}

	notifier := notify.NewLogNotifier(log.Logger)
	engine := matching.NewEngine(resources, cfg.MaxRadiusKm)
	guard := fraud.NewGuard(activity, requests, cfg.DuplicateWindow(), cfg.SessionStartsPerHour)
	machine := ussd.NewMachine(engine, resources, cfg.MaxCandidates)
	ussdHandler := ussd.NewHandler(
		ussd.HandlerConfig{PhoneSalt: cfg.PhoneSalt, SessionTTL: cfg.SessionTTL()},
		sessions, callers, activity, requests, resources,
		guard, machine, notifier, log.Logger,
	)
	scheduler := automatch.NewScheduler(
		requests, resources, engine, notifier,
		cfg.AutoMatchGrace(), cfg.AutoMatchInterval(), log.Logger,
	)

	svc := server.NewService(
		server.Config{
			ListenAddr:    cfg.ListenAddr,
			GatewaySecret: cfg.GatewaySecret,
			Version:       Version,
		},
		store, resources, requests, activity, sessions,
		ussdHandler, scheduler, notifier, log.Logger,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Run(ctx)
	})

	g.Go(func() error {
		return scheduler.Run(ctx)
	})

	if sweeper, ok := sessions.(*sqlite.SessionStore); ok {
		g.Go(func() error {
			return sweepSessions(ctx, sweeper, cfg.SessionSweepInterval())
		})
	}

	guardWatcher, err := watcher.NewGuard(cfg.DBPath, store, log.Logger)
	if err != nil {
		log.Warn().Err(err).Msg("Database watcher unavailable")
	} else {
		g.Go(func() error {
			return guardWatcher.Run(ctx)
		})
	}

	log.Info().Str("version", Version).Str("addr", cfg.ListenAddr).Msg("reliefd started")

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("Service exited")
	}
	log.Info().Msg("reliefd stopped")
}

// sweepSessions deletes expired sessions on an interval. Only the SQLite
// backend needs this; Redis keys carry their own TTL.
func sweepSessions(ctx context.Context, store *sqlite.SessionStore, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := store.DeleteExpired(ctx, time.Now())
			if err != nil {
				log.Error().Err(err).Msg("Session sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("Expired sessions swept")
			}
		}
	}
}
