package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"medid/internal/audit"
	"medid/internal/biometric/match"
	"medid/internal/biometric/quality"
	"medid/internal/disclosure"
	"medid/internal/extraction"
	"medid/internal/identity"
	"medid/internal/platform/config"
	"medid/internal/platform/httpserver"
	"medid/internal/platform/logger"
	"medid/internal/platform/metrics"
	platformpg "medid/internal/platform/postgres"
	platformredis "medid/internal/platform/redis"
	"medid/internal/records"
	"medid/internal/session"
	"medid/internal/token/bearer"
	tokensvc "medid/internal/token/service"
	tokenstore "medid/internal/token/store"
	httptransport "medid/internal/transport/http"
	"medid/internal/vectorcipher"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cipher, err := buildCipher(cfg)
	if err != nil {
		log.Error("invalid vector key", "error", err)
		os.Exit(1)
	}

	db, err := platformpg.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditorOpts := []audit.Option{audit.WithLogger(log)}
	if db != nil {
		auditorOpts = append(auditorOpts, audit.WithSink(audit.NewPostgresSink(db)))
	}
	var forwarder *audit.KafkaForwarder
	if len(cfg.Kafka.Brokers) > 0 {
		forwarder, err = audit.NewKafkaForwarder(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		auditorOpts = append(auditorOpts, audit.WithSink(forwarder))
	}
	auditor := audit.NewRecorder(cfg.Security.AuditEnabled, auditorOpts...)

	var tokens tokensvc.Store
	if redisClient != nil {
		tokens = tokenstore.NewRedisStore(redisClient.Client)
	} else {
		tokens = tokenstore.NewInMemoryStore()
	}
	tokenService, err := tokensvc.New(tokens,
		tokensvc.WithLogger(log),
		tokensvc.WithAuditor(auditor),
		tokensvc.WithDefaultTTL(cfg.DefaultTokenTTLMin),
	)
	if err != nil {
		log.Error("token service init failed", "error", err)
		os.Exit(1)
	}

	var store records.Store
	if db != nil {
		store = records.NewPostgres(db)
	} else {
		store = records.NewInMemoryStore()
	}

	engine := match.NewEngine(store, cipher, match.WithLogger(log))
	gate := quality.NewGate()

	identitySvc, err := identity.New(extraction.NewEnvelopeExtractor(), gate, cipher, engine, store, tokenService,
		identity.WithLogger(log), identity.WithAuditor(auditor))
	if err != nil {
		log.Error("identity service init failed", "error", err)
		os.Exit(1)
	}

	disclosureSvc, err := disclosure.New(tokenService, store,
		disclosure.WithLogger(log), disclosure.WithAuditor(auditor))
	if err != nil {
		log.Error("disclosure service init failed", "error", err)
		os.Exit(1)
	}

	guard := session.NewGuard(
		session.WithLogger(log),
		session.WithAuditor(auditor),
		session.WithMaxInactivity(cfg.Security.MaxInactivity),
		session.WithMaxLifetime(cfg.Security.SessionTimeout),
	)

	codec, err := bearer.NewCodec([]byte(cfg.BearerSigningKey))
	if err != nil {
		log.Error("bearer codec init failed", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	var handlerOpts []httptransport.HandlerOption
	if cfg.Security.RequireReauthForSensitiveOps {
		handlerOpts = append(handlerOpts, httptransport.WithSessionRequired())
	}
	handler := httptransport.NewHandler(identitySvc, disclosureSvc, guard, codec, m, log, handlerOpts...)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler, log))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting medid server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := tokensvc.NewSweeper(tokens, cfg.TokenSweepInterval, log).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := session.NewWatcher(guard, cfg.SessionCheckInterval).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if forwarder != nil {
		g.Go(func() error {
			return forwarder.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// buildCipher uses the configured key or, in dev, an ephemeral generated one.
func buildCipher(cfg config.Config) (*vectorcipher.Cipher, error) {
	key, err := cfg.VectorKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return vectorcipher.NewWithGeneratedKey()
	}
	return vectorcipher.New(key)
}
