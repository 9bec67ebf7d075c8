package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/R3E-Network/lottery_engine/internal/config"
	"github.com/R3E-Network/lottery_engine/internal/custody"
	"github.com/R3E-Network/lottery_engine/internal/events"
	"github.com/R3E-Network/lottery_engine/internal/httpapi"
	"github.com/R3E-Network/lottery_engine/internal/identity"
	"github.com/R3E-Network/lottery_engine/internal/metrics"
	"github.com/R3E-Network/lottery_engine/internal/middleware"
	"github.com/R3E-Network/lottery_engine/internal/oracle"
	"github.com/R3E-Network/lottery_engine/internal/settlement"
	"github.com/R3E-Network/lottery_engine/internal/storage/memory"
	"github.com/R3E-Network/lottery_engine/internal/storage/postgres"
	redisstore "github.com/R3E-Network/lottery_engine/internal/storage/redis"
	"github.com/R3E-Network/lottery_engine/pkg/logger"
)

const (
	eventBufferSize      = 1000
	rateLimitCleanupTick = time.Minute
)

type app struct {
	router  http.Handler
	closers []func() error
	log     *logger.Logger
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
}

// build wires every component described by cfg.
func build(ctx context.Context, cfg config.Config, log *logger.Logger) (*app, error) {
	a := &app{log: log}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	collector := metrics.NewCollector("lottery")
	ring := events.NewRingBuffer(eventBufferSize)

	var redisClient goredis.UniversalClient
	if cfg.Storage.RedisAddr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		a.closers = append(a.closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("redis ping: %w", err))
		}
	}

	store, err := buildStore(ctx, cfg, a, redisClient)
	if err != nil {
		return fail(err)
	}

	var locker settlement.Locker = settlement.NewLocalLocker()
	if redisClient != nil && (cfg.Storage.DistributedLock || cfg.Storage.Driver == "redis") {
		locker = redisstore.NewLocker(redisClient, cfg.Storage.RedisPrefix, 0, 0)
	}

	ledger := custody.NewLedger(cfg.Custody.MaxHistory)

	rng, proofs, err := buildOracle(cfg)
	if err != nil {
		return fail(err)
	}

	opts := []settlement.Option{
		settlement.WithOracleID(settlement.Identity(cfg.Engine.RandomnessOracleID)),
		settlement.WithBoundaryPolicy(cfg.Boundary()),
		settlement.WithDefaultCommissionRate(cfg.Engine.DefaultCommissionRate),
		settlement.WithLocker(locker),
		settlement.WithEventLogger(ring),
		settlement.WithMetrics(collector),
	}
	if cfg.Engine.NeoAddresses {
		opts = append(opts, settlement.WithIdentityValidator(identity.ValidateAddress))
	}
	engine := settlement.New(store, ledger, rng, log, opts...)

	handler := httpapi.NewHandler(engine, log, httpapi.Options{
		Ledger:     ledger,
		Events:     ring,
		Proofs:     proofs,
		PriceScale: cfg.Engine.PriceScale,
		DevFaucet:  cfg.Custody.DevFaucet,
	})

	protected := []mux.MiddlewareFunc{buildAuth(cfg, log).Handler}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
		stop := make(chan struct{})
		limiter.StartCleanup(rateLimitCleanupTick, stop)
		a.closers = append(a.closers, func() error { close(stop); return nil })
		protected = append(protected, limiter.Handler)
	}

	a.router = httpapi.NewRouter(handler, httpapi.RouterOptions{
		Middleware: []mux.MiddlewareFunc{
			middleware.LoggingMiddleware(log),
			middleware.MetricsMiddleware(collector),
		},
		Protected: protected,
		Metrics:   collector.Handler(),
	})
	return a, nil
}

func buildStore(ctx context.Context, cfg config.Config, a *app, redisClient goredis.UniversalClient) (settlement.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		if cfg.Storage.RunMigrations {
			if err := postgres.Migrate(cfg.Storage.PostgresDSN); err != nil {
				return nil, err
			}
			a.log.Info("postgres migrations applied")
		}
		store, err := postgres.Open(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case "redis":
		return redisstore.New(redisClient, cfg.Storage.RedisPrefix), nil
	default:
		a.log.Warn("using in-memory storage; state is lost on restart")
		return memory.New(), nil
	}
}

// buildOracle selects the randomness source. Only the local HMAC oracle can
// recheck its proofs, so the verifier is nil for the http driver.
func buildOracle(cfg config.Config) (settlement.RandomnessOracle, httpapi.ProofVerifier, error) {
	id := settlement.Identity(cfg.Engine.RandomnessOracleID)
	switch cfg.Oracle.Driver {
	case "http":
		return oracle.NewHTTPOracle(id, cfg.Oracle.URL, cfg.Oracle.APIKey, cfg.Oracle.Timeout), nil, nil
	default:
		o, err := oracle.NewHMACOracle(id, []byte(cfg.Oracle.HMACSecret))
		if err != nil {
			return nil, nil, err
		}
		return o, o, nil
	}
}

// buildAuth selects the credential checks for cfg.Auth.Mode. Verifier
// fields stay nil interfaces when unused.
func buildAuth(cfg config.Config, log *logger.Logger) *middleware.AuthMiddleware {
	opts := middleware.AuthOptions{}
	switch cfg.Auth.Mode {
	case "jwt":
		opts.Tokens = identity.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer)
	case "neo":
		opts.Signatures = identity.NewNeoVerifier(cfg.Auth.SignatureWindow)
	case "none":
		log.Warn("authentication disabled; trusting the X-Lottery-Caller header")
		opts.TrustCallerHeader = true
	}
	return middleware.NewAuthMiddleware(opts, log, nil)
}
