package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/harborpay/checkout/internal/checkout"
	"github.com/harborpay/checkout/internal/common"
	"github.com/harborpay/checkout/internal/config"
	"github.com/harborpay/checkout/internal/health"
	"github.com/harborpay/checkout/internal/lock"
	"github.com/harborpay/checkout/internal/obs"
	"github.com/harborpay/checkout/internal/ratelimit"
	"github.com/harborpay/checkout/internal/redirect"
	"github.com/harborpay/checkout/internal/session"
	"github.com/harborpay/checkout/internal/transport"
)

const metricsNamespace = "checkout"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	httpMetrics := obs.NewHTTPMetrics(metricsNamespace, nil, nil)

	tracingEnabled := cfg.OTLPEndpoint != ""
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "checkout-api",
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: cfg.TraceSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	store := session.New(redisClient, cfg.CheckoutTTL)
	locker := lock.Locker{R: redisClient, TTL: cfg.CheckoutTTL, Prefix: "checkout:lock:"}
	httpTransport := transport.New(cfg.RequestTimeout, logger)
	opener := logOpener{logger: logger}

	var client checkout.Client
	switch cfg.Provider {
	case "paypal":
		client = checkout.NewPayPal(checkout.PayPalConfig{
			BaseURL:      cfg.PayPalBaseURL,
			ClientID:     cfg.PayPalClientID,
			ClientSecret: cfg.PayPalClientSecret,
			CurrencyCode: cfg.CurrencyCode,
			SuccessURL:   cfg.PayPalSuccessURL,
			CancelURL:    cfg.PayPalCancelURL,
			PollInterval: cfg.ApprovalPollInterval,
		}, httpTransport, store, opener, logger)
	case "stripe":
		client = checkout.NewStripe(checkout.StripeConfig{
			BaseURL:        cfg.StripeBaseURL,
			SecretKey:      cfg.StripeSecretKey,
			PublishableKey: cfg.StripePublishableKey,
			CurrencyCode:   cfg.CurrencyCode,
			SuccessURL:     cfg.StripeSuccessURL,
			CancelURL:      cfg.StripeCancelURL,
			PollInterval:   cfg.ApprovalPollInterval,
		}, httpTransport, store, opener, redirect.New(os.TempDir()), logger)
	default:
		logger.Fatal().Str("provider", cfg.Provider).Msg("unsupported checkout provider")
	}

	orchestrator := checkout.NewOrchestrator(client, logger)
	handlers := &checkout.Handlers{
		Orc:      orchestrator,
		Store:    store,
		Surface:  store,
		Locker:   locker,
		Timeout:  cfg.RequestTimeout,
		Logger:   logger,
		Validate: validator.New(),
	}

	idem := common.Idempotency{R: redisClient, TTL: cfg.IdempotencyTTL}
	limiter := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "checkout:rl:"},
		Config: ratelimit.Config{
			Key:    clientIPKey,
			Window: cfg.RateLimitWindow,
			Max:    cfg.RateLimitMax,
		},
		OnError: func(err error) {
			logger.Warn().Err(err).Msg("rate limiter unavailable")
		},
	}

	providerBase := cfg.PayPalBaseURL
	if cfg.Provider == "stripe" {
		providerBase = cfg.StripeBaseURL
	}
	checker := health.Checker{
		PingRedis: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
		PingProvider: func(ctx context.Context) error {
			_, err := httpTransport.Do(ctx, transport.Request{Method: http.MethodGet, URL: providerBase})
			return err
		},
		Timeout: 2 * time.Second,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/debug/pprof", newPprofMux())
	r.Get("/health/live", checker.Live)
	r.Get("/health/ready", checker.Ready)

	r.Route("/v1", func(v chi.Router) {
		v.Use(limiter.Middleware)
		v.Use(idem.Middleware)
		v.Mount("/", handlers.Routes())
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Str("provider", cfg.Provider).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	stop, stopCancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopCancel()
	<-stop.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// logOpener stands in for a browser: approval URLs are surfaced through the
// service log and the provider's success/cancel redirect URLs.
type logOpener struct {
	logger zerolog.Logger
}

func (o logOpener) Open(ctx context.Context, url string) error {
	o.logger.Info().Str("url", url).Msg("approval_url")
	return nil
}

func clientIPKey(r *http.Request) string {
	return r.RemoteAddr
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	return mux
}
