package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	guardapp "github.com/calculus-guy/paymentscore/internal/guard/application"
	guardinfra "github.com/calculus-guy/paymentscore/internal/guard/infrastructure"
	guardhttp "github.com/calculus-guy/paymentscore/internal/guard/interfaces/http"
	idemapp "github.com/calculus-guy/paymentscore/internal/idempotency/application"
	ideminfra "github.com/calculus-guy/paymentscore/internal/idempotency/infrastructure"
	reviewapp "github.com/calculus-guy/paymentscore/internal/review/application"
	reviewinfra "github.com/calculus-guy/paymentscore/internal/review/infrastructure"
	reviewhttp "github.com/calculus-guy/paymentscore/internal/review/interfaces/http"
	riskapp "github.com/calculus-guy/paymentscore/internal/risk/application"
	riskdomain "github.com/calculus-guy/paymentscore/internal/risk/domain"
	riskinfra "github.com/calculus-guy/paymentscore/internal/risk/infrastructure"
	riskhttp "github.com/calculus-guy/paymentscore/internal/risk/interfaces/http"
	txnapp "github.com/calculus-guy/paymentscore/internal/transaction/application"
	txndomain "github.com/calculus-guy/paymentscore/internal/transaction/domain"
	txninfra "github.com/calculus-guy/paymentscore/internal/transaction/infrastructure"
	txnhttp "github.com/calculus-guy/paymentscore/internal/transaction/interfaces/http"
	webhookapp "github.com/calculus-guy/paymentscore/internal/webhook/application"
	webhookdomain "github.com/calculus-guy/paymentscore/internal/webhook/domain"
	webhookinfra "github.com/calculus-guy/paymentscore/internal/webhook/infrastructure"
	webhookhttp "github.com/calculus-guy/paymentscore/internal/webhook/interfaces/http"
	"github.com/calculus-guy/paymentscore/pkg/cache"
	"github.com/calculus-guy/paymentscore/pkg/config"
	"github.com/calculus-guy/paymentscore/pkg/db"
	"github.com/calculus-guy/paymentscore/pkg/logger"
	"github.com/calculus-guy/paymentscore/pkg/metrics"
	"github.com/calculus-guy/paymentscore/pkg/mq"
	"github.com/calculus-guy/paymentscore/pkg/ratelimit"
)

var configPath = flag.String("config", "configs/config.toml", "config file path")

const (
	idempotencySweepInterval = 10 * time.Minute
	suspiciousPruneInterval  = 6 * time.Hour
	suspiciousRetention      = 7 * 24 * time.Hour
)

func main() {
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	log := logger.Get()

	// 3. Metrics
	m := metrics.New(cfg.ServiceName)
	registry := prometheus.NewRegistry()
	m.Register(registry)

	// 4. Database
	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if cfg.Environment == "dev" {
		if err := database.AutoMigrate(
			&ideminfra.IdempotencyRecordPO{},
			&guardinfra.ViolationPO{},
			&riskinfra.RiskProfilePO{},
			&riskinfra.SuspiciousActivityPO{},
			&reviewinfra.ReviewItemPO{},
			&txninfra.TransactionPO{},
			&txninfra.LedgerAccountPO{},
			&txninfra.LedgerEntryPO{},
			&webhookinfra.WebhookAuditPO{},
		); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	// 5. Redis
	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		slog.Error("failed to connect redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	// 6. Kafka
	producer, err := mq.NewProducer(mq.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   cfg.Kafka.MaxRetries,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	})
	if err != nil {
		slog.Error("failed to create kafka producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	// 7. Idempotency
	idemSvc := idemapp.NewService(ideminfra.NewGormIdempotencyRepository(database.DB), log)

	// 8. Rate & limit guard
	policy, err := guardinfra.PolicyFromConfig(cfg.Limits)
	if err != nil {
		slog.Error("invalid limits configuration", "error", err)
		os.Exit(1)
	}

	// 9. Risk engine (also the guard's suspicious-activity sink)
	txnRepo := txninfra.NewGormTransactionRepository(database.DB)
	riskEngine := riskapp.NewEngine(
		riskdomain.NewScorer(riskdomain.DefaultThresholds()),
		riskinfra.NewGormProfileRepository(database.DB),
		riskinfra.NewGormSuspiciousRepository(database.DB),
		riskinfra.NewRedisHardBlockStore(redisCache),
		txnRepo,
		riskapp.Config{
			MonitorThreshold:     cfg.Risk.MonitorThreshold,
			ReviewThreshold:      cfg.Risk.ReviewThreshold,
			BlockThreshold:       cfg.Risk.BlockThreshold,
			AutoBlockScore:       cfg.Risk.AutoBlockScore,
			SuspiciousBlockCount: cfg.Risk.SuspiciousBlockCount,
			FailClosed:           cfg.Risk.FailClosed,
			BaselineDays:         cfg.Risk.BaselineDays,
		},
		m, log)

	guard := guardapp.NewGuard(
		policy,
		guardinfra.NewRedisUsageStore(redisCache),
		guardinfra.NewRedisBlockStore(redisCache),
		guardinfra.NewGormViolationRepository(database.DB),
		riskEngine,
		time.Duration(cfg.Limits.MonitoringPeriod)*time.Minute,
		log)

	// 10. Review queue
	reviewQueue := reviewapp.NewQueue(
		reviewinfra.NewGormReviewRepository(database.DB),
		reviewinfra.NewStaticReviewerDirectory(cfg.Review.Reviewers),
		cfg.Review.MaxConcurrentReviews,
		log)

	// 11. Router
	gateways := map[string]txndomain.GatewayAdapter{
		"paystack": txninfra.NewPaystackGateway(txninfra.GatewayConfig{
			BaseURL:        cfg.Gateway.Paystack.BaseURL,
			SecretKey:      cfg.Gateway.Paystack.SecretKey,
			TimeoutSeconds: cfg.Gateway.Paystack.TimeoutSeconds,
		}, m),
		"stripe": txninfra.NewStripeGateway(txninfra.GatewayConfig{
			BaseURL:        cfg.Gateway.Stripe.BaseURL,
			SecretKey:      cfg.Gateway.Stripe.SecretKey,
			TimeoutSeconds: cfg.Gateway.Stripe.TimeoutSeconds,
		}, m),
	}
	router := txnapp.NewRouter(
		idemSvc,
		guard,
		riskEngine,
		reviewQueue,
		txnRepo,
		txninfra.NewGormLedgerStore(database.DB),
		gateways,
		// The content catalog is an external collaborator; until one is
		// wired, purchases validate against the in-memory price list.
		txninfra.NewMemoryCatalog(),
		txninfra.NewKafkaEventPublisher(producer),
		m, log)
	reviewQueue.SetCompleter(router)

	// 12. Webhook authenticator
	verifiers := make([]webhookdomain.Verifier, 0, len(cfg.Webhook.Providers))
	policies := make(map[string]webhookapp.ProviderPolicy, len(cfg.Webhook.Providers))
	for name, provider := range cfg.Webhook.Providers {
		switch name {
		case "paystack":
			verifiers = append(verifiers, webhookdomain.NewPaystackVerifier(provider.Secret))
		case "stripe":
			verifiers = append(verifiers, webhookdomain.NewStripeVerifier(provider.Secret,
				time.Duration(provider.ReplaySecs)*time.Second))
		default:
			slog.Warn("unknown webhook provider in config", "provider", name)
			continue
		}
		policies[name] = webhookapp.ProviderPolicy{
			OriginRatePerMinute: provider.OriginRate,
			OriginBurst:         provider.OriginBurst,
			MaxSignatureFails:   provider.MaxSigFails,
			BlockDuration:       time.Duration(provider.BlockMinutes) * time.Minute,
		}
	}
	authenticator := webhookapp.NewAuthenticator(
		verifiers,
		policies,
		webhookinfra.NewRedisDedupStore(redisCache),
		webhookinfra.NewRedisOriginBlockStore(redisCache),
		ratelimit.NewRedisRateLimiter(redisCache.GetClient()),
		webhookinfra.NewGormAuditRepository(database.DB),
		m, log)

	// 13. HTTP surface
	if cfg.Environment != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	txnhttp.NewHandler(router).RegisterRoutes(v1)
	webhookhttp.NewHandler(authenticator, router, log).RegisterRoutes(v1)
	reviewhttp.NewHandler(reviewQueue).RegisterRoutes(v1)

	admin := v1.Group("/admin")
	guardhttp.NewHandler(guard).RegisterRoutes(admin)
	riskhttp.NewHandler(riskEngine).RegisterRoutes(admin)

	r.GET("/sys/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": cfg.ServiceName, "version": cfg.Version})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
	if cfg.Environment == "dev" {
		r.GET("/debug/pprof/*profile", gin.WrapF(pprof.Index))
	}

	// 14. Background tasks + serve
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
		server := &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
		slog.Info("HTTP server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Expired idempotency records
	g.Go(func() error {
		ticker := time.NewTicker(idempotencySweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := idemSvc.SweepExpired(ctx); err != nil {
					slog.Error("idempotency sweep failed", "error", err)
				} else if n > 0 {
					slog.Info("idempotency records swept", "count", n)
				}
			}
		}
	})

	// Risk baselines
	g.Go(func() error {
		interval := time.Duration(cfg.Risk.RecomputeMinutes) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := riskEngine.RecomputeBaselines(ctx); err != nil {
					slog.Error("baseline recompute failed", "error", err)
				} else {
					slog.Info("baselines recomputed", "subjects", n)
				}
			}
		}
	})

	// Suspicious-activity retention
	g.Go(func() error {
		ticker := time.NewTicker(suspiciousPruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n, err := riskEngine.PruneSuspicious(ctx, suspiciousRetention); err != nil {
					slog.Error("suspicious prune failed", "error", err)
				} else if n > 0 {
					slog.Info("suspicious entries pruned", "count", n)
				}
			}
		}
	})

	// Review SLA / escalation monitor
	g.Go(func() error {
		reviewQueue.Monitor(ctx, time.Duration(cfg.Review.MonitorSeconds)*time.Second)
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down...")
			return context.Canceled
		case <-ctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
