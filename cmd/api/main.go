package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jasonsutter87/veilforms-api/internal/adapters/httpapi"
	memdeliverylog "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/deliverylog"
	memformrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/formrepo"
	memidempotency "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/idempotency"
	memquota "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/quota"
	memsubmissionrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/memory/submissionrepo"
	postgres "github.com/jasonsutter87/veilforms-api/internal/adapters/postgres"
	pgdeliveryqueue "github.com/jasonsutter87/veilforms-api/internal/adapters/postgres/deliveryqueue"
	pgformrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/postgres/formrepo"
	pgidempotency "github.com/jasonsutter87/veilforms-api/internal/adapters/postgres/idempotency"
	redisadapter "github.com/jasonsutter87/veilforms-api/internal/adapters/redis"
	redisdeliverylog "github.com/jasonsutter87/veilforms-api/internal/adapters/redis/deliverylog"
	redisidempotency "github.com/jasonsutter87/veilforms-api/internal/adapters/redis/idempotency"
	redisquota "github.com/jasonsutter87/veilforms-api/internal/adapters/redis/quota"
	redissubmissionrepo "github.com/jasonsutter87/veilforms-api/internal/adapters/redis/submissionrepo"
	"github.com/jasonsutter87/veilforms-api/internal/app/delivery"
	"github.com/jasonsutter87/veilforms-api/internal/app/idempotency"
	"github.com/jasonsutter87/veilforms-api/internal/app/ingest"
	"github.com/jasonsutter87/veilforms-api/internal/app/manage"
	"github.com/jasonsutter87/veilforms-api/internal/app/submissions"
	"github.com/jasonsutter87/veilforms-api/internal/domain"
	platformclock "github.com/jasonsutter87/veilforms-api/internal/platform/clock"
	"github.com/jasonsutter87/veilforms-api/internal/platform/config"
	"github.com/jasonsutter87/veilforms-api/internal/platform/logging"
	deliverylogport "github.com/jasonsutter87/veilforms-api/internal/ports/out/deliverylog"
	formrepoport "github.com/jasonsutter87/veilforms-api/internal/ports/out/formrepo"
	idempotencyport "github.com/jasonsutter87/veilforms-api/internal/ports/out/idempotency"
	quotaport "github.com/jasonsutter87/veilforms-api/internal/ports/out/quota"
	submissionrepoport "github.com/jasonsutter87/veilforms-api/internal/ports/out/submissionrepo"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		logrus.Fatalf("invalid config: %v", err)
	}
	log := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	var seed []domain.Form
	if cfg.FormsFile != "" {
		if seed, err = config.LoadForms(cfg.FormsFile); err != nil {
			log.Fatalf("invalid forms file: %v", err)
		}
	}

	ctx := context.Background()
	clk := platformclock.NewSystemClock()

	var (
		forms     formrepoport.Repository
		subRepo   submissionrepoport.Repository
		idemStore idempotencyport.Store
		logStore  deliverylogport.Store
		counter   quotaport.Counter
		cleanups  []func()
	)

	switch cfg.StorageBackend {
	case "redis":
		client, err := redisadapter.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("invalid redis config: %v", err)
		}
		cleanups = append(cleanups, func() { _ = client.Close() })

		subRepo = redissubmissionrepo.NewRepo(client, cfg.RedisPrefix)
		idemStore = redisidempotency.NewStore(client, cfg.RedisPrefix)
		logStore = redisdeliverylog.NewStore(client, cfg.RedisPrefix)
		counter = redisquota.NewCounter(client, cfg.RedisPrefix)
	default:
		subRepo = memsubmissionrepo.NewRepo()
		idemStore = memidempotency.NewStore()
		logStore = memdeliverylog.NewStore()
		counter = memquota.NewCounter()
	}

	var queue *pgdeliveryqueue.Queue
	if cfg.DatabaseURL != "" {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			log.Fatalf("invalid postgres config: %v", err)
		}
		cleanups = append(cleanups, pool.Close)

		pgForms := pgformrepo.NewRepo(pool)
		for _, f := range seed {
			if err := pgForms.Upsert(ctx, f); err != nil {
				log.Fatalf("seed form %s: %v", f.ID, err)
			}
		}
		forms = pgForms
		if cfg.StorageBackend != "redis" {
			idemStore = pgidempotency.NewStore(pool)
		}
		queue = pgdeliveryqueue.NewQueue(pool, clk)
	} else {
		forms = memformrepo.NewRepo(seed...)
	}

	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	auditLog := logging.NewAuditLogger(log)
	subs := submissions.NewService(subRepo, forms, log)
	idem := idempotency.NewService(idemStore, clk, log)
	engine := delivery.NewEngine(logStore, auditLog, clk, log)

	var (
		scheduler  delivery.Scheduler
		detached   *delivery.DetachedScheduler
		dispatcher *delivery.Dispatcher
	)
	switch cfg.DeliveryMode {
	case "queue":
		scheduler = delivery.NewQueueScheduler(queue, clk)
		dispatcher = delivery.NewDispatcher(queue, engine, delivery.DispatcherOptions{
			Workers:      cfg.DeliveryWorkers,
			PollInterval: cfg.DeliveryPollInterval,
			Lease:        cfg.DeliveryLease,
		}, log)
	default:
		detached = delivery.NewDetachedScheduler(engine, log)
		scheduler = detached
	}

	ingestSvc := ingest.NewService(ingest.Deps{
		Forms:       forms,
		Idempotency: idem,
		Submissions: subs,
		Scheduler:   scheduler,
		Quota:       counter,
		Audit:       auditLog,
		Clock:       clk,
		Log:         log,
		Limits: ingest.Limits{
			domain.TierFree:       cfg.QuotaFree,
			domain.TierPro:        cfg.QuotaPro,
			domain.TierTeam:       cfg.QuotaTeam,
			domain.TierEnterprise: cfg.QuotaEnterprise,
		},
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	manageSvc := manage.NewService(forms, subs, idem, engine, auditLog, clk, log)

	var routerOpts httpapi.RouterOptions
	if cfg.OperatorToken != "" {
		routerOpts.OperatorMiddleware = httpapi.NewOperatorTokenMiddleware(cfg.OperatorToken, log)
	}
	handler := httpapi.NewRouterWithOptions(httpapi.NewServer(ingestSvc, manageSvc, log), routerOpts)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcherDone := make(chan struct{})
	if dispatcher != nil {
		go func() {
			defer close(dispatcherDone)
			dispatcher.Run(sigCtx)
		}()
	} else {
		close(dispatcherDone)
	}

	go func() {
		log.WithFields(logrus.Fields{
			"port":          cfg.Port,
			"storage":       cfg.StorageBackend,
			"delivery_mode": cfg.DeliveryMode,
			"forms_seeded":  len(seed),
		}).Info("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	if detached != nil {
		if err := detached.Wait(shutdownCtx); err != nil {
			log.WithError(err).Warn("in-flight webhook deliveries abandoned")
		}
	}
	select {
	case <-dispatcherDone:
	case <-shutdownCtx.Done():
		log.Warn("delivery dispatcher did not stop before the shutdown deadline")
	}
}
