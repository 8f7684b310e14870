package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sitegate.io/internal/audit"
	"sitegate.io/internal/auth"
	"sitegate.io/internal/config"
	"sitegate.io/internal/httpapi"
	"sitegate.io/internal/obs"
	"sitegate.io/internal/portal"
	"sitegate.io/internal/projects"
	"sitegate.io/internal/ratelimit"
	"sitegate.io/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// backend is the repository plus the account lookup the gates need.
type backend interface {
	projects.Repository
	portal.Accounts
}

func main() {
	configPath := flag.String("config", "", "Path to the YAML config (defaults to SITEGATE_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	log := obs.Init(obs.LogConfig{Env: cfg.Env, Level: cfg.Log.Level, Service: "sitegate-api", Version: version})
	defer func() { _ = log.Sync() }()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	obs.InitMetrics()
	obs.InitBuildInfo(version, commit)

	var (
		repo       backend
		ready      httpapi.ReadyProbe
		auditStore audit.Store
		db         *pg.Store
	)
	if cfg.Postgres.DSN != "" {
		db, err = pg.Open(cfg.Postgres.DSN)
		if err != nil {
			log.Fatal("open postgres", zap.Error(err))
		}
		for _, pc := range cfg.Portals() {
			if err := db.BindPortal(pc.Audience, pc.Role()); err != nil {
				log.Fatal("bind portal", zap.String("portal", pc.Name), zap.Error(err))
			}
		}
		repo, ready.DB, auditStore = db, db, db
	} else {
		mem := projects.NewMemoryRepository()
		if err := projects.SeedDemo(mem, cfg.Client.Audience, cfg.Subcontractor.Audience); err != nil {
			log.Fatal("seed demo data", zap.Error(err))
		}
		log.Warn("no postgres DSN, serving in-memory demo data")
		repo, auditStore = mem, audit.NewMemoryStore()
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ready.Redis = rdb
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemory()
	if rdb != nil {
		limiter = ratelimit.NewRedis(rdb)
	}

	alertOpt := audit.WithAlerts(audit.NewLogAlerts())
	var kafkaAlerts *audit.KafkaAlerts
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaAlerts, err = audit.NewKafkaAlerts(audit.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.AlertTopic})
		if err != nil {
			log.Fatal("kafka alerts", zap.Error(err))
		}
		alertOpt = audit.WithAlerts(kafkaAlerts)
	}
	activity := audit.New(auditStore, alertOpt, audit.WithQueueSize(cfg.Audit.QueueSize))

	var gates []*portal.Gate
	var memRevocations []*auth.MemoryRevocations
	for _, pc := range cfg.Portals() {
		var revs auth.Revocations
		if rdb != nil {
			revs = auth.NewRedisRevocations(rdb)
		} else {
			m := auth.NewMemoryRevocations()
			memRevocations = append(memRevocations, m)
			revs = m
		}
		codec, err := auth.NewCodec(pc.TokenAudience(), auth.WithRevocations(revs))
		if err != nil {
			log.Fatal("token codec", zap.String("portal", pc.Name), zap.Error(err))
		}
		gates = append(gates, portal.New(
			portal.Config{PortalConfig: pc, TrustProxy: cfg.TrustProxy},
			codec, limiter, activity,
			portal.WithAccounts(repo),
		))
	}

	api := httpapi.New(httpapi.Options{
		Version:      version,
		Ready:        ready,
		Service:      projects.NewService(repo, activity),
		Portals:      gates,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		TrustProxy:   cfg.TrustProxy,
		AnonRPS:      cfg.HTTP.AnonRPS,
		AnonBurst:    cfg.HTTP.AnonBurst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	log.Info("starting sitegate-api",
		zap.String("addr", srv.Addr),
		zap.String("env", cfg.Env),
		zap.Bool("postgres", db != nil),
		zap.Bool("redis", rdb != nil),
		zap.Bool("kafka", kafkaAlerts != nil),
	)

	started := time.Now()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := activity.Close(ctx); err != nil {
		log.Warn("activity log drain", zap.Error(err))
	}
	if kafkaAlerts != nil {
		_ = kafkaAlerts.Close()
	}
	for _, m := range memRevocations {
		m.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	log.Info("stopped", zap.Duration("uptime", time.Since(started).Round(time.Second)))
}
