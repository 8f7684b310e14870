package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"sitegate.io/internal/config"
	"sitegate.io/internal/migrate"
	"sitegate.io/internal/obs"
	"sitegate.io/internal/store/pg"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to the YAML config (defaults to SITEGATE_CONFIG)")
		dsn        = flag.String("dsn", "", "PostgreSQL DSN (overrides SITEGATE_PG_DSN)")
		timeout    = flag.Duration("timeout", 60*time.Second, "Overall deadline")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	log := obs.Init(obs.LogConfig{Env: cfg.Env, Level: cfg.Log.Level, Service: "sitegate-migrate"})
	defer func() { _ = log.Sync() }()

	if *dsn == "" {
		*dsn = cfg.Postgres.DSN
	}
	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or SITEGATE_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status]")
	}
	cmd := flag.Arg(0)
	if cmd == "seed" && cfg.IsProduction() {
		log.Fatal("refusing to seed demo data in a production environment")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer store.Close()
	db := store.DB()

	switch cmd {
	case "up":
		err = migrate.Up(ctx, db)
	case "down":
		err = migrate.Down(ctx, db)
	case "seed":
		err = migrate.Seed(ctx, db)
	case "status":
		err = migrate.Status(ctx, db)
	default:
		log.Fatal("unknown command", zap.String("command", cmd))
	}
	if err != nil {
		log.Fatal("migrate failed", zap.String("command", cmd), zap.Error(err))
	}
	log.Info("migrate done", zap.String("command", cmd))
}
