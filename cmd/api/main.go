package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"dealflow/actionlog"
	"dealflow/auth"
	"dealflow/casting"
	"dealflow/config"
	"dealflow/db"
	"dealflow/deal"
	"dealflow/undo"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	logger := log.New(os.Stderr, "api: ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("validate config: %v", err)
	}

	ctx := context.Background()

	if err := db.Migrate(ctx, cfg.DatabaseURL, cfg.MigrationsDir, logger); err != nil {
		logger.Fatalf("run migrations: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	history := undo.NewStack(cfg.UndoDepth)
	emitter := actionlog.NewEmitter(actionlog.NewRepository(pool))
	castings := casting.NewService(casting.NewRepository(pool))

	srv := &server{
		auth:    auth.NewService(auth.NewRepository(pool), cfg.JWTSecret),
		deals:   deal.NewService(pool, nil, emitter, castings, history),
		gate:    deal.NewStatusService(pool, nil, emitter, history),
		logs:    emitter,
		history: history,
		logger:  logger,
	}

	logger.Printf("listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, srv.routes()); err != nil {
		logger.Fatalf("serve: %v", err)
	}
}
