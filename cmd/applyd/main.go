package main

import (
	"context"
	"log"
	"os"

	"applyflow/application"
	"applyflow/auth"
	"applyflow/command"
	"applyflow/config"
	"applyflow/db"
	"applyflow/interview"
	"applyflow/notify"
	"applyflow/review"
)

func main() {
	ctx := context.Background()

	configPath := os.Getenv("APPLYFLOW_CONFIG")
	if configPath == "" {
		configPath = "applyflow.yml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("bootstrap config: %v", err)
	}

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	store := application.NewStore(pool)
	gate := application.NewCooldownGate(pool)
	ledger := notify.NewLedger(pool)
	out := notify.NewLocalDispatcher()

	authService := auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret)

	reviews := review.NewWorkflow(store, ledger, out, cfg, authService.CanReview)
	engine := interview.NewEngine(store, gate, ledger, out, cfg.Questions, cfg.Cooldown()).
		WithCardOpener(reviews)

	handler := command.NewHandler(engine, reviews)

	log.Printf("applyd ready: %d questions, cooldown %s, handler %+v", len(cfg.Questions), cfg.Cooldown(), handler != nil)
}
