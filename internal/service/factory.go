package service

import (
	"log/slog"

	"nrrp.app/referrals/internal/leaderboard"
	"nrrp.app/referrals/internal/ledger"
	"nrrp.app/referrals/internal/store"
	"nrrp.app/referrals/internal/validation"
)

type ServicesConfig struct {
	Stores *store.Stores
	// ValidationConcurrency bounds concurrent member lookups in a sweep.
	ValidationConcurrency int
	// Guard wraps the engine, e.g. with the cross-process run lock. Optional.
	Guard  func(validation.Engine) validation.Engine
	Logger *slog.Logger
}

// Services owns the single ledger, engine and aggregator of a process. The
// engine's per-invitee locks only serialize writes when everyone shares it.
type Services struct {
	ledger      ledger.Ledger
	engine      validation.Engine
	leaderboard leaderboard.Aggregator
}

func NewServices(cfg ServicesConfig) *Services {
	l := ledger.New(cfg.Stores.Referrals(), ledger.Config{}, cfg.Logger)
	engine := validation.New(l, validation.Config{Concurrency: cfg.ValidationConcurrency}, cfg.Logger)
	if cfg.Guard != nil {
		engine = cfg.Guard(engine)
	}
	return &Services{
		ledger:      l,
		engine:      engine,
		leaderboard: leaderboard.New(l, cfg.Logger),
	}
}

func (s *Services) Ledger() ledger.Ledger {
	return s.ledger
}

func (s *Services) Engine() validation.Engine {
	return s.engine
}

func (s *Services) Leaderboard() leaderboard.Aggregator {
	return s.leaderboard
}
