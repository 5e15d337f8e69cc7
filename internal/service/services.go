package service

import (
	"log/slog"

	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/engine"
	postgres "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/postgres"
	redisrepo "github.com/ghostwalkerj/champagneroom-app-sub000/internal/repository/redis"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/service/boxoffice"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/service/showtime"
	"github.com/ghostwalkerj/champagneroom-app-sub000/internal/service/treasury"
)

type Services struct {
	BoxOffice *boxoffice.Service
	Showtime  *showtime.Service
	Treasury  *treasury.Service
}

type Config struct {
	BoxOffice boxoffice.Config
	Showtime  showtime.Config
}

func NewServices(
	log *slog.Logger,
	eng *engine.Engine,
	store *postgres.Store,
	cache *redisrepo.Cache,
	idem *redisrepo.IdempotencyStore,
	limiter *redisrepo.SlidingWindowLimiter,
	cfg Config,
) *Services {
	return &Services{
		BoxOffice: boxoffice.New(log, eng, store, cache, idem, limiter, cfg.BoxOffice),
		Showtime:  showtime.New(log, eng, store, cache, cfg.Showtime),
		Treasury:  treasury.New(log, eng, store),
	}
}
