package store

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper removes idle boards on a cron schedule.
type Sweeper struct {
	registry *Registry
	cron     *cron.Cron
	ttl      time.Duration
}

func NewSweeper(registry *Registry, ttl time.Duration) *Sweeper {
	return &Sweeper{registry: registry, cron: cron.New(), ttl: ttl}
}

// ValidateCronExpression validates a cron expression.
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

func (s *Sweeper) Start(ctx context.Context, expr string) error {
	if err := ValidateCronExpression(expr); err != nil {
		return err
	}
	_, err := s.cron.AddFunc(expr, func() {
		n, err := s.registry.SweepIdle(ctx, s.ttl)
		if err != nil {
			log.Error().Err(err).Msg("failed to sweep idle boards")
			return
		}
		if n > 0 {
			log.Info().Int("removed", n).Dur("ttl", s.ttl).Msg("swept idle boards")
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Str("schedule", expr).Dur("ttl", s.ttl).Msg("board sweeper started")
	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
