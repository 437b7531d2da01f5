package integrations

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/jrsteele09/go-integrations/health"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSweepInterval    = 6 * time.Hour
	defaultSweepConcurrency = 4
	defaultSweepPageSize    = 100
)

// SweepReport counts the connections seen by one sweep.
type SweepReport struct {
	Checked        int
	Connected      int
	NeedsAttention int
	Deferred       int
}

// Sweeper periodically runs CheckHealth over every stored connection so that
// tokens stay fresh and revoked grants surface before a user needs them.
type Sweeper struct {
	service     *Service
	repo        credentials.Repo
	interval    time.Duration
	concurrency int
	pageSize    int
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSweepConcurrency(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithSweepPageSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func NewSweeper(service *Service, options ...SweeperOption) (*Sweeper, error) {
	if service == nil {
		return nil, errors.New("[NewSweeper] service is required")
	}
	s := &Sweeper{
		service:     service,
		repo:        service.repo,
		interval:    defaultSweepInterval,
		concurrency: defaultSweepConcurrency,
		pageSize:    defaultSweepPageSize,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		report, err := s.SweepOnce(ctx)
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("health sweep failed")
		} else if err == nil {
			log.Info().
				Int("checked", report.Checked).
				Int("connected", report.Connected).
				Int("needs_attention", report.NeedsAttention).
				Int("deferred", report.Deferred).
				Msg("health sweep finished")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SweepOnce checks every stored connection with bounded concurrency. A failed
// check is counted, not returned; only a failure to list credentials is.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	var (
		mu     sync.Mutex
		report SweepReport
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for offset := 0; ; offset += s.pageSize {
		page, err := s.repo.List(gctx, offset, s.pageSize)
		if err != nil {
			_ = g.Wait()
			return report, err
		}

		for _, c := range page {
			key := c.Key()
			g.Go(func() error {
				status, err := s.service.CheckHealth(gctx, key)

				mu.Lock()
				defer mu.Unlock()
				report.Checked++
				switch {
				case err != nil:
					report.Deferred++
					log.Warn().Err(err).Str("credential", key.String()).Msg("health check deferred")
				case status.State == health.StateConnected:
					report.Connected++
				default:
					report.NeedsAttention++
				}
				return nil
			})
		}

		// stores may skip unreadable rows, so only an empty page ends the sweep
		if len(page) == 0 {
			break
		}
	}

	err := g.Wait()
	return report, err
}
