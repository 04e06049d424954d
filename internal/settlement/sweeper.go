// Package settlement finishes approved transfers: PROCESSING becomes COMPLETED or FAILED.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/baharkarakas/transferflow/internal/apperr"
	"github.com/baharkarakas/transferflow/internal/models"
	"github.com/baharkarakas/transferflow/internal/sanitize"
)

const defaultBatch = 100

// Source lists transfers that have sat in a status since before a cutoff.
type Source interface {
	StaleInStatus(ctx context.Context, status models.TransferStatus, updatedBefore time.Time, limit int) ([]models.Transfer, error)
}

// Settler applies the outcome through the same conditional transition admins use.
type Settler interface {
	Settle(ctx context.Context, id, actor string, outcome models.TransferStatus, note string) (sanitize.WireTransfer, error)
}

type Config struct {
	Schedule string        // cron spec, e.g. "@every 1m"
	Delay    time.Duration // minimum time spent in PROCESSING before settling
	Batch    int
	Actor    string
}

type Result struct {
	Completed int
	Failed    int
	Skipped   int
}

type Sweeper struct {
	source  Source
	gateway Gateway
	settler Settler
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
	cron    *cron.Cron

	mu sync.Mutex // one sweep at a time
}

func NewSweeper(src Source, gw Gateway, st Settler, cfg Config, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Batch <= 0 {
		cfg.Batch = defaultBatch
	}
	if cfg.Actor == "" {
		cfg.Actor = "system"
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(log.Handler(), slog.LevelInfo))
	return &Sweeper{
		source:  src,
		gateway: gw,
		settler: st,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
	}
}

// Start registers the sweep on the configured schedule.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Error("settlement sweep failed", "err", err)
		}
	})
	if err != nil {
		return err
	}
	s.log.Info("scheduled settlement sweep", "schedule", s.cfg.Schedule, "delay", s.cfg.Delay)
	s.cron.Start()
	return nil
}

// Stop halts scheduling; the returned context is done once a running sweep returns.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due, err := s.source.StaleInStatus(ctx, models.TransferProcessing, s.now().Add(-s.cfg.Delay), s.cfg.Batch)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, t := range due {
		outcome, note := models.TransferCompleted, ""
		if err := s.gateway.Execute(ctx, t); err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			outcome, note = models.TransferFailed, err.Error()
		}

		_, err := s.settler.Settle(ctx, t.ID, s.cfg.Actor, outcome, note)
		switch {
		case err == nil && outcome == models.TransferCompleted:
			res.Completed++
		case err == nil:
			res.Failed++
		case errors.Is(err, apperr.ErrAlreadyProcessed), errors.Is(err, apperr.ErrNotFound):
			// settled by someone else in the meantime
			res.Skipped++
		default:
			s.log.Error("settle transfer", "transfer_id", t.ID, "outcome", outcome, "err", err)
			res.Skipped++
		}
	}
	if len(due) > 0 {
		s.log.Info("settlement sweep", "completed", res.Completed, "failed", res.Failed, "skipped", res.Skipped)
	}
	return res, nil
}
