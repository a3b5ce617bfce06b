package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/robfig/cron/v3"
)

const (
	defaultDigestTime = "09:00"
	logCleanupSpec    = "30 3 * * *"
)

// Scheduler runs the periodic jobs: the pending-application digest at the
// configured time of day and the system log cleanup. All times are UTC.
type Scheduler struct {
	cron    *cron.Cron
	digest  *DigestService
	logs    *SystemLogService
	configs *SystemConfigService

	mu          sync.Mutex
	digestEntry cron.EntryID
}

func NewScheduler(digest *DigestService, logs *SystemLogService, configs *SystemConfigService) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		digest:  digest,
		logs:    logs,
		configs: configs,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(logCleanupSpec, func() { s.logs.RunCleanup(ctx, time.Now()) }); err != nil {
		return fmt.Errorf("schedule log cleanup: %w", err)
	}
	if err := s.Reschedule(ctx); err != nil {
		return err
	}
	s.cron.Start()
	componentLog("scheduler").Info().Msg("scheduler started")
	return nil
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Reschedule re-reads digest_enabled and digest_time. It is called after
// the settings change.
func (s *Scheduler) Reschedule(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.digestEntry != 0 {
		s.cron.Remove(s.digestEntry)
		s.digestEntry = 0
	}
	log := componentLog("scheduler")
	if !s.configs.GetBool(ctx, models.ConfigDigestEnabled, true) {
		log.Info().Msg("application digest disabled")
		return nil
	}

	at := s.configs.GetWithDefault(ctx, models.ConfigDigestTime, defaultDigestTime)
	hour, minute, err := parseClock(at)
	if err != nil {
		log.Warn().Err(err).Str("fallback", defaultDigestTime).Msg("bad digest time")
		hour, minute, _ = parseClock(defaultDigestTime)
	}

	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	id, err := s.cron.AddFunc(spec, func() {
		if _, err := s.digest.Run(ctx, time.Now()); err != nil {
			log.Error().Err(err).Msg("application digest failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule digest: %w", err)
	}
	s.digestEntry = id
	log.Info().Str("cron", spec).Msg("application digest scheduled")
	return nil
}
