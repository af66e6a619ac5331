// Package campaign triggers scheduled broadcast runs from cron specs in the
// config. It is trigger-only; the actual fan-out happens in the dispatcher.
package campaign

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wablast/internal/config"
	logx "wablast/pkg/logx"
)

// Runner starts one broadcast run with the given message template.
type Runner interface {
	Dispatch(ctx context.Context, template string) error
}

type Scheduler struct {
	runner Runner
	log    logx.Logger
	parser cron.Parser

	mu         sync.Mutex
	c          *cron.Cron
	campaigns  []config.CampaignConfig
	tz         string
	ctx        context.Context
	registered int
}

func New(runner Runner, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		runner: runner,
		log:    log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Apply replaces the campaign set (and timezone) and, when the scheduler is
// running, restarts cron so the new set takes effect.
func (s *Scheduler) Apply(campaigns []config.CampaignConfig, tz string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns = campaigns
	s.tz = strings.TrimSpace(tz)
	if s.c != nil {
		s.stopCronLocked(context.Background())
		s.startCronLocked()
	}
}

// Start begins cron triggering. ctx is the base context handed to runs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.ctx = ctx
	s.startCronLocked()
}

func (s *Scheduler) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	s.stopCronLocked(ctx)
	s.mu.Unlock()
	s.log.Info("campaign scheduler stopped", logx.Duration("took", time.Since(start)))
}

// Registered reports how many campaigns are currently scheduled.
func (s *Scheduler) Registered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

func (s *Scheduler) startCronLocked() {
	loc := time.Local
	if s.tz != "" {
		l, err := time.LoadLocation(s.tz)
		if err != nil {
			s.log.Warn("invalid timezone, using local", logx.String("tz", s.tz), logx.Err(err))
		} else {
			loc = l
		}
	}

	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	n := 0
	for _, camp := range s.campaigns {
		if !camp.Enabled {
			continue
		}
		camp := camp
		_, err := c.AddFunc(camp.Schedule, func() { s.run(camp) })
		if err != nil {
			s.log.Warn("campaign schedule rejected",
				logx.String("campaign", camp.Name),
				logx.String("schedule", camp.Schedule),
				logx.Err(err),
			)
			continue
		}
		n++
	}
	c.Start()
	s.c = c
	s.registered = n
	s.log.Info("campaign scheduler started", logx.String("tz", loc.String()), logx.Int("campaigns", n))
}

func (s *Scheduler) stopCronLocked(ctx context.Context) {
	c := s.c
	s.c = nil
	s.registered = 0
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
}

// run fires one campaign. Dispatch refusals (session down, a run already in
// flight) are logged and the trigger is skipped; the next cron tick retries.
func (s *Scheduler) run(camp config.CampaignConfig) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	s.log.Info("campaign triggered", logx.String("campaign", camp.Name))
	if err := s.runner.Dispatch(ctx, camp.Template); err != nil {
		s.log.Warn("campaign skipped", logx.String("campaign", camp.Name), logx.Err(err))
		return
	}
	s.log.Info("campaign dispatched", logx.String("campaign", camp.Name))
}
