// Package scheduler implements the Scheduler (spec.md §4.12): time-window
// rules that mutate the global rate limit or pause state on a fixed
// cadence.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"gonzbd/internal/config"
	"gonzbd/internal/events"
	"gonzbd/internal/logger"
	"gonzbd/internal/persistence"
	"gonzbd/internal/queue"
	"gonzbd/internal/ratelimit"
)

// Pauser is the queue.Queue surface the Scheduler pauses and resumes.
type Pauser interface {
	Pause()
	Resume()
}

// Limiter is the ratelimit.Limiter surface the Scheduler mutates.
type Limiter interface {
	Update(bps, burst int64)
}

// Scheduler evaluates persisted schedule rules once per tick and applies
// the winning rule's action, per spec.md §4.12.
type Scheduler struct {
	store       *persistence.Store
	limiter     Limiter
	queue       Pauser
	bus         *events.Bus
	log         *logger.Logger
	defaultBps  int64
	cron        *cron.Cron
	appliedRule string
	pausedByUs  bool
}

func New(cfg *config.Config, store *persistence.Store, limiter *ratelimit.Limiter, q *queue.Queue, bus *events.Bus, log *logger.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		limiter:    limiter,
		queue:      q,
		bus:        bus,
		log:        log.Tag("scheduler"),
		defaultBps: cfg.SpeedLimitBps,
	}
}

// SyncConfigRules persists every rule in cfg.Persistence.ScheduleRules,
// the seed path for rules authored in the static config file rather than
// added at runtime.
func (s *Scheduler) SyncConfigRules(ctx context.Context, cfg *config.Config) error {
	for _, r := range cfg.Persistence.ScheduleRules {
		rule := &persistence.ScheduleRule{
			Name:      r.Name,
			Days:      strings.Join(r.Days, ","),
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			Enabled:   r.Enabled,
			Action:    r.Action,
			SpeedBps:  r.SpeedBps,
		}
		if err := s.store.SaveScheduleRule(ctx, rule); err != nil {
			return fmt.Errorf("sync schedule rule %s: %w", r.Name, err)
		}
	}
	return nil
}

// Start begins the per-minute evaluation loop, running until ctx is
// cancelled. It evaluates once immediately so a rule already in its
// window takes effect without waiting for the first tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.evaluate(ctx)

	s.cron = cron.New()
	_, err := s.cron.AddFunc("@every 1m", func() { s.evaluate(ctx) })
	if err != nil {
		s.log.Warn("register schedule evaluation job: %v", err)
		return
	}
	s.cron.Start()

	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
}

// evaluate loads every rule, selects the most recently transitioned
// active one, and applies its action. No active rule reverts to the
// configured default speed limit and, if the scheduler itself paused the
// queue, resumes it.
func (s *Scheduler) evaluate(ctx context.Context) {
	rules, err := s.store.ListScheduleRules(ctx)
	if err != nil {
		s.log.Warn("list schedule rules: %v", err)
		return
	}

	now := time.Now()
	winner, sinceStart := selectActiveRule(rules, now)

	if winner == nil {
		s.revertToDefault()
		return
	}

	if winner.Name == s.appliedRule {
		return
	}
	s.appliedRule = winner.Name
	_ = sinceStart

	switch winner.Action {
	case "speed_limit":
		s.resumeIfPausedByUs()
		s.limiter.Update(winner.SpeedBps, 0)
		s.bus.Publish(events.Event{Kind: events.SpeedLimitChanged, SpeedBps: float64(winner.SpeedBps)})
		s.log.Info("schedule rule %q applied: speed_limit=%d", winner.Name, winner.SpeedBps)
	case "unlimited":
		s.resumeIfPausedByUs()
		s.limiter.Update(0, 0)
		s.bus.Publish(events.Event{Kind: events.SpeedLimitChanged, SpeedBps: 0})
		s.log.Info("schedule rule %q applied: unlimited", winner.Name)
	case "pause":
		s.queue.Pause()
		s.pausedByUs = true
		s.bus.Publish(events.Event{Kind: events.QueuePaused})
		s.log.Info("schedule rule %q applied: pause", winner.Name)
	default:
		s.log.Warn("schedule rule %q has unknown action %q", winner.Name, winner.Action)
	}
}

func (s *Scheduler) revertToDefault() {
	if s.appliedRule == "" {
		return
	}
	s.appliedRule = ""
	s.resumeIfPausedByUs()
	s.limiter.Update(s.defaultBps, 0)
	s.bus.Publish(events.Event{Kind: events.SpeedLimitChanged, SpeedBps: float64(s.defaultBps)})
}

func (s *Scheduler) resumeIfPausedByUs() {
	if !s.pausedByUs {
		return
	}
	s.pausedByUs = false
	s.queue.Resume()
	s.bus.Publish(events.Event{Kind: events.QueueResumed})
}

// selectActiveRule returns the enabled rule currently inside its window
// whose start boundary most recently occurred, and how long ago that was.
// Ties (equal elapsed time) favor no particular order beyond slice order,
// matching spec.md §4.12's "select the most recently transitioned active
// rule".
func selectActiveRule(rules []*persistence.ScheduleRule, now time.Time) (*persistence.ScheduleRule, time.Duration) {
	var winner *persistence.ScheduleRule
	var winnerElapsed time.Duration = -1

	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if !matchesDay(r.Days, now) {
			continue
		}
		elapsed, active := elapsedSinceStart(r.StartTime, r.EndTime, now)
		if !active {
			continue
		}
		if winnerElapsed < 0 || elapsed < winnerElapsed {
			winner = r
			winnerElapsed = elapsed
		}
	}
	return winner, winnerElapsed
}

func matchesDay(days string, now time.Time) bool {
	days = strings.TrimSpace(days)
	if days == "" {
		return true
	}
	today := strings.ToLower(now.Weekday().String())[:3]
	for _, d := range strings.Split(days, ",") {
		if strings.ToLower(strings.TrimSpace(d)) == today {
			return true
		}
	}
	return false
}

// elapsedSinceStart reports whether now falls within [start, end) local
// time, treating end <= start as an overnight window per spec.md §4.12,
// and how long ago the window's start boundary occurred.
func elapsedSinceStart(startStr, endStr string, now time.Time) (time.Duration, bool) {
	start, err := parseClock(startStr, now)
	if err != nil {
		return 0, false
	}
	end, err := parseClock(endStr, now)
	if err != nil {
		return 0, false
	}

	if !end.After(start) {
		// Overnight window: active from start through midnight, or from
		// midnight through end.
		if !now.Before(start) {
			return now.Sub(start), true
		}
		if now.Before(end) {
			return now.Sub(start.AddDate(0, 0, -1)), true
		}
		return 0, false
	}

	if !now.Before(start) && now.Before(end) {
		return now.Sub(start), true
	}
	return 0, false
}

func parseClock(hhmm string, ref time.Time) (time.Time, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid time %q", hhmm)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, err
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day(), hour, minute, 0, 0, ref.Location()), nil
}
