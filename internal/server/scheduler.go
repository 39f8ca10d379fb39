package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/shellsage-ai/ResearchHive-sub000/internal/store"
)

// Scheduler fires research jobs for recurring questions. The Redis lock
// keeps replicas from double-firing the same schedule inside one window.
type Scheduler struct {
	Store    *store.Store
	Pipe     JobRunner
	Rdb      *redis.Client
	Interval time.Duration
	Stop     chan struct{}
	Logger   *log.Logger
}

func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	items, err := s.Store.ListSchedules(ctx, true)
	if err != nil {
		s.Logger.Printf("listing schedules: %v", err)
		return
	}
	now := time.Now()
	for _, item := range items {
		if !isDue(item.Cron, item.LastRunAt, now) {
			continue
		}
		if s.Rdb != nil {
			// lock held until expiry so the window survives this process
			ok, err := s.Rdb.SetNX(ctx, "sched:lock:"+item.ID, "1", 2*time.Minute).Result()
			if err != nil || !ok {
				continue
			}
		}
		if err := s.Store.MarkScheduleRun(ctx, item.ID, now); err != nil {
			s.Logger.Printf("marking schedule %s: %v", item.ID, err)
			continue
		}
		job, err := s.Pipe.Start(item.Question, item.JobType, item.TargetSources)
		if err != nil {
			s.Logger.Printf("schedule %s start: %v", item.ID, err)
			continue
		}
		s.Logger.Printf("schedule %s fired job %s", item.ID, job.ID)
	}
}

// isDue reports whether a schedule with the given cron spec should run now.
// Supports "@daily", "@hourly" and standard 5-field cron expressions; an
// unparseable spec degrades to @daily.
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	switch cronSpec {
	case "@daily":
		return last == nil || now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		return last == nil || now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return last == nil || now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
