package scheduler

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"
)

// JobRun remembers when a settlement job last ran, so restarts do not repeat
// or skip a window.
type JobRun struct {
	JobName   string    `gorm:"column:job_name;primaryKey;type:varchar(64)"`
	LastRun   time.Time `gorm:"column:last_run;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

func (JobRun) TableName() string {
	return "job_runs"
}

// JobFunc is one settlement entry point. Runs must be safely re-triggerable;
// the engines skip already-claimed reports on their own.
type JobFunc func(ctx context.Context, now time.Time) error

type job struct {
	name    string
	cadence time.Duration
	fn      JobFunc
}

// Scheduler triggers commission and rebate runs on a cadence and records the
// last run time. Trigger exposes the same entry points for manual invocation.
type Scheduler struct {
	db   *gorm.DB
	mu   sync.Mutex
	jobs []job
	tick time.Duration
}

func New(db *gorm.DB) *Scheduler {
	return &Scheduler{db: db, tick: time.Minute}
}

func (s *Scheduler) Register(name string, cadence time.Duration, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job{name: name, cadence: cadence, fn: fn})
}

// Start runs the cadence loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	jobs := make([]job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, j := range jobs {
		lastRun, err := s.lastRun(ctx, j.name)
		if err != nil {
			log.Printf("scheduler: %s last-run lookup failed: %v", j.name, err)
			continue
		}
		if now.Sub(lastRun) < j.cadence {
			continue
		}
		if err := s.run(ctx, j, now); err != nil {
			log.Printf("scheduler: %s run failed: %v", j.name, err)
		}
	}
}

// Trigger runs one registered job immediately, recording the run time the same
// way a cadence run does.
func (s *Scheduler) Trigger(ctx context.Context, name string, now time.Time) error {
	s.mu.Lock()
	var found *job
	for i := range s.jobs {
		if s.jobs[i].name == name {
			found = &s.jobs[i]
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return errors.New("unknown job: " + name)
	}
	return s.run(ctx, *found, now)
}

func (s *Scheduler) run(ctx context.Context, j job, now time.Time) error {
	log.Printf("scheduler: running %s", j.name)
	if err := j.fn(ctx, now); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(&JobRun{JobName: j.name, LastRun: now, UpdatedAt: now}).Error
}

func (s *Scheduler) lastRun(ctx context.Context, name string) (time.Time, error) {
	var run JobRun
	err := s.db.WithContext(ctx).Where("job_name = ?", name).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return run.LastRun, nil
}
