package stress

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fitbod/fitstress/internal/workout"
)

// Write payload construction constants: each write reuses the last
// windowOverlap template indices already sent, so the server sees
// repeated-but-idempotent ids, and extends at most windowSize-windowOverlap
// positions past the previous high-water mark.
const (
	windowOverlap = 10
	windowSize    = 15

	// writeThreshold gates writes: a uniform draw must exceed it, so an
	// eligible user writes with probability ~20%.
	writeThreshold = 0.80

	statusInterval = time.Second
)

// ManagerConfig configures the sampling loop.
type ManagerConfig struct {
	BatchSize int
	ReadOnly  bool

	// MaxJobsPerSec caps dispatch when > 0; 0 means unthrottled, which is
	// the historical behavior.
	MaxJobsPerSec float64
}

// Validate checks configuration.
func (c *ManagerConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("manager: batch size must be positive, got %d", c.BatchSize)
	}
	if c.MaxJobsPerSec < 0 {
		return fmt.Errorf("manager: max jobs/sec must be non-negative, got %v", c.MaxJobsPerSec)
	}
	return nil
}

// Manager is the control loop: every batch it draws a weighted sample of
// users, builds one job per sampled user, and round-robins the jobs onto the
// worker queues. It owns shutdown and the final verification pass. The
// manager goroutine is the only mutator of every user's Pos and the sole
// producer for every worker queue.
type Manager struct {
	cfg      ManagerConfig
	users    []*UserState
	sampler  *Sampler
	pool     *Pool
	counters *Counters
	logger   *zap.Logger
	rng      *rand.Rand
	stop     *atomic.Bool
	limiter  *rate.Limiter

	next int // rotating dispatch index
}

// NewManager wires the control loop together. stop is the termination flag
// flipped by the signal handler; it is only ever read at batch boundaries.
func NewManager(cfg ManagerConfig, users []*UserState, sampler *Sampler, pool *Pool,
	counters *Counters, stop *atomic.Bool, rng *rand.Rand, logger *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("manager: no users")
	}
	var limiter *rate.Limiter
	if cfg.MaxJobsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxJobsPerSec), 1)
	}
	return &Manager{
		cfg:      cfg,
		users:    users,
		sampler:  sampler,
		pool:     pool,
		counters: counters,
		logger:   logger,
		rng:      rng,
		stop:     stop,
		limiter:  limiter,
	}, nil
}

// Run samples and dispatches batches until the stop flag trips, then shuts
// the pool down. Cancellation is cooperative and batch-granular: a batch
// being dispatched always runs to completion first.
func (m *Manager) Run(ctx context.Context) {
	m.pool.Start(ctx)

	var intervalJobs, intervalReads, intervalWrites int
	lastStatus := time.Now()

	for !m.stop.Load() {
		for _, idx := range m.sampler.Sample(m.cfg.BatchSize) {
			job := m.buildJob(m.users[idx])

			if m.limiter != nil {
				_ = m.limiter.Wait(ctx)
			}
			m.dispatch(job)

			intervalJobs++
			if job.Kind == JobWrite {
				intervalWrites++
			} else {
				intervalReads++
			}
		}

		if time.Since(lastStatus) >= statusInterval {
			m.logger.Info("dispatch status",
				zap.Int("jobs", intervalJobs),
				zap.Int("reads", intervalReads),
				zap.Int("writes", intervalWrites),
				zap.Int64("pending_inserts", m.counters.PendingInserts.Load()),
				zap.Int64("confirmed_inserts", m.counters.ConfirmedInserts.Load()),
			)
			intervalJobs, intervalReads, intervalWrites = 0, 0, 0
			lastStatus = time.Now()
		}
	}

	m.logger.Info("stop flag tripped, draining workers")
	m.pool.Shutdown()
}

// buildJob decides Read vs Write for one sampled user. A write needs a
// non-read-only run, template entries left to offer, and a lucky draw.
func (m *Manager) buildJob(st *UserState) Job {
	if !m.cfg.ReadOnly && st.Pos < len(st.Template) && m.rng.Float64() > writeThreshold {
		return m.buildWrite(st)
	}
	return Job{Kind: JobRead, User: st}
}

// buildWrite takes the template window starting windowOverlap entries behind
// Pos, remaps it to the user's real id and pre-generated workout ids, and
// advances Pos by the number of ids not yet in the inserted set.
func (m *Manager) buildWrite(st *UserState) Job {
	lo := st.Pos - windowOverlap
	if lo < 0 {
		lo = 0
	}
	hi := lo + windowSize
	if hi > len(st.Template) {
		hi = len(st.Template)
	}

	items := make([]workout.Workout, 0, hi-lo)
	for i := lo; i < hi; i++ {
		items = append(items, workout.Workout{
			UserID:    st.UserID,
			WorkoutID: st.WorkoutIDs[i],
			StartTime: st.Template[i].Start,
			EndTime:   st.Template[i].End,
		})
	}

	st.Inserted.RLock()
	fresh := 0
	for i := lo; i < hi; i++ {
		if !st.Inserted.ContainsLocked(st.WorkoutIDs[i]) {
			fresh++
		}
	}
	st.Inserted.RUnlock()

	// fresh can recount ids from a not-yet-confirmed in-flight write for
	// this user, so the advance is clamped to the template length.
	st.Pos += fresh
	if st.Pos > len(st.Template) {
		st.Pos = len(st.Template)
	}
	m.counters.PendingInserts.Add(int64(fresh))

	return Job{Kind: JobWrite, User: st, Workouts: items}
}

// dispatch places a job on a worker queue, starting at the rotating index and
// spinning across workers until one accepts. No job is ever dropped; a full
// pool costs a busy-wait, not a loss.
func (m *Manager) dispatch(job Job) {
	n := m.pool.Size()
	for attempt := 0; ; attempt++ {
		i := m.next % n
		m.next++
		if m.pool.TrySubmit(i, job) {
			return
		}
		if attempt > 0 && attempt%n == 0 {
			// Every queue was full on the last sweep; yield so the
			// workers can run.
			runtime.Gosched()
		}
	}
}
