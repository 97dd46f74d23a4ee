package stress

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fitbod/fitstress/internal/auth"
	"github.com/fitbod/fitstress/internal/workout"
)

// queueCapacity bounds each worker's inbound job queue.
const queueCapacity = 8

// Sender issues one signed request and returns the response body.
// *transport.Client implements it.
type Sender interface {
	Send(ctx context.Context, path string, key auth.PrivateKey, body []byte) ([]byte, error)
}

// FailFunc handles a fatal condition. The production hook logs and exits the
// process; tests substitute a recorder.
type FailFunc func(msg string, fields ...zap.Field)

// Pool is a fixed set of workers, each owning one bounded job queue.
// Jobs for one user serialize through the user's inserted-set lock; jobs for
// different users run fully in parallel.
type Pool struct {
	queues   []chan Job
	client   Sender
	counters *Counters
	readOnly bool
	logger   *zap.Logger
	fail     FailFunc

	wg sync.WaitGroup
}

// NewPool creates a pool of n workers. fail is invoked on any transport,
// protocol, or consistency failure; it is expected not to return in
// production.
func NewPool(n int, client Sender, counters *Counters, readOnly bool, logger *zap.Logger, fail FailFunc) *Pool {
	queues := make([]chan Job, n)
	for i := range queues {
		queues[i] = make(chan Job, queueCapacity)
	}
	return &Pool{
		queues:   queues,
		client:   client,
		counters: counters,
		readOnly: readOnly,
		logger:   logger,
		fail:     fail,
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.queues) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for i, q := range p.queues {
		p.wg.Add(1)
		go func(id int, jobs <-chan Job) {
			defer p.wg.Done()
			p.run(ctx, id, jobs)
		}(i, q)
	}
}

// TrySubmit attempts a non-blocking enqueue on worker i.
func (p *Pool) TrySubmit(i int, job Job) bool {
	select {
	case p.queues[i] <- job:
		return true
	default:
		return false
	}
}

// Shutdown sends Exit to every worker and joins them. The manager is the sole
// producer, so a blocking send here cannot race another producer and the
// workers are guaranteed to drain their queues down to the Exit.
func (p *Pool) Shutdown() {
	for _, q := range p.queues {
		q <- Job{Kind: JobExit}
	}
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int, jobs <-chan Job) {
	for job := range jobs {
		switch job.Kind {
		case JobExit:
			p.logger.Debug("worker exiting", zap.Int("worker", id))
			return
		case JobWrite:
			p.doWrite(ctx, job)
		case JobRead:
			if p.readOnly {
				p.doReadOnly(ctx, job)
			} else {
				p.doValidatingRead(ctx, job)
			}
		default:
			p.fail("unknown job kind", zap.Int("worker", id), zap.Uint8("kind", uint8(job.Kind)))
		}
	}
}

// doWrite submits the job's workouts and, on success, marks their ids
// inserted. The exclusive lock is held across the network call so no other
// job for this user can interleave.
func (p *Pool) doWrite(ctx context.Context, job Job) {
	st := job.User
	st.Inserted.Lock()
	defer st.Inserted.Unlock()

	body, err := json.Marshal(workout.NewWorkoutsRequest{UserID: st.UserID, Items: job.Workouts})
	if err != nil {
		p.fail("marshal new-workouts request", zap.String("user_id", st.UserID.String()), zap.Error(err))
		return
	}
	if _, err := p.client.Send(ctx, workout.NewPath, st.Key, body); err != nil {
		p.fail("write request failed", zap.String("user_id", st.UserID.String()), zap.Error(err))
		return
	}

	ids := make([]uuid.UUID, 0, len(job.Workouts))
	for _, w := range job.Workouts {
		ids = append(ids, w.WorkoutID)
	}
	// Duplicates already present do not recount.
	added := st.Inserted.AddLocked(ids...)
	p.counters.ConfirmedInserts.Add(int64(added))
}

// doValidatingRead lists the user's workouts and asserts the returned id set
// is exactly the locally tracked inserted set. The exclusive lock freezes the
// set for the duration of the comparison.
func (p *Pool) doValidatingRead(ctx context.Context, job Job) {
	st := job.User
	st.Inserted.Lock()
	defer st.Inserted.Unlock()

	resp, ok := p.list(ctx, st)
	if !ok {
		return
	}
	missing, extra := st.Inserted.DiffLocked(resp.IDSet())
	if len(missing) > 0 || len(extra) > 0 {
		p.fail("server state diverged from expected",
			zap.String("user_id", st.UserID.String()),
			zap.Any("expected", st.Inserted.SortedLocked()),
			zap.Any("missing_on_server", missing),
			zap.Any("unexpected_on_server", extra),
		)
	}
}

// doReadOnly lists and discards; no locking, no validation.
func (p *Pool) doReadOnly(ctx context.Context, job Job) {
	st := job.User
	body, err := json.Marshal(workout.ListWorkoutsRequest{UserID: st.UserID})
	if err != nil {
		p.fail("marshal list request", zap.String("user_id", st.UserID.String()), zap.Error(err))
		return
	}
	if _, err := p.client.Send(ctx, workout.ListPath, st.Key, body); err != nil {
		p.fail("read request failed", zap.String("user_id", st.UserID.String()), zap.Error(err))
	}
}

// list issues a list request and decodes the response. Reports failure and
// returns ok=false on any error.
func (p *Pool) list(ctx context.Context, st *UserState) (workout.ListWorkoutsResponse, bool) {
	var resp workout.ListWorkoutsResponse

	body, err := json.Marshal(workout.ListWorkoutsRequest{UserID: st.UserID})
	if err != nil {
		p.fail("marshal list request", zap.String("user_id", st.UserID.String()), zap.Error(err))
		return resp, false
	}
	raw, err := p.client.Send(ctx, workout.ListPath, st.Key, body)
	if err != nil {
		p.fail("list request failed", zap.String("user_id", st.UserID.String()), zap.Error(err))
		return resp, false
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		p.fail("decode list response",
			zap.String("user_id", st.UserID.String()),
			zap.ByteString("body", raw),
			zap.Error(err))
		return resp, false
	}
	return resp, true
}
