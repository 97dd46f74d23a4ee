package stress

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/fitbod/fitstress/internal/auth"
	"github.com/fitbod/fitstress/internal/workout"
)

// fakeSender routes Send calls to a test handler.
type fakeSender struct {
	mu      sync.Mutex
	calls   []string
	handler func(path string, body []byte) ([]byte, error)
}

func (f *fakeSender) Send(_ context.Context, path string, _ auth.PrivateKey, body []byte) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	f.mu.Unlock()
	return f.handler(path, body)
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recordingFail captures failure-hook invocations instead of exiting.
type recordingFail struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingFail) hook(msg string, _ ...zap.Field) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recordingFail) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func listResponse(t *testing.T, items []workout.Workout) []byte {
	t.Helper()
	raw, err := json.Marshal(workout.ListWorkoutsResponse{Items: items})
	require.NoError(t, err)
	return raw
}

func newTestUserState(t *testing.T, templateLen int) *UserState {
	t.Helper()
	priv, _, err := auth.GenerateKeypair()
	require.NoError(t, err)
	tmpl := testTemplate(templateLen)
	ids := make([]uuid.UUID, templateLen)
	for i := range ids {
		ids[i] = uuid.New()
	}
	return &UserState{
		UserID:     uuid.New(),
		Key:        priv,
		Template:   tmpl,
		WorkoutIDs: ids,
		Inserted:   NewInsertedSet(),
	}
}

func writeJob(st *UserState, lo, hi int) Job {
	items := make([]workout.Workout, 0, hi-lo)
	for i := lo; i < hi; i++ {
		items = append(items, workout.Workout{
			UserID:    st.UserID,
			WorkoutID: st.WorkoutIDs[i],
			StartTime: st.Template[i].Start,
			EndTime:   st.Template[i].End,
		})
	}
	return Job{Kind: JobWrite, User: st, Workouts: items}
}

func runOneJob(t *testing.T, pool *Pool, job Job) {
	t.Helper()
	pool.Start(context.Background())
	require.True(t, pool.TrySubmit(0, job))
	pool.Shutdown()
}

func TestWorker_WriteSuccess(t *testing.T) {
	sender := &fakeSender{handler: func(path string, body []byte) ([]byte, error) {
		require.Equal(t, workout.NewPath, path)
		return nil, nil
	}}
	fail := &recordingFail{}
	counters := &Counters{}
	pool := NewPool(1, sender, counters, false, zaptest.NewLogger(t), fail.hook)

	st := newTestUserState(t, 10)
	runOneJob(t, pool, writeJob(st, 0, 5))

	assert.Empty(t, fail.messages())
	assert.Equal(t, int64(5), counters.ConfirmedInserts.Load())
	st.Inserted.Lock()
	assert.Equal(t, 5, st.Inserted.LenLocked())
	st.Inserted.Unlock()
}

func TestWorker_WriteDuplicatesDoNotRecount(t *testing.T) {
	sender := &fakeSender{handler: func(string, []byte) ([]byte, error) { return nil, nil }}
	fail := &recordingFail{}
	counters := &Counters{}
	pool := NewPool(1, sender, counters, false, zaptest.NewLogger(t), fail.hook)

	st := newTestUserState(t, 10)
	pool.Start(context.Background())
	require.True(t, pool.TrySubmit(0, writeJob(st, 0, 5)))
	// Overlapping resubmission: indices 2..7, of which 2..4 are repeats.
	require.True(t, pool.TrySubmit(0, writeJob(st, 2, 8)))
	pool.Shutdown()

	assert.Empty(t, fail.messages())
	assert.Equal(t, int64(8), counters.ConfirmedInserts.Load())
	st.Inserted.Lock()
	assert.Equal(t, 8, st.Inserted.LenLocked())
	st.Inserted.Unlock()
}

func TestWorker_WriteServerError(t *testing.T) {
	sender := &fakeSender{handler: func(string, []byte) ([]byte, error) {
		return nil, errors.New("send /api/v1/workouts/new: status 500, want 204")
	}}
	fail := &recordingFail{}
	counters := &Counters{}
	pool := NewPool(1, sender, counters, false, zaptest.NewLogger(t), fail.hook)

	st := newTestUserState(t, 10)
	runOneJob(t, pool, writeJob(st, 0, 5))

	require.Contains(t, fail.messages(), "write request failed")
	// Nothing was confirmed and nothing entered the set.
	assert.Equal(t, int64(0), counters.ConfirmedInserts.Load())
	st.Inserted.Lock()
	assert.Equal(t, 0, st.Inserted.LenLocked())
	st.Inserted.Unlock()
}

func TestWorker_ValidatingRead(t *testing.T) {
	st := newTestUserState(t, 10)
	accepted := []workout.Workout{{
		UserID:    st.UserID,
		WorkoutID: st.WorkoutIDs[0],
		StartTime: st.Template[0].Start,
		EndTime:   st.Template[0].End,
	}}

	t.Run("matching sets pass", func(t *testing.T) {
		sender := &fakeSender{}
		sender.handler = func(path string, body []byte) ([]byte, error) {
			require.Equal(t, workout.ListPath, path)
			return listResponse(t, accepted), nil
		}
		fail := &recordingFail{}
		pool := NewPool(1, sender, &Counters{}, false, zaptest.NewLogger(t), fail.hook)

		st.Inserted.Lock()
		st.Inserted.AddLocked(st.WorkoutIDs[0])
		st.Inserted.Unlock()

		runOneJob(t, pool, Job{Kind: JobRead, User: st})
		assert.Empty(t, fail.messages())
	})

	t.Run("divergent sets are fatal", func(t *testing.T) {
		sender := &fakeSender{}
		sender.handler = func(string, []byte) ([]byte, error) {
			return listResponse(t, nil), nil
		}
		fail := &recordingFail{}
		pool := NewPool(1, sender, &Counters{}, false, zaptest.NewLogger(t), fail.hook)

		runOneJob(t, pool, Job{Kind: JobRead, User: st})
		assert.Contains(t, fail.messages(), "server state diverged from expected")
	})

	t.Run("unparseable response is fatal", func(t *testing.T) {
		sender := &fakeSender{}
		sender.handler = func(string, []byte) ([]byte, error) {
			return []byte("not json"), nil
		}
		fail := &recordingFail{}
		pool := NewPool(1, sender, &Counters{}, false, zaptest.NewLogger(t), fail.hook)

		runOneJob(t, pool, Job{Kind: JobRead, User: st})
		assert.Contains(t, fail.messages(), "decode list response")
	})
}

func TestWorker_ReadOnlyDiscardsResult(t *testing.T) {
	// The server reports workouts the local set has never seen; in
	// read-only mode that must not be treated as divergence.
	st := newTestUserState(t, 10)
	sender := &fakeSender{}
	sender.handler = func(path string, body []byte) ([]byte, error) {
		require.Equal(t, workout.ListPath, path)
		return listResponse(t, []workout.Workout{{UserID: st.UserID, WorkoutID: uuid.New()}}), nil
	}
	fail := &recordingFail{}
	pool := NewPool(1, sender, &Counters{}, true, zaptest.NewLogger(t), fail.hook)

	runOneJob(t, pool, Job{Kind: JobRead, User: st})
	assert.Empty(t, fail.messages())
	assert.Equal(t, 1, sender.callCount())
}

func TestPool_ShutdownJoinsAllWorkers(t *testing.T) {
	sender := &fakeSender{handler: func(string, []byte) ([]byte, error) { return listResponse(t, nil), nil }}
	pool := NewPool(4, sender, &Counters{}, true, zaptest.NewLogger(t), (&recordingFail{}).hook)
	pool.Start(context.Background())
	// Shutdown must return, which only happens if every worker got the
	// Exit and returned.
	pool.Shutdown()
}
