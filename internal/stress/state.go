// Package stress is the load-generation core: it samples synthetic users,
// builds read/write jobs, executes them on a fixed worker pool, and verifies
// that the server's view of every user's workouts matches the locally
// tracked expected state.
package stress

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fitbod/fitstress/internal/auth"
	"github.com/fitbod/fitstress/internal/dataset"
)

// InsertedSet tracks the workout ids the server has confirmed for one user.
//
// It is a read/write lock with an explicit exclusive mode: workers take the
// exclusive side for writes and for read-and-validate (the set must be frozen
// while a server response is compared against it), which also serializes all
// jobs for one user across the pool. The manager takes the shared side when
// counting fresh ids during payload construction. Methods suffixed Locked
// require the corresponding lock to be held.
type InsertedSet struct {
	mu  sync.RWMutex
	ids map[uuid.UUID]struct{}
}

// NewInsertedSet creates an empty set.
func NewInsertedSet() *InsertedSet {
	return &InsertedSet{ids: make(map[uuid.UUID]struct{})}
}

// Lock acquires the exclusive (mutate or validate) side.
func (s *InsertedSet) Lock() { s.mu.Lock() }

// Unlock releases the exclusive side.
func (s *InsertedSet) Unlock() { s.mu.Unlock() }

// RLock acquires the shared side.
func (s *InsertedSet) RLock() { s.mu.RLock() }

// RUnlock releases the shared side.
func (s *InsertedSet) RUnlock() { s.mu.RUnlock() }

// AddLocked inserts ids and returns how many were not already present.
func (s *InsertedSet) AddLocked(ids ...uuid.UUID) int {
	added := 0
	for _, id := range ids {
		if _, ok := s.ids[id]; !ok {
			s.ids[id] = struct{}{}
			added++
		}
	}
	return added
}

// ContainsLocked reports membership.
func (s *InsertedSet) ContainsLocked(id uuid.UUID) bool {
	_, ok := s.ids[id]
	return ok
}

// LenLocked returns the set size.
func (s *InsertedSet) LenLocked() int { return len(s.ids) }

// DiffLocked returns the symmetric difference against other: ids present
// locally but missing from other, and ids in other that are not tracked
// locally. Both empty means the two views agree.
func (s *InsertedSet) DiffLocked(other map[uuid.UUID]struct{}) (missing, extra []uuid.UUID) {
	for id := range s.ids {
		if _, ok := other[id]; !ok {
			missing = append(missing, id)
		}
	}
	for id := range other {
		if _, ok := s.ids[id]; !ok {
			extra = append(extra, id)
		}
	}
	sortIDs(missing)
	sortIDs(extra)
	return missing, extra
}

// SortedLocked returns the tracked ids in sorted order, for diagnostics.
func (s *InsertedSet) SortedLocked() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

// UserState is the harness-side expected state for one synthetic user.
// Pos is mutated only by the manager goroutine and needs no lock; Inserted is
// shared between workers and the final verification pass.
type UserState struct {
	UserID   uuid.UUID
	Key      auth.PrivateKey
	Template dataset.Template

	// WorkoutIDs holds one pre-generated id per template entry, so
	// resubmitting a template index always reuses the same workout id.
	WorkoutIDs []uuid.UUID

	Pos      int
	Inserted *InsertedSet
}

// BuildStates creates one UserState per credential. A credential whose email
// appears in templates uses that template; the rest share the available
// templates round-robin (many synthetic users referencing one template is
// expected).
func BuildStates(creds []dataset.Credential, templates map[string]dataset.Template) []*UserState {
	emails := make([]string, 0, len(templates))
	for email := range templates {
		emails = append(emails, email)
	}
	sort.Strings(emails)

	out := make([]*UserState, 0, len(creds))
	for i, cred := range creds {
		tmpl, ok := templates[cred.Email]
		if !ok {
			tmpl = templates[emails[i%len(emails)]]
		}
		ids := make([]uuid.UUID, len(tmpl))
		for j := range ids {
			ids[j] = uuid.New()
		}
		out = append(out, &UserState{
			UserID:     cred.UserID,
			Key:        cred.Key,
			Template:   tmpl,
			WorkoutIDs: ids,
			Inserted:   NewInsertedSet(),
		})
	}
	return out
}

// DrawEngagementScores draws one constant sampling weight per user from a
// log-normal distribution, so every weight is strictly positive.
func DrawEngagementScores(n int, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Exp(rng.NormFloat64())
	}
	return out
}

// Counters is the shared handle passed to every goroutine at spawn: no
// process-global mutable state.
type Counters struct {
	// PendingInserts counts ids the manager has dispatched in write
	// payloads; ConfirmedInserts counts ids workers have seen the server
	// accept. The two converge when the queues drain.
	PendingInserts   atomic.Int64
	ConfirmedInserts atomic.Int64
}
