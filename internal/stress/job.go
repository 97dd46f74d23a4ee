package stress

import (
	"github.com/fitbod/fitstress/internal/workout"
)

// JobKind tags the job variant a worker receives.
type JobKind uint8

const (
	// JobRead lists a user's workouts; outside read-only mode the result
	// is validated against the user's inserted set.
	JobRead JobKind = iota
	// JobWrite submits a window of template workouts for one user. Never
	// produced in read-only mode.
	JobWrite
	// JobExit terminates the receiving worker.
	JobExit
)

func (k JobKind) String() string {
	switch k {
	case JobRead:
		return "read"
	case JobWrite:
		return "write"
	case JobExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Job is one unit of work addressed to a single synthetic user. User is nil
// only for JobExit. Workouts is populated only for JobWrite and carries
// template entries already remapped to the user's real id and pre-generated
// workout ids.
type Job struct {
	Kind     JobKind
	User     *UserState
	Workouts []workout.Workout
}
