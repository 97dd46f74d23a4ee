// Package workout holds the domain types and wire formats shared with the
// fitbod API.
package workout

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fitbod/fitstress/internal/auth"
)

// API paths consumed by the harness.
const (
	NewPath  = "/api/v1/workouts/new"
	ListPath = "/api/v1/workouts/list"
)

// User is the public half of a registered identity.
type User struct {
	UserID  uuid.UUID      `json:"user_id"`
	Email   string         `json:"email"`
	Key     auth.PublicKey `json:"key"`
	Created time.Time      `json:"created"`
}

// Workout is one recorded workout. The server enforces uniqueness on both
// (user_id, start_time) and (user_id, workout_id).
type Workout struct {
	UserID    uuid.UUID `json:"user_id"`
	WorkoutID uuid.UUID `json:"workout_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// Validate checks the workout time invariant.
func (w Workout) Validate() error {
	if !w.EndTime.After(w.StartTime) {
		return fmt.Errorf("workout %s: end_time %s not after start_time %s",
			w.WorkoutID, w.EndTime.Format(time.RFC3339), w.StartTime.Format(time.RFC3339))
	}
	return nil
}

// NewWorkoutsRequest is the body of POST /api/v1/workouts/new. Success is a
// 204 with an empty body.
type NewWorkoutsRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Items  []Workout `json:"items"`
}

// ListWorkoutsRequest is the body of POST /api/v1/workouts/list.
type ListWorkoutsRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Start  *string   `json:"start,omitempty"`
	End    *string   `json:"end,omitempty"`
	Limit  *int      `json:"limit,omitempty"`
}

// ListWorkoutsResponse is the 200 body of POST /api/v1/workouts/list.
type ListWorkoutsResponse struct {
	Items []Workout `json:"items"`
}

// IDSet returns the set of workout ids in the response.
func (r ListWorkoutsResponse) IDSet() map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{}, len(r.Items))
	for _, w := range r.Items {
		out[w.WorkoutID] = struct{}{}
	}
	return out
}
