package stress

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fitbod/fitstress/internal/workout"
)

// Verify runs the post-run consistency pass: one final list request per user
// whose Pos advanced during the run, all users in parallel, comparing the
// server's workout-id set against the locally tracked inserted set. Every
// diverging user is reported before the pass fails; a transport or protocol
// error aborts the pass immediately.
//
// Callers skip Verify entirely in read-only mode.
func Verify(ctx context.Context, users []*UserState, client Sender, logger *zap.Logger) error {
	var (
		mu      sync.Mutex
		failed  []uuid.UUID
		checked int
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, st := range users {
		if st.Pos == 0 {
			continue
		}
		checked++
		st := st
		g.Go(func() error {
			st.Inserted.Lock()
			defer st.Inserted.Unlock()

			body, err := json.Marshal(workout.ListWorkoutsRequest{UserID: st.UserID})
			if err != nil {
				return fmt.Errorf("verify %s: %w", st.UserID, err)
			}
			raw, err := client.Send(ctx, workout.ListPath, st.Key, body)
			if err != nil {
				return fmt.Errorf("verify %s: %w", st.UserID, err)
			}
			var resp workout.ListWorkoutsResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return fmt.Errorf("verify %s: decode response: %w", st.UserID, err)
			}

			missing, extra := st.Inserted.DiffLocked(resp.IDSet())
			if len(missing) > 0 || len(extra) > 0 {
				logger.Error("verification mismatch",
					zap.String("user_id", st.UserID.String()),
					zap.Any("expected", st.Inserted.SortedLocked()),
					zap.Any("missing_on_server", missing),
					zap.Any("unexpected_on_server", extra),
				)
				mu.Lock()
				failed = append(failed, st.UserID)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(failed) > 0 {
		sortIDs(failed)
		return fmt.Errorf("verification failed for %d of %d users: %v", len(failed), checked, failed)
	}
	logger.Info("verification passed", zap.Int("users_checked", checked))
	return nil
}
