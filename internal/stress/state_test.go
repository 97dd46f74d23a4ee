package stress

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitbod/fitstress/internal/auth"
	"github.com/fitbod/fitstress/internal/dataset"
)

func TestInsertedSet_AddLocked(t *testing.T) {
	s := NewInsertedSet()
	a, b := uuid.New(), uuid.New()

	s.Lock()
	defer s.Unlock()

	assert.Equal(t, 2, s.AddLocked(a, b))
	assert.Equal(t, 2, s.LenLocked())

	t.Run("resubmitting does not grow the set", func(t *testing.T) {
		assert.Equal(t, 0, s.AddLocked(a, b))
		assert.Equal(t, 2, s.LenLocked())
	})

	t.Run("mixed batch counts only fresh ids", func(t *testing.T) {
		c := uuid.New()
		assert.Equal(t, 1, s.AddLocked(a, c))
		assert.Equal(t, 3, s.LenLocked())
	})
}

func TestInsertedSet_DiffLocked(t *testing.T) {
	s := NewInsertedSet()
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	s.Lock()
	defer s.Unlock()
	s.AddLocked(a, b)

	t.Run("equal sets have empty difference", func(t *testing.T) {
		missing, extra := s.DiffLocked(map[uuid.UUID]struct{}{a: {}, b: {}})
		assert.Empty(t, missing)
		assert.Empty(t, extra)
	})

	t.Run("divergence reported on both sides", func(t *testing.T) {
		missing, extra := s.DiffLocked(map[uuid.UUID]struct{}{a: {}, c: {}})
		assert.Equal(t, []uuid.UUID{b}, missing)
		assert.Equal(t, []uuid.UUID{c}, extra)
	})
}

func testCredentials(t *testing.T, emails ...string) []dataset.Credential {
	t.Helper()
	out := make([]dataset.Credential, 0, len(emails))
	for _, email := range emails {
		priv, _, err := auth.GenerateKeypair()
		require.NoError(t, err)
		out = append(out, dataset.Credential{UserID: uuid.New(), Email: email, Key: priv})
	}
	return out
}

func testTemplate(n int) dataset.Template {
	tmpl := make(dataset.Template, n)
	base := testStart()
	for i := range tmpl {
		tmpl[i] = dataset.Entry{
			Start: base.AddDate(0, 0, i),
			End:   base.AddDate(0, 0, i).Add(testDuration),
		}
	}
	return tmpl
}

func TestBuildStates(t *testing.T) {
	templates := map[string]dataset.Template{
		"a@fitbod.me": testTemplate(3),
		"b@fitbod.me": testTemplate(5),
	}

	t.Run("matching email uses own template", func(t *testing.T) {
		states := BuildStates(testCredentials(t, "a@fitbod.me"), templates)
		require.Len(t, states, 1)
		assert.Len(t, states[0].Template, 3)
		assert.Len(t, states[0].WorkoutIDs, 3)
	})

	t.Run("unknown emails share templates round-robin", func(t *testing.T) {
		states := BuildStates(testCredentials(t, "x@fitbod.me", "y@fitbod.me", "z@fitbod.me"), templates)
		require.Len(t, states, 3)
		for _, st := range states {
			assert.NotEmpty(t, st.Template)
			assert.Len(t, st.WorkoutIDs, len(st.Template))
		}
	})

	t.Run("every state starts at pos zero with empty inserted set", func(t *testing.T) {
		states := BuildStates(testCredentials(t, "a@fitbod.me"), templates)
		assert.Equal(t, 0, states[0].Pos)
		states[0].Inserted.Lock()
		assert.Equal(t, 0, states[0].Inserted.LenLocked())
		states[0].Inserted.Unlock()
	})

	t.Run("workout ids are distinct", func(t *testing.T) {
		states := BuildStates(testCredentials(t, "b@fitbod.me"), templates)
		seen := map[uuid.UUID]struct{}{}
		for _, id := range states[0].WorkoutIDs {
			_, dup := seen[id]
			assert.False(t, dup)
			seen[id] = struct{}{}
		}
	})
}

func TestDrawEngagementScores(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	scores := DrawEngagementScores(1000, rng)
	require.Len(t, scores, 1000)
	for _, s := range scores {
		assert.Greater(t, s, 0.0)
	}
}
