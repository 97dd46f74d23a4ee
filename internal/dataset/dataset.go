// Package dataset reads the CSV inputs the harness runs from: the example
// user and workout exports, and the credentials file written by setup-users.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/fitbod/fitstress/internal/auth"
)

// Credential is one synthetic user's identity as loaded from a credentials
// file. Immutable once loaded.
type Credential struct {
	UserID uuid.UUID
	Email  string
	Key    auth.PrivateKey
}

// Entry is one template workout: a start/end window with no identity
// attached. Identities are applied when a write payload is built.
type Entry struct {
	Start time.Time
	End   time.Time
}

// Template is an ordered (ascending by start time) sequence of entries for
// one originating email. Templates are shared read-only across synthetic
// users.
type Template []Entry

// workoutStartHour is when the example exports record workouts beginning,
// local to the exporting client's timezone.
const (
	workoutStartHour   = 6
	workoutStartMinute = 30
	workoutZone        = "America/Los_Angeles"
	workoutDateLayout  = "2006-01-02"
)

func openCSV(path string) (*csv.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	return r, f.Close, nil
}

// headerIndex maps a header row to column positions, matching loosely so the
// upstream export header variants ("Email" / "Email Address") both work.
func headerIndex(header []string, names ...string) (int, error) {
	for i, col := range header {
		for _, name := range names {
			if col == name {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("missing column %q in header %v", names[0], header)
}

// LoadEmails reads the example user export and returns its email column in
// file order.
func LoadEmails(path string) ([]string, error) {
	r, closer, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer() }()

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	emailCol, err := headerIndex(header, "email", "Email")
	if err != nil {
		return nil, err
	}

	var out []string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		out = append(out, row[emailCol])
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no users", path)
	}
	return out, nil
}

// LoadTemplates reads the example workout export and groups it into one
// Template per email, each sorted ascending by start time. Start times are
// 06:30 Pacific on the workout date, stored in UTC; end time is start plus
// the recorded duration.
func LoadTemplates(path string) (map[string]Template, error) {
	loc, err := time.LoadLocation(workoutZone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", workoutZone, err)
	}

	r, closer, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer() }()

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	emailCol, err := headerIndex(header, "email", "Email Address")
	if err != nil {
		return nil, err
	}
	dateCol, err := headerIndex(header, "workout_date", "Workout Date")
	if err != nil {
		return nil, err
	}
	durCol, err := headerIndex(header, "duration_minutes", "Workout Duration")
	if err != nil {
		return nil, err
	}

	templates := make(map[string]Template)
	line := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		line++

		day, err := time.ParseInLocation(workoutDateLayout, row[dateCol], loc)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad workout date %q: %w", path, line, row[dateCol], err)
		}
		var minutes int
		if _, err := fmt.Sscanf(row[durCol], "%d", &minutes); err != nil || minutes <= 0 {
			return nil, fmt.Errorf("%s line %d: bad duration %q", path, line, row[durCol])
		}

		start := time.Date(day.Year(), day.Month(), day.Day(),
			workoutStartHour, workoutStartMinute, 0, 0, loc).UTC()
		email := row[emailCol]
		templates[email] = append(templates[email], Entry{
			Start: start,
			End:   start.Add(time.Duration(minutes) * time.Minute),
		})
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("%s: no workouts", path)
	}

	for _, entries := range templates {
		sort.Slice(entries, func(i, j int) bool { return entries[i].Start.Before(entries[j].Start) })
	}
	return templates, nil
}
