package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/fitbod/fitstress/internal/auth"
	"github.com/fitbod/fitstress/internal/workout"
)

// LoadCredentials reads a credentials file written by setup-users:
// user_id,email,public_key,private_key with base64-encoded keys. The public
// key column is parsed and discarded; only the private half is needed to
// sign requests.
func LoadCredentials(path string) ([]Credential, error) {
	r, closer, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = closer() }()

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	idCol, err := headerIndex(header, "user_id")
	if err != nil {
		return nil, err
	}
	emailCol, err := headerIndex(header, "email")
	if err != nil {
		return nil, err
	}
	privCol, err := headerIndex(header, "private_key")
	if err != nil {
		return nil, err
	}

	var out []Credential
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

		id, err := uuid.Parse(row[idCol])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: bad user_id %q: %w", path, line, row[idCol], err)
		}
		key, err := auth.DecodePrivateKey(row[privCol])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		out = append(out, Credential{UserID: id, Email: row[emailCol], Key: key})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: no credentials", path)
	}
	return out, nil
}

// WriteCredentials writes the credentials file consumed by LoadCredentials.
// users and keys must be parallel slices.
func WriteCredentials(path string, users []workout.User, keys []auth.PrivateKey) error {
	if len(users) != len(keys) {
		return fmt.Errorf("write credentials: %d users but %d keys", len(users), len(keys))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"user_id", "email", "public_key", "private_key"}); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	for i, u := range users {
		row := []string{
			u.UserID.String(),
			u.Email,
			auth.EncodeKey(u.Key),
			auth.EncodeKey(keys[i]),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return f.Close()
}
