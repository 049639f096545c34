package submissions

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// ListOptions selects a page of a form's index. A non-empty Cursor supersedes Offset.
// From and To are inclusive bounds on the index timestamp; zero values are unbounded.
type ListOptions struct {
	Limit  int
	Offset int
	Cursor string
	From   time.Time
	To     time.Time
}

type Page struct {
	Items      []domain.Submission
	HasMore    bool
	NextCursor string

	// Total is the index length, before date filtering.
	Total int
}

type cursor struct {
	ID domain.SubmissionID `json:"id"`
	TS time.Time           `json:"ts"`
}

func encodeCursor(e domain.IndexEntry) string {
	b, _ := json.Marshal(cursor{ID: e.SubmissionID, TS: e.Timestamp})
	return base64.RawURLEncoding.EncodeToString(b)
}

func decodeCursor(s string) (cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, err
	}
	var c cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return cursor{}, err
	}
	return c, nil
}

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	if n > MaxListLimit {
		return MaxListLimit
	}
	return n
}
