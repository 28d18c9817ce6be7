// Package pagination implements opaque keyset cursors for list endpoints.
package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidCursor is returned for cursors the service did not mint.
var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a keyset position: everything strictly after (CreatedAt, ID)
// in creation order has already been served.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// Encode renders c as an opaque token safe for use in a query string.
func Encode(createdAt time.Time, id string) string {
	return base64.RawURLEncoding.EncodeToString(
		[]byte(strconv.FormatInt(createdAt.UnixNano(), 10) + "|" + id))
}

// Decode parses a token previously produced by Encode. An empty token
// means "start from the beginning" and decodes to a nil cursor.
func Decode(token string) (*Cursor, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	nanos, id, ok := strings.Cut(string(raw), "|")
	if !ok {
		return nil, ErrInvalidCursor
	}
	n, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return &Cursor{CreatedAt: time.Unix(0, n).UTC(), ID: id}, nil
}

// Page trims a limit+1 fetch down to the requested page. When the extra
// row is present it returns the cursor for the next page, keyed on the
// last row kept.
func Page[T any](rows []T, limit int, key func(T) (time.Time, string)) ([]T, string) {
	if len(rows) <= limit {
		return rows, ""
	}
	rows = rows[:limit]
	createdAt, id := key(rows[len(rows)-1])
	return rows, Encode(createdAt, id)
}
