package pagination

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	c, err := Decode(Encode(at, "m1-42"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !c.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", c.CreatedAt, at)
	}
	if c.ID != "m1-42" {
		t.Errorf("ID = %q, want %q", c.ID, "m1-42")
	}
}

func TestDecode_EmptyTokenIsNilCursor(t *testing.T) {
	c, err := Decode("")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c != nil {
		t.Fatalf("cursor = %+v, want nil", c)
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	for _, token := range []string{
		"%%%not-base64%%%",
		"bm9waXBl",    // decodes to "nopipe"
		"eHx5",        // decodes to "x|y", non-numeric timestamp
		"fDEyMy1hYmM", // decodes to "|123-abc", empty timestamp
	} {
		if _, err := Decode(token); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("Decode(%q) err = %v, want ErrInvalidCursor", token, err)
		}
	}
}

func TestPage_NoExtraRow(t *testing.T) {
	rows, next := Page([]string{"a", "b"}, 2, func(s string) (time.Time, string) {
		return time.Now(), s
	})
	if len(rows) != 2 || next != "" {
		t.Fatalf("rows = %v next = %q, want 2 rows and empty cursor", rows, next)
	}
}

func TestPage_ExtraRowYieldsNextCursor(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows, next := Page([]string{"a", "b", "c"}, 2, func(s string) (time.Time, string) {
		return at, s
	})
	if len(rows) != 2 {
		t.Fatalf("rows = %v, want 2", rows)
	}
	c, err := Decode(next)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.ID != "b" {
		t.Errorf("cursor ID = %q, want %q (last row kept)", c.ID, "b")
	}
}
