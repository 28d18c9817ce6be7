package purchase

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	pending := &PendingPurchase{
		RefCommand: "m1-1",
		UserID:     "user-1",
		ItemID:     "m1",
		Amount:     1500,
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.CreatePending(ctx, pending); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Mutating the caller's struct must not affect the stored row.
	pending.Amount = 9999

	got, err := store.GetPending(ctx, "m1-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount != 1500 {
		t.Errorf("stored amount mutated: %d", got.Amount)
	}

	// Mutating the returned struct must not affect the stored row either.
	got.Amount = 7
	again, _ := store.GetPending(ctx, "m1-1")
	if again.Amount != 1500 {
		t.Errorf("stored amount mutated via returned copy: %d", again.Amount)
	}
}

func TestMemoryStore_SentinelErrors(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.GetPending(ctx, "nope"); !errors.Is(err, ErrPendingNotFound) {
		t.Errorf("get pending: %v", err)
	}
	if err := store.DeletePending(ctx, "nope"); !errors.Is(err, ErrPendingNotFound) {
		t.Errorf("delete pending: %v", err)
	}
	if _, err := store.GetConfirmed(ctx, "nope"); !errors.Is(err, ErrConfirmedNotFound) {
		t.Errorf("get confirmed: %v", err)
	}

	cp := &ConfirmedPurchase{RefCommand: "m1-1", Status: StatusCompleted}
	if err := store.CreateConfirmed(ctx, cp); err != nil {
		t.Fatalf("create confirmed: %v", err)
	}
	if err := store.CreateConfirmed(ctx, cp); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Errorf("duplicate confirmed: %v", err)
	}
}
