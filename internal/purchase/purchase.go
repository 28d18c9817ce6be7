// Package purchase implements the payment lifecycle for Kaalis.
//
// A purchase starts as a pending record created when the buyer is sent to
// the hosted payment page, and becomes a confirmed record exactly once when
// the provider's payment notification is reconciled against it. Pending and
// confirmed records are immutable; the only transition is the atomic
// pending-to-confirmed handoff performed by the Reconciler.
package purchase

import (
	"context"
	"errors"
	"time"

	"github.com/msall/kaalis/internal/pagination"
)

var (
	ErrInvalidRequest   = errors.New("invalid payment request")
	ErrItemNotFound     = errors.New("item not found")
	ErrInvalidPrice     = errors.New("item has no valid price")
	ErrStorage          = errors.New("storage failure")
	ErrUpstream         = errors.New("payment provider request failed")
	ErrUpstreamProtocol = errors.New("payment provider response missing redirect")

	ErrPendingExists     = errors.New("pending purchase already exists")
	ErrPendingNotFound   = errors.New("pending purchase not found")
	ErrAlreadyConfirmed  = errors.New("purchase already confirmed")
	ErrConfirmedNotFound = errors.New("confirmed purchase not found")
)

// Status represents the state of a purchase record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// PendingPurchase is a payment awaiting provider confirmation. Created by
// the Initiator before the buyer is redirected; consumed by the Reconciler.
type PendingPurchase struct {
	RefCommand string    `json:"refCommand"`
	UserID     string    `json:"userId"`
	ItemID     string    `json:"itemId"`
	ItemName   string    `json:"itemName"`
	Amount     int64     `json:"amount"` // in XOF, no subunit
	Currency   string    `json:"currency"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ConfirmedPurchase is the terminal record of a settled payment. Identity
// fields and CreatedAt are carried over from the pending record so the
// original initiation time survives confirmation.
type ConfirmedPurchase struct {
	RefCommand       string    `json:"refCommand"`
	UserID           string    `json:"userId"`
	ItemID           string    `json:"itemId"`
	ItemName         string    `json:"itemName"`
	Amount           int64     `json:"amount"`
	Currency         string    `json:"currency"`
	Status           Status    `json:"status"`
	PaymentMethod    string    `json:"paymentMethod"`
	PaymentReference string    `json:"paymentReference"`
	ClientPhone      string    `json:"clientPhone,omitempty"`
	RawNotification  []byte    `json:"-"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// InitiateRequest is the request body for starting a payment.
type InitiateRequest struct {
	UserID string `json:"userId" binding:"required"`
	ItemID string `json:"itemId" binding:"required"`
}

// InitiateResult is what the caller needs to send the buyer to the
// provider's hosted payment page.
type InitiateResult struct {
	RefCommand string `json:"refCommand"`
	PaymentURL string `json:"paymentUrl"`
	Token      string `json:"token,omitempty"`
}

// Store persists purchase records.
//
// CreateConfirmed must enforce uniqueness on RefCommand and return
// ErrAlreadyConfirmed on violation; that constraint is the authoritative
// guard against double confirmation under concurrent notification delivery.
type Store interface {
	CreatePending(ctx context.Context, p *PendingPurchase) error
	GetPending(ctx context.Context, refCommand string) (*PendingPurchase, error)
	DeletePending(ctx context.Context, refCommand string) error
	CreateConfirmed(ctx context.Context, p *ConfirmedPurchase) error
	GetConfirmed(ctx context.Context, refCommand string) (*ConfirmedPurchase, error)
	// ListConfirmedByUser returns up to limit+1 confirmed purchases for a
	// user, newest first, starting after the cursor position. The extra row
	// lets the caller compute the next-page cursor.
	ListConfirmedByUser(ctx context.Context, userID string, limit int, cursor *pagination.Cursor) ([]*ConfirmedPurchase, error)
	CountPending(ctx context.Context) (int, error)
}
