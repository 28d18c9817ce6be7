package purchase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/msall/kaalis/internal/logging"
	"github.com/msall/kaalis/internal/metrics"
	"github.com/msall/kaalis/internal/paytech"
	"github.com/msall/kaalis/internal/traces"
)

// OutcomeKind classifies how a notification was handled.
type OutcomeKind string

const (
	OutcomeConfirmed OutcomeKind = "confirmed"
	OutcomeIgnored   OutcomeKind = "ignored"
	OutcomeRejected  OutcomeKind = "rejected"
)

// Reason explains a non-confirmed outcome.
type Reason string

const (
	ReasonNonSaleEvent         Reason = "non_sale_event"
	ReasonMalformedCustomField Reason = "malformed_custom_field"
	ReasonInvalidSignature     Reason = "invalid_signature"
	ReasonNoMatchingPending    Reason = "no_matching_pending_purchase"
	ReasonPersistFailed        Reason = "persist_failed"
)

// Outcome is the result of reconciling one notification.
type Outcome struct {
	Kind     OutcomeKind
	Reason   Reason
	Purchase *ConfirmedPurchase // set when Kind is OutcomeConfirmed
}

// ConfirmationPublisher receives confirmed purchases for fan-out, e.g. to
// websocket subscribers. Implementations must not block.
type ConfirmationPublisher interface {
	PublishConfirmation(p *ConfirmedPurchase)
}

// Reconciler turns provider payment notifications into confirmed purchases.
//
// Per ref command the lifecycle is pending, then confirmed, terminal. The
// pending lookup rejects duplicate deliveries cheaply; the uniqueness
// constraint on confirmed records is the authoritative guard when two
// deliveries race past the lookup. The confirmed record is inserted before
// the pending record is deleted, so a crash between the two steps leaves a
// recoverable orphan rather than a lost payment.
type Reconciler struct {
	store     Store
	creds     paytech.Credentials
	publisher ConfirmationPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewReconciler(store Store, creds paytech.Credentials, publisher ConfirmationPublisher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		creds:     creds,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Reconcile processes one notification. It never returns an error: every
// failure mode is a terminal outcome the HTTP boundary maps to a status
// code, and the provider's redelivery is the only retry mechanism.
func (r *Reconciler) Reconcile(ctx context.Context, n *paytech.Notification) Outcome {
	ctx, span := traces.StartSpan(ctx, "purchase.reconcile",
		traces.EventType(n.TypeEvent))
	defer span.End()

	outcome := r.reconcile(ctx, n)

	span.SetAttributes(traces.Outcome(outcomeLabel(outcome)))
	metrics.ReconciliationsTotal.WithLabelValues(outcomeLabel(outcome)).Inc()
	return outcome
}

func (r *Reconciler) reconcile(ctx context.Context, n *paytech.Notification) Outcome {
	log := logging.L(ctx)

	// Decode before authentication or storage; a garbled payload must not
	// reach either.
	ref, err := n.RefCommand()
	if err != nil {
		log.Warn("notification custom field rejected", "error", err)
		return Outcome{Kind: OutcomeRejected, Reason: ReasonMalformedCustomField}
	}
	log = log.With("ref_command", ref, "type_event", n.TypeEvent)

	if n.TypeEvent != paytech.SaleCompleteEvent {
		log.Info("notification ignored")
		return Outcome{Kind: OutcomeIgnored, Reason: ReasonNonSaleEvent}
	}

	if !r.creds.MatchDigests(n.APIKeyDigest, n.APISecretDigest) {
		log.Warn("notification signature rejected")
		return Outcome{Kind: OutcomeRejected, Reason: ReasonInvalidSignature}
	}

	pending, err := r.store.GetPending(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrPendingNotFound) {
			log.Warn("no pending purchase for notification")
			return Outcome{Kind: OutcomeRejected, Reason: ReasonNoMatchingPending}
		}
		log.Error("pending lookup failed", "error", err)
		return Outcome{Kind: OutcomeRejected, Reason: ReasonPersistFailed}
	}

	now := r.now().UTC()
	confirmed := &ConfirmedPurchase{
		RefCommand:       pending.RefCommand,
		UserID:           pending.UserID,
		ItemID:           pending.ItemID,
		ItemName:         pending.ItemName,
		Amount:           pending.Amount,
		Currency:         pending.Currency,
		Status:           StatusCompleted,
		PaymentMethod:    n.PaymentMethod,
		PaymentReference: n.PaymentRef,
		ClientPhone:      n.ClientPhone,
		RawNotification:  n.Raw,
		CreatedAt:        pending.CreatedAt,
		UpdatedAt:        now,
	}

	if err := r.store.CreateConfirmed(ctx, confirmed); err != nil {
		if errors.Is(err, ErrAlreadyConfirmed) {
			// Lost the race against a concurrent delivery of the same
			// notification; the winner already owns the confirmation.
			log.Info("duplicate confirmation rejected")
			return Outcome{Kind: OutcomeRejected, Reason: ReasonNoMatchingPending}
		}
		log.Error("confirmed insert failed", "error", err)
		return Outcome{Kind: OutcomeRejected, Reason: ReasonPersistFailed}
	}

	if err := r.store.DeletePending(ctx, ref); err != nil {
		// The confirmation is durable; the leftover pending row only needs
		// cleanup, so this is not a failure of the reconciliation.
		log.Warn("pending cleanup failed after confirmation", "error", err)
	} else {
		metrics.PendingPurchases.Dec()
	}

	metrics.ConfirmationLatency.Observe(now.Sub(pending.CreatedAt).Seconds())
	log.Info("payment confirmed",
		"user_id", confirmed.UserID,
		"item_id", confirmed.ItemID,
		"amount", confirmed.Amount,
		"payment_method", confirmed.PaymentMethod,
		"payment_ref", confirmed.PaymentReference)

	if r.publisher != nil {
		r.publisher.PublishConfirmation(confirmed)
	}
	return Outcome{Kind: OutcomeConfirmed, Purchase: confirmed}
}

func outcomeLabel(o Outcome) string {
	if o.Kind == OutcomeConfirmed {
		return string(OutcomeConfirmed)
	}
	return string(o.Reason)
}
