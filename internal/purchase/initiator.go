package purchase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/msall/kaalis/internal/catalog"
	"github.com/msall/kaalis/internal/logging"
	"github.com/msall/kaalis/internal/metrics"
	"github.com/msall/kaalis/internal/paytech"
	"github.com/msall/kaalis/internal/traces"
)

// ProviderClient issues payment requests against the hosted provider.
type ProviderClient interface {
	RequestPayment(ctx context.Context, req *paytech.PaymentRequest) (*paytech.PaymentRedirect, error)
}

// InitiatorConfig carries the merchant settings the initiator stamps onto
// every payment request.
type InitiatorConfig struct {
	Currency     string
	ProviderMode string // "test" or "prod"
	BaseURL      string // public base URL for success/cancel redirects
	IPNURL       string
}

// Initiator creates pending purchases and registers them with the provider.
type Initiator struct {
	store    Store
	items    catalog.Store
	provider ProviderClient
	cfg      InitiatorConfig
	logger   *slog.Logger
	now      func() time.Time
	lastNano atomic.Int64
}

func NewInitiator(store Store, items catalog.Store, provider ProviderClient, cfg InitiatorConfig, logger *slog.Logger) *Initiator {
	return &Initiator{
		store:    store,
		items:    items,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Initiate prices the item, persists a pending purchase, and registers the
// payment with the provider. The pending row is the only durable side
// effect; it is written before the outbound call so a provider notification
// can never arrive for a purchase we do not know about.
func (s *Initiator) Initiate(ctx context.Context, userID, itemID string) (*InitiateResult, error) {
	ctx, span := traces.StartSpan(ctx, "purchase.initiate",
		traces.UserID(userID), traces.ItemID(itemID))
	defer span.End()

	userID = strings.TrimSpace(userID)
	itemID = strings.TrimSpace(itemID)
	if userID == "" || itemID == "" {
		metrics.PaymentsInitiatedTotal.WithLabelValues("invalid_request").Inc()
		return nil, fmt.Errorf("%w: user id and item id are required", ErrInvalidRequest)
	}

	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		metrics.PaymentsInitiatedTotal.WithLabelValues("item_not_found").Inc()
		return nil, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if item.Price <= 0 {
		metrics.PaymentsInitiatedTotal.WithLabelValues("invalid_price").Inc()
		return nil, fmt.Errorf("%w: item %s", ErrInvalidPrice, itemID)
	}

	ref := s.nextRefCommand(itemID)
	span.SetAttributes(traces.RefCommand(ref))

	pending := &PendingPurchase{
		RefCommand: ref,
		UserID:     userID,
		ItemID:     itemID,
		ItemName:   item.Name,
		Amount:     item.Price,
		Currency:   s.cfg.Currency,
		Status:     StatusPending,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreatePending(ctx, pending); err != nil {
		metrics.PaymentsInitiatedTotal.WithLabelValues("storage_error").Inc()
		return nil, fmt.Errorf("%w: create pending purchase: %v", ErrStorage, err)
	}
	metrics.PendingPurchases.Inc()

	redirect, err := s.provider.RequestPayment(ctx, &paytech.PaymentRequest{
		RefCommand:  ref,
		ItemName:    item.Name,
		ItemPrice:   item.Price,
		Currency:    s.cfg.Currency,
		CommandName: fmt.Sprintf("Achat %s", item.Name),
		Env:         s.cfg.ProviderMode,
		SuccessURL:  s.cfg.BaseURL + "/v1/payments/" + ref + "/success",
		CancelURL:   s.cfg.BaseURL + "/v1/payments/" + ref + "/cancel",
		IPNURL:      s.cfg.IPNURL,
		CustomField: paytech.EncodeCustomField(ref),
	})
	if err != nil {
		// The pending row stays: the provider may have accepted the request
		// before the error surfaced, and a stale pending row is harmless.
		logging.L(ctx).Warn("provider payment request failed",
			"ref_command", ref, "error", err)
		if errors.Is(err, paytech.ErrNoRedirect) {
			metrics.PaymentsInitiatedTotal.WithLabelValues("upstream_protocol_error").Inc()
			return nil, fmt.Errorf("%w: %v", ErrUpstreamProtocol, err)
		}
		metrics.PaymentsInitiatedTotal.WithLabelValues("upstream_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	metrics.PaymentsInitiatedTotal.WithLabelValues("ok").Inc()
	logging.L(ctx).Info("payment initiated",
		"ref_command", ref, "user_id", userID, "item_id", itemID, "amount", item.Price)

	return &InitiateResult{
		RefCommand: ref,
		PaymentURL: redirect.RedirectURL,
		Token:      redirect.Token,
	}, nil
}

// nextRefCommand builds "<itemID>-<unix nanos>" and guarantees uniqueness
// within the process even when two initiations land on the same nanosecond.
func (s *Initiator) nextRefCommand(itemID string) string {
	for {
		last := s.lastNano.Load()
		nanos := s.now().UnixNano()
		if nanos <= last {
			nanos = last + 1
		}
		if s.lastNano.CompareAndSwap(last, nanos) {
			return itemID + "-" + strconv.FormatInt(nanos, 10)
		}
	}
}
