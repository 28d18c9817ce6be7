package purchase

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/msall/kaalis/internal/catalog"
	"github.com/msall/kaalis/internal/paytech"
)

type fakeProvider struct {
	calls    int
	lastReq  *paytech.PaymentRequest
	redirect *paytech.PaymentRedirect
	err      error
}

func (f *fakeProvider) RequestPayment(ctx context.Context, req *paytech.PaymentRequest) (*paytech.PaymentRedirect, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.redirect, nil
}

func testInitiatorConfig() InitiatorConfig {
	return InitiatorConfig{
		Currency:     "XOF",
		ProviderMode: "test",
		BaseURL:      "https://kaalis.example",
		IPNURL:       "https://kaalis.example/v1/payments/ipn",
	}
}

func seedItems(t *testing.T, items ...*catalog.Item) catalog.Store {
	t.Helper()
	store := catalog.NewMemoryStore()
	for _, item := range items {
		if err := store.Create(context.Background(), item); err != nil {
			t.Fatalf("seed item %s: %v", item.ID, err)
		}
	}
	return store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestInitiate(t *testing.T) {
	store := NewMemoryStore()
	items := seedItems(t, &catalog.Item{ID: "m1", Name: "Mangoes", Price: 1500})
	provider := &fakeProvider{redirect: &paytech.PaymentRedirect{
		Token:       "tok_1",
		RedirectURL: "https://pay.example/tok_1",
	}}
	init := NewInitiator(store, items, provider, testInitiatorConfig(), discardLogger())

	result, err := init.Initiate(context.Background(), "user-1", "m1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.PaymentURL != "https://pay.example/tok_1" {
		t.Errorf("payment url = %q", result.PaymentURL)
	}
	if ok, _ := regexp.MatchString(`^m1-\d+$`, result.RefCommand); !ok {
		t.Errorf("ref command %q does not match m1-<digits>", result.RefCommand)
	}

	pending, err := store.GetPending(context.Background(), result.RefCommand)
	if err != nil {
		t.Fatalf("pending purchase not persisted: %v", err)
	}
	if pending.UserID != "user-1" || pending.ItemID != "m1" {
		t.Errorf("pending identity = %s/%s", pending.UserID, pending.ItemID)
	}
	if pending.Amount != 1500 || pending.Currency != "XOF" {
		t.Errorf("pending amount = %d %s", pending.Amount, pending.Currency)
	}
	if pending.Status != StatusPending {
		t.Errorf("pending status = %s", pending.Status)
	}

	if provider.calls != 1 {
		t.Fatalf("provider called %d times", provider.calls)
	}
	req := provider.lastReq
	if req.RefCommand != result.RefCommand {
		t.Errorf("provider ref = %q, want %q", req.RefCommand, result.RefCommand)
	}
	if req.ItemPrice != 1500 || req.Currency != "XOF" || req.Env != "test" {
		t.Errorf("provider request = %+v", req)
	}
	if req.IPNURL != "https://kaalis.example/v1/payments/ipn" {
		t.Errorf("ipn url = %q", req.IPNURL)
	}
	n := &paytech.Notification{CustomField: req.CustomField}
	if ref, err := n.RefCommand(); err != nil || ref != result.RefCommand {
		t.Errorf("custom field does not round-trip: ref=%q err=%v", ref, err)
	}
}

func TestInitiate_Validation(t *testing.T) {
	store := NewMemoryStore()
	items := seedItems(t,
		&catalog.Item{ID: "m1", Name: "Mangoes", Price: 1500},
		&catalog.Item{ID: "free", Name: "Flyer", Price: 0},
	)
	provider := &fakeProvider{redirect: &paytech.PaymentRedirect{RedirectURL: "https://pay.example/x"}}
	init := NewInitiator(store, items, provider, testInitiatorConfig(), discardLogger())

	tests := []struct {
		name    string
		userID  string
		itemID  string
		wantErr error
	}{
		{"blank user", "", "m1", ErrInvalidRequest},
		{"blank item", "user-1", "  ", ErrInvalidRequest},
		{"unknown item", "user-1", "nope", ErrItemNotFound},
		{"zero price", "user-1", "free", ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := init.Initiate(context.Background(), tt.userID, tt.itemID)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if provider.calls != 0 {
		t.Fatalf("provider called %d times for invalid requests", provider.calls)
	}
	if n, _ := store.CountPending(context.Background()); n != 0 {
		t.Fatalf("%d pending rows created for invalid requests", n)
	}
}

// failingStore wraps MemoryStore and fails selected operations.
type failingStore struct {
	*MemoryStore
	failCreatePending   bool
	failCreateConfirmed bool
	failDeletePending   bool
	failGetPending      bool
	confirmedErr        error
}

func (s *failingStore) CreatePending(ctx context.Context, p *PendingPurchase) error {
	if s.failCreatePending {
		return errors.New("disk full")
	}
	return s.MemoryStore.CreatePending(ctx, p)
}

func (s *failingStore) CreateConfirmed(ctx context.Context, p *ConfirmedPurchase) error {
	if s.failCreateConfirmed {
		if s.confirmedErr != nil {
			return s.confirmedErr
		}
		return errors.New("disk full")
	}
	return s.MemoryStore.CreateConfirmed(ctx, p)
}

func (s *failingStore) GetPending(ctx context.Context, refCommand string) (*PendingPurchase, error) {
	if s.failGetPending {
		return nil, errors.New("connection reset")
	}
	return s.MemoryStore.GetPending(ctx, refCommand)
}

func (s *failingStore) DeletePending(ctx context.Context, refCommand string) error {
	if s.failDeletePending {
		return errors.New("disk full")
	}
	return s.MemoryStore.DeletePending(ctx, refCommand)
}

func TestInitiate_StorageFailureSkipsProvider(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore(), failCreatePending: true}
	items := seedItems(t, &catalog.Item{ID: "m1", Name: "Mangoes", Price: 1500})
	provider := &fakeProvider{redirect: &paytech.PaymentRedirect{RedirectURL: "https://pay.example/x"}}
	init := NewInitiator(store, items, provider, testInitiatorConfig(), discardLogger())

	_, err := init.Initiate(context.Background(), "user-1", "m1")
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("err = %v, want ErrStorage", err)
	}
	if provider.calls != 0 {
		t.Fatalf("provider must not be called when the pending write fails")
	}
}

func TestInitiate_UpstreamFailureKeepsPending(t *testing.T) {
	store := NewMemoryStore()
	items := seedItems(t, &catalog.Item{ID: "m1", Name: "Mangoes", Price: 1500})
	provider := &fakeProvider{err: errors.New("connection refused")}
	init := NewInitiator(store, items, provider, testInitiatorConfig(), discardLogger())

	_, err := init.Initiate(context.Background(), "user-1", "m1")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want ErrUpstream", err)
	}
	if n, _ := store.CountPending(context.Background()); n != 1 {
		t.Fatalf("pending row count = %d, want 1", n)
	}
}

func TestInitiate_MissingRedirect(t *testing.T) {
	store := NewMemoryStore()
	items := seedItems(t, &catalog.Item{ID: "m1", Name: "Mangoes", Price: 1500})
	provider := &fakeProvider{err: paytech.ErrNoRedirect}
	init := NewInitiator(store, items, provider, testInitiatorConfig(), discardLogger())

	_, err := init.Initiate(context.Background(), "user-1", "m1")
	if !errors.Is(err, ErrUpstreamProtocol) {
		t.Fatalf("err = %v, want ErrUpstreamProtocol", err)
	}
}

func TestNextRefCommand_UniqueUnderRapidRepetition(t *testing.T) {
	init := NewInitiator(NewMemoryStore(), catalog.NewMemoryStore(), &fakeProvider{}, testInitiatorConfig(), discardLogger())
	frozen := time.Now()
	init.now = func() time.Time { return frozen }

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		ref := init.nextRefCommand("m1")
		if seen[ref] {
			t.Fatalf("duplicate ref command %q", ref)
		}
		seen[ref] = true
	}
}
