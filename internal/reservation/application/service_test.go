package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	catalog "github.com/sseMG/Food-Reservation-sub000/internal/catalog/domain"
	"github.com/sseMG/Food-Reservation-sub000/internal/reservation/domain"
	"github.com/sseMG/Food-Reservation-sub000/internal/storage"
	wallet "github.com/sseMG/Food-Reservation-sub000/internal/wallet/domain"
	"github.com/sseMG/Food-Reservation-sub000/pkg/logging"
)

// fakeStore is an in-memory implementation of the Store port, locked like
// the file backend so concurrency tests are meaningful.
type fakeStore struct {
	mu           sync.Mutex
	items        map[string]catalog.MenuItem
	users        map[string]wallet.User
	reservations map[string]domain.Reservation
	transactions []wallet.Transaction

	// failDecrement makes the next decrement of an item fail, simulating a
	// concurrent drain landing between pre-check and decrement.
	failDecrement map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:         make(map[string]catalog.MenuItem),
		users:         make(map[string]wallet.User),
		reservations:  make(map[string]domain.Reservation),
		failDecrement: make(map[string]bool),
	}
}

func (f *fakeStore) GetItem(_ context.Context, id string) (catalog.MenuItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return catalog.MenuItem{}, storage.ErrNotFound
	}
	return item, nil
}

func (f *fakeStore) DecrementStock(_ context.Context, itemID string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDecrement[itemID] {
		delete(f.failDecrement, itemID)
		return storage.ErrInsufficientStock
	}
	item, ok := f.items[itemID]
	if !ok {
		return storage.ErrNotFound
	}
	if item.Stock < qty {
		return storage.ErrInsufficientStock
	}
	item.Stock -= qty
	f.items[itemID] = item
	return nil
}

func (f *fakeStore) IncrementStock(_ context.Context, itemID string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return storage.ErrNotFound
	}
	item.Stock += qty
	f.items[itemID] = item
	return nil
}

func (f *fakeStore) DebitWallet(_ context.Context, userID string, amountCents int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	if u.BalanceCents < amountCents {
		return storage.ErrInsufficientBalance
	}
	u.BalanceCents -= amountCents
	f.users[userID] = u
	return nil
}

func (f *fakeStore) CreditWallet(_ context.Context, userID string, amountCents int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	u.BalanceCents += amountCents
	f.users[userID] = u
	return nil
}

func (f *fakeStore) AppendTransaction(_ context.Context, tx wallet.Transaction) (wallet.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx.Direction == wallet.DirectionCredit && tx.Ref != "" {
		for _, existing := range f.transactions {
			if existing.Direction == wallet.DirectionCredit && existing.Ref == tx.Ref {
				return existing, false, nil
			}
		}
	}
	f.transactions = append(f.transactions, tx)
	return tx, true, nil
}

func (f *fakeStore) UpdateTransactionStatus(_ context.Context, id string, st wallet.TxStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, tx := range f.transactions {
		if tx.ID == id {
			f.transactions[i].Status = st
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) SaveReservation(_ context.Context, r domain.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reservations[r.ID] = r
	return nil
}

func (f *fakeStore) GetReservation(_ context.Context, id string) (domain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return domain.Reservation{}, storage.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) UpdateReservationStatus(_ context.Context, id string, from, to domain.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return storage.ErrNotFound
	}
	if r.Status != from {
		return storage.ErrStale
	}
	r.Status = to
	f.reservations[id] = r
	return nil
}

func (f *fakeStore) ClaimRefund(_ context.Context, id, refundTxID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return false, storage.ErrNotFound
	}
	if r.Refunded {
		return false, nil
	}
	if !domain.CanTransition(r.Status, domain.StatusRejected) {
		return false, storage.ErrStale
	}
	r.Refunded = true
	r.RefundTransactionID = refundTxID
	f.reservations[id] = r
	return true, nil
}

func (f *fakeStore) creditCount(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, tx := range f.transactions {
		if tx.Direction == wallet.DirectionCredit && tx.Ref == ref {
			n++
		}
	}
	return n
}

func (f *fakeStore) stock(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[id].Stock
}

func (f *fakeStore) balance(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].BalanceCents
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Emit(_ context.Context, eventType, _ string, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func newTestService() (*Service, *fakeStore, *fakeNotifier) {
	store := newFakeStore()
	notif := &fakeNotifier{}
	svc := NewService(logging.New(), store, notif)
	return svc, store, notif
}

func seedItem(f *fakeStore, id string, priceCents int64, stock int) {
	f.items[id] = catalog.MenuItem{ID: id, Name: "Item " + id, PriceCents: priceCents, Stock: stock, Visible: true}
}

func seedUser(f *fakeStore, id string, balanceCents int64) {
	f.users[id] = wallet.User{ID: id, BalanceCents: balanceCents}
}

func TestCreate_ChargesAtCreation(t *testing.T) {
	svc, store, notif := newTestService()
	seedItem(store, "sandwich", 350, 10)
	seedItem(store, "juice", 150, 10)
	seedUser(store, "alice", 2000)

	r, err := svc.Create(context.Background(), "alice", []LineRequest{
		{ItemID: "sandwich", Quantity: 2},
		{ItemID: "juice", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if r.TotalCents != 850 {
		t.Errorf("TotalCents = %d, want 850", r.TotalCents)
	}
	if r.Status != domain.StatusPending {
		t.Errorf("Status = %s, want Pending", r.Status)
	}
	if !r.Charged || !r.StockDeducted || r.TransactionID == "" {
		t.Errorf("charge flags not set: %+v", r)
	}
	if got := store.balance("alice"); got != 2000-850 {
		t.Errorf("balance = %d, want %d", got, 2000-850)
	}
	if got := store.stock("sandwich"); got != 8 {
		t.Errorf("sandwich stock = %d, want 8", got)
	}
	if got := store.stock("juice"); got != 9 {
		t.Errorf("juice stock = %d, want 9", got)
	}

	if len(store.transactions) != 1 {
		t.Fatalf("transactions = %d, want 1", len(store.transactions))
	}
	tx := store.transactions[0]
	if tx.Direction != wallet.DirectionDebit || tx.AmountCents != 850 || tx.Status != wallet.TxPending || tx.Ref != r.ID {
		t.Errorf("debit transaction wrong: %+v", tx)
	}

	if len(notif.events) != 1 || notif.events[0] != domain.EventReservationCreated {
		t.Errorf("events = %v, want one ReservationCreated", notif.events)
	}
}

func TestCreate_SnapshotsCatalogPrice(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "soup", 275, 5)
	seedUser(store, "bob", 1000)

	r, err := svc.Create(context.Background(), "bob", []LineRequest{{ItemID: "soup", Quantity: 1}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Lines[0].PriceCents != 275 || r.Lines[0].Name != "Item soup" {
		t.Errorf("line not snapshotted from catalog: %+v", r.Lines[0])
	}
}

func TestCreate_Validation(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "soup", 275, 5)
	seedUser(store, "bob", 1000)
	ctx := context.Background()

	cases := []struct {
		name   string
		userID string
		lines  []LineRequest
	}{
		{"no lines", "bob", nil},
		{"no user", "", []LineRequest{{ItemID: "soup", Quantity: 1}}},
		{"zero quantity", "bob", []LineRequest{{ItemID: "soup", Quantity: 0}}},
		{"negative quantity", "bob", []LineRequest{{ItemID: "soup", Quantity: -2}}},
		{"duplicate item", "bob", []LineRequest{{ItemID: "soup", Quantity: 1}, {ItemID: "soup", Quantity: 1}}},
	}
	for _, tc := range cases {
		if _, err := svc.Create(ctx, tc.userID, tc.lines); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%s: err = %v, want validation error", tc.name, err)
		}
	}

	if _, err := svc.Create(ctx, "bob", []LineRequest{{ItemID: "ghost", Quantity: 1}}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown item: err = %v, want not found", err)
	}

	// Nothing mutated by any of the failed attempts.
	if store.balance("bob") != 1000 || store.stock("soup") != 5 || len(store.transactions) != 0 {
		t.Error("failed creates must leave no partial state")
	}
}

func TestCreate_HiddenItemNotOrderable(t *testing.T) {
	svc, store, _ := newTestService()
	store.items["secret"] = catalog.MenuItem{ID: "secret", Name: "Secret", PriceCents: 100, Stock: 5, Visible: false}
	seedUser(store, "bob", 1000)

	if _, err := svc.Create(context.Background(), "bob", []LineRequest{{ItemID: "secret", Quantity: 1}}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("hidden item: err = %v, want not found", err)
	}
}

func TestCreate_InsufficientBalance_NoPartialState(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "soup", 500, 5)
	seedUser(store, "bob", 400)

	_, err := svc.Create(context.Background(), "bob", []LineRequest{{ItemID: "soup", Quantity: 1}})
	if !errors.Is(err, storage.ErrInsufficientBalance) {
		t.Fatalf("err = %v, want insufficient balance", err)
	}
	if store.balance("bob") != 400 || store.stock("soup") != 5 {
		t.Error("insufficient balance must leave balance and stock untouched")
	}
	if len(store.transactions) != 0 || len(store.reservations) != 0 {
		t.Error("insufficient balance must create no ledger entry or reservation")
	}
}

func TestCreate_StockPrecheckBeforeDebit(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "soup", 100, 2)
	seedUser(store, "bob", 1000)

	_, err := svc.Create(context.Background(), "bob", []LineRequest{{ItemID: "soup", Quantity: 3}})
	if !errors.Is(err, storage.ErrInsufficientStock) {
		t.Fatalf("err = %v, want insufficient stock", err)
	}
	if store.balance("bob") != 1000 {
		t.Error("stock pre-check must run before the debit")
	}
}

func TestCreate_DecrementRaceCompensates(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "soup", 100, 5)
	seedItem(store, "bread", 50, 5)
	seedUser(store, "bob", 1000)

	// The pre-check passes, then the decrement of the second line fails as
	// if a concurrent reservation drained it.
	store.failDecrement["bread"] = true

	_, err := svc.Create(context.Background(), "bob", []LineRequest{
		{ItemID: "soup", Quantity: 2},
		{ItemID: "bread", Quantity: 1},
	})
	if !errors.Is(err, storage.ErrInsufficientStock) {
		t.Fatalf("err = %v, want insufficient stock", err)
	}
	if store.balance("bob") != 1000 {
		t.Errorf("balance = %d, want wallet credited back", store.balance("bob"))
	}
	if store.stock("soup") != 5 {
		t.Errorf("soup stock = %d, want restored to 5", store.stock("soup"))
	}
	if len(store.reservations) != 0 {
		t.Error("no reservation may survive a compensated create")
	}
}

func TestScenarioA_StockExhaustion(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "x", 100, 5)
	seedUser(store, "alice", 10_000)
	seedUser(store, "bob", 10_000)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "alice", []LineRequest{{ItemID: "x", Quantity: 5}}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if store.stock("x") != 0 {
		t.Fatalf("stock = %d, want 0", store.stock("x"))
	}
	if _, err := svc.Create(ctx, "bob", []LineRequest{{ItemID: "x", Quantity: 1}}); !errors.Is(err, storage.ErrInsufficientStock) {
		t.Errorf("second create err = %v, want insufficient stock", err)
	}
}

func TestScenarioB_ApproveFlipsDebit(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "meal", 100, 10)
	seedUser(store, "alice", 100)
	ctx := context.Background()

	r, err := svc.Create(ctx, "alice", []LineRequest{{ItemID: "meal", Quantity: 1}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if store.balance("alice") != 0 {
		t.Fatalf("balance = %d, want 0", store.balance("alice"))
	}
	if store.transactions[0].Status != wallet.TxPending {
		t.Fatalf("debit status = %s, want Pending", store.transactions[0].Status)
	}

	updated, err := svc.SetStatus(ctx, r.ID, domain.StatusApproved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if updated.Status != domain.StatusApproved {
		t.Errorf("status = %s, want Approved", updated.Status)
	}
	if store.transactions[0].Status != wallet.TxSuccess {
		t.Errorf("debit status = %s, want Success", store.transactions[0].Status)
	}
	if store.balance("alice") != 0 {
		t.Errorf("approve moved money: balance = %d", store.balance("alice"))
	}
}

func TestScenarioC_RejectRefunds(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "meal", 100, 10)
	seedUser(store, "alice", 100)
	ctx := context.Background()

	r, err := svc.Create(ctx, "alice", []LineRequest{{ItemID: "meal", Quantity: 1}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := svc.SetStatus(ctx, r.ID, domain.StatusRejected)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if updated.Status != domain.StatusRejected {
		t.Errorf("status = %s, want Rejected", updated.Status)
	}
	if !updated.Refunded || updated.RefundTransactionID == "" {
		t.Errorf("refund not recorded: %+v", updated)
	}
	if store.balance("alice") != 100 {
		t.Errorf("balance = %d, want 100", store.balance("alice"))
	}
	if store.stock("meal") != 10 {
		t.Errorf("stock = %d, want 10", store.stock("meal"))
	}
	if n := store.creditCount(r.ID); n != 1 {
		t.Errorf("credit transactions = %d, want 1", n)
	}
}

func TestRoundTrip_NetZero(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "a", 120, 7)
	seedItem(store, "b", 80, 3)
	seedUser(store, "carol", 5000)
	ctx := context.Background()

	r, err := svc.Create(ctx, "carol", []LineRequest{
		{ItemID: "a", Quantity: 3},
		{ItemID: "b", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SetStatus(ctx, r.ID, domain.StatusRejected); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if store.balance("carol") != 5000 {
		t.Errorf("balance = %d, want exactly restored", store.balance("carol"))
	}
	if store.stock("a") != 7 || store.stock("b") != 3 {
		t.Errorf("stock not exactly restored: a=%d b=%d", store.stock("a"), store.stock("b"))
	}
}

func TestReject_IdempotentRetry(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "meal", 100, 10)
	seedUser(store, "alice", 100)
	ctx := context.Background()

	r, err := svc.Create(ctx, "alice", []LineRequest{{ItemID: "meal", Quantity: 1}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SetStatus(ctx, r.ID, domain.StatusRejected); err != nil {
		t.Fatalf("first reject: %v", err)
	}

	// The retry is an idempotent replay: already Rejected.
	var conflict *domain.ConflictError
	if _, err := svc.SetStatus(ctx, r.ID, domain.StatusRejected); !errors.As(err, &conflict) {
		t.Fatalf("second reject err = %v, want conflict", err)
	}

	if store.balance("alice") != 100 {
		t.Errorf("balance = %d, double refund?", store.balance("alice"))
	}
	if store.stock("meal") != 10 {
		t.Errorf("stock = %d, double restoration?", store.stock("meal"))
	}
	if n := store.creditCount(r.ID); n != 1 {
		t.Errorf("credit transactions = %d, want exactly 1", n)
	}
}

func TestReject_ConcurrentSingleRefund(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "meal", 100, 10)
	seedUser(store, "alice", 100)
	ctx := context.Background()

	r, err := svc.Create(ctx, "alice", []LineRequest{{ItemID: "meal", Quantity: 1}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.SetStatus(ctx, r.ID, domain.StatusRejected)
		}()
	}
	wg.Wait()

	final, err := store.GetReservation(ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != domain.StatusRejected || !final.Refunded {
		t.Errorf("final state: %+v", final)
	}
	if store.balance("alice") != 100 {
		t.Errorf("balance = %d, want 100 (exactly one refund)", store.balance("alice"))
	}
	if store.stock("meal") != 10 {
		t.Errorf("stock = %d, want 10 (exactly one restoration)", store.stock("meal"))
	}
	if n := store.creditCount(r.ID); n != 1 {
		t.Errorf("credit transactions = %d, want exactly 1", n)
	}
}

func TestScenarioD_NoBackwardsTransition(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "meal", 100, 10)
	seedUser(store, "alice", 1000)
	ctx := context.Background()

	r, err := svc.Create(ctx, "alice", []LineRequest{{ItemID: "meal", Quantity: 1}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, step := range []domain.Status{domain.StatusApproved, domain.StatusPreparing, domain.StatusReady} {
		if _, err := svc.SetStatus(ctx, r.ID, step); err != nil {
			t.Fatalf("transition to %s: %v", step, err)
		}
	}

	var transition *domain.InvalidTransitionError
	if _, err := svc.SetStatus(ctx, r.ID, domain.StatusPreparing); !errors.As(err, &transition) {
		t.Fatalf("Ready->Preparing err = %v, want invalid transition", err)
	}
	if transition.From != domain.StatusReady || transition.To != domain.StatusPreparing {
		t.Errorf("transition error = %+v", transition)
	}

	got, _ := store.GetReservation(ctx, r.ID)
	if got.Status != domain.StatusReady {
		t.Errorf("status = %s, invalid transition must leave reservation unchanged", got.Status)
	}
}

func TestSetStatus_SameStatusConflict(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "meal", 100, 10)
	seedUser(store, "alice", 1000)
	ctx := context.Background()

	r, err := svc.Create(ctx, "alice", []LineRequest{{ItemID: "meal", Quantity: 1}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var conflict *domain.ConflictError
	if _, err := svc.SetStatus(ctx, r.ID, domain.StatusPending); !errors.As(err, &conflict) {
		t.Errorf("Pending->Pending err = %v, want conflict", err)
	}
}

func TestSetStatus_NotFound(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.SetStatus(context.Background(), "ghost", domain.StatusApproved); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestSetStatus_ClaimedIsTerminal(t *testing.T) {
	svc, store, _ := newTestService()
	seedItem(store, "meal", 100, 10)
	seedUser(store, "alice", 1000)
	ctx := context.Background()

	r, err := svc.Create(ctx, "alice", []LineRequest{{ItemID: "meal", Quantity: 1}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, step := range []domain.Status{domain.StatusApproved, domain.StatusPreparing, domain.StatusReady, domain.StatusClaimed} {
		if _, err := svc.SetStatus(ctx, r.ID, step); err != nil {
			t.Fatalf("transition to %s: %v", step, err)
		}
	}

	var transition *domain.InvalidTransitionError
	if _, err := svc.SetStatus(ctx, r.ID, domain.StatusRejected); !errors.As(err, &transition) {
		t.Errorf("Claimed->Rejected err = %v, want invalid transition", err)
	}
}
