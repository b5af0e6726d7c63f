package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"splitledger/internal/amqp"
	"splitledger/internal/cache"
	"splitledger/internal/core"
	"splitledger/internal/events"
	"splitledger/internal/storage"
)

// fakeStore is an in-memory Store for service tests.
type fakeStore struct {
	mu         sync.Mutex
	nextID     int64
	group      core.DetailedGroup
	expenses   []core.Expense
	currencies []core.Currency
	listCalls  int
}

func newFakeStore() *fakeStore {
	members := []core.Membership{
		{User: core.User{ID: "a", Email: "a@example.com", Name: "Alice Smith"}, Status: core.StatusJoined},
		{User: core.User{ID: "b", Email: "b@example.com", Name: "Bob Jones"}, Status: core.StatusJoined},
		{User: core.User{ID: "p", Email: "p@example.com", Name: "Pat"}, Status: core.StatusPending},
	}
	return &fakeStore{
		nextID: 1,
		group: core.DetailedGroup{
			Group:   core.Group{ID: 1, Name: "trip", DefaultCurrencyID: 1},
			Creator: members[0].User,
			Members: members,
		},
		currencies: []core.Currency{{ID: 1, Acronym: "USD", Description: "United States dollar"}},
	}
}

func (f *fakeStore) GetGroup(ctx context.Context, groupID int64) (*core.DetailedGroup, error) {
	if groupID != f.group.ID {
		return nil, storage.ErrNotFound
	}
	g := f.group
	return &g, nil
}

func (f *fakeStore) JoinedMemberIDs(ctx context.Context, groupID int64) ([]core.UserID, error) {
	var ids []core.UserID
	for _, m := range f.group.Members {
		if m.Status == core.StatusJoined {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}

func (f *fakeStore) IsJoinedMember(ctx context.Context, groupID int64, userID core.UserID) (bool, error) {
	for _, m := range f.group.Members {
		if m.User.ID == userID && m.Status == core.StatusJoined {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) ListCurrencies(ctx context.Context) ([]core.Currency, error) {
	return f.currencies, nil
}

func (f *fakeStore) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e.ID = f.nextID
	f.nextID++
	f.expenses = append(f.expenses, e)
	return e.ID, nil
}

func (f *fakeStore) GetExpense(ctx context.Context, expenseID int64) (*core.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.expenses {
		if e.ID == expenseID {
			found := e
			return &found, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListExpenses(ctx context.Context, groupID int64) ([]core.Expense, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]core.Expense, len(f.expenses))
	copy(out, f.expenses)
	return out, nil
}

func (f *fakeStore) UpdateExpense(ctx context.Context, e core.Expense) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.expenses {
		if f.expenses[i].ID == e.ID {
			f.expenses[i] = e
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) DeleteExpense(ctx context.Context, groupID, expenseID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.expenses {
		if f.expenses[i].ID == expenseID {
			f.expenses = append(f.expenses[:i], f.expenses[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []*amqp.ActivityMessage
}

func (p *fakePublisher) PublishActivity(ctx context.Context, msg *amqp.ActivityMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) last(t *testing.T) *amqp.ActivityMessage {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.messages) == 0 {
		t.Fatal("no activity message published")
	}
	return p.messages[len(p.messages)-1]
}

func newTestService(store *fakeStore) (*LedgerService, *fakePublisher, *events.Broker) {
	publisher := &fakePublisher{}
	broker := events.NewBroker()
	balances := cache.NewLRUCache[[]core.Balance](16, time.Minute)
	return NewLedgerService(store, publisher, broker, balances), publisher, broker
}

func validExpense() core.Expense {
	return core.Expense{
		GroupID:     1,
		Description: "hotel",
		CurrencyID:  1,
		Amount:      core.Money{Cents: 10000},
		Date:        "2024-03-22",
		Split:       core.Equally{Payer: "a", SplitBetween: []core.UserID{"a", "b"}},
		CreatedID:   "a",
	}
}

func TestCreateExpensePublishesAndNotifies(t *testing.T) {
	store := newFakeStore()
	svc, publisher, broker := newTestService(store)

	ch, cancel := broker.Subscribe("b")
	defer cancel()

	id, err := svc.CreateExpense(context.Background(), validExpense())
	if err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}
	if id == 0 {
		t.Fatal("expected a nonzero expense id")
	}

	msg := publisher.last(t)
	if msg.Action != amqp.ActionExpenseCreated || msg.GroupID != 1 || msg.ExpenseID != id {
		t.Fatalf("unexpected activity message: %+v", msg)
	}

	select {
	case ev := <-ch:
		if ev.Kind != events.KindGroup || ev.Field != "expenses" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("member was not woken by the expense")
	}
}

func TestCreateExpenseRejectsNonMember(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	e := validExpense()
	e.CreatedID = "p" // pending, not joined
	if _, err := svc.CreateExpense(context.Background(), e); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestCreateExpenseRejectsInvalid(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	e := validExpense()
	e.Description = ""
	if _, err := svc.CreateExpense(context.Background(), e); !errors.Is(err, core.ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}
}

func TestBalancesAreCachedUntilLedgerChanges(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	ctx := context.Background()

	if _, err := svc.CreateExpense(ctx, validExpense()); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	if _, err := svc.Balances(ctx, 1); err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	calls := store.listCalls
	if _, err := svc.Balances(ctx, 1); err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	if store.listCalls != calls {
		t.Fatalf("second Balances() call hit the store (%d -> %d calls)", calls, store.listCalls)
	}

	// a new expense invalidates the cache
	if _, err := svc.CreateExpense(ctx, validExpense()); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}
	if _, err := svc.Balances(ctx, 1); err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	if store.listCalls == calls {
		t.Fatal("Balances() after a write must recompute")
	}
}

func TestSettleUpRecordsPayment(t *testing.T) {
	store := newFakeStore()
	svc, publisher, _ := newTestService(store)
	ctx := context.Background()

	if _, err := svc.CreateExpense(ctx, validExpense()); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	// b owes a 5000; the settle-up payment goes b -> a
	draft, err := svc.SettleUp(ctx, 1, "a", "b", 1)
	if err != nil {
		t.Fatalf("SettleUp() error = %v", err)
	}
	split, ok := draft.Split.(core.Payment)
	if !ok {
		t.Fatalf("settle-up draft is %T, want Payment", draft.Split)
	}
	if split.Payer != "b" || split.Recipient != "a" || draft.Amount.Cents != 5000 {
		t.Fatalf("unexpected draft: %+v split=%+v", draft, split)
	}
	if msg := publisher.last(t); msg.Action != amqp.ActionSettledUp {
		t.Fatalf("unexpected action %q", msg.Action)
	}

	balances, err := svc.Balances(ctx, 1)
	if err != nil {
		t.Fatalf("Balances() error = %v", err)
	}
	if !core.IsSettledUp(balances) {
		t.Fatalf("pair must be settled after the payment, got %+v", balances)
	}

	// nothing left to settle
	if _, err := svc.SettleUp(ctx, 1, "a", "b", 1); !errors.Is(err, core.ErrNothingToSettle) {
		t.Fatalf("expected ErrNothingToSettle, got %v", err)
	}
}

func TestSettleUpGuardRejectsConcurrentPair(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	key := settleKey(1, "a", "b", 1)
	if !svc.settleGuard.acquire(key) {
		t.Fatal("first acquire must succeed")
	}

	if _, err := svc.SettleUp(context.Background(), 1, "a", "b", 1); !errors.Is(err, ErrSettleInFlight) {
		t.Fatalf("expected ErrSettleInFlight, got %v", err)
	}
	// the reverse direction contends on the same key
	if _, err := svc.SettleUp(context.Background(), 1, "b", "a", 1); !errors.Is(err, ErrSettleInFlight) {
		t.Fatalf("reverse direction: expected ErrSettleInFlight, got %v", err)
	}

	svc.settleGuard.release(key)
}

func TestFormattedExpensesUsesViewerPerspective(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	ctx := context.Background()

	if _, err := svc.CreateExpense(ctx, validExpense()); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	buckets, err := svc.FormattedExpenses(ctx, 1, "b")
	if err != nil {
		t.Fatalf("FormattedExpenses() error = %v", err)
	}
	if len(buckets) != 1 || len(buckets[0].Expenses) != 1 {
		t.Fatalf("unexpected buckets: %+v", buckets)
	}
	fe := buckets[0].Expenses[0]
	if fe.Payment != "Alice paid $100.00" {
		t.Fatalf("Payment = %q", fe.Payment)
	}
	if fe.Relative == nil || fe.Relative.Status != core.Borrowed {
		t.Fatalf("viewer b borrowed, got %+v", fe.Relative)
	}
}

func TestBalanceSummaries(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	ctx := context.Background()

	if _, err := svc.CreateExpense(ctx, validExpense()); err != nil {
		t.Fatalf("CreateExpense() error = %v", err)
	}

	summaries, err := svc.BalanceSummaries(ctx, 1)
	if err != nil {
		t.Fatalf("BalanceSummaries() error = %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	a := summaries[0]
	if a.UserID != "a" || len(a.Lines) != 1 {
		t.Fatalf("unexpected summary: %+v", a)
	}
	if a.Lines[0].Status != core.Lent || a.Lines[0].Description != "gets back" || a.Lines[0].Amount != "$50.00" {
		t.Fatalf("unexpected line: %+v", a.Lines[0])
	}
}
