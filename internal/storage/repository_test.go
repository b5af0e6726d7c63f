package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"splitledger/internal/core"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *SQLiteRepository, id, email, name string) core.UserID {
	t.Helper()
	account := UserAccount{
		User:         core.User{ID: core.UserID(id), Email: email, Name: name},
		PasswordHash: "x",
	}
	if err := repo.CreateUser(context.Background(), account); err != nil {
		t.Fatalf("CreateUser(%s) error = %v", email, err)
	}
	return account.ID
}

func TestCurrenciesAreSeeded(t *testing.T) {
	repo := testRepo(t)

	currencies, err := repo.ListCurrencies(context.Background())
	if err != nil {
		t.Fatalf("ListCurrencies() error = %v", err)
	}
	if len(currencies) < 4 {
		t.Fatalf("expected seeded currencies, got %d", len(currencies))
	}
	if currencies[0].Acronym != "USD" {
		t.Fatalf("first currency = %q, want USD", currencies[0].Acronym)
	}
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	repo := testRepo(t)
	seedUser(t, repo, "u1", "a@example.com", "Alice")

	err := repo.CreateUser(context.Background(), UserAccount{
		User:         core.User{ID: "u2", Email: "a@example.com", Name: "Impostor"},
		PasswordHash: "x",
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestGroupLifecycle(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	alice := seedUser(t, repo, "u1", "a@example.com", "Alice Smith")
	bob := seedUser(t, repo, "u2", "b@example.com", "Bob Jones")

	groupID, err := repo.CreateGroup(ctx, core.Group{Name: "trip", DefaultCurrencyID: 1}, alice)
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}

	detailed, err := repo.GetGroup(ctx, groupID)
	if err != nil {
		t.Fatalf("GetGroup() error = %v", err)
	}
	if detailed.Creator.ID != alice || detailed.Name != "trip" {
		t.Fatalf("unexpected group: %+v", detailed)
	}
	// the creator is joined immediately
	if len(detailed.Members) != 1 || detailed.Members[0].Status != core.StatusJoined {
		t.Fatalf("unexpected members: %+v", detailed.Members)
	}

	if err := repo.AddMember(ctx, groupID, bob, core.StatusPending); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if err := repo.AddMember(ctx, groupID, bob, core.StatusPending); !errors.Is(err, ErrDuplicateRow) {
		t.Fatalf("duplicate AddMember() = %v, want ErrDuplicateRow", err)
	}

	// pending members are invisible to balance computations
	joined, err := repo.JoinedMemberIDs(ctx, groupID)
	if err != nil {
		t.Fatalf("JoinedMemberIDs() error = %v", err)
	}
	if len(joined) != 1 || joined[0] != alice {
		t.Fatalf("JoinedMemberIDs() = %v", joined)
	}

	if err := repo.UpdateMembershipStatus(ctx, groupID, bob, core.StatusJoined); err != nil {
		t.Fatalf("UpdateMembershipStatus() error = %v", err)
	}
	if ok, _ := repo.IsJoinedMember(ctx, groupID, bob); !ok {
		t.Fatal("bob should be joined now")
	}

	groups, err := repo.ListGroupsForUser(ctx, bob)
	if err != nil {
		t.Fatalf("ListGroupsForUser() error = %v", err)
	}
	if len(groups) != 1 || groups[0].ID != groupID {
		t.Fatalf("ListGroupsForUser() = %+v", groups)
	}

	if err := repo.RemoveMember(ctx, groupID, bob); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	if err := repo.RemoveMember(ctx, groupID, bob); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second RemoveMember() = %v, want ErrNotFound", err)
	}
}

func TestExpenseRoundTripAndOrdering(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	alice := seedUser(t, repo, "u1", "a@example.com", "Alice")
	bob := seedUser(t, repo, "u2", "b@example.com", "Bob")

	groupID, err := repo.CreateGroup(ctx, core.Group{Name: "flat", DefaultCurrencyID: 1}, alice)
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if err := repo.AddMember(ctx, groupID, bob, core.StatusJoined); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}

	older := core.Expense{
		GroupID: groupID, Description: "groceries", CurrencyID: 1,
		Amount: core.Money{Cents: 4500}, Date: "2024-02-10",
		Split:     core.Equally{Payer: alice, SplitBetween: []core.UserID{alice, bob}},
		CreatedID: alice,
	}
	newer := core.Expense{
		GroupID: groupID, Description: "rent", CurrencyID: 1,
		Amount: core.Money{Cents: 120000}, Date: "2024-03-01",
		Split:     core.Payment{Payer: bob, Recipient: alice},
		CreatedID: bob,
	}
	if _, err := repo.CreateExpense(ctx, older); err != nil {
		t.Fatalf("CreateExpense(older) error = %v", err)
	}
	newerID, err := repo.CreateExpense(ctx, newer)
	if err != nil {
		t.Fatalf("CreateExpense(newer) error = %v", err)
	}

	expenses, err := repo.ListExpenses(ctx, groupID)
	if err != nil {
		t.Fatalf("ListExpenses() error = %v", err)
	}
	if len(expenses) != 2 {
		t.Fatalf("expected 2 expenses, got %d", len(expenses))
	}
	// newest date first
	if expenses[0].Description != "rent" || expenses[1].Description != "groceries" {
		t.Fatalf("wrong order: %q, %q", expenses[0].Description, expenses[1].Description)
	}

	// split strategy survives the round trip
	payment, ok := expenses[0].Split.(core.Payment)
	if !ok {
		t.Fatalf("split decoded as %T, want Payment", expenses[0].Split)
	}
	if payment.Payer != bob || payment.Recipient != alice {
		t.Fatalf("unexpected payment: %+v", payment)
	}
	equally, ok := expenses[1].Split.(core.Equally)
	if !ok {
		t.Fatalf("split decoded as %T, want Equally", expenses[1].Split)
	}
	if equally.Payer != alice || len(equally.SplitBetween) != 2 {
		t.Fatalf("unexpected equal split: %+v", equally)
	}

	// update and delete
	updated := expenses[0]
	updated.Description = "march rent"
	updated.UpdatedID = bob
	if err := repo.UpdateExpense(ctx, updated); err != nil {
		t.Fatalf("UpdateExpense() error = %v", err)
	}
	got, err := repo.GetExpense(ctx, newerID)
	if err != nil {
		t.Fatalf("GetExpense() error = %v", err)
	}
	if got.Description != "march rent" {
		t.Fatalf("Description = %q after update", got.Description)
	}

	if err := repo.DeleteExpense(ctx, groupID, newerID); err != nil {
		t.Fatalf("DeleteExpense() error = %v", err)
	}
	if _, err := repo.GetExpense(ctx, newerID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetExpense() after delete = %v, want ErrNotFound", err)
	}
}

func TestNotificationsFanOut(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	alice := seedUser(t, repo, "u1", "a@example.com", "Alice")

	id, err := repo.CreateNotification(ctx, Notification{
		UserID:  alice,
		GroupID: 1,
		Action:  "expense_created",
		ActorID: "u2",
	})
	if err != nil {
		t.Fatalf("CreateNotification() error = %v", err)
	}

	unread, err := repo.ListNotifications(ctx, alice, true)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if len(unread) != 1 || unread[0].Read {
		t.Fatalf("unexpected notifications: %+v", unread)
	}
	if unread[0].ExpenseID != 0 {
		t.Fatalf("ExpenseID = %d, want 0 for a member event", unread[0].ExpenseID)
	}

	if err := repo.MarkNotificationsRead(ctx, alice, []int64{id}); err != nil {
		t.Fatalf("MarkNotificationsRead() error = %v", err)
	}
	unread, err = repo.ListNotifications(ctx, alice, true)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if len(unread) != 0 {
		t.Fatalf("expected no unread notifications, got %d", len(unread))
	}
}
