// Package services orchestrates ledger operations across SQLite, the AMQP
// queue and the in-process event broker.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"splitledger/internal/amqp"
	"splitledger/internal/cache"
	"splitledger/internal/core"
	"splitledger/internal/events"
	"splitledger/internal/storage"
)

var (
	ErrNotMember       = errors.New("user is not a joined member of the group")
	ErrSettleInFlight  = errors.New("settle-up already in progress for this pair")
	ErrUnknownCurrency = errors.New("unknown currency")
)

// Store is the persistence surface the service needs.
type Store interface {
	GetGroup(ctx context.Context, groupID int64) (*core.DetailedGroup, error)
	JoinedMemberIDs(ctx context.Context, groupID int64) ([]core.UserID, error)
	IsJoinedMember(ctx context.Context, groupID int64, userID core.UserID) (bool, error)
	ListCurrencies(ctx context.Context) ([]core.Currency, error)

	CreateExpense(ctx context.Context, e core.Expense) (int64, error)
	GetExpense(ctx context.Context, expenseID int64) (*core.Expense, error)
	ListExpenses(ctx context.Context, groupID int64) ([]core.Expense, error)
	UpdateExpense(ctx context.Context, e core.Expense) error
	DeleteExpense(ctx context.Context, groupID, expenseID int64) error
}

// Publisher pushes activity messages onto the queue.
type Publisher interface {
	PublishActivity(ctx context.Context, msg *amqp.ActivityMessage) error
}

// LedgerService owns the expense and balance operations of a group.
type LedgerService struct {
	store     Store
	publisher Publisher
	broker    *events.Broker
	balances  cache.Cache[[]core.Balance]

	settleGuard guard
}

func NewLedgerService(store Store, publisher Publisher, broker *events.Broker, balances cache.Cache[[]core.Balance]) *LedgerService {
	return &LedgerService{
		store:       store,
		publisher:   publisher,
		broker:      broker,
		balances:    balances,
		settleGuard: newGuard(),
	}
}

// CreateExpense validates and stores an expense, then fans the change out.
func (s *LedgerService) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	if err := s.requireMember(ctx, e.GroupID, e.CreatedID); err != nil {
		return 0, err
	}

	id, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save expense: %w", err)
	}

	s.InvalidateBalances(e.GroupID)
	s.fanOut(ctx, e.GroupID, e.CreatedID, amqp.ActionExpenseCreated, id, "expenses")
	return id, nil
}

// UpdateExpense replaces an existing expense.
func (s *LedgerService) UpdateExpense(ctx context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if err := s.requireMember(ctx, e.GroupID, e.UpdatedID); err != nil {
		return err
	}

	if err := s.store.UpdateExpense(ctx, e); err != nil {
		return err
	}

	s.InvalidateBalances(e.GroupID)
	s.fanOut(ctx, e.GroupID, e.UpdatedID, amqp.ActionExpenseUpdated, e.ID, "expenses")
	return nil
}

// DeleteExpense removes an expense from the group ledger.
func (s *LedgerService) DeleteExpense(ctx context.Context, groupID, expenseID int64, actor core.UserID) error {
	if err := s.requireMember(ctx, groupID, actor); err != nil {
		return err
	}

	if err := s.store.DeleteExpense(ctx, groupID, expenseID); err != nil {
		return err
	}

	s.InvalidateBalances(groupID)
	s.fanOut(ctx, groupID, actor, amqp.ActionExpenseDeleted, expenseID, "expenses")
	return nil
}

// GetExpense fetches a single expense, checking group ownership.
func (s *LedgerService) GetExpense(ctx context.Context, groupID, expenseID int64) (*core.Expense, error) {
	e, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if e.GroupID != groupID {
		return nil, storage.ErrNotFound
	}
	return e, nil
}

// ListExpenses returns the raw ledger, newest first.
func (s *LedgerService) ListExpenses(ctx context.Context, groupID int64) ([]core.Expense, error) {
	return s.store.ListExpenses(ctx, groupID)
}

// FormattedExpenses returns the viewer-relative, month-bucketed feed.
func (s *LedgerService) FormattedExpenses(ctx context.Context, groupID int64, viewer core.UserID) ([]core.MonthBucket, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	expenses, err := s.store.ListExpenses(ctx, groupID)
	if err != nil {
		return nil, err
	}
	currencies, err := s.store.ListCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[core.CurrencyID]core.Currency, len(currencies))
	for _, c := range currencies {
		byID[c.ID] = c
	}

	viewerUser := core.User{ID: viewer}
	for _, m := range group.Members {
		if m.User.ID == viewer {
			viewerUser = m.User
			break
		}
	}

	return core.FormatExpenses(expenses, *group, viewerUser, byID)
}

// Balances computes the pairwise per-currency balances of the group, cached
// until the ledger changes.
func (s *LedgerService) Balances(ctx context.Context, groupID int64) ([]core.Balance, error) {
	key := balanceKey(groupID)
	if cached, ok := s.balances.Get(key); ok {
		return cached, nil
	}

	expenses, err := s.store.ListExpenses(ctx, groupID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.JoinedMemberIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}

	balances, err := core.ComputeBalances(expenses, members)
	if err != nil {
		return nil, err
	}
	s.balances.Set(key, balances)
	return balances, nil
}

// SettleUp drafts and records the payment that zeroes the pairwise debt
// between actor and other in one currency. Concurrent settles of the same
// pair and currency are rejected rather than double-recorded.
func (s *LedgerService) SettleUp(ctx context.Context, groupID int64, actor, other core.UserID, currencyID core.CurrencyID) (*core.Expense, error) {
	if err := s.requireMember(ctx, groupID, actor); err != nil {
		return nil, err
	}

	key := settleKey(groupID, actor, other, currencyID)
	if !s.settleGuard.acquire(key) {
		return nil, ErrSettleInFlight
	}
	defer s.settleGuard.release(key)

	balances, err := s.Balances(ctx, groupID)
	if err != nil {
		return nil, err
	}

	debt := core.PairwiseDebt(balances, actor, other, currencyID)
	draft, err := core.SettleUp(actor, other, currencyID, debt)
	if err != nil {
		return nil, err
	}
	draft.GroupID = groupID
	draft.CurrencyID = currencyID
	draft.CreatedID = actor

	id, err := s.store.CreateExpense(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("save settle-up payment: %w", err)
	}
	draft.ID = id

	s.InvalidateBalances(groupID)
	s.fanOut(ctx, groupID, actor, amqp.ActionSettledUp, id, "balances")
	return &draft, nil
}

// BalanceSummaries renders each member's totals for display, one line per
// currency they have activity in.
func (s *LedgerService) BalanceSummaries(ctx context.Context, groupID int64) ([]BalanceSummary, error) {
	balances, err := s.Balances(ctx, groupID)
	if err != nil {
		return nil, err
	}
	currencies, err := s.store.ListCurrencies(ctx)
	if err != nil {
		return nil, err
	}
	acronyms := make(map[core.CurrencyID]string, len(currencies))
	for _, c := range currencies {
		acronyms[c.ID] = c.Acronym
	}

	summaries := make([]BalanceSummary, 0, len(balances))
	for _, b := range balances {
		summary := BalanceSummary{UserID: b.UserID, Balance: b}

		ids := make([]core.CurrencyID, 0, len(b.Total))
		for id := range b.Total {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		for _, id := range ids {
			total := b.Total[id]
			if total.Cents == 0 {
				continue
			}
			status, description := core.RelativeStatusOf(total)
			abs := total
			if abs.Cents < 0 {
				abs.Cents = -abs.Cents
			}
			summary.Lines = append(summary.Lines, BalanceLine{
				CurrencyID:  id,
				Status:      status,
				Description: description,
				Amount:      core.FormatAmount(abs, acronyms[id]),
			})
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// BalanceSummary is the display form of one member's balance.
type BalanceSummary struct {
	UserID  core.UserID   `json:"user_id"`
	Balance core.Balance  `json:"balance"`
	Lines   []BalanceLine `json:"lines,omitempty"`
}

// BalanceLine is one "owes" or "gets back" row.
type BalanceLine struct {
	CurrencyID  core.CurrencyID     `json:"currency_id"`
	Status      core.RelativeStatus `json:"status"`
	Description string              `json:"description"`
	Amount      string              `json:"amount"`
}

func (s *LedgerService) requireMember(ctx context.Context, groupID int64, userID core.UserID) error {
	joined, err := s.store.IsJoinedMember(ctx, groupID, userID)
	if err != nil {
		return err
	}
	if !joined {
		return ErrNotMember
	}
	return nil
}

// InvalidateBalances drops cached balances for the group. Callers that
// change the member set must invoke it; expense writes do it themselves.
func (s *LedgerService) InvalidateBalances(groupID int64) {
	s.balances.DeletePrefix(balanceKey(groupID))
}

// fanOut publishes the activity message and wakes the group's long-poll
// subscribers. Neither failure fails the request; the write already
// succeeded.
func (s *LedgerService) fanOut(ctx context.Context, groupID int64, actor core.UserID, action string, expenseID int64, field string) {
	if s.publisher != nil {
		msg := amqp.NewActivityMessage(groupID, string(actor), action, expenseID)
		if err := s.publisher.PublishActivity(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "Failed to publish activity message",
				"group_id", groupID, "action", action, "error", err)
		}
	}

	if s.broker != nil {
		members, err := s.store.JoinedMemberIDs(ctx, groupID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to resolve members for event fan-out",
				"group_id", groupID, "error", err)
			return
		}
		ids := make([]string, len(members))
		for i, m := range members {
			ids[i] = string(m)
		}
		s.broker.Publish(events.Event{
			Kind:      events.KindGroup,
			GroupID:   groupID,
			Field:     field,
			Timestamp: time.Now(),
		}, ids...)
	}
}

func balanceKey(groupID int64) string {
	return fmt.Sprintf("balances:%d", groupID)
}

func settleKey(groupID int64, a, b core.UserID, currencyID core.CurrencyID) string {
	// normalize the pair so both directions contend on the same key
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%d:%s:%s:%d", groupID, lo, hi, currencyID)
}
