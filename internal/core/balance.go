package core

import (
	"fmt"
	"time"
)

// Balance is a member's net pairwise, per-currency position in a group.
// Sign convention: a negative amount means the user is a net lender (gets
// money back), positive means they owe. Two-level maps keep user and currency
// keys apart; amounts in different currencies are never combined.
//
// Invariants maintained by ComputeBalances:
//   - owes[a][b][c] == -owes[b][a][c] for every pair and currency
//   - total[c] == sum over counterparties of owes[·][c]
//   - sum of total[c] over all members == 0, exactly (integer cents)
type Balance struct {
	UserID UserID                          `json:"user_id"`
	Total  map[CurrencyID]Money            `json:"total"`
	Owes   map[UserID]map[CurrencyID]Money `json:"owes"`
}

// SplitShares divides an amount into n cent-exact shares, distributing the
// remainder one cent at a time from the front. The shares always sum to the
// full amount.
func SplitShares(amount Money, n int) ([]Money, error) {
	if n <= 0 {
		return nil, ErrEmptySplit
	}
	base := amount.Cents / int64(n)
	remainder := amount.Cents % int64(n)
	shares := make([]Money, n)
	for i := range shares {
		shares[i] = Money{Cents: base}
		if int64(i) < remainder {
			shares[i].Cents++
		}
	}
	return shares, nil
}

// ComputeBalances aggregates a group's ledger into one Balance per member.
// Every id in members gets a Balance even with zero activity (the settled
// check iterates the result, so inactive members are represented explicitly);
// users referenced only by expenses are appended after the member block in
// first-seen order, keeping the output deterministic.
func ComputeBalances(expenses []Expense, members []UserID) ([]Balance, error) {
	var order []UserID
	sheet := make(map[UserID]*Balance)

	ensure := func(id UserID) *Balance {
		if b, ok := sheet[id]; ok {
			return b
		}
		b := &Balance{
			UserID: id,
			Total:  make(map[CurrencyID]Money),
			Owes:   make(map[UserID]map[CurrencyID]Money),
		}
		sheet[id] = b
		order = append(order, id)
		return b
	}

	for _, m := range members {
		ensure(m)
	}

	// add records a signed debt of b toward other, keeping Total in sync
	// with the Owes rows.
	add := func(b *Balance, other UserID, currency CurrencyID, cents int64) {
		row := b.Owes[other]
		if row == nil {
			row = make(map[CurrencyID]Money)
			b.Owes[other] = row
		}
		row[currency] = Money{Cents: row[currency].Cents + cents}
		b.Total[currency] = Money{Cents: b.Total[currency].Cents + cents}
	}

	for _, e := range expenses {
		switch s := e.Split.(type) {
		case Equally:
			shares, err := SplitShares(e.Amount, len(s.SplitBetween))
			if err != nil {
				return nil, fmt.Errorf("expense %d: %w", e.ID, err)
			}
			payer := ensure(s.Payer)
			for i, participant := range s.SplitBetween {
				if participant == s.Payer {
					continue
				}
				add(ensure(participant), s.Payer, e.CurrencyID, shares[i].Cents)
				add(payer, participant, e.CurrencyID, -shares[i].Cents)
			}
		case Payment:
			// A direct transfer un-borrows: it reduces what the payer
			// owed the recipient by exactly the amount.
			add(ensure(s.Payer), s.Recipient, e.CurrencyID, -e.Amount.Cents)
			add(ensure(s.Recipient), s.Payer, e.CurrencyID, e.Amount.Cents)
		default:
			return nil, fmt.Errorf("expense %d: %w", e.ID, ErrUnknownSplitKind)
		}
	}

	balances := make([]Balance, 0, len(order))
	for _, id := range order {
		balances = append(balances, *sheet[id])
	}
	return balances, nil
}

// PairwiseDebt returns the signed debt b carries toward a in the given
// currency, as recorded on b's balance. Positive means b owes a.
func PairwiseDebt(balances []Balance, a, b UserID, currency CurrencyID) Money {
	for _, bal := range balances {
		if bal.UserID == b {
			return bal.Owes[a][currency]
		}
	}
	return Money{}
}

// SettleUp constructs the payment draft that zeroes a pairwise debt. The
// amount is the signed debt b carries toward a (see PairwiseDebt); whichever
// side owes becomes the payer. The draft carries no group or ids: submitting
// it and recomputing balances is the caller's responsibility, and calling
// twice without a re-fetch doubles the real payment, so the interaction layer
// must keep at most one settlement in flight per pair and currency.
func SettleUp(a, b UserID, currency CurrencyID, amount Money) (Expense, error) {
	if amount.Cents == 0 {
		return Expense{}, ErrNothingToSettle
	}
	payer, recipient := b, a
	if amount.Cents < 0 {
		payer, recipient = a, b
		amount.Cents = -amount.Cents
	}
	return Expense{
		Description: "Payment",
		CurrencyID:  currency,
		Amount:      amount,
		Date:        time.Now().UTC().Format(time.RFC3339),
		Split:       Payment{Payer: payer, Recipient: recipient},
	}, nil
}

// IsSettledUp reports whether every member's total is exactly zero in every
// currency.
func IsSettledUp(balances []Balance) bool {
	for _, b := range balances {
		for _, total := range b.Total {
			if total.Cents != 0 {
				return false
			}
		}
	}
	return true
}

// RelativeStatusOf frames a signed balance amount for display: negative is
// money coming back, positive is money owed.
func RelativeStatusOf(amount Money) (RelativeStatus, string) {
	if amount.Cents < 0 {
		return Lent, "gets back"
	}
	return Borrowed, "owes"
}
