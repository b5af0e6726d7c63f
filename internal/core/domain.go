package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// CurrencyID keys the currency reference table.
	CurrencyID int64

	// UserID is an opaque participant identifier (UUID string in practice).
	UserID string

	MembershipStatus string

	SplitKind string
)

const (
	StatusJoined   MembershipStatus = "joined"
	StatusPending  MembershipStatus = "pending"
	StatusRejected MembershipStatus = "rejected"
)

const (
	SplitEqually SplitKind = "equally"
	SplitPayment SplitKind = "payment"
)

type (
	// Currency is immutable reference data. Balances are segregated by
	// currency and never summed across them.
	Currency struct {
		ID          CurrencyID `json:"id"`
		Acronym     string     `json:"acronym"`
		Description string     `json:"description"`
	}

	User struct {
		ID      UserID `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture,omitempty"`
		Status  string `json:"status,omitempty"`
	}

	// Membership ties a user to a group. Only joined members take part in
	// split computations.
	Membership struct {
		User   User             `json:"user"`
		Status MembershipStatus `json:"status"`
	}

	// Money is an amount in integer minor units of some currency. All
	// balance arithmetic happens in cents; floats appear only at display
	// time, so the zero-sum invariant holds exactly.
	Money struct {
		Cents int64
	}

	BalanceConfig struct {
		Simplified bool `json:"simplified"`
	}

	Group struct {
		ID                int64         `json:"id,omitempty"`
		Name              string        `json:"name"`
		DefaultCurrencyID CurrencyID    `json:"default_currency_id"`
		BalanceConfig     BalanceConfig `json:"balance_config"`
		CreatedAt         time.Time     `json:"created_at,omitempty"`
	}

	// DetailedGroup is a group with its membership list and, when fetched
	// in full, the expense ledger and computed balances.
	DetailedGroup struct {
		Group
		Creator  User         `json:"creator"`
		Members  []Membership `json:"members"`
		Expenses []Expense    `json:"expenses,omitempty"`
		Balances []Balance    `json:"balances,omitempty"`
	}

	// Expense is immutable once created except via explicit edit. Amount is
	// always positive; direction is carried entirely by the split strategy.
	Expense struct {
		ID          int64         `json:"id,omitempty"`
		GroupID     int64         `json:"group_id,omitempty"`
		Description string        `json:"description"`
		CurrencyID  CurrencyID    `json:"currency_id"`
		Amount      Money         `json:"amount"`
		Date        string        `json:"date"`
		Split       SplitStrategy `json:"-"`
		CreatedID   UserID        `json:"created_id,omitempty"`
		CreatedAt   time.Time     `json:"created_at"`
		UpdatedID   UserID        `json:"updated_id,omitempty"`
		UpdatedAt   time.Time     `json:"updated_at"`
	}
)

// SplitStrategy is a closed sum type: Equally or Payment. The marker method
// keeps the set closed so the formatter and the balance engine can match
// exhaustively on the two variants.
type SplitStrategy interface {
	Kind() SplitKind
	PaidBy() UserID
	Validate() error

	splitStrategy()
}

// Equally divides the full amount evenly among SplitBetween; the payer fronts
// the total. SplitBetween normally, but not necessarily, includes the payer.
type Equally struct {
	Payer        UserID
	SplitBetween []UserID
}

func (Equally) Kind() SplitKind  { return SplitEqually }
func (e Equally) PaidBy() UserID { return e.Payer }
func (Equally) splitStrategy()   {}

func (e Equally) Validate() error {
	if e.Payer == "" {
		return ErrMissingPayer
	}
	if len(e.SplitBetween) == 0 {
		return ErrEmptySplit
	}
	return nil
}

// Payment is a direct transfer from Payer to Recipient, used both for real
// reimbursements and for settle-up drafts.
type Payment struct {
	Payer     UserID
	Recipient UserID
}

func (Payment) Kind() SplitKind  { return SplitPayment }
func (p Payment) PaidBy() UserID { return p.Payer }
func (Payment) splitStrategy()   {}

func (p Payment) Validate() error {
	if p.Payer == "" {
		return ErrMissingPayer
	}
	if p.Recipient == "" {
		return errors.New("payment has no recipient")
	}
	if p.Payer == p.Recipient {
		return errors.New("payment payer and recipient are the same user")
	}
	return nil
}

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrMissingPayer     = errors.New("split strategy has no payer")
	ErrEmptySplit       = errors.New("equal split has no participants")
	ErrBadDate          = errors.New("unparseable expense date")
	ErrUnknownSplitKind = errors.New("unknown split strategy kind")
	ErrNothingToSettle  = errors.New("pairwise balance is already settled")
)

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate parses the ISO-8601 date carried by an expense. Both bare dates
// and full timestamps appear in the wild.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, s)
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// MarshalJSON renders Money as a plain decimal number, the wire form the
// clients expect.
func (m Money) MarshalJSON() ([]byte, error) {
	sign := ""
	cents := m.Cents
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return []byte(fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		return ErrInvalidAmount
	}
	neg := strings.HasPrefix(s, "-")
	cents, err := ParseDecimalToCents(strings.TrimPrefix(s, "-"))
	if err != nil {
		return err
	}
	if neg {
		cents = -cents
	}
	m.Cents = cents
	return nil
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if _, err := ParseDate(e.Date); err != nil {
		return err
	}
	if e.Split == nil {
		return ErrUnknownSplitKind
	}
	return e.Split.Validate()
}

// splitEnvelope is the tagged JSON form of a split strategy.
type splitEnvelope struct {
	Kind         SplitKind `json:"kind"`
	Payer        UserID    `json:"payer"`
	SplitBetween []UserID  `json:"split_between,omitempty"`
	Recipient    UserID    `json:"recipient,omitempty"`
}

// MarshalSplit encodes a split strategy with its kind tag.
func MarshalSplit(s SplitStrategy) ([]byte, error) {
	switch v := s.(type) {
	case Equally:
		return json.Marshal(splitEnvelope{Kind: SplitEqually, Payer: v.Payer, SplitBetween: v.SplitBetween})
	case Payment:
		return json.Marshal(splitEnvelope{Kind: SplitPayment, Payer: v.Payer, Recipient: v.Recipient})
	default:
		return nil, ErrUnknownSplitKind
	}
}

// UnmarshalSplit decodes a tagged split strategy.
func UnmarshalSplit(data []byte) (SplitStrategy, error) {
	var env splitEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case SplitEqually:
		return Equally{Payer: env.Payer, SplitBetween: env.SplitBetween}, nil
	case SplitPayment:
		return Payment{Payer: env.Payer, Recipient: env.Recipient}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSplitKind, env.Kind)
	}
}

func (e Expense) MarshalJSON() ([]byte, error) {
	type alias Expense
	split, err := MarshalSplit(e.Split)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Split json.RawMessage `json:"split_strategy"`
	}{alias(e), split})
}

func (e *Expense) UnmarshalJSON(data []byte) error {
	type alias Expense
	aux := struct {
		*alias
		Split json.RawMessage `json:"split_strategy"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Split) == 0 {
		return ErrUnknownSplitKind
	}
	split, err := UnmarshalSplit(aux.Split)
	if err != nil {
		return err
	}
	e.Split = split
	return nil
}
