package core

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseDate(t *testing.T) {
	for _, in := range []string{"2024-03-22", "2024-03-22T10:30:00", "2024-03-22T10:30:00Z"} {
		tm, err := ParseDate(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if tm.Year() != 2024 || int(tm.Month()) != 3 || tm.Day() != 22 {
			t.Fatalf("%q parsed to %v", in, tm)
		}
	}
	if _, err := ParseDate("22/03/2024"); !errors.Is(err, ErrBadDate) {
		t.Fatalf("expected ErrBadDate, got %v", err)
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		Description: "groceries",
		CurrencyID:  1,
		Amount:      Money{Cents: 4200},
		Date:        "2024-03-22",
		Split:       Equally{Payer: "u1", SplitBetween: []UserID{"u1", "u2"}},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		mut  func(e *Expense)
		want error
	}{
		{"empty description", func(e *Expense) { e.Description = " " }, ErrEmptyDescription},
		{"long description", func(e *Expense) { e.Description = strings.Repeat("x", 201) }, nil},
		{"zero amount", func(e *Expense) { e.Amount = Money{} }, ErrInvalidAmount},
		{"bad date", func(e *Expense) { e.Date = "not-a-date" }, ErrBadDate},
		{"nil split", func(e *Expense) { e.Split = nil }, ErrUnknownSplitKind},
		{"empty split", func(e *Expense) { e.Split = Equally{Payer: "u1"} }, ErrEmptySplit},
		{"no payer", func(e *Expense) { e.Split = Equally{SplitBetween: []UserID{"u1"}} }, ErrMissingPayer},
		{"self payment", func(e *Expense) { e.Split = Payment{Payer: "u1", Recipient: "u1"} }, nil},
	}
	for _, tc := range cases {
		e := good
		tc.mut(&e)
		err := e.Validate()
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if tc.want != nil && !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestExpenseJSONCarriesSplitStrategy(t *testing.T) {
	e := Expense{
		ID:          7,
		GroupID:     3,
		Description: "dinner",
		CurrencyID:  2,
		Amount:      Money{Cents: 9050},
		Date:        "2024-03-22",
		Split:       Equally{Payer: "alice", SplitBetween: []UserID{"alice", "bob"}},
	}

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"equally"`) {
		t.Fatalf("expected tagged split strategy, got %s", data)
	}
	if !strings.Contains(string(data), `"amount":90.50`) {
		t.Fatalf("expected decimal amount, got %s", data)
	}

	var back Expense
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	split, ok := back.Split.(Equally)
	if !ok {
		t.Fatalf("expected Equally, got %T", back.Split)
	}
	if split.Payer != "alice" || len(split.SplitBetween) != 2 {
		t.Fatalf("split lost in round trip: %+v", split)
	}
	if back.Amount.Cents != 9050 {
		t.Fatalf("amount lost in round trip: %d", back.Amount.Cents)
	}

	payment := Expense{Description: "Payment", CurrencyID: 2, Amount: Money{Cents: 100}, Date: "2024-03-22",
		Split: Payment{Payer: "bob", Recipient: "alice"}}
	data, err = json.Marshal(payment)
	if err != nil {
		t.Fatalf("marshal payment: %v", err)
	}
	var backPayment Expense
	if err := json.Unmarshal(data, &backPayment); err != nil {
		t.Fatalf("unmarshal payment: %v", err)
	}
	if _, ok := backPayment.Split.(Payment); !ok {
		t.Fatalf("expected Payment, got %T", backPayment.Split)
	}

	if _, err := UnmarshalSplit([]byte(`{"kind":"percentage"}`)); !errors.Is(err, ErrUnknownSplitKind) {
		t.Fatalf("expected ErrUnknownSplitKind, got %v", err)
	}
}
