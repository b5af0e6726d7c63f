package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The product hardcodes English day and month names; no locale dependency.
var (
	weekdayAbbrevs = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

	monthNames = [...]string{
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
	}
)

type RelativeStatus string

const (
	Lent     RelativeStatus = "lent"
	Borrowed RelativeStatus = "borrowed"
)

// Relative is the lent/borrowed framing of an expense from the viewer's
// perspective: status, a short description ("you lent") and the formatted
// per-head cost. Present only for equal splits.
type Relative struct {
	Status      RelativeStatus `json:"status"`
	Description string         `json:"description"`
	Cost        string         `json:"cost"`
}

// Day is the calendar-day annotation rendered on an expense card.
type Day struct {
	Day     int    `json:"day"`
	Weekday string `json:"weekday"`
}

// FormatExpense is a display-ready view of one expense.
type FormatExpense struct {
	Expense   Expense   `json:"expense"`
	MonthYear string    `json:"month_year"`
	Day       Day       `json:"day"`
	Payment   string    `json:"payment"`
	Relative  *Relative `json:"relative,omitempty"`
}

// MonthBucket groups formatted expenses under one "YYYY-MM" key. A slice of
// buckets stands in for the client's insertion-ordered map: months appear in
// the order they are first encountered and expenses are never reordered.
// Feed ordering is the ledger fetch's responsibility.
type MonthBucket struct {
	Month    string          `json:"month"`
	Label    string          `json:"label"`
	Expenses []FormatExpense `json:"expenses"`
}

// FormatExpenses turns a raw ledger into the month-bucketed, viewer-relative
// feed the UI renders.
//
// Referential misses (unknown payer, unknown currency, viewer not a member)
// degrade to fallback labels: the feed must stay renderable on partial or
// legacy data. Data-integrity violations (empty split, bad date) fail fast
// instead, before they can corrupt the display with nonsense amounts.
func FormatExpenses(expenses []Expense, group DetailedGroup, viewer User, currencies map[CurrencyID]Currency) ([]MonthBucket, error) {
	members := usersByID(group.Members)

	// Email is the join key between the authenticated identity and the
	// ledger participant. Zero matches means the viewer has no stake: the
	// objective payment strings are still built, relative framing is not.
	self, hasSelf := resolveViewer(group.Members, viewer.Email)

	var buckets []MonthBucket
	index := make(map[string]int)

	for _, e := range expenses {
		t, err := ParseDate(e.Date)
		if err != nil {
			return nil, fmt.Errorf("expense %d: %w", e.ID, err)
		}

		monthYear := monthYearOf(e.Date, t)
		fe := FormatExpense{
			Expense:   e,
			MonthYear: monthYear,
			Day:       Day{Day: t.Day(), Weekday: weekdayAbbrevs[int(t.Weekday())]},
		}

		acronym := ""
		if c, ok := currencies[e.CurrencyID]; ok {
			acronym = c.Acronym
		}

		switch s := e.Split.(type) {
		case Equally:
			if len(s.SplitBetween) == 0 {
				return nil, fmt.Errorf("expense %d: %w", e.ID, ErrEmptySplit)
			}
			fe.Payment = fmt.Sprintf("%s paid %s",
				displayName(s.Payer, members, self, hasSelf),
				FormatAmount(e.Amount, acronym))
			if hasSelf {
				status, description := Borrowed, "you borrowed"
				if s.Payer == self.ID {
					status, description = Lent, "you lent"
				}
				share := Money{Cents: e.Amount.Cents / int64(len(s.SplitBetween))}
				fe.Relative = &Relative{
					Status:      status,
					Description: description,
					Cost:        FormatAmount(share, acronym),
				}
			}
		case Payment:
			// A direct payment has no split framing for a third party;
			// only the objective line is shown.
			fe.Payment = fmt.Sprintf("%s paid %s %s",
				displayName(s.Payer, members, self, hasSelf),
				displayName(s.Recipient, members, self, hasSelf),
				FormatAmount(e.Amount, acronym))
		default:
			return nil, fmt.Errorf("expense %d: %w", e.ID, ErrUnknownSplitKind)
		}

		i, ok := index[monthYear]
		if !ok {
			i = len(buckets)
			index[monthYear] = i
			buckets = append(buckets, MonthBucket{Month: monthYear, Label: MonthLabel(monthYear)})
		}
		buckets[i].Expenses = append(buckets[i].Expenses, fe)
	}

	return buckets, nil
}

// MonthLabel renders a "YYYY-MM" key as "March 2024". Keys that do not parse
// are returned unchanged.
func MonthLabel(monthYear string) string {
	year, month, ok := strings.Cut(monthYear, "-")
	if !ok {
		return monthYear
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return monthYear
	}
	return monthNames[m-1] + " " + year
}

func monthYearOf(date string, t time.Time) string {
	if len(date) >= 7 && date[4] == '-' {
		return date[:7]
	}
	return t.Format("2006-01")
}

func usersByID(members []Membership) map[UserID]User {
	users := make(map[UserID]User, len(members))
	for _, m := range members {
		users[m.User.ID] = m.User
	}
	return users
}

// resolveViewer picks the first member whose email matches. Duplicate emails
// in a membership list would silently resolve to the first entry.
func resolveViewer(members []Membership, email string) (User, bool) {
	for _, m := range members {
		if m.User.Email == email {
			return m.User, true
		}
	}
	return User{}, false
}

// displayName renders a participant on an expense card: "You" for the viewer,
// otherwise the first name token to keep cards compact. Ids that resolve to
// no member fall back to a label rather than failing the whole feed.
func displayName(id UserID, members map[UserID]User, self User, hasSelf bool) string {
	if hasSelf && id == self.ID {
		return "You"
	}
	u, ok := members[id]
	if !ok || u.Name == "" {
		return "Unknown user"
	}
	if i := strings.IndexByte(u.Name, ' '); i > 0 {
		return u.Name[:i]
	}
	return u.Name
}
