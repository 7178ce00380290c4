package core

import (
	"fmt"
	"sort"
	"time"
)

const (
	DuesPending DuesStatus = "pending"
	DuesPaid    DuesStatus = "paid"
	DuesOverdue DuesStatus = "overdue"

	// CriticalOverdueCount is the number of overdue months from which a
	// member is classified as critical.
	CriticalOverdueCount = 2
)

type (
	DuesStatus string

	// Dues is the monthly obligation of one member. At most one row exists
	// per (MemberID, Month, Year).
	Dues struct {
		ID       int64
		MemberID int64
		Month    int
		Year     int
		Amount   Money
		Status   DuesStatus
		DueDate  Date
		PaidAt   *time.Time
	}

	MonthRef struct {
		Month   int
		Year    int
		DueDate Date
	}

	OverdueGroup struct {
		Member   Member
		Months   []MonthRef
		Count    int
		Total    Money
		Critical bool
	}

	PaymentRecord struct {
		Member       Member
		Payments     []Dues
		OverdueCount int
		LastPayment  *time.Time
	}

	// MonthCell is one entry of a member's yearly dues grid. Status is empty
	// when no row exists for the month.
	MonthCell struct {
		Month  int
		Status DuesStatus
		DuesID int64
	}
)

func (s DuesStatus) Valid() bool {
	switch s {
	case DuesPending, DuesPaid, DuesOverdue:
		return true
	}
	return false
}

func (d Dues) Validate() error {
	if d.MemberID <= 0 {
		return &ValidationError{Field: "member_id", Reason: "must be set"}
	}
	if !ValidMonth(d.Month) {
		return &ValidationError{Field: "month", Reason: fmt.Sprintf("%d is not in 1..12", d.Month)}
	}
	if d.Year < 1900 || d.Year > 9999 {
		return &ValidationError{Field: "year", Reason: fmt.Sprintf("%d is out of range", d.Year)}
	}
	if err := d.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !d.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", d.Status)}
	}
	if d.Status == DuesPaid && d.PaidAt == nil {
		return &ValidationError{Field: "paid_at", Reason: "required for paid dues"}
	}
	return nil
}

// AlreadyPaid is the error for a second payment of the same dues row.
func AlreadyPaid(id int64) error {
	return &ValidationError{Field: "status", Reason: fmt.Sprintf("dues %d already paid", id)}
}

// IsPastDue reports whether d is unpaid with a due date before today.
func (d Dues) IsPastDue(today Date) bool {
	return d.Status == DuesPending && !d.DueDate.IsZero() && d.DueDate.Before(today.Time)
}

// GroupOverdue groups rows with status overdue by member. Months are sorted
// chronologically; groups are sorted by count descending, then name.
// Rows of members missing from the roster are grouped under a member that
// only carries the ID.
func GroupOverdue(members []Member, dues []Dues) []OverdueGroup {
	roster := make(map[int64]Member, len(members))
	for _, m := range members {
		roster[m.ID] = m
	}
	groups := make(map[int64]*OverdueGroup)
	var order []int64
	for _, d := range dues {
		if d.Status != DuesOverdue {
			continue
		}
		g, ok := groups[d.MemberID]
		if !ok {
			m, known := roster[d.MemberID]
			if !known {
				m = Member{ID: d.MemberID}
			}
			g = &OverdueGroup{Member: m}
			groups[d.MemberID] = g
			order = append(order, d.MemberID)
		}
		g.Months = append(g.Months, MonthRef{Month: d.Month, Year: d.Year, DueDate: d.DueDate})
		g.Count++
		g.Total = g.Total.Add(d.Amount)
	}

	out := make([]OverdueGroup, 0, len(order))
	for _, id := range order {
		g := groups[id]
		sort.Slice(g.Months, func(i, j int) bool {
			if g.Months[i].Year != g.Months[j].Year {
				return g.Months[i].Year < g.Months[j].Year
			}
			return g.Months[i].Month < g.Months[j].Month
		})
		g.Critical = g.Count >= CriticalOverdueCount
		out = append(out, *g)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Member.Name < out[j].Member.Name
	})
	return out
}

// CriticalGroups filters groups down to the critical ones.
func CriticalGroups(groups []OverdueGroup) []OverdueGroup {
	var out []OverdueGroup
	for _, g := range groups {
		if g.Critical {
			out = append(out, g)
		}
	}
	return out
}

// PaymentRecords returns one record per member in roster order. Payments
// are sorted chronologically; LastPayment is the latest PaidAt among them.
func PaymentRecords(members []Member, dues []Dues) []PaymentRecord {
	byMember := make(map[int64][]Dues, len(members))
	for _, d := range dues {
		byMember[d.MemberID] = append(byMember[d.MemberID], d)
	}
	out := make([]PaymentRecord, 0, len(members))
	for _, m := range members {
		rows := byMember[m.ID]
		rec := PaymentRecord{Member: m, Payments: make([]Dues, 0, len(rows))}
		rec.Payments = append(rec.Payments, rows...)
		sort.Slice(rec.Payments, func(i, j int) bool {
			a, b := rec.Payments[i], rec.Payments[j]
			if a.Year != b.Year {
				return a.Year < b.Year
			}
			return a.Month < b.Month
		})
		for _, d := range rows {
			if d.Status == DuesOverdue {
				rec.OverdueCount++
			}
			if d.Status == DuesPaid && d.PaidAt != nil {
				if rec.LastPayment == nil || d.PaidAt.After(*rec.LastPayment) {
					t := *d.PaidAt
					rec.LastPayment = &t
				}
			}
		}
		out = append(out, rec)
	}
	return out
}

// MonthGrid returns the twelve month cells of memberID for year.
func MonthGrid(dues []Dues, memberID int64, year int) [12]MonthCell {
	var grid [12]MonthCell
	for i := range grid {
		grid[i].Month = i + 1
	}
	for _, d := range dues {
		if d.MemberID != memberID || d.Year != year || !ValidMonth(d.Month) {
			continue
		}
		grid[d.Month-1].Status = d.Status
		grid[d.Month-1].DuesID = d.ID
	}
	return grid
}

// CollidingMonths returns the requested months that already have a row in
// existing, sorted ascending and without repeats.
func CollidingMonths(existing []Dues, requested []int) []int {
	have := make(map[int]bool, len(existing))
	for _, d := range existing {
		have[d.Month] = true
	}
	seen := make(map[int]bool, len(requested))
	var out []int
	for _, m := range requested {
		if have[m] && !seen[m] {
			out = append(out, m)
			seen[m] = true
		}
	}
	sort.Ints(out)
	return out
}

// DuesCompliance is the share of rows already paid, 0 for an empty ledger.
func DuesCompliance(dues []Dues) float64 {
	paid := 0
	for _, d := range dues {
		if d.Status == DuesPaid {
			paid++
		}
	}
	return Percentage(paid, len(dues))
}

// DueDateFor returns the due date of a month's dues: dueDay of that month,
// clamped to the month's last day.
func DueDateFor(year, month, dueDay int) Date {
	if dueDay < 1 {
		dueDay = 1
	}
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if dueDay > last {
		dueDay = last
	}
	return NewDate(year, month, dueDay)
}
