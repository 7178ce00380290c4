package export

import (
	"fmt"
	"strings"

	"lodge/internal/core"
)

func AttendanceTable(summaries []core.AttendanceSummary) Table {
	t := Table{
		Title: "Attendance",
		Columns: []Column{
			{Name: "Member", Kind: KindString},
			{Name: "Degree", Kind: KindString},
			{Name: "Sessions", Kind: KindInt},
			{Name: "Attended", Kind: KindInt},
			{Name: "Participation", Kind: KindPercent},
			{Name: "Last attendance", Kind: KindDate},
		},
	}
	for _, s := range summaries {
		t.Rows = append(t.Rows, []Cell{
			String(s.Member.Name),
			String(string(s.Member.Degree)),
			Int(int64(s.TotalSessions)),
			Int(int64(s.AttendedSessions)),
			Percent(s.Percentage),
			OptDate(s.LastAttendance),
		})
	}
	return t
}

func AlertsTable(alerts []core.AbsenceAlert) Table {
	t := Table{
		Title: "Absence alerts",
		Columns: []Column{
			{Name: "Member", Kind: KindString},
			{Name: "Days since last attendance", Kind: KindInt},
			{Name: "Severity", Kind: KindString},
			{Name: "Never attended", Kind: KindBool},
		},
	}
	for _, a := range alerts {
		days := Int(int64(a.DaysSince))
		if a.NeverAttended {
			days = Cell{Kind: KindInt, Empty: true}
		}
		t.Rows = append(t.Rows, []Cell{String(a.Name), days, String(string(a.Severity)), Bool(a.NeverAttended)})
	}
	return t
}

func OverdueTable(groups []core.OverdueGroup) Table {
	t := Table{
		Title: "Overdue dues",
		Columns: []Column{
			{Name: "Member", Kind: KindString},
			{Name: "Email", Kind: KindString},
			{Name: "Months", Kind: KindString},
			{Name: "Count", Kind: KindInt},
			{Name: "Total", Kind: KindMoney},
			{Name: "Critical", Kind: KindBool},
		},
	}
	for _, g := range groups {
		months := make([]string, len(g.Months))
		for i, m := range g.Months {
			months[i] = fmt.Sprintf("%02d/%d", m.Month, m.Year)
		}
		t.Rows = append(t.Rows, []Cell{
			String(g.Member.Name),
			String(g.Member.Email),
			String(strings.Join(months, ", ")),
			Int(int64(g.Count)),
			Money(g.Total),
			Bool(g.Critical),
		})
	}
	return t
}

// PaymentTable has one row per member with a paid/pending/overdue column
// for each month of year.
func PaymentTable(year int, records []core.PaymentRecord) Table {
	t := Table{Title: fmt.Sprintf("Payments %d", year)}
	t.Columns = append(t.Columns, Column{Name: "Member", Kind: KindString})
	for m := 1; m <= 12; m++ {
		t.Columns = append(t.Columns, Column{Name: fmt.Sprintf("%02d", m), Kind: KindString})
	}
	t.Columns = append(t.Columns,
		Column{Name: "Overdue", Kind: KindInt},
		Column{Name: "Last payment", Kind: KindDate},
	)
	for _, r := range records {
		grid := core.MonthGrid(r.Payments, r.Member.ID, year)
		row := []Cell{String(r.Member.Name)}
		for _, c := range grid {
			row = append(row, String(string(c.Status)))
		}
		row = append(row, Int(int64(r.OverdueCount)), OptDate(r.LastPayment))
		t.Rows = append(t.Rows, row)
	}
	return t
}

func BalanceTable(year int, balances []core.CashBalance) Table {
	t := Table{
		Title: fmt.Sprintf("Balance %d", year),
		Columns: []Column{
			{Name: "Month", Kind: KindInt},
			{Name: "Monthly fees", Kind: KindMoney},
			{Name: "Solidarity fund", Kind: KindMoney},
			{Name: "Other income", Kind: KindMoney},
			{Name: "Expenses", Kind: KindMoney},
			{Name: "Net", Kind: KindMoney},
			{Name: "Cumulative", Kind: KindMoney},
		},
	}
	for _, b := range balances {
		t.Rows = append(t.Rows, []Cell{
			Int(int64(b.Month)),
			Money(b.MonthlyFees),
			Money(b.SolidarityFund),
			Money(b.OtherIncome),
			Money(b.Expenses),
			Money(b.Net),
			Money(b.Cumulative),
		})
	}
	return t
}

func MembersTable(members []core.Member) Table {
	t := Table{
		Title: "Members",
		Columns: []Column{
			{Name: "Name", Kind: KindString},
			{Name: "Email", Kind: KindString},
			{Name: "Degree", Kind: KindString},
			{Name: "Profession", Kind: KindString},
			{Name: "Phone", Kind: KindString},
			{Name: "Birth date", Kind: KindDate},
			{Name: "Initiation date", Kind: KindDate},
			{Name: "Active", Kind: KindBool},
		},
	}
	for _, m := range members {
		initiation := Cell{Kind: KindDate, Empty: true}
		if m.InitiationDate != nil {
			initiation = Date(m.InitiationDate.Time)
		}
		t.Rows = append(t.Rows, []Cell{
			String(m.Name),
			String(m.Email),
			String(string(m.Degree)),
			String(m.Profession),
			String(m.Phone),
			Date(m.BirthDate.Time),
			initiation,
			Bool(m.Active),
		})
	}
	return t
}
