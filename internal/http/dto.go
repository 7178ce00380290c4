package http

import (
	"strings"
	"time"

	"lodge/internal/core"
	"lodge/internal/services"
)

// Wire shapes of the API. Core types carry no JSON tags; these do.

type moneyDTO struct {
	Cents   int64  `json:"cents"`
	Value   string `json:"value"`
	Display string `json:"display"`
}

type relativeDTO struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	BirthDate    string `json:"birth_date,omitempty"`
}

type memberDTO struct {
	ID             int64         `json:"id"`
	Name           string        `json:"name"`
	Email          string        `json:"email"`
	Degree         string        `json:"degree"`
	Profession     string        `json:"profession,omitempty"`
	BirthDate      string        `json:"birth_date,omitempty"`
	Phone          string        `json:"phone,omitempty"`
	HigherDegree   *int          `json:"higher_degree,omitempty"`
	InitiationDate string        `json:"initiation_date,omitempty"`
	Relatives      []relativeDTO `json:"relatives"`
	Active         bool          `json:"active"`
	CreatedAt      *time.Time    `json:"created_at,omitempty"`
}

// memberInput is the body of member create and update requests. Active
// defaults to true when omitted.
type memberInput struct {
	Name           string        `json:"name"`
	Email          string        `json:"email"`
	Degree         string        `json:"degree"`
	Profession     string        `json:"profession"`
	BirthDate      string        `json:"birth_date"`
	Phone          string        `json:"phone"`
	HigherDegree   *int          `json:"higher_degree"`
	InitiationDate string        `json:"initiation_date"`
	Relatives      []relativeDTO `json:"relatives"`
	Active         *bool         `json:"active"`
}

type sessionDTO struct {
	ID         int64  `json:"id"`
	Date       string `json:"date"`
	Time       string `json:"time"`
	Degree     string `json:"degree"`
	Agenda     string `json:"agenda,omitempty"`
	MinutesURL string `json:"minutes_url,omitempty"`
	Type       string `json:"type"`
}

type sessionInput struct {
	Date       string `json:"date"`
	Time       string `json:"time"`
	Degree     string `json:"degree"`
	Agenda     string `json:"agenda"`
	MinutesURL string `json:"minutes_url"`
	Type       string `json:"type"`
}

type attendanceDTO struct {
	SessionID int64 `json:"session_id"`
	MemberID  int64 `json:"member_id"`
	Present   bool  `json:"present"`
}

type attendanceInput struct {
	Attendance []struct {
		MemberID int64 `json:"member_id"`
		Present  bool  `json:"present"`
	} `json:"attendance"`
}

type duesDTO struct {
	ID       int64      `json:"id"`
	MemberID int64      `json:"member_id"`
	Month    int        `json:"month"`
	Year     int        `json:"year"`
	Amount   moneyDTO   `json:"amount"`
	Status   string     `json:"status"`
	DueDate  string     `json:"due_date"`
	PaidAt   *time.Time `json:"paid_at,omitempty"`
}

type duesBatchDTO struct {
	DuesIDs     []int64  `json:"dues_ids"`
	MovementIDs []int64  `json:"movement_ids"`
	Fee         moneyDTO `json:"fee"`
}

type markPaidInput struct {
	PaidAt *time.Time `json:"paid_at"`
}

type monthCellDTO struct {
	Month  int    `json:"month"`
	Status string `json:"status,omitempty"`
	DuesID int64  `json:"dues_id,omitempty"`
}

type movementDTO struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	Category    string    `json:"category"`
	Amount      moneyDTO  `json:"amount"`
	Month       int       `json:"month"`
	Year        int       `json:"year"`
	Description string    `json:"description,omitempty"`
	Recurring   bool      `json:"recurring"`
	CreatedAt   time.Time `json:"created_at"`
}

type categoryAmountDTO struct {
	Name   string   `json:"name"`
	Amount moneyDTO `json:"amount"`
}

type balanceDTO struct {
	Month          int                 `json:"month"`
	Year           int                 `json:"year"`
	MonthlyFees    moneyDTO            `json:"monthly_fees"`
	SolidarityFund moneyDTO            `json:"solidarity_fund"`
	OtherIncome    moneyDTO            `json:"other_income"`
	Expenses       moneyDTO            `json:"expenses"`
	ExpensesLabel  string              `json:"expenses_label"`
	TotalIncome    moneyDTO            `json:"total_income"`
	Net            moneyDTO            `json:"net"`
	Cumulative     moneyDTO            `json:"cumulative"`
	ByCategory     []categoryAmountDTO `json:"by_category"`
}

type summaryDTO struct {
	MemberID         int64      `json:"member_id"`
	Name             string     `json:"name"`
	Degree           string     `json:"degree"`
	TotalSessions    int        `json:"total_sessions"`
	AttendedSessions int        `json:"attended_sessions"`
	Percentage       float64    `json:"percentage"`
	LastAttendance   *time.Time `json:"last_attendance,omitempty"`
}

type alertDTO struct {
	MemberID      int64  `json:"member_id"`
	Name          string `json:"name"`
	DaysSince     int    `json:"days_since"`
	Severity      string `json:"severity"`
	NeverAttended bool   `json:"never_attended"`
}

type monthRefDTO struct {
	Month   int    `json:"month"`
	Year    int    `json:"year"`
	DueDate string `json:"due_date"`
}

type overdueGroupDTO struct {
	MemberID int64         `json:"member_id"`
	Name     string        `json:"name"`
	Months   []monthRefDTO `json:"months"`
	Count    int           `json:"count"`
	Total    moneyDTO      `json:"total"`
	Critical bool          `json:"critical"`
}

type overdueReportDTO struct {
	Groups   []overdueGroupDTO `json:"groups"`
	Critical []overdueGroupDTO `json:"critical"`
	Total    moneyDTO          `json:"total"`
}

type paymentRecordDTO struct {
	MemberID     int64      `json:"member_id"`
	Name         string     `json:"name"`
	Payments     []duesDTO  `json:"payments"`
	OverdueCount int        `json:"overdue_count"`
	LastPayment  *time.Time `json:"last_payment,omitempty"`
}

type profileDTO struct {
	Member     memberDTO        `json:"member"`
	Year       int              `json:"year"`
	Attendance summaryDTO       `json:"attendance"`
	Payments   paymentRecordDTO `json:"payments"`
	Grid       []monthCellDTO   `json:"grid"`
}

type pollOptionDTO struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}

type pollDTO struct {
	ID          int64           `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Options     []pollOptionDTO `json:"options"`
	ClosesAt    *time.Time      `json:"closes_at,omitempty"`
	Open        bool            `json:"open"`
	CreatedBy   int64           `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
}

type optionCountDTO struct {
	OptionID   int64   `json:"option_id"`
	Label      string  `json:"label"`
	Votes      int     `json:"votes"`
	Percentage float64 `json:"percentage"`
}

type pollResultDTO struct {
	Poll       pollDTO          `json:"poll"`
	Counts     []optionCountDTO `json:"counts"`
	TotalVotes int              `json:"total_votes"`
}

// presenter converts core values into their wire shapes, rendering money
// with the configured locale and currency.
type presenter struct {
	formatter core.Formatter
	now       func() time.Time
}

func (p presenter) money(m core.Money) moneyDTO {
	return moneyDTO{Cents: m.Cents, Value: m.Decimal(), Display: p.formatter.Format(m)}
}

func (p presenter) member(m core.Member) memberDTO {
	out := memberDTO{
		ID:           m.ID,
		Name:         m.Name,
		Email:        m.Email,
		Degree:       string(m.Degree),
		Profession:   m.Profession,
		BirthDate:    m.BirthDate.String(),
		Phone:        m.Phone,
		HigherDegree: m.HigherDegree,
		Relatives:    make([]relativeDTO, 0, len(m.Relatives)),
		Active:       m.Active,
	}
	if m.InitiationDate != nil {
		out.InitiationDate = m.InitiationDate.String()
	}
	if !m.CreatedAt.IsZero() {
		t := m.CreatedAt
		out.CreatedAt = &t
	}
	for _, r := range m.Relatives {
		out.Relatives = append(out.Relatives, relativeDTO{Name: r.Name, Relationship: r.Relationship, BirthDate: r.BirthDate.String()})
	}
	return out
}

func (p presenter) members(ms []core.Member) []memberDTO {
	out := make([]memberDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, p.member(m))
	}
	return out
}

// optionalDate parses s as YYYY-MM-DD reporting failures against field.
// An empty string yields the zero Date.
func optionalDate(field, s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: field, Reason: "must be a YYYY-MM-DD date"}
	}
	return d, nil
}

func (in memberInput) toMember(id int64) (core.Member, error) {
	m := core.Member{
		ID:           id,
		Name:         sanitizeInput(in.Name),
		Email:        strings.TrimSpace(in.Email),
		Degree:       core.Degree(strings.TrimSpace(in.Degree)),
		Profession:   sanitizeInput(in.Profession),
		Phone:        sanitizeInput(in.Phone),
		HigherDegree: in.HigherDegree,
		Active:       in.Active == nil || *in.Active,
	}
	var err error
	if m.BirthDate, err = optionalDate("birth_date", in.BirthDate); err != nil {
		return core.Member{}, err
	}
	initiation, err := optionalDate("initiation_date", in.InitiationDate)
	if err != nil {
		return core.Member{}, err
	}
	if !initiation.IsZero() {
		m.InitiationDate = &initiation
	}
	for _, r := range in.Relatives {
		bd, err := optionalDate("relatives.birth_date", r.BirthDate)
		if err != nil {
			return core.Member{}, err
		}
		m.Relatives = append(m.Relatives, core.Relative{
			Name:         sanitizeInput(r.Name),
			Relationship: sanitizeInput(r.Relationship),
			BirthDate:    bd,
		})
	}
	return m, nil
}

func (p presenter) session(s core.Session) sessionDTO {
	return sessionDTO{
		ID:         s.ID,
		Date:       s.Date.String(),
		Time:       s.Time,
		Degree:     string(s.Degree),
		Agenda:     s.Agenda,
		MinutesURL: s.MinutesURL,
		Type:       string(s.Type),
	}
}

func (in sessionInput) toSession(id int64) (core.Session, error) {
	d, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Session{}, &core.ValidationError{Field: "date", Reason: "must be a YYYY-MM-DD date"}
	}
	return core.Session{
		ID:         id,
		Date:       d,
		Time:       strings.TrimSpace(in.Time),
		Degree:     core.Degree(strings.TrimSpace(in.Degree)),
		Agenda:     sanitizeInput(in.Agenda),
		MinutesURL: strings.TrimSpace(in.MinutesURL),
		Type:       core.SessionType(strings.TrimSpace(in.Type)),
	}, nil
}

// toMap rejects a member listed twice with conflicting flags.
func (in attendanceInput) toMap() (map[int64]bool, error) {
	out := make(map[int64]bool, len(in.Attendance))
	for _, a := range in.Attendance {
		if prev, ok := out[a.MemberID]; ok && prev != a.Present {
			return nil, &core.ValidationError{Field: "attendance", Reason: "member listed twice with different flags"}
		}
		out[a.MemberID] = a.Present
	}
	return out, nil
}

func (p presenter) dues(d core.Dues) duesDTO {
	return duesDTO{
		ID:       d.ID,
		MemberID: d.MemberID,
		Month:    d.Month,
		Year:     d.Year,
		Amount:   p.money(d.Amount),
		Status:   string(d.Status),
		DueDate:  d.DueDate.String(),
		PaidAt:   d.PaidAt,
	}
}

func (p presenter) duesList(ds []core.Dues) []duesDTO {
	out := make([]duesDTO, 0, len(ds))
	for _, d := range ds {
		out = append(out, p.dues(d))
	}
	return out
}

func (p presenter) grid(cells [12]core.MonthCell) []monthCellDTO {
	out := make([]monthCellDTO, 0, len(cells))
	for _, c := range cells {
		out = append(out, monthCellDTO{Month: c.Month, Status: string(c.Status), DuesID: c.DuesID})
	}
	return out
}

func (p presenter) movement(m core.CashMovement) movementDTO {
	return movementDTO{
		ID:          m.ID,
		Type:        string(m.Type),
		Category:    string(m.Category),
		Amount:      p.money(m.Amount),
		Month:       m.Month,
		Year:        m.Year,
		Description: m.Description,
		Recurring:   m.Recurring,
		CreatedAt:   m.CreatedAt,
	}
}

func (p presenter) movements(ms []core.CashMovement) []movementDTO {
	out := make([]movementDTO, 0, len(ms))
	for _, m := range ms {
		out = append(out, p.movement(m))
	}
	return out
}

func (p presenter) balance(b core.CashBalance) balanceDTO {
	out := balanceDTO{
		Month:          b.Month,
		Year:           b.Year,
		MonthlyFees:    p.money(b.MonthlyFees),
		SolidarityFund: p.money(b.SolidarityFund),
		OtherIncome:    p.money(b.OtherIncome),
		Expenses:       p.money(b.Expenses),
		ExpensesLabel:  b.ExpensesLabel(p.formatter),
		TotalIncome:    p.money(b.TotalIncome),
		Net:            p.money(b.Net),
		Cumulative:     p.money(b.Cumulative),
		ByCategory:     make([]categoryAmountDTO, 0, len(b.ByCategory)),
	}
	for _, c := range b.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryAmountDTO{Name: c.Name, Amount: p.money(c.Amount)})
	}
	return out
}

func (p presenter) balances(bs []core.CashBalance) []balanceDTO {
	out := make([]balanceDTO, 0, len(bs))
	for _, b := range bs {
		out = append(out, p.balance(b))
	}
	return out
}

func (p presenter) summary(s core.AttendanceSummary) summaryDTO {
	return summaryDTO{
		MemberID:         s.Member.ID,
		Name:             s.Member.Name,
		Degree:           string(s.Member.Degree),
		TotalSessions:    s.TotalSessions,
		AttendedSessions: s.AttendedSessions,
		Percentage:       s.Percentage,
		LastAttendance:   s.LastAttendance,
	}
}

func (p presenter) summaries(ss []core.AttendanceSummary) []summaryDTO {
	out := make([]summaryDTO, 0, len(ss))
	for _, s := range ss {
		out = append(out, p.summary(s))
	}
	return out
}

func (p presenter) alerts(as []core.AbsenceAlert) []alertDTO {
	out := make([]alertDTO, 0, len(as))
	for _, a := range as {
		out = append(out, alertDTO{
			MemberID:      a.MemberID,
			Name:          a.Name,
			DaysSince:     a.DaysSince,
			Severity:      string(a.Severity),
			NeverAttended: a.NeverAttended,
		})
	}
	return out
}

func (p presenter) overdueGroups(gs []core.OverdueGroup) []overdueGroupDTO {
	out := make([]overdueGroupDTO, 0, len(gs))
	for _, g := range gs {
		dto := overdueGroupDTO{
			MemberID: g.Member.ID,
			Name:     g.Member.Name,
			Months:   make([]monthRefDTO, 0, len(g.Months)),
			Count:    g.Count,
			Total:    p.money(g.Total),
			Critical: g.Critical,
		}
		for _, m := range g.Months {
			dto.Months = append(dto.Months, monthRefDTO{Month: m.Month, Year: m.Year, DueDate: m.DueDate.String()})
		}
		out = append(out, dto)
	}
	return out
}

func (p presenter) overdueReport(r services.OverdueReport) overdueReportDTO {
	return overdueReportDTO{
		Groups:   p.overdueGroups(r.Groups),
		Critical: p.overdueGroups(r.Critical),
		Total:    p.money(r.Total),
	}
}

func (p presenter) paymentRecord(r core.PaymentRecord) paymentRecordDTO {
	return paymentRecordDTO{
		MemberID:     r.Member.ID,
		Name:         r.Member.Name,
		Payments:     p.duesList(r.Payments),
		OverdueCount: r.OverdueCount,
		LastPayment:  r.LastPayment,
	}
}

func (p presenter) paymentRecords(rs []core.PaymentRecord) []paymentRecordDTO {
	out := make([]paymentRecordDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, p.paymentRecord(r))
	}
	return out
}

func (p presenter) profile(pr services.MemberProfile) profileDTO {
	return profileDTO{
		Member:     p.member(pr.Member),
		Year:       pr.Year,
		Attendance: p.summary(pr.Attendance),
		Payments:   p.paymentRecord(pr.Payments),
		Grid:       p.grid(pr.Grid),
	}
}

func (p presenter) poll(pl core.Poll) pollDTO {
	out := pollDTO{
		ID:          pl.ID,
		Title:       pl.Title,
		Description: pl.Description,
		Options:     make([]pollOptionDTO, 0, len(pl.Options)),
		ClosesAt:    pl.ClosesAt,
		Open:        pl.Open(p.now()),
		CreatedBy:   pl.CreatedBy,
		CreatedAt:   pl.CreatedAt,
	}
	for _, o := range pl.Options {
		out.Options = append(out.Options, pollOptionDTO{ID: o.ID, Label: o.Label})
	}
	return out
}

func (p presenter) polls(ps []core.Poll) []pollDTO {
	out := make([]pollDTO, 0, len(ps))
	for _, pl := range ps {
		out = append(out, p.poll(pl))
	}
	return out
}

func (p presenter) pollResult(r core.PollResult) pollResultDTO {
	out := pollResultDTO{
		Poll:       p.poll(r.Poll),
		Counts:     make([]optionCountDTO, 0, len(r.Counts)),
		TotalVotes: r.TotalVotes,
	}
	for _, c := range r.Counts {
		out.Counts = append(out.Counts, optionCountDTO{
			OptionID:   c.Option.ID,
			Label:      c.Option.Label,
			Votes:      c.Votes,
			Percentage: c.Percentage,
		})
	}
	return out
}
