package services

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"lodge/internal/core"
	"lodge/internal/ports"
)

// ReportPeriod bounds attendance reports; nil ends are open.
type ReportPeriod struct {
	From *core.Date
	To   *core.Date
}

// MemberProfile is the participation and payment picture of one member.
type MemberProfile struct {
	Member     core.Member
	Attendance core.AttendanceSummary
	Payments   core.PaymentRecord
	Grid       [12]core.MonthCell
	Year       int
}

// OverdueReport groups overdue dues by member.
type OverdueReport struct {
	Groups   []core.OverdueGroup
	Critical []core.OverdueGroup
	Total    core.Money
}

// ReportService loads snapshots concurrently and runs the aggregators over
// them. A cancelled context discards whatever was loaded.
type ReportService struct {
	store  ports.Backend
	policy core.AlertPolicy
	now    func() time.Time
}

func NewReportService(store ports.Backend, policy core.AlertPolicy) *ReportService {
	return &ReportService{store: store, policy: policy, now: time.Now}
}

type attendanceSnapshot struct {
	members  []core.Member
	sessions int
	rows     []core.AttendanceRow
}

func (s *ReportService) loadAttendance(ctx context.Context, p ReportPeriod, memberID int64) (attendanceSnapshot, error) {
	var snap attendanceSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.members, err = s.store.ListMembers(gctx, ports.ListMembersFilter{ActiveOnly: memberID == 0})
		return core.Upstream("list members", err)
	})
	g.Go(func() error {
		var err error
		snap.sessions, err = s.store.CountSessions(gctx, ports.SessionFilter{From: p.From, To: p.To})
		return core.Upstream("count sessions", err)
	})
	g.Go(func() error {
		var err error
		snap.rows, err = s.store.ListAttendance(gctx, ports.AttendanceFilter{MemberID: memberID, From: p.From, To: p.To})
		return core.Upstream("list attendance", err)
	})
	if err := g.Wait(); err != nil {
		return attendanceSnapshot{}, err
	}
	if err := ctx.Err(); err != nil {
		return attendanceSnapshot{}, err
	}
	return snap, nil
}

// AttendanceReport computes one summary per active member over the period.
func (s *ReportService) AttendanceReport(ctx context.Context, p ReportPeriod) ([]core.AttendanceSummary, error) {
	if p.From != nil && p.To != nil && p.To.Before(p.From.Time) {
		return nil, &core.ValidationError{Field: "to", Reason: "cannot precede from"}
	}
	snap, err := s.loadAttendance(ctx, p, 0)
	if err != nil {
		return nil, err
	}
	return core.AggregateAttendance(snap.members, snap.sessions, snap.rows), nil
}

// AbsenceAlerts flags active members whose last presence is too old.
func (s *ReportService) AbsenceAlerts(ctx context.Context, now time.Time) ([]core.AbsenceAlert, error) {
	summaries, err := s.AttendanceReport(ctx, ReportPeriod{})
	if err != nil {
		return nil, err
	}
	return core.AttendanceAlerts(summaries, now, s.policy), nil
}

func (s *ReportService) loadDues(ctx context.Context, f ports.DuesFilter) ([]core.Member, []core.Dues, error) {
	var (
		members []core.Member
		dues    []core.Dues
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = s.store.ListMembers(gctx, ports.ListMembersFilter{})
		return core.Upstream("list members", err)
	})
	g.Go(func() error {
		var err error
		dues, err = s.store.ListDues(gctx, f)
		return core.Upstream("list dues", err)
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return members, dues, nil
}

// OverdueReport groups every overdue row by member.
func (s *ReportService) OverdueReport(ctx context.Context) (OverdueReport, error) {
	members, dues, err := s.loadDues(ctx, ports.DuesFilter{Status: core.DuesOverdue})
	if err != nil {
		return OverdueReport{}, err
	}
	groups := core.GroupOverdue(members, dues)
	rep := OverdueReport{Groups: groups, Critical: core.CriticalGroups(groups)}
	for _, g := range groups {
		rep.Total = rep.Total.Add(g.Total)
	}
	return rep, nil
}

// PaymentReport returns one payment record per member for year.
func (s *ReportService) PaymentReport(ctx context.Context, year int) ([]core.PaymentRecord, error) {
	members, dues, err := s.loadDues(ctx, ports.DuesFilter{Year: year})
	if err != nil {
		return nil, err
	}
	return core.PaymentRecords(members, dues), nil
}

// MemberProfile combines the lifetime attendance of a member with their
// dues for year.
func (s *ReportService) MemberProfile(ctx context.Context, memberID int64, year int) (MemberProfile, error) {
	if year == 0 {
		year = s.now().Year()
	}
	var (
		member core.Member
		snap   attendanceSnapshot
		dues   []core.Dues
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		member, err = s.store.GetMember(gctx, memberID)
		return core.Upstream("get member", err)
	})
	g.Go(func() error {
		var err error
		snap, err = s.loadAttendance(gctx, ReportPeriod{}, memberID)
		return err
	})
	g.Go(func() error {
		var err error
		dues, err = s.store.ListDues(gctx, ports.DuesFilter{MemberID: memberID})
		return core.Upstream("list dues", err)
	})
	if err := g.Wait(); err != nil {
		return MemberProfile{}, err
	}
	if err := ctx.Err(); err != nil {
		return MemberProfile{}, err
	}

	roster := []core.Member{member}
	profile := MemberProfile{Member: member, Year: year, Grid: core.MonthGrid(dues, memberID, year)}
	if sums := core.AggregateAttendance(roster, snap.sessions, snap.rows); len(sums) == 1 {
		profile.Attendance = sums[0]
	}
	var yearDues []core.Dues
	for _, d := range dues {
		if d.Year == year {
			yearDues = append(yearDues, d)
		}
	}
	if recs := core.PaymentRecords(roster, yearDues); len(recs) == 1 {
		profile.Payments = recs[0]
	}
	return profile, nil
}

// Compliance is the share of paid dues rows in year.
func (s *ReportService) Compliance(ctx context.Context, year int) (float64, error) {
	dues, err := s.store.ListDues(ctx, ports.DuesFilter{Year: year})
	if err != nil {
		return 0, core.Upstream("list dues", err)
	}
	return core.DuesCompliance(dues), nil
}
