package core

import (
	"sort"
	"time"
)

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	// NeverAttendedCritical reports members with no presence at all as
	// critical alerts.
	NeverAttendedCritical NeverAttendedPolicy = iota
	// NeverAttendedIgnore leaves members with no presence out of the alerts.
	NeverAttendedIgnore
)

type (
	Severity string

	NeverAttendedPolicy int

	// AttendanceSummary is the computed participation of one member.
	AttendanceSummary struct {
		Member           Member
		TotalSessions    int
		AttendedSessions int
		Percentage       float64
		LastAttendance   *time.Time
	}

	AlertPolicy struct {
		WarnAfterDays     int
		CriticalAfterDays int
		NeverAttended     NeverAttendedPolicy
	}

	AbsenceAlert struct {
		MemberID      int64
		Name          string
		DaysSince     int // -1 when the member never attended
		Severity      Severity
		NeverAttended bool
	}
)

// DefaultAlertPolicy warns after 50 days and escalates after 60.
func DefaultAlertPolicy() AlertPolicy {
	return AlertPolicy{WarnAfterDays: 50, CriticalAfterDays: 60, NeverAttended: NeverAttendedCritical}
}

// Percentage returns part/whole*100 clamped to [0,100]; a zero whole yields 0.
func Percentage(part, whole int) float64 {
	if whole <= 0 || part <= 0 {
		return 0
	}
	p := float64(part) / float64(whole) * 100
	if p > 100 {
		return 100
	}
	return p
}

// AggregateAttendance computes one summary per member, in roster order.
// Every member is expected at every one of totalSessions sessions. Rows for
// members outside the roster are ignored.
func AggregateAttendance(members []Member, totalSessions int, rows []AttendanceRow) []AttendanceSummary {
	if totalSessions < 0 {
		totalSessions = 0
	}
	type acc struct {
		attended int
		last     time.Time
	}
	byMember := make(map[int64]*acc, len(members))
	for _, m := range members {
		byMember[m.ID] = &acc{}
	}
	for _, r := range rows {
		a, ok := byMember[r.MemberID]
		if !ok || !r.Present {
			continue
		}
		a.attended++
		if r.CreatedAt.After(a.last) {
			a.last = r.CreatedAt
		}
	}

	out := make([]AttendanceSummary, 0, len(members))
	for _, m := range members {
		a := byMember[m.ID]
		s := AttendanceSummary{
			Member:           m,
			TotalSessions:    totalSessions,
			AttendedSessions: a.attended,
			Percentage:       Percentage(a.attended, totalSessions),
		}
		if !a.last.IsZero() {
			last := a.last
			s.LastAttendance = &last
		}
		out = append(out, s)
	}
	return out
}

// AttendanceAlerts flags members whose last presence is at least
// WarnAfterDays old, escalating to critical at CriticalAfterDays.
// Members who never attended are handled according to policy.NeverAttended,
// and only when at least one session has been held.
func AttendanceAlerts(summaries []AttendanceSummary, now time.Time, policy AlertPolicy) []AbsenceAlert {
	today := DateOf(now)
	var alerts []AbsenceAlert
	for _, s := range summaries {
		if s.LastAttendance == nil {
			if policy.NeverAttended == NeverAttendedCritical && s.TotalSessions > 0 {
				alerts = append(alerts, AbsenceAlert{
					MemberID:      s.Member.ID,
					Name:          s.Member.Name,
					DaysSince:     -1,
					Severity:      SeverityCritical,
					NeverAttended: true,
				})
			}
			continue
		}
		days := DateOf(*s.LastAttendance).DaysUntil(today)
		var sev Severity
		switch {
		case days >= policy.CriticalAfterDays:
			sev = SeverityCritical
		case days >= policy.WarnAfterDays:
			sev = SeverityWarning
		default:
			continue
		}
		alerts = append(alerts, AbsenceAlert{
			MemberID:  s.Member.ID,
			Name:      s.Member.Name,
			DaysSince: days,
			Severity:  sev,
		})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.NeverAttended != b.NeverAttended {
			return a.NeverAttended
		}
		if a.DaysSince != b.DaysSince {
			return a.DaysSince > b.DaysSince
		}
		return a.Name < b.Name
	})
	return alerts
}
