package storage

import (
	"context"
	"database/sql"
	"strings"

	"lodge/internal/core"
	"lodge/internal/ports"
)

const sessionColumns = `id, session_date, session_time, degree, agenda, minutes_url, session_type`

func scanSession(sc interface{ Scan(...any) error }) (core.Session, error) {
	var (
		s          core.Session
		date       sql.NullString
		degree, st string
	)
	if err := sc.Scan(&s.ID, &date, &s.Time, &degree, &s.Agenda, &s.MinutesURL, &st); err != nil {
		return s, err
	}
	s.Degree = core.Degree(degree)
	s.Type = core.SessionType(st)
	var err error
	s.Date, err = scanDate(date)
	return s, err
}

func sessionRange(column string, from, to *core.Date) (string, []any) {
	var (
		where []string
		args  []any
	)
	if from != nil {
		where = append(where, column+" >= ?")
		args = append(args, dateArg(*from))
	}
	if to != nil {
		where = append(where, column+" <= ?")
		args = append(args, dateArg(*to))
	}
	return strings.Join(where, " AND "), args
}

func (r *Repository) ListSessions(ctx context.Context, f ports.SessionFilter) ([]core.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions`
	where, args := sessionRange("session_date", f.From, f.To)
	if where != "" {
		q += " WHERE " + where
	}
	q += ` ORDER BY session_date DESC, id DESC`

	rows, err := r.conn().query(ctx, q, args...)
	if err != nil {
		return nil, core.Upstream("list sessions", err)
	}
	defer rows.Close()
	var out []core.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, core.Upstream("scan session", err)
		}
		out = append(out, s)
	}
	return out, core.Upstream("list sessions", rows.Err())
}

func (r *Repository) CountSessions(ctx context.Context, f ports.SessionFilter) (int, error) {
	q := `SELECT COUNT(*) FROM sessions`
	where, args := sessionRange("session_date", f.From, f.To)
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	if err := r.conn().queryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, core.Upstream("count sessions", err)
	}
	return n, nil
}

func (r *Repository) GetSession(ctx context.Context, id int64) (core.Session, error) {
	s, err := scanSession(r.conn().queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		return core.Session{}, core.Upstream("get session", notFoundOr(err, "session", id))
	}
	return s, nil
}

func (r *Repository) CreateSession(ctx context.Context, s core.Session) (int64, error) {
	id, err := r.conn().insert(ctx, `INSERT INTO sessions (session_date, session_time, degree, agenda, minutes_url, session_type)
		VALUES (?, ?, ?, ?, ?, ?)`,
		dateArg(s.Date), s.Time, string(s.Degree), s.Agenda, s.MinutesURL, string(s.Type))
	if err != nil {
		return 0, core.Upstream("create session", err)
	}
	return id, nil
}

func (r *Repository) UpdateSession(ctx context.Context, s core.Session) error {
	res, err := r.conn().exec(ctx, `UPDATE sessions SET session_date = ?, session_time = ?, degree = ?, agenda = ?, minutes_url = ?, session_type = ?
		WHERE id = ?`,
		dateArg(s.Date), s.Time, string(s.Degree), s.Agenda, s.MinutesURL, string(s.Type), s.ID)
	if err != nil {
		return core.Upstream("update session", err)
	}
	return core.Upstream("update session", expectAffected(res, "session", s.ID))
}

func (r *Repository) DeleteSession(ctx context.Context, id int64) error {
	res, err := r.conn().exec(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return core.Upstream("delete session", err)
	}
	return core.Upstream("delete session", expectAffected(res, "session", id))
}

func (r *Repository) ListAttendance(ctx context.Context, f ports.AttendanceFilter) ([]core.AttendanceRow, error) {
	q := `SELECT a.id, a.session_id, a.member_id, a.present, a.created_at FROM attendance a`
	var (
		where []string
		args  []any
	)
	if f.From != nil || f.To != nil {
		q += ` JOIN sessions s ON s.id = a.session_id`
		w, a := sessionRange("s.session_date", f.From, f.To)
		where = append(where, w)
		args = append(args, a...)
	}
	if f.MemberID != 0 {
		where = append(where, "a.member_id = ?")
		args = append(args, f.MemberID)
	}
	if f.SessionID != 0 {
		where = append(where, "a.session_id = ?")
		args = append(args, f.SessionID)
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += ` ORDER BY a.id`

	rows, err := r.conn().query(ctx, q, args...)
	if err != nil {
		return nil, core.Upstream("list attendance", err)
	}
	defer rows.Close()
	var out []core.AttendanceRow
	for rows.Next() {
		var (
			a       core.AttendanceRow
			created string
		)
		if err := rows.Scan(&a.ID, &a.SessionID, &a.MemberID, &a.Present, &created); err != nil {
			return nil, core.Upstream("scan attendance", err)
		}
		if a.CreatedAt, err = parseTime(created); err != nil {
			return nil, core.Upstream("scan attendance", err)
		}
		out = append(out, a)
	}
	return out, core.Upstream("list attendance", rows.Err())
}

// SetAttendance upserts the presence flags of a session in one transaction.
// The timestamp of an existing row only moves when its flag changes.
func (r *Repository) SetAttendance(ctx context.Context, sessionID int64, present map[int64]bool) error {
	now := timeArg(r.now())
	err := r.withTx(ctx, func(c conn) error {
		var one int
		if err := c.queryRow(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&one); err != nil {
			return notFoundOr(err, "session", sessionID)
		}
		for memberID, p := range present {
			res, err := c.exec(ctx, `UPDATE attendance SET present = ?, created_at = ? WHERE session_id = ? AND member_id = ? AND present <> ?`,
				p, now, sessionID, memberID, p)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				continue
			}
			var exists int
			if err := c.queryRow(ctx, `SELECT COUNT(*) FROM attendance WHERE session_id = ? AND member_id = ?`, sessionID, memberID).Scan(&exists); err != nil {
				return err
			}
			if exists > 0 {
				continue
			}
			if err := c.queryRow(ctx, `SELECT 1 FROM members WHERE id = ?`, memberID).Scan(&one); err != nil {
				return notFoundOr(err, "member", memberID)
			}
			if _, err := c.exec(ctx, `INSERT INTO attendance (session_id, member_id, present, created_at) VALUES (?, ?, ?, ?)`,
				sessionID, memberID, p, now); err != nil {
				return err
			}
		}
		return nil
	})
	return core.Upstream("set attendance", err)
}
