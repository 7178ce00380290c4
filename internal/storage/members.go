package storage

import (
	"context"
	"database/sql"

	"lodge/internal/core"
	"lodge/internal/ports"
)

const memberColumns = `id, name, email, degree, profession, birth_date, phone, higher_degree, initiation_date, active, created_at`

func scanMember(sc interface{ Scan(...any) error }) (core.Member, error) {
	var (
		m                    core.Member
		birth, init, created sql.NullString
		higher               sql.NullInt64
		degree               string
	)
	if err := sc.Scan(&m.ID, &m.Name, &m.Email, &degree, &m.Profession, &birth, &m.Phone, &higher, &init, &m.Active, &created); err != nil {
		return m, err
	}
	m.Degree = core.Degree(degree)
	var err error
	if m.BirthDate, err = scanDate(birth); err != nil {
		return m, err
	}
	if m.InitiationDate, err = scanOptDate(init); err != nil {
		return m, err
	}
	if higher.Valid {
		h := int(higher.Int64)
		m.HigherDegree = &h
	}
	if created.Valid {
		if m.CreatedAt, err = parseTime(created.String); err != nil {
			return m, err
		}
	}
	return m, nil
}

func higherArg(h *int) any {
	if h == nil {
		return nil
	}
	return *h
}

func (r *Repository) ListMembers(ctx context.Context, f ports.ListMembersFilter) ([]core.Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members`
	if f.ActiveOnly {
		q += ` WHERE active = ?`
	}
	q += ` ORDER BY name, id`
	var args []any
	if f.ActiveOnly {
		args = append(args, true)
	}
	rows, err := r.conn().query(ctx, q, args...)
	if err != nil {
		return nil, core.Upstream("list members", err)
	}
	defer rows.Close()

	var out []core.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, core.Upstream("scan member", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Upstream("list members", err)
	}
	if err := r.loadRelatives(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) loadRelatives(ctx context.Context, members []core.Member) error {
	if len(members) == 0 {
		return nil
	}
	idx := make(map[int64]int, len(members))
	for i, m := range members {
		idx[m.ID] = i
	}
	rows, err := r.conn().query(ctx, `SELECT member_id, name, relationship, birth_date FROM relatives ORDER BY id`)
	if err != nil {
		return core.Upstream("list relatives", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			memberID int64
			rel      core.Relative
			birth    sql.NullString
		)
		if err := rows.Scan(&memberID, &rel.Name, &rel.Relationship, &birth); err != nil {
			return core.Upstream("scan relative", err)
		}
		i, ok := idx[memberID]
		if !ok {
			continue
		}
		if rel.BirthDate, err = scanDate(birth); err != nil {
			return core.Upstream("scan relative", err)
		}
		members[i].Relatives = append(members[i].Relatives, rel)
	}
	return core.Upstream("list relatives", rows.Err())
}

func (r *Repository) GetMember(ctx context.Context, id int64) (core.Member, error) {
	m, err := scanMember(r.conn().queryRow(ctx, `SELECT `+memberColumns+` FROM members WHERE id = ?`, id))
	if err != nil {
		return core.Member{}, core.Upstream("get member", notFoundOr(err, "member", id))
	}
	ms := []core.Member{m}
	if err := r.loadRelatives(ctx, ms); err != nil {
		return core.Member{}, err
	}
	return ms[0], nil
}

func (r *Repository) CreateMember(ctx context.Context, m core.Member) (int64, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}
	var id int64
	err := r.withTx(ctx, func(c conn) error {
		var err error
		id, err = c.insert(ctx, `INSERT INTO members (name, email, degree, profession, birth_date, phone, higher_degree, initiation_date, active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.Name, m.Email, string(m.Degree), m.Profession, dateArg(m.BirthDate), m.Phone,
			higherArg(m.HigherDegree), optDateArg(m.InitiationDate), m.Active, timeArg(m.CreatedAt))
		if err != nil {
			return err
		}
		return insertRelatives(ctx, c, id, m.Relatives)
	})
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return 0, &core.ValidationError{Field: "email", Reason: "already registered"}
		}
		return 0, core.Upstream("create member", err)
	}
	return id, nil
}

func insertRelatives(ctx context.Context, c conn, memberID int64, rels []core.Relative) error {
	for _, rel := range rels {
		if _, err := c.exec(ctx, `INSERT INTO relatives (member_id, name, relationship, birth_date) VALUES (?, ?, ?, ?)`,
			memberID, rel.Name, rel.Relationship, dateArg(rel.BirthDate)); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMember replaces the member's attributes and relatives.
func (r *Repository) UpdateMember(ctx context.Context, m core.Member) error {
	err := r.withTx(ctx, func(c conn) error {
		res, err := c.exec(ctx, `UPDATE members SET name = ?, email = ?, degree = ?, profession = ?, birth_date = ?, phone = ?,
			higher_degree = ?, initiation_date = ?, active = ? WHERE id = ?`,
			m.Name, m.Email, string(m.Degree), m.Profession, dateArg(m.BirthDate), m.Phone,
			higherArg(m.HigherDegree), optDateArg(m.InitiationDate), m.Active, m.ID)
		if err != nil {
			return err
		}
		if err := expectAffected(res, "member", m.ID); err != nil {
			return err
		}
		if _, err := c.exec(ctx, `DELETE FROM relatives WHERE member_id = ?`, m.ID); err != nil {
			return err
		}
		return insertRelatives(ctx, c, m.ID, m.Relatives)
	})
	if err != nil && r.dialect.IsUniqueViolation(err) {
		return &core.ValidationError{Field: "email", Reason: "already registered"}
	}
	return core.Upstream("update member", err)
}

func (r *Repository) DeleteMember(ctx context.Context, id int64) error {
	res, err := r.conn().exec(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return core.Upstream("delete member", err)
	}
	return core.Upstream("delete member", expectAffected(res, "member", id))
}

// GrantRole assigns a role such as "admin" to a member.
func (r *Repository) GrantRole(ctx context.Context, memberID int64, role string) error {
	var exists int
	err := r.conn().queryRow(ctx, `SELECT COUNT(*) FROM member_roles WHERE member_id = ? AND role = ?`, memberID, role).Scan(&exists)
	if err != nil {
		return core.Upstream("grant role", err)
	}
	if exists > 0 {
		return nil
	}
	_, err = r.conn().exec(ctx, `INSERT INTO member_roles (member_id, role) VALUES (?, ?)`, memberID, role)
	return core.Upstream("grant role", err)
}

func (r *Repository) Capabilities(ctx context.Context, memberID int64) (ports.Capabilities, error) {
	var n int
	err := r.conn().queryRow(ctx, `SELECT COUNT(*) FROM member_roles WHERE member_id = ? AND role = ?`, memberID, "admin").Scan(&n)
	if err != nil {
		return ports.Capabilities{}, core.Upstream("lookup roles", err)
	}
	return ports.Capabilities{Admin: n > 0}, nil
}
