package storage

import (
	"context"
	"strings"

	"lodge/internal/core"
	"lodge/internal/ports"
)

func (r *Repository) ListMovements(ctx context.Context, f ports.CashFilter) ([]core.CashMovement, error) {
	var (
		where []string
		args  []any
	)
	if f.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, f.Year)
	}
	if f.Month != 0 {
		where = append(where, "month = ?")
		args = append(args, f.Month)
	}
	q := `SELECT id, movement_type, category, amount_cents, month, year, description, recurring, created_at FROM cash_movements`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += ` ORDER BY year, month, id`

	rows, err := r.conn().query(ctx, q, args...)
	if err != nil {
		return nil, core.Upstream("list cash movements", err)
	}
	defer rows.Close()
	var out []core.CashMovement
	for rows.Next() {
		var (
			c                 core.CashMovement
			typ, cat, created string
		)
		if err := rows.Scan(&c.ID, &typ, &cat, &c.Amount.Cents, &c.Month, &c.Year, &c.Description, &c.Recurring, &created); err != nil {
			return nil, core.Upstream("scan cash movement", err)
		}
		c.Type, c.Category = core.MovementType(typ), core.Category(cat)
		if c.CreatedAt, err = parseTime(created); err != nil {
			return nil, core.Upstream("scan cash movement", err)
		}
		out = append(out, c)
	}
	return out, core.Upstream("list cash movements", rows.Err())
}

func (r *Repository) InsertMovement(ctx context.Context, c core.CashMovement) (int64, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now()
	}
	id, err := insertMovement(ctx, r.conn(), c)
	if err != nil {
		return 0, core.Upstream("insert cash movement", err)
	}
	return id, nil
}

func insertMovement(ctx context.Context, c conn, mv core.CashMovement) (int64, error) {
	return c.insert(ctx, `INSERT INTO cash_movements (movement_type, category, amount_cents, month, year, description, recurring, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(mv.Type), string(mv.Category), mv.Amount.Abs().Cents, mv.Month, mv.Year, mv.Description, mv.Recurring, timeArg(mv.CreatedAt))
}
