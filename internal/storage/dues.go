package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lodge/internal/core"
	"lodge/internal/ports"
)

const duesColumns = `id, member_id, month, year, amount_cents, status, due_date, paid_at`

func scanDues(sc interface{ Scan(...any) error }) (core.Dues, error) {
	var (
		d           core.Dues
		status      string
		due, paidAt sql.NullString
	)
	if err := sc.Scan(&d.ID, &d.MemberID, &d.Month, &d.Year, &d.Amount.Cents, &status, &due, &paidAt); err != nil {
		return d, err
	}
	d.Status = core.DuesStatus(status)
	var err error
	if d.DueDate, err = scanDate(due); err != nil {
		return d, err
	}
	d.PaidAt, err = scanOptTime(paidAt)
	return d, err
}

func (r *Repository) ListDues(ctx context.Context, f ports.DuesFilter) ([]core.Dues, error) {
	var (
		where []string
		args  []any
	)
	if f.MemberID != 0 {
		where = append(where, "member_id = ?")
		args = append(args, f.MemberID)
	}
	if f.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, f.Year)
	}
	if f.Month != 0 {
		where = append(where, "month = ?")
		args = append(args, f.Month)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + duesColumns + ` FROM dues`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += ` ORDER BY member_id, year, month`

	rows, err := r.conn().query(ctx, q, args...)
	if err != nil {
		return nil, core.Upstream("list dues", err)
	}
	defer rows.Close()
	var out []core.Dues
	for rows.Next() {
		d, err := scanDues(rows)
		if err != nil {
			return nil, core.Upstream("scan dues", err)
		}
		out = append(out, d)
	}
	return out, core.Upstream("list dues", rows.Err())
}

type duesKey struct {
	member int64
	year   int
}

// InsertDuesBatch checks every (member, year) of the batch for existing
// months and inserts the rows in the same transaction. Any collision rolls
// the whole batch back.
func (r *Repository) InsertDuesBatch(ctx context.Context, rows []core.Dues) ([]int64, error) {
	ids, _, err := r.InsertDuesWithIncomes(ctx, rows, nil)
	return ids, err
}

// InsertDuesWithIncomes writes rows and the incomes settling them in one
// transaction; a failure on either side rolls back both.
func (r *Repository) InsertDuesWithIncomes(ctx context.Context, rows []core.Dues, incomes []core.CashMovement) ([]int64, []int64, error) {
	requested := make(map[duesKey][]int)
	var order []duesKey
	for _, d := range rows {
		k := duesKey{d.MemberID, d.Year}
		if _, ok := requested[k]; !ok {
			order = append(order, k)
		}
		for _, m := range requested[k] {
			if m == d.Month {
				return nil, nil, &core.DuplicateRecordError{MemberID: d.MemberID, Year: d.Year, Months: []int{d.Month}}
			}
		}
		requested[k] = append(requested[k], d.Month)
	}

	ids := make([]int64, 0, len(rows))
	var mvIDs []int64
	err := r.withTx(ctx, func(c conn) error {
		for _, k := range order {
			months := requested[k]
			args := []any{k.member, k.year}
			for _, m := range months {
				args = append(args, m)
			}
			existing, err := queryDues(ctx, c, `SELECT `+duesColumns+` FROM dues WHERE member_id = ? AND year = ? AND month IN `+inClause(len(months)), args...)
			if err != nil {
				return err
			}
			if colliding := core.CollidingMonths(existing, months); len(colliding) > 0 {
				return &core.DuplicateRecordError{MemberID: k.member, Year: k.year, Months: colliding}
			}
		}
		for _, d := range rows {
			id, err := c.insert(ctx, `INSERT INTO dues (member_id, month, year, amount_cents, status, due_date, paid_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				d.MemberID, d.Month, d.Year, d.Amount.Cents, string(d.Status), dateArg(d.DueDate), optTimeArg(d.PaidAt))
			if err != nil {
				if r.dialect.IsUniqueViolation(err) {
					return &core.DuplicateRecordError{MemberID: d.MemberID, Year: d.Year, Months: []int{d.Month}}
				}
				return err
			}
			ids = append(ids, id)
		}
		now := r.now()
		for _, mv := range incomes {
			if mv.CreatedAt.IsZero() {
				mv.CreatedAt = now
			}
			id, err := insertMovement(ctx, c, mv)
			if err != nil {
				return fmt.Errorf("insert income %02d/%d: %w", mv.Month, mv.Year, err)
			}
			mvIDs = append(mvIDs, id)
		}
		return nil
	})
	if err != nil {
		return nil, nil, core.Upstream("insert dues batch", err)
	}
	slog.InfoContext(ctx, "Dues batch stored", "rows", len(ids), "incomes", len(mvIDs))
	return ids, mvIDs, nil
}

func queryDues(ctx context.Context, c conn, q string, args ...any) ([]core.Dues, error) {
	rows, err := c.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []core.Dues
	for rows.Next() {
		d, err := scanDues(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) GetDues(ctx context.Context, id int64) (core.Dues, error) {
	d, err := scanDues(r.conn().queryRow(ctx, `SELECT `+duesColumns+` FROM dues WHERE id = ?`, id))
	if err != nil {
		return core.Dues{}, core.Upstream("get dues", notFoundOr(err, "dues", id))
	}
	return d, nil
}

// MarkPaid flips the row only while it is unpaid, so of two concurrent
// payments exactly one updates a row and records income.
func (r *Repository) MarkPaid(ctx context.Context, id int64, paidAt time.Time, income core.CashMovement) (core.Dues, int64, error) {
	var (
		d    core.Dues
		mvID int64
	)
	err := r.withTx(ctx, func(c conn) error {
		res, err := c.exec(ctx, `UPDATE dues SET status = ?, paid_at = ? WHERE id = ? AND status <> ?`,
			string(core.DuesPaid), timeArg(paidAt), id, string(core.DuesPaid))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		d, err = scanDues(c.queryRow(ctx, `SELECT `+duesColumns+` FROM dues WHERE id = ?`, id))
		if err != nil {
			return notFoundOr(err, "dues", id)
		}
		if n == 0 {
			return core.AlreadyPaid(id)
		}
		if income.CreatedAt.IsZero() {
			income.CreatedAt = r.now()
		}
		mvID, err = insertMovement(ctx, c, income)
		return err
	})
	if err != nil {
		return core.Dues{}, 0, core.Upstream("mark dues paid", err)
	}
	return d, mvID, nil
}

func (r *Repository) MarkOverdue(ctx context.Context, asOf core.Date) (int, error) {
	res, err := r.conn().exec(ctx, `UPDATE dues SET status = ? WHERE status = ? AND due_date IS NOT NULL AND due_date < ?`,
		string(core.DuesOverdue), string(core.DuesPending), dateArg(asOf))
	if err != nil {
		return 0, core.Upstream("mark overdue", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, core.Upstream("mark overdue", err)
	}
	return int(n), nil
}

// AddFeePolicy stores a fee rule; the latest effective one applies.
func (r *Repository) AddFeePolicy(ctx context.Context, p core.FeePolicy) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	id, err := r.conn().insert(ctx, `INSERT INTO fee_policies (effective_from, base_cents, monthly_budget_cents) VALUES (?, ?, ?)`,
		dateArg(p.EffectiveFrom), p.Base.Cents, p.MonthlyBudget.Cents)
	if err != nil {
		return 0, core.Upstream("add fee policy", err)
	}
	return id, nil
}

func (r *Repository) CurrentMonthlyFee(ctx context.Context, now time.Time) (core.Money, error) {
	var (
		p   core.FeePolicy
		eff sql.NullString
	)
	err := r.conn().queryRow(ctx, `SELECT id, effective_from, base_cents, monthly_budget_cents FROM fee_policies
		WHERE effective_from <= ? ORDER BY effective_from DESC, id DESC LIMIT 1`, dateArg(core.DateOf(now))).
		Scan(&p.ID, &eff, &p.Base.Cents, &p.MonthlyBudget.Cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, fmt.Errorf("fee policy at %s: %w", core.DateOf(now), core.ErrNotFound)
	}
	if err != nil {
		return core.Money{}, core.Upstream("current monthly fee", err)
	}
	var active int
	if err := r.conn().queryRow(ctx, `SELECT COUNT(*) FROM members WHERE active = ?`, true).Scan(&active); err != nil {
		return core.Money{}, core.Upstream("count active members", err)
	}
	return p.MonthlyFee(active), nil
}
