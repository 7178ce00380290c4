package storage

import (
	"context"
	"database/sql"

	"lodge/internal/core"
)

func (r *Repository) CreatePoll(ctx context.Context, p core.Poll) (int64, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = r.now()
	}
	var id int64
	err := r.withTx(ctx, func(c conn) error {
		var err error
		id, err = c.insert(ctx, `INSERT INTO polls (title, description, closes_at, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
			p.Title, p.Description, optTimeArg(p.ClosesAt), p.CreatedBy, timeArg(p.CreatedAt))
		if err != nil {
			return err
		}
		for _, o := range p.Options {
			if _, err := c.exec(ctx, `INSERT INTO poll_options (poll_id, label) VALUES (?, ?)`, id, o.Label); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, core.Upstream("create poll", err)
	}
	return id, nil
}

func scanPoll(sc interface{ Scan(...any) error }) (core.Poll, error) {
	var (
		p       core.Poll
		closes  sql.NullString
		created string
	)
	if err := sc.Scan(&p.ID, &p.Title, &p.Description, &closes, &p.CreatedBy, &created); err != nil {
		return p, err
	}
	var err error
	if p.ClosesAt, err = scanOptTime(closes); err != nil {
		return p, err
	}
	p.CreatedAt, err = parseTime(created)
	return p, err
}

func (r *Repository) loadOptions(ctx context.Context, polls []core.Poll) error {
	idx := make(map[int64]int, len(polls))
	for i, p := range polls {
		idx[p.ID] = i
	}
	rows, err := r.conn().query(ctx, `SELECT id, poll_id, label FROM poll_options ORDER BY id`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var o core.PollOption
		if err := rows.Scan(&o.ID, &o.PollID, &o.Label); err != nil {
			return err
		}
		if i, ok := idx[o.PollID]; ok {
			polls[i].Options = append(polls[i].Options, o)
		}
	}
	return rows.Err()
}

func (r *Repository) GetPoll(ctx context.Context, id int64) (core.Poll, error) {
	p, err := scanPoll(r.conn().queryRow(ctx, `SELECT id, title, description, closes_at, created_by, created_at FROM polls WHERE id = ?`, id))
	if err != nil {
		return core.Poll{}, core.Upstream("get poll", notFoundOr(err, "poll", id))
	}
	ps := []core.Poll{p}
	if err := r.loadOptions(ctx, ps); err != nil {
		return core.Poll{}, core.Upstream("get poll options", err)
	}
	return ps[0], nil
}

func (r *Repository) ListPolls(ctx context.Context) ([]core.Poll, error) {
	rows, err := r.conn().query(ctx, `SELECT id, title, description, closes_at, created_by, created_at FROM polls ORDER BY id DESC`)
	if err != nil {
		return nil, core.Upstream("list polls", err)
	}
	defer rows.Close()
	var out []core.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, core.Upstream("scan poll", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Upstream("list polls", err)
	}
	if err := r.loadOptions(ctx, out); err != nil {
		return nil, core.Upstream("list poll options", err)
	}
	return out, nil
}

// CastVote records the member's vote, replacing an earlier one on the same poll.
func (r *Repository) CastVote(ctx context.Context, v core.Vote) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = r.now()
	}
	err := r.withTx(ctx, func(c conn) error {
		if _, err := c.exec(ctx, `DELETE FROM votes WHERE poll_id = ? AND member_id = ?`, v.PollID, v.MemberID); err != nil {
			return err
		}
		_, err := c.exec(ctx, `INSERT INTO votes (poll_id, option_id, member_id, created_at) VALUES (?, ?, ?, ?)`,
			v.PollID, v.OptionID, v.MemberID, timeArg(v.CreatedAt))
		return err
	})
	return core.Upstream("cast vote", err)
}

func (r *Repository) ListVotes(ctx context.Context, pollID int64) ([]core.Vote, error) {
	rows, err := r.conn().query(ctx, `SELECT id, poll_id, option_id, member_id, created_at FROM votes WHERE poll_id = ? ORDER BY id`, pollID)
	if err != nil {
		return nil, core.Upstream("list votes", err)
	}
	defer rows.Close()
	var out []core.Vote
	for rows.Next() {
		var (
			v       core.Vote
			created string
		)
		if err := rows.Scan(&v.ID, &v.PollID, &v.OptionID, &v.MemberID, &created); err != nil {
			return nil, core.Upstream("scan vote", err)
		}
		if v.CreatedAt, err = parseTime(created); err != nil {
			return nil, core.Upstream("scan vote", err)
		}
		out = append(out, v)
	}
	return out, core.Upstream("list votes", rows.Err())
}
