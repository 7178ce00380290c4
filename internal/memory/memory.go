// Package memory is an in-process backend used by tests and by the memory
// data backend. It mirrors the SQL repository's semantics.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lodge/internal/core"
	"lodge/internal/ports"
)

var _ ports.Backend = (*Store)(nil)

type Store struct {
	mu         sync.Mutex
	nextID     int64
	members    map[int64]core.Member
	admins     map[int64]bool
	sessions   map[int64]core.Session
	attendance []core.AttendanceRow
	dues       []core.Dues
	cash       []core.CashMovement
	policies   []core.FeePolicy
	polls      map[int64]core.Poll
	votes      []core.Vote
	now        func() time.Time
}

func New() *Store {
	return &Store{
		members:  make(map[int64]core.Member),
		admins:   make(map[int64]bool),
		sessions: make(map[int64]core.Session),
		polls:    make(map[int64]core.Poll),
		now:      time.Now,
	}
}

// NewWithAdmin returns a store seeded with one admin member and a base fee
// policy, as used by the memory backend on startup.
func NewWithAdmin(name, email string, baseFee core.Money) (*Store, int64) {
	s := New()
	id, _ := s.CreateMember(context.Background(), core.Member{Name: name, Email: email, Degree: core.Master, Active: true})
	s.GrantAdmin(id)
	s.AddFeePolicy(core.FeePolicy{EffectiveFrom: core.NewDate(2000, 1, 1), Base: baseFee})
	return s, id
}

// SetClock overrides the clock used for CreatedAt timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) GrantAdmin(memberID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[memberID] = true
}

func (s *Store) AddFeePolicy(p core.FeePolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	p.ID = s.nextID
	s.policies = append(s.policies, p)
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Members

func (s *Store) ListMembers(_ context.Context, f ports.ListMembersFilter) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Member, 0, len(s.members))
	for _, m := range s.members {
		if f.ActiveOnly && !m.Active {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetMember(_ context.Context, id int64) (core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[id]
	if !ok {
		return core.Member{}, fmt.Errorf("member %d: %w", id, core.ErrNotFound)
	}
	return m, nil
}

func (s *Store) CreateMember(_ context.Context, m core.Member) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	m.Relatives = append([]core.Relative(nil), m.Relatives...)
	s.members[m.ID] = m
	return m.ID, nil
}

func (s *Store) UpdateMember(_ context.Context, m core.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.members[m.ID]
	if !ok {
		return fmt.Errorf("member %d: %w", m.ID, core.ErrNotFound)
	}
	m.CreatedAt = prev.CreatedAt
	m.Relatives = append([]core.Relative(nil), m.Relatives...)
	s.members[m.ID] = m
	return nil
}

func (s *Store) DeleteMember(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[id]; !ok {
		return fmt.Errorf("member %d: %w", id, core.ErrNotFound)
	}
	delete(s.members, id)
	delete(s.admins, id)
	kept := s.attendance[:0]
	for _, a := range s.attendance {
		if a.MemberID != id {
			kept = append(kept, a)
		}
	}
	s.attendance = kept
	keptDues := s.dues[:0]
	for _, d := range s.dues {
		if d.MemberID != id {
			keptDues = append(keptDues, d)
		}
	}
	s.dues = keptDues
	keptVotes := s.votes[:0]
	for _, v := range s.votes {
		if v.MemberID != id {
			keptVotes = append(keptVotes, v)
		}
	}
	s.votes = keptVotes
	return nil
}

// Sessions

func inRange(d core.Date, from, to *core.Date) bool {
	if from != nil && d.Before(from.Time) {
		return false
	}
	if to != nil && d.After(to.Time) {
		return false
	}
	return true
}

func (s *Store) ListSessions(_ context.Context, f ports.SessionFilter) ([]core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Session
	for _, ss := range s.sessions {
		if inRange(ss.Date, f.From, f.To) {
			out = append(out, ss)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) CountSessions(ctx context.Context, f ports.SessionFilter) (int, error) {
	ss, err := s.ListSessions(ctx, f)
	return len(ss), err
}

func (s *Store) GetSession(_ context.Context, id int64) (core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.sessions[id]
	if !ok {
		return core.Session{}, fmt.Errorf("session %d: %w", id, core.ErrNotFound)
	}
	return ss, nil
}

func (s *Store) CreateSession(_ context.Context, ss core.Session) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss.ID = s.id()
	s.sessions[ss.ID] = ss
	return ss.ID, nil
}

func (s *Store) UpdateSession(_ context.Context, ss core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[ss.ID]; !ok {
		return fmt.Errorf("session %d: %w", ss.ID, core.ErrNotFound)
	}
	s.sessions[ss.ID] = ss
	return nil
}

func (s *Store) DeleteSession(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %d: %w", id, core.ErrNotFound)
	}
	delete(s.sessions, id)
	kept := s.attendance[:0]
	for _, a := range s.attendance {
		if a.SessionID != id {
			kept = append(kept, a)
		}
	}
	s.attendance = kept
	return nil
}

// Attendance

func (s *Store) ListAttendance(_ context.Context, f ports.AttendanceFilter) ([]core.AttendanceRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AttendanceRow
	for _, a := range s.attendance {
		if f.MemberID != 0 && a.MemberID != f.MemberID {
			continue
		}
		if f.SessionID != 0 && a.SessionID != f.SessionID {
			continue
		}
		if f.From != nil || f.To != nil {
			ss, ok := s.sessions[a.SessionID]
			if !ok || !inRange(ss.Date, f.From, f.To) {
				continue
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) SetAttendance(_ context.Context, sessionID int64, present map[int64]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return fmt.Errorf("session %d: %w", sessionID, core.ErrNotFound)
	}
	for memberID := range present {
		if _, ok := s.members[memberID]; !ok {
			return fmt.Errorf("member %d: %w", memberID, core.ErrNotFound)
		}
	}
	now := s.now()
	for memberID, p := range present {
		updated := false
		for i := range s.attendance {
			if s.attendance[i].SessionID == sessionID && s.attendance[i].MemberID == memberID {
				if s.attendance[i].Present != p {
					s.attendance[i].Present = p
					s.attendance[i].CreatedAt = now
				}
				updated = true
				break
			}
		}
		if !updated {
			s.attendance = append(s.attendance, core.AttendanceRow{
				ID: s.id(), SessionID: sessionID, MemberID: memberID, Present: p, CreatedAt: now,
			})
		}
	}
	return nil
}

// Dues

func (s *Store) ListDues(_ context.Context, f ports.DuesFilter) ([]core.Dues, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Dues
	for _, d := range s.dues {
		if f.MemberID != 0 && d.MemberID != f.MemberID {
			continue
		}
		if f.Year != 0 && d.Year != f.Year {
			continue
		}
		if f.Month != 0 && d.Month != f.Month {
			continue
		}
		if f.Status != "" && d.Status != f.Status {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) InsertDuesBatch(ctx context.Context, rows []core.Dues) ([]int64, error) {
	ids, _, err := s.InsertDuesWithIncomes(ctx, rows, nil)
	return ids, err
}

// InsertDuesWithIncomes checks and writes rows and incomes under one lock,
// so a rejected batch leaves neither behind.
func (s *Store) InsertDuesWithIncomes(_ context.Context, rows []core.Dues, incomes []core.CashMovement) ([]int64, []int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dup := repeatedInBatch(rows); dup != nil {
		return nil, nil, dup
	}
	for _, r := range rows {
		var existing []core.Dues
		var requested []int
		for _, d := range s.dues {
			if d.MemberID == r.MemberID && d.Year == r.Year {
				existing = append(existing, d)
			}
		}
		for _, o := range rows {
			if o.MemberID == r.MemberID && o.Year == r.Year {
				requested = append(requested, o.Month)
			}
		}
		if months := core.CollidingMonths(existing, requested); len(months) > 0 {
			return nil, nil, &core.DuplicateRecordError{MemberID: r.MemberID, Year: r.Year, Months: months}
		}
	}
	for _, c := range incomes {
		if err := c.Validate(); err != nil {
			return nil, nil, err
		}
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		r.ID = s.id()
		ids[i] = r.ID
		s.dues = append(s.dues, r)
	}
	var mvIDs []int64
	for _, c := range incomes {
		mvIDs = append(mvIDs, s.appendMovement(c))
	}
	return ids, mvIDs, nil
}

func (s *Store) GetDues(_ context.Context, id int64) (core.Dues, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.dues {
		if d.ID == id {
			return d, nil
		}
	}
	return core.Dues{}, fmt.Errorf("dues %d: %w", id, core.ErrNotFound)
}

func (s *Store) MarkPaid(_ context.Context, id int64, paidAt time.Time, income core.CashMovement) (core.Dues, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.dues {
		if s.dues[i].ID != id {
			continue
		}
		if s.dues[i].Status == core.DuesPaid {
			return s.dues[i], 0, core.AlreadyPaid(id)
		}
		if err := income.Validate(); err != nil {
			return core.Dues{}, 0, err
		}
		s.dues[i].Status = core.DuesPaid
		t := paidAt
		s.dues[i].PaidAt = &t
		return s.dues[i], s.appendMovement(income), nil
	}
	return core.Dues{}, 0, fmt.Errorf("dues %d: %w", id, core.ErrNotFound)
}

func (s *Store) MarkOverdue(_ context.Context, asOf core.Date) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.dues {
		if s.dues[i].IsPastDue(asOf) {
			s.dues[i].Status = core.DuesOverdue
			n++
		}
	}
	return n, nil
}

// Cash

func (s *Store) ListMovements(_ context.Context, f ports.CashFilter) ([]core.CashMovement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.CashMovement
	for _, c := range s.cash {
		if f.Year != 0 && c.Year != f.Year {
			continue
		}
		if f.Month != 0 && c.Month != f.Month {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) InsertMovement(_ context.Context, c core.CashMovement) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendMovement(c), nil
}

// appendMovement requires s.mu.
func (s *Store) appendMovement(c core.CashMovement) int64 {
	c.ID = s.id()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	s.cash = append(s.cash, c)
	return c.ID
}

// Fee and roles

func (s *Store) CurrentMonthlyFee(_ context.Context, now time.Time) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := core.PolicyAt(s.policies, now)
	if !ok {
		return core.Money{}, fmt.Errorf("fee policy at %s: %w", core.DateOf(now), core.ErrNotFound)
	}
	active := 0
	for _, m := range s.members {
		if m.Active {
			active++
		}
	}
	return p.MonthlyFee(active), nil
}

func (s *Store) Capabilities(_ context.Context, memberID int64) (ports.Capabilities, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ports.Capabilities{Admin: s.admins[memberID]}, nil
}

// Polls

func (s *Store) CreatePoll(_ context.Context, p core.Poll) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	opts := make([]core.PollOption, len(p.Options))
	for i, o := range p.Options {
		o.ID = s.id()
		o.PollID = p.ID
		opts[i] = o
	}
	p.Options = opts
	s.polls[p.ID] = p
	return p.ID, nil
}

func (s *Store) GetPoll(_ context.Context, id int64) (core.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.polls[id]
	if !ok {
		return core.Poll{}, fmt.Errorf("poll %d: %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListPolls(_ context.Context) ([]core.Poll, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Poll, 0, len(s.polls))
	for _, p := range s.polls {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// CastVote records or replaces the member's vote on the poll.
func (s *Store) CastVote(_ context.Context, v core.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	for i := range s.votes {
		if s.votes[i].PollID == v.PollID && s.votes[i].MemberID == v.MemberID {
			v.ID = s.votes[i].ID
			s.votes[i] = v
			return nil
		}
	}
	v.ID = s.id()
	s.votes = append(s.votes, v)
	return nil
}

func (s *Store) ListVotes(_ context.Context, pollID int64) ([]core.Vote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Vote
	for _, v := range s.votes {
		if v.PollID == pollID {
			out = append(out, v)
		}
	}
	return out, nil
}

func repeatedInBatch(rows []core.Dues) *core.DuplicateRecordError {
	type key struct {
		member int64
		year   int
		month  int
	}
	seen := make(map[key]bool, len(rows))
	for _, r := range rows {
		k := key{r.MemberID, r.Year, r.Month}
		if seen[k] {
			return &core.DuplicateRecordError{MemberID: r.MemberID, Year: r.Year, Months: []int{r.Month}}
		}
		seen[k] = true
	}
	return nil
}
