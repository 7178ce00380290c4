// Package ports declares the outbound interfaces the services depend on.
// Every backend (in-memory, SQLite, PostgreSQL) implements all of them.
package ports

import (
	"context"
	"time"

	"lodge/internal/core"
)

type (
	ListMembersFilter struct {
		ActiveOnly bool
	}

	SessionFilter struct {
		From *core.Date
		To   *core.Date
	}

	AttendanceFilter struct {
		MemberID  int64
		SessionID int64
		From      *core.Date
		To        *core.Date
	}

	DuesFilter struct {
		MemberID int64
		Year     int
		Month    int
		Status   core.DuesStatus
	}

	CashFilter struct {
		Month int
		Year  int
	}

	// Capabilities is the outcome of a single role lookup.
	Capabilities struct {
		Admin bool
	}
)

// Ports for outbound adapters.
type (
	MemberStore interface {
		ListMembers(ctx context.Context, f ListMembersFilter) ([]core.Member, error)
		GetMember(ctx context.Context, id int64) (core.Member, error)
		CreateMember(ctx context.Context, m core.Member) (int64, error)
		UpdateMember(ctx context.Context, m core.Member) error
		DeleteMember(ctx context.Context, id int64) error
	}

	SessionStore interface {
		ListSessions(ctx context.Context, f SessionFilter) ([]core.Session, error)
		CountSessions(ctx context.Context, f SessionFilter) (int, error)
		GetSession(ctx context.Context, id int64) (core.Session, error)
		CreateSession(ctx context.Context, s core.Session) (int64, error)
		UpdateSession(ctx context.Context, s core.Session) error
		DeleteSession(ctx context.Context, id int64) error
	}

	AttendanceStore interface {
		ListAttendance(ctx context.Context, f AttendanceFilter) ([]core.AttendanceRow, error)
		// SetAttendance upserts one presence flag per member for the session.
		SetAttendance(ctx context.Context, sessionID int64, present map[int64]bool) error
	}

	DuesStore interface {
		ListDues(ctx context.Context, f DuesFilter) ([]core.Dues, error)
		// InsertDuesBatch inserts all rows or none. Rows colliding with an
		// existing (member, month, year) fail the batch with
		// *core.DuplicateRecordError.
		InsertDuesBatch(ctx context.Context, rows []core.Dues) ([]int64, error)
		// InsertDuesWithIncomes is InsertDuesBatch plus the cash incomes that
		// settle the rows, written in the same transaction.
		InsertDuesWithIncomes(ctx context.Context, rows []core.Dues, incomes []core.CashMovement) (duesIDs, movementIDs []int64, err error)
		GetDues(ctx context.Context, id int64) (core.Dues, error)
		// MarkPaid flips a row that is not yet paid and appends income in the
		// same transaction. A row already paid fails with *core.ValidationError
		// and nothing is written.
		MarkPaid(ctx context.Context, id int64, paidAt time.Time, income core.CashMovement) (core.Dues, int64, error)
		// MarkOverdue flips pending rows due before asOf to overdue.
		MarkOverdue(ctx context.Context, asOf core.Date) (int, error)
	}

	CashStore interface {
		ListMovements(ctx context.Context, f CashFilter) ([]core.CashMovement, error)
		InsertMovement(ctx context.Context, c core.CashMovement) (int64, error)
	}

	// FeeSource is the single authority on the monthly fee.
	FeeSource interface {
		CurrentMonthlyFee(ctx context.Context, now time.Time) (core.Money, error)
	}

	RoleLookup interface {
		Capabilities(ctx context.Context, memberID int64) (Capabilities, error)
	}

	PollStore interface {
		CreatePoll(ctx context.Context, p core.Poll) (int64, error)
		GetPoll(ctx context.Context, id int64) (core.Poll, error)
		ListPolls(ctx context.Context) ([]core.Poll, error)
		CastVote(ctx context.Context, v core.Vote) error
		ListVotes(ctx context.Context, pollID int64) ([]core.Vote, error)
	}

	// Backend is implemented by every persistence adapter.
	Backend interface {
		MemberStore
		SessionStore
		AttendanceStore
		DuesStore
		CashStore
		FeeSource
		RoleLookup
		PollStore
	}
)
