package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"lodge/internal/amqp"
	"lodge/internal/core"
	"lodge/internal/ports"
)

// DefaultDueDay is the day of the month dues fall due when a batch does not
// name one.
const DefaultDueDay = 10

// DuesBatchRequest creates one dues row per month for a member and year.
// The amount always comes from the fee source.
type DuesBatchRequest struct {
	MemberID int64           `json:"member_id" validate:"required,gt=0"`
	Months   []int           `json:"months" validate:"required,min=1,max=12,unique,dive,min=1,max=12"`
	Year     int             `json:"year" validate:"required,gte=1900,lte=9999"`
	Status   core.DuesStatus `json:"status" validate:"required,oneof=pending paid overdue"`
	DueDay   int             `json:"due_day" validate:"omitempty,min=1,max=31"`
	PaidAt   *time.Time      `json:"paid_at"`
}

// DuesBatchResult reports what a batch inserted.
type DuesBatchResult struct {
	DuesIDs     []int64
	MovementIDs []int64
	Fee         core.Money
}

type DuesService struct {
	store     ports.Backend
	auth      *Authorizer
	publisher Publisher
	dueDay    int
	now       func() time.Time
	inflight  singleflight.Group
}

func NewDuesService(store ports.Backend, auth *Authorizer, publisher Publisher, dueDay int) *DuesService {
	if dueDay <= 0 {
		dueDay = DefaultDueDay
	}
	return &DuesService{
		store:     store,
		auth:      auth,
		publisher: publisher,
		dueDay:    dueDay,
		now:       time.Now,
	}
}

// CreateBatch inserts every requested month or none. A concurrent identical
// submission shares the result of the one already in flight. The shared
// write ignores the first caller's cancellation.
func (s *DuesService) CreateBatch(ctx context.Context, actor int64, req DuesBatchRequest) (DuesBatchResult, error) {
	if err := validateRequest(req); err != nil {
		return DuesBatchResult{}, err
	}
	v, err, shared := s.inflight.Do(batchKey(actor, req), func() (any, error) {
		return s.createBatch(context.WithoutCancel(ctx), actor, req)
	})
	if shared {
		slog.DebugContext(ctx, "Collapsed concurrent dues submission",
			"member_id", req.MemberID, "year", req.Year)
	}
	if err != nil {
		return DuesBatchResult{}, err
	}
	return v.(DuesBatchResult), nil
}

func (s *DuesService) createBatch(ctx context.Context, actor int64, req DuesBatchRequest) (DuesBatchResult, error) {
	if err := s.auth.RequireAdmin(ctx, actor, "create dues"); err != nil {
		return DuesBatchResult{}, err
	}

	now := s.now()
	fee, err := s.store.CurrentMonthlyFee(ctx, now)
	if err != nil {
		return DuesBatchResult{}, core.Upstream("current monthly fee", err)
	}

	var paidAt *time.Time
	if req.Status == core.DuesPaid {
		t := now
		if req.PaidAt != nil {
			t = *req.PaidAt
		}
		paidAt = &t
	}
	dueDay := req.DueDay
	if dueDay == 0 {
		dueDay = s.dueDay
	}

	rows := make([]core.Dues, 0, len(req.Months))
	for _, m := range req.Months {
		d := core.Dues{
			MemberID: req.MemberID,
			Month:    m,
			Year:     req.Year,
			Amount:   fee,
			Status:   req.Status,
			DueDate:  core.DueDateFor(req.Year, m, dueDay),
			PaidAt:   paidAt,
		}
		if err := d.Validate(); err != nil {
			return DuesBatchResult{}, err
		}
		rows = append(rows, d)
	}

	var incomes []core.CashMovement
	if req.Status == core.DuesPaid {
		for _, m := range req.Months {
			incomes = append(incomes, feeIncome(req.MemberID, m, req.Year, fee))
		}
	}
	ids, mvIDs, err := s.store.InsertDuesWithIncomes(ctx, rows, incomes)
	if err != nil {
		return DuesBatchResult{}, core.Upstream("insert dues batch", err)
	}
	res := DuesBatchResult{DuesIDs: ids, MovementIDs: mvIDs, Fee: fee}

	slog.InfoContext(ctx, "Dues batch created",
		"member_id", req.MemberID,
		"year", req.Year,
		"months", req.Months,
		"status", req.Status,
		"amount_cents", fee.Cents)

	publishEvent(ctx, s.publisher, amqp.KindDuesCreated, amqp.DuesCreatedPayload{
		MemberID:    req.MemberID,
		Year:        req.Year,
		Months:      req.Months,
		Status:      string(req.Status),
		AmountCents: fee.Cents,
		DuesIDs:     ids,
	})
	for i, id := range mvIDs {
		s.publishIncome(ctx, id, incomes[i])
	}
	return res, nil
}

// MarkPaid settles one dues row and records its amount as monthly-fee
// income in the same write. Concurrent calls for one row collapse; a row
// already paid is rejected without recording anything.
func (s *DuesService) MarkPaid(ctx context.Context, actor, duesID int64, paidAt *time.Time) (core.Dues, error) {
	if err := s.auth.RequireAdmin(ctx, actor, "mark dues paid"); err != nil {
		return core.Dues{}, err
	}
	t := s.now()
	if paidAt != nil {
		t = *paidAt
	}
	v, err, _ := s.inflight.Do(fmt.Sprintf("pay:%d", duesID), func() (any, error) {
		return s.markPaid(context.WithoutCancel(ctx), duesID, t)
	})
	if err != nil {
		return core.Dues{}, err
	}
	return v.(core.Dues), nil
}

func (s *DuesService) markPaid(ctx context.Context, duesID int64, paidAt time.Time) (core.Dues, error) {
	before, err := s.store.GetDues(ctx, duesID)
	if err != nil {
		return core.Dues{}, core.Upstream("get dues", err)
	}
	if before.Status == core.DuesPaid {
		return core.Dues{}, core.AlreadyPaid(duesID)
	}
	income := feeIncome(before.MemberID, before.Month, before.Year, before.Amount)
	d, mvID, err := s.store.MarkPaid(ctx, duesID, paidAt, income)
	if err != nil {
		return core.Dues{}, core.Upstream("mark dues paid", err)
	}
	s.publishIncome(ctx, mvID, income)
	slog.InfoContext(ctx, "Dues marked paid", "dues_id", d.ID, "member_id", d.MemberID, "month", d.Month, "year", d.Year)
	return d, nil
}

// List returns dues rows matching f.
func (s *DuesService) List(ctx context.Context, f ports.DuesFilter) ([]core.Dues, error) {
	rows, err := s.store.ListDues(ctx, f)
	if err != nil {
		return nil, core.Upstream("list dues", err)
	}
	return rows, nil
}

// Grid returns a member's twelve month cells for year.
func (s *DuesService) Grid(ctx context.Context, memberID int64, year int) ([12]core.MonthCell, error) {
	rows, err := s.store.ListDues(ctx, ports.DuesFilter{MemberID: memberID, Year: year})
	if err != nil {
		return [12]core.MonthCell{}, core.Upstream("list dues", err)
	}
	return core.MonthGrid(rows, memberID, year), nil
}

// CurrentFee exposes the fee the next batch would use.
func (s *DuesService) CurrentFee(ctx context.Context) (core.Money, error) {
	fee, err := s.store.CurrentMonthlyFee(ctx, s.now())
	if err != nil {
		return core.Money{}, core.Upstream("current monthly fee", err)
	}
	return fee, nil
}

func feeIncome(memberID int64, month, year int, amount core.Money) core.CashMovement {
	return core.CashMovement{
		Type:        core.Income,
		Category:    core.MonthlyFee,
		Amount:      amount,
		Month:       month,
		Year:        year,
		Description: fmt.Sprintf("Monthly fee %02d/%d member %d", month, year, memberID),
	}
}

func (s *DuesService) publishIncome(ctx context.Context, id int64, mv core.CashMovement) {
	publishEvent(ctx, s.publisher, amqp.KindCashRecorded, amqp.CashRecordedPayload{
		MovementID:  id,
		Type:        string(mv.Type),
		Category:    string(mv.Category),
		AmountCents: mv.Amount.Cents,
		Month:       mv.Month,
		Year:        mv.Year,
	})
}

func batchKey(actor int64, req DuesBatchRequest) string {
	months := append([]int(nil), req.Months...)
	sort.Ints(months)
	parts := make([]string, len(months))
	for i, m := range months {
		parts[i] = strconv.Itoa(m)
	}
	return fmt.Sprintf("%d:%d:%d:%s:%s", actor, req.MemberID, req.Year, req.Status, strings.Join(parts, ","))
}
