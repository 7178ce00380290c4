package services

import (
	"context"
	"log/slog"

	"lodge/internal/amqp"
	"lodge/internal/core"
	"lodge/internal/ports"
)

// CashMovementRequest is the input of a manual ledger entry. Amount is a
// decimal string such as "120.50" or "120,50".
type CashMovementRequest struct {
	Type        core.MovementType `json:"type" validate:"required,oneof=income expense"`
	Category    core.Category     `json:"category" validate:"required,oneof=monthly_fee solidarity_fund other expense"`
	Amount      string            `json:"amount" validate:"required"`
	Month       int               `json:"month" validate:"required,min=1,max=12"`
	Year        int               `json:"year" validate:"required,gte=1900,lte=9999"`
	Description string            `json:"description" validate:"max=200"`
	Recurring   bool              `json:"recurring"`
}

type CashService struct {
	store     ports.CashStore
	auth      *Authorizer
	publisher Publisher
}

func NewCashService(store ports.CashStore, auth *Authorizer, publisher Publisher) *CashService {
	return &CashService{store: store, auth: auth, publisher: publisher}
}

// Record appends one movement to the ledger.
func (s *CashService) Record(ctx context.Context, actor int64, req CashMovementRequest) (core.CashMovement, error) {
	if err := validateRequest(req); err != nil {
		return core.CashMovement{}, err
	}
	amount, err := core.ParseMoney("amount", req.Amount)
	if err != nil {
		return core.CashMovement{}, err
	}
	mv := core.CashMovement{
		Type:        req.Type,
		Category:    req.Category,
		Amount:      amount,
		Month:       req.Month,
		Year:        req.Year,
		Description: req.Description,
		Recurring:   req.Recurring,
	}
	if err := mv.Validate(); err != nil {
		return core.CashMovement{}, err
	}
	if err := s.auth.RequireAdmin(ctx, actor, "record cash movement"); err != nil {
		return core.CashMovement{}, err
	}

	id, err := s.store.InsertMovement(ctx, mv)
	if err != nil {
		return core.CashMovement{}, core.Upstream("insert cash movement", err)
	}
	mv.ID = id

	slog.InfoContext(ctx, "Cash movement recorded",
		"id", id,
		"type", mv.Type,
		"category", mv.Category,
		"amount_cents", mv.Amount.Cents,
		"month", mv.Month,
		"year", mv.Year)

	publishEvent(ctx, s.publisher, amqp.KindCashRecorded, amqp.CashRecordedPayload{
		MovementID:  id,
		Type:        string(mv.Type),
		Category:    string(mv.Category),
		AmountCents: mv.Amount.Cents,
		Month:       mv.Month,
		Year:        mv.Year,
	})
	return mv, nil
}

// Balance aggregates the movements of one month.
func (s *CashService) Balance(ctx context.Context, month, year int) (core.CashBalance, error) {
	if !core.ValidMonth(month) {
		return core.CashBalance{}, &core.ValidationError{Field: "month", Reason: "must be in 1..12"}
	}
	mvs, err := s.store.ListMovements(ctx, ports.CashFilter{Month: month, Year: year})
	if err != nil {
		return core.CashBalance{}, core.Upstream("list cash movements", err)
	}
	return core.ComputeBalance(month, year, mvs), nil
}

// YearBalances returns twelve monthly balances with a running total.
func (s *CashService) YearBalances(ctx context.Context, year int) ([]core.CashBalance, error) {
	mvs, err := s.store.ListMovements(ctx, ports.CashFilter{Year: year})
	if err != nil {
		return nil, core.Upstream("list cash movements", err)
	}
	return core.YearBalances(year, mvs), nil
}

// Movements lists the raw ledger entries of a period.
func (s *CashService) Movements(ctx context.Context, f ports.CashFilter) ([]core.CashMovement, error) {
	mvs, err := s.store.ListMovements(ctx, f)
	if err != nil {
		return nil, core.Upstream("list cash movements", err)
	}
	return mvs, nil
}
