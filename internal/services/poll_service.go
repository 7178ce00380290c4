package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lodge/internal/core"
	"lodge/internal/ports"
)

type PollRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	Options     []string   `json:"options" validate:"required,min=2,max=20,dive,required,max=200"`
	ClosesAt    *time.Time `json:"closes_at"`
}

type VoteRequest struct {
	OptionID int64 `json:"option_id" validate:"required,gt=0"`
}

type PollService struct {
	store ports.PollStore
	auth  *Authorizer
	now   func() time.Time
}

func NewPollService(store ports.PollStore, auth *Authorizer) *PollService {
	return &PollService{store: store, auth: auth, now: time.Now}
}

func (s *PollService) Create(ctx context.Context, actor int64, req PollRequest) (core.Poll, error) {
	if err := validateRequest(req); err != nil {
		return core.Poll{}, err
	}
	p := core.Poll{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		ClosesAt:    req.ClosesAt,
		CreatedBy:   actor,
	}
	for _, label := range req.Options {
		p.Options = append(p.Options, core.PollOption{Label: strings.TrimSpace(label)})
	}
	if err := p.Validate(); err != nil {
		return core.Poll{}, err
	}
	if p.ClosesAt != nil && !p.ClosesAt.After(s.now()) {
		return core.Poll{}, &core.ValidationError{Field: "closes_at", Reason: "must be in the future"}
	}
	if err := s.auth.RequireAdmin(ctx, actor, "create poll"); err != nil {
		return core.Poll{}, err
	}
	id, err := s.store.CreatePoll(ctx, p)
	if err != nil {
		return core.Poll{}, core.Upstream("create poll", err)
	}
	slog.InfoContext(ctx, "Poll created", "poll_id", id, "options", len(p.Options))
	return s.Get(ctx, id)
}

func (s *PollService) Get(ctx context.Context, id int64) (core.Poll, error) {
	p, err := s.store.GetPoll(ctx, id)
	if err != nil {
		return core.Poll{}, core.Upstream("get poll", err)
	}
	return p, nil
}

func (s *PollService) List(ctx context.Context) ([]core.Poll, error) {
	ps, err := s.store.ListPolls(ctx)
	if err != nil {
		return nil, core.Upstream("list polls", err)
	}
	return ps, nil
}

// Vote records the member's choice, replacing any earlier one.
func (s *PollService) Vote(ctx context.Context, member, pollID int64, req VoteRequest) error {
	if member <= 0 {
		return &core.NotAuthorizedError{MemberID: member, Action: "vote"}
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	p, err := s.Get(ctx, pollID)
	if err != nil {
		return err
	}
	now := s.now()
	if !p.Open(now) {
		return &core.ValidationError{Field: "poll", Reason: "poll is closed"}
	}
	if !p.HasOption(req.OptionID) {
		return &core.ValidationError{Field: "option_id", Reason: fmt.Sprintf("option %d does not belong to poll %d", req.OptionID, pollID)}
	}
	err = s.store.CastVote(ctx, core.Vote{PollID: pollID, OptionID: req.OptionID, MemberID: member, CreatedAt: now})
	if err != nil {
		return core.Upstream("cast vote", err)
	}
	slog.InfoContext(ctx, "Vote cast", "poll_id", pollID, "member_id", member)
	return nil
}

func (s *PollService) Results(ctx context.Context, pollID int64) (core.PollResult, error) {
	p, err := s.Get(ctx, pollID)
	if err != nil {
		return core.PollResult{}, err
	}
	votes, err := s.store.ListVotes(ctx, pollID)
	if err != nil {
		return core.PollResult{}, core.Upstream("list votes", err)
	}
	return core.TallyPoll(p, votes), nil
}
