package core

import (
	"strings"
	"time"
)

type (
	Poll struct {
		ID          int64
		Title       string
		Description string
		Options     []PollOption
		ClosesAt    *time.Time
		CreatedBy   int64
		CreatedAt   time.Time
	}

	PollOption struct {
		ID     int64
		PollID int64
		Label  string
	}

	Vote struct {
		ID        int64
		PollID    int64
		OptionID  int64
		MemberID  int64
		CreatedAt time.Time
	}

	OptionCount struct {
		Option     PollOption
		Votes      int
		Percentage float64
	}

	PollResult struct {
		Poll       Poll
		Counts     []OptionCount
		TotalVotes int
	}
)

func (p Poll) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return &ValidationError{Field: "title", Reason: "cannot be empty"}
	}
	if len(p.Options) < 2 {
		return &ValidationError{Field: "options", Reason: "a poll needs at least two options"}
	}
	seen := make(map[string]bool, len(p.Options))
	for _, o := range p.Options {
		label := strings.ToLower(strings.TrimSpace(o.Label))
		if label == "" {
			return &ValidationError{Field: "options", Reason: "option labels cannot be empty"}
		}
		if seen[label] {
			return &ValidationError{Field: "options", Reason: "option labels must be unique"}
		}
		seen[label] = true
	}
	return nil
}

// Open reports whether the poll still accepts votes at now.
func (p Poll) Open(now time.Time) bool {
	return p.ClosesAt == nil || now.Before(*p.ClosesAt)
}

// HasOption reports whether optionID belongs to the poll.
func (p Poll) HasOption(optionID int64) bool {
	for _, o := range p.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// TallyPoll counts one vote per member, keeping the latest when a member
// appears more than once. Votes for foreign polls or options are ignored.
func TallyPoll(p Poll, votes []Vote) PollResult {
	latest := make(map[int64]Vote)
	for _, v := range votes {
		if v.PollID != p.ID || !p.HasOption(v.OptionID) {
			continue
		}
		if prev, ok := latest[v.MemberID]; ok && prev.CreatedAt.After(v.CreatedAt) {
			continue
		}
		latest[v.MemberID] = v
	}
	perOption := make(map[int64]int, len(p.Options))
	for _, v := range latest {
		perOption[v.OptionID]++
	}
	res := PollResult{Poll: p, TotalVotes: len(latest), Counts: make([]OptionCount, 0, len(p.Options))}
	for _, o := range p.Options {
		n := perOption[o.ID]
		res.Counts = append(res.Counts, OptionCount{Option: o, Votes: n, Percentage: Percentage(n, res.TotalVotes)})
	}
	return res
}
