package core

import (
	"errors"
	"testing"
	"time"
)

func TestTallyPoll(t *testing.T) {
	p := Poll{ID: 1, Title: "Banquet date", Options: []PollOption{{ID: 10, PollID: 1, Label: "June"}, {ID: 11, PollID: 1, Label: "July"}}}
	t0 := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	votes := []Vote{
		{PollID: 1, OptionID: 10, MemberID: 1, CreatedAt: t0},
		{PollID: 1, OptionID: 11, MemberID: 1, CreatedAt: t0.Add(time.Hour)},
		{PollID: 1, OptionID: 11, MemberID: 2, CreatedAt: t0},
		{PollID: 1, OptionID: 10, MemberID: 3, CreatedAt: t0},
		{PollID: 1, OptionID: 99, MemberID: 4, CreatedAt: t0},
		{PollID: 2, OptionID: 10, MemberID: 5, CreatedAt: t0},
	}
	res := TallyPoll(p, votes)
	if res.TotalVotes != 3 {
		t.Fatalf("TotalVotes = %d, want 3", res.TotalVotes)
	}
	if res.Counts[0].Votes != 1 || res.Counts[1].Votes != 2 {
		t.Errorf("counts = %+v, want June 1, July 2", res.Counts)
	}

	empty := TallyPoll(p, nil)
	for _, c := range empty.Counts {
		if c.Percentage != 0 {
			t.Errorf("percentage with no votes = %v, want 0", c.Percentage)
		}
	}
}

func TestPollValidateAndOpen(t *testing.T) {
	if err := (Poll{Title: "x", Options: []PollOption{{Label: "a"}}}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("single option poll error = %v, want validation error", err)
	}
	if err := (Poll{Title: "x", Options: []PollOption{{Label: "Yes"}, {Label: "yes "}}}).Validate(); !errors.Is(err, ErrValidation) {
		t.Errorf("duplicate labels error = %v, want validation error", err)
	}
	closes := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := Poll{ClosesAt: &closes}
	if !p.Open(closes.Add(-time.Minute)) || p.Open(closes) {
		t.Error("Open() should be true before ClosesAt and false from it")
	}
}
