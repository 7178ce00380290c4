package http

import (
	"net/http"

	"lodge/internal/services"
)

func (s *Server) handleListPolls(w http.ResponseWriter, r *http.Request) {
	ps, err := s.svc.Polls.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.polls(ps))
}

func (s *Server) handleCreatePoll(w http.ResponseWriter, r *http.Request) {
	var req services.PollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Description = sanitizeInput(req.Description)
	p, err := s.svc.Polls.Create(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/polls/"+itoa(p.ID)).
		Body(s.poll(p)).
		Write(w)
}

// handlePollResults returns the poll together with its current tally.
func (s *Server) handlePollResults(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Polls.Results(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pollResult(res))
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req services.VoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Polls.Vote(r.Context(), actor(r), id, req); err != nil {
		writeError(w, r, err)
		return
	}
	s.appMetrics.votes.Add(1)
	res, err := s.svc.Polls.Results(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.pollResult(res))
}
