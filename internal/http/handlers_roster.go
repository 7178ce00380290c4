package http

import (
	"net/http"

	"lodge/internal/core"
	"lodge/internal/ports"
)

// Members

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") != "false"
	ms, err := s.svc.Roster.ListMembers(r.Context(), activeOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.members(ms))
}

func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	m, err := s.svc.Roster.GetMember(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.member(m))
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	var in memberInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := in.toMember(0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.svc.Roster.CreateMember(r.Context(), actor(r), m)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/members/"+itoa(created.ID)).
		Body(s.member(created)).
		Write(w)
}

func (s *Server) handleUpdateMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in memberInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	m, err := in.toMember(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Roster.UpdateMember(r.Context(), actor(r), m); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateOverdue()
	writeJSON(w, http.StatusOK, s.member(m))
}

func (s *Server) handleDeleteMember(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Roster.DeleteMember(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateOverdue()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleMemberProfile(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, err := ParseYear(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := s.svc.Reports.MemberProfile(r.Context(), id, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.profile(profile))
}

// Sessions

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ss, err := s.svc.Roster.ListSessions(r.Context(), ports.SessionFilter{From: from, To: to})
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]sessionDTO, 0, len(ss))
	for _, ses := range ss {
		out = append(out, s.session(ses))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ses, err := s.svc.Roster.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session(ses))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in sessionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ses, err := in.toSession(0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.svc.Roster.CreateSession(r.Context(), actor(r), ses)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/sessions/"+itoa(created.ID)).
		Body(s.session(created)).
		Write(w)
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in sessionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	ses, err := in.toSession(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Roster.UpdateSession(r.Context(), actor(r), ses); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session(ses))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Roster.DeleteSession(r.Context(), actor(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// Attendance

func (s *Server) handleSessionAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.svc.Roster.GetSession(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	rows, err := s.svc.Roster.SessionAttendance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]attendanceDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, attendanceDTO{SessionID: row.SessionID, MemberID: row.MemberID, Present: row.Present})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSetAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in attendanceInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	present, err := in.toMap()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.svc.Roster.SetAttendance(r.Context(), actor(r), id, present); err != nil {
		writeError(w, r, err)
		return
	}
	attended := 0
	for _, p := range present {
		if p {
			attended++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"recorded":   len(present),
		"present":    attended,
	})
}

// reportPeriod reads the optional from/to bounds of attendance reports.
func reportPeriod(r *http.Request) (*core.Date, *core.Date, error) {
	q := r.URL.Query()
	from, err := QueryDate(q, "from")
	if err != nil {
		return nil, nil, err
	}
	to, err := QueryDate(q, "to")
	if err != nil {
		return nil, nil, err
	}
	return from, to, nil
}
