package services

import (
	"context"
	"fmt"
	"log/slog"

	"lodge/internal/core"
	"lodge/internal/ports"
)

// RosterStore is what the roster service needs from a backend.
type RosterStore interface {
	ports.MemberStore
	ports.SessionStore
	ports.AttendanceStore
}

// RosterService manages members, sessions and attendance. Reads are open
// to any member; mutations require the admin capability.
type RosterService struct {
	store RosterStore
	auth  *Authorizer
}

func NewRosterService(store RosterStore, auth *Authorizer) *RosterService {
	return &RosterService{store: store, auth: auth}
}

// Members

func (s *RosterService) ListMembers(ctx context.Context, activeOnly bool) ([]core.Member, error) {
	ms, err := s.store.ListMembers(ctx, ports.ListMembersFilter{ActiveOnly: activeOnly})
	if err != nil {
		return nil, core.Upstream("list members", err)
	}
	return ms, nil
}

func (s *RosterService) GetMember(ctx context.Context, id int64) (core.Member, error) {
	m, err := s.store.GetMember(ctx, id)
	if err != nil {
		return core.Member{}, core.Upstream("get member", err)
	}
	return m, nil
}

func (s *RosterService) CreateMember(ctx context.Context, actor int64, m core.Member) (core.Member, error) {
	if err := m.Validate(); err != nil {
		return core.Member{}, err
	}
	if err := s.auth.RequireAdmin(ctx, actor, "create member"); err != nil {
		return core.Member{}, err
	}
	id, err := s.store.CreateMember(ctx, m)
	if err != nil {
		return core.Member{}, core.Upstream("create member", err)
	}
	m.ID = id
	slog.InfoContext(ctx, "Member created", "member_id", id, "degree", m.Degree)
	return m, nil
}

func (s *RosterService) UpdateMember(ctx context.Context, actor int64, m core.Member) error {
	if m.ID <= 0 {
		return &core.ValidationError{Field: "id", Reason: "must be set"}
	}
	if err := m.Validate(); err != nil {
		return err
	}
	if err := s.auth.RequireAdmin(ctx, actor, "update member"); err != nil {
		return err
	}
	if err := s.store.UpdateMember(ctx, m); err != nil {
		return core.Upstream("update member", err)
	}
	slog.InfoContext(ctx, "Member updated", "member_id", m.ID)
	return nil
}

// DeleteMember removes a member together with their attendance, dues and votes.
func (s *RosterService) DeleteMember(ctx context.Context, actor, id int64) error {
	if err := s.auth.RequireAdmin(ctx, actor, "delete member"); err != nil {
		return err
	}
	if actor == id {
		return &core.ValidationError{Field: "id", Reason: "admins cannot delete themselves"}
	}
	if err := s.store.DeleteMember(ctx, id); err != nil {
		return core.Upstream("delete member", err)
	}
	slog.InfoContext(ctx, "Member deleted", "member_id", id)
	return nil
}

// Sessions

func (s *RosterService) ListSessions(ctx context.Context, f ports.SessionFilter) ([]core.Session, error) {
	ss, err := s.store.ListSessions(ctx, f)
	if err != nil {
		return nil, core.Upstream("list sessions", err)
	}
	return ss, nil
}

func (s *RosterService) GetSession(ctx context.Context, id int64) (core.Session, error) {
	ss, err := s.store.GetSession(ctx, id)
	if err != nil {
		return core.Session{}, core.Upstream("get session", err)
	}
	return ss, nil
}

func (s *RosterService) CreateSession(ctx context.Context, actor int64, ss core.Session) (core.Session, error) {
	if err := ss.Validate(); err != nil {
		return core.Session{}, err
	}
	if err := s.auth.RequireAdmin(ctx, actor, "create session"); err != nil {
		return core.Session{}, err
	}
	id, err := s.store.CreateSession(ctx, ss)
	if err != nil {
		return core.Session{}, core.Upstream("create session", err)
	}
	ss.ID = id
	slog.InfoContext(ctx, "Session created", "session_id", id, "date", ss.Date.String(), "type", ss.Type)
	return ss, nil
}

func (s *RosterService) UpdateSession(ctx context.Context, actor int64, ss core.Session) error {
	if ss.ID <= 0 {
		return &core.ValidationError{Field: "id", Reason: "must be set"}
	}
	if err := ss.Validate(); err != nil {
		return err
	}
	if err := s.auth.RequireAdmin(ctx, actor, "update session"); err != nil {
		return err
	}
	if err := s.store.UpdateSession(ctx, ss); err != nil {
		return core.Upstream("update session", err)
	}
	return nil
}

func (s *RosterService) DeleteSession(ctx context.Context, actor, id int64) error {
	if err := s.auth.RequireAdmin(ctx, actor, "delete session"); err != nil {
		return err
	}
	if err := s.store.DeleteSession(ctx, id); err != nil {
		return core.Upstream("delete session", err)
	}
	slog.InfoContext(ctx, "Session deleted", "session_id", id)
	return nil
}

// Attendance

// SessionAttendance returns the presence flags recorded for one session.
func (s *RosterService) SessionAttendance(ctx context.Context, sessionID int64) ([]core.AttendanceRow, error) {
	rows, err := s.store.ListAttendance(ctx, ports.AttendanceFilter{SessionID: sessionID})
	if err != nil {
		return nil, core.Upstream("list attendance", err)
	}
	return rows, nil
}

// SetAttendance records presence for the listed members. Every member must
// exist; the session must exist.
func (s *RosterService) SetAttendance(ctx context.Context, actor, sessionID int64, present map[int64]bool) error {
	if len(present) == 0 {
		return &core.ValidationError{Field: "attendance", Reason: "cannot be empty"}
	}
	if err := s.auth.RequireAdmin(ctx, actor, "record attendance"); err != nil {
		return err
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return core.Upstream("get session", err)
	}
	members, err := s.store.ListMembers(ctx, ports.ListMembersFilter{})
	if err != nil {
		return core.Upstream("list members", err)
	}
	known := make(map[int64]bool, len(members))
	for _, m := range members {
		known[m.ID] = true
	}
	for id := range present {
		if !known[id] {
			return &core.ValidationError{Field: "attendance", Reason: fmt.Sprintf("unknown member %d", id)}
		}
	}
	if err := s.store.SetAttendance(ctx, sessionID, present); err != nil {
		return core.Upstream("set attendance", err)
	}
	slog.InfoContext(ctx, "Attendance recorded", "session_id", sessionID, "members", len(present))
	return nil
}
