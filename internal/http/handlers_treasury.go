package http

import (
	"fmt"
	"net/http"

	"lodge/internal/core"
	applog "lodge/internal/log"
	"lodge/internal/ports"
	"lodge/internal/services"
)

// Dues

func (s *Server) handleListDues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	memberID, err := QueryID(q, "member_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	year, err := QueryInt(q, "year", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	month, err := QueryInt(q, "month", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if month != 0 && !core.ValidMonth(month) {
		writeError(w, r, &core.ValidationError{Field: "month", Reason: "must be between 1 and 12"})
		return
	}
	status := core.DuesStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, r, &core.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", status)})
		return
	}
	rows, err := s.svc.Dues.List(r.Context(), ports.DuesFilter{MemberID: memberID, Year: year, Month: month, Status: status})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.duesList(rows))
}

func (s *Server) handleCreateDuesBatch(w http.ResponseWriter, r *http.Request) {
	var req services.DuesBatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.svc.Dues.CreateBatch(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateCash(req.Year)
	s.invalidateOverdue()
	s.appMetrics.duesBatches.Add(1)
	applog.FromContext(r.Context()).WithComponent(applog.ComponentDues).InfoContext(r.Context(), "Dues batch accepted",
		applog.NewFields().WithDuesBatch(actor(r), req.MemberID, req.Year, req.Months, string(req.Status)).ToSlice()...)
	writeJSON(w, http.StatusCreated, duesBatchDTO{
		DuesIDs:     res.DuesIDs,
		MovementIDs: nonNil(res.MovementIDs),
		Fee:         s.money(res.Fee),
	})
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in markPaidInput
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &in); err != nil {
			writeError(w, r, err)
			return
		}
	}
	d, err := s.svc.Dues.MarkPaid(r.Context(), actor(r), id, in.PaidAt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateCash(d.Year)
	s.invalidateOverdue()
	writeJSON(w, http.StatusOK, s.dues(d))
}

func (s *Server) handleDuesGrid(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	memberID, err := QueryID(q, "member_id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if memberID == 0 {
		memberID = actor(r)
	}
	year, err := ParseYear(q, s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	cells, err := s.svc.Dues.Grid(r.Context(), memberID, year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"member_id": memberID,
		"year":      year,
		"months":    s.grid(cells),
	})
}

func (s *Server) handleCurrentFee(w http.ResponseWriter, r *http.Request) {
	fee, err := s.svc.Dues.CurrentFee(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"monthly_fee": s.money(fee)})
}

// Cash

func (s *Server) handleCashMonth(w http.ResponseWriter, r *http.Request) {
	p, err := ParseMonthParams(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	cm, ok := s.balanceCache.Get(key)
	if ok {
		s.appMetrics.cacheHits.Add(1)
	} else {
		s.appMetrics.cacheMisses.Add(1)
		gen := s.cacheGeneration()
		mvs, err := s.svc.Cash.Movements(r.Context(), ports.CashFilter{Month: p.Month, Year: p.Year})
		if err != nil {
			writeError(w, r, err)
			return
		}
		cm = cashMonth{Balance: core.ComputeBalance(p.Month, p.Year, mvs), Movements: mvs}
		s.storeIfCurrent(gen, func() { s.balanceCache.Set(key, cm) })
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance":   s.balance(cm.Balance),
		"movements": s.movements(cm.Movements),
	})
}

func (s *Server) handleCashYear(w http.ResponseWriter, r *http.Request) {
	year, err := ParseYear(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	key := fmt.Sprintf("%04d", year)
	bals, ok := s.yearCache.Get(key)
	if ok {
		s.appMetrics.cacheHits.Add(1)
	} else {
		s.appMetrics.cacheMisses.Add(1)
		gen := s.cacheGeneration()
		bals, err = s.svc.Cash.YearBalances(r.Context(), year)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.storeIfCurrent(gen, func() { s.yearCache.Set(key, bals) })
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":     year,
		"balances": s.balances(bals),
	})
}

func (s *Server) handleRecordMovement(w http.ResponseWriter, r *http.Request) {
	var req services.CashMovementRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Description = sanitizeInput(req.Description)
	mv, err := s.svc.Cash.Record(r.Context(), actor(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateCash(mv.Year)
	s.appMetrics.cashMovements.Add(1)
	writeJSON(w, http.StatusCreated, s.movement(mv))
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
