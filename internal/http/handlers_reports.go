package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"lodge/internal/core"
	"lodge/internal/export"
	applog "lodge/internal/log"
	"lodge/internal/services"
)

const overdueCacheKey = "overdue"

func (s *Server) handleAttendanceReport(w http.ResponseWriter, r *http.Request) {
	from, to, err := reportPeriod(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sums, err := s.svc.Reports.AttendanceReport(r.Context(), services.ReportPeriod{From: from, To: to})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.summaries(sums))
}

func (s *Server) handleAbsenceAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.svc.Reports.AbsenceAlerts(r.Context(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.alerts(alerts))
}

// overdue serves the overdue report from cache when possible.
func (s *Server) overdue(ctx context.Context) (services.OverdueReport, error) {
	if rep, ok := s.overdueCache.Get(overdueCacheKey); ok {
		s.appMetrics.cacheHits.Add(1)
		return rep, nil
	}
	s.appMetrics.cacheMisses.Add(1)
	gen := s.cacheGeneration()
	rep, err := s.svc.Reports.OverdueReport(ctx)
	if err != nil {
		return services.OverdueReport{}, err
	}
	s.storeIfCurrent(gen, func() { s.overdueCache.Set(overdueCacheKey, rep) })
	return rep, nil
}

func (s *Server) handleOverdueReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.overdue(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.overdueReport(rep))
}

func (s *Server) handlePaymentReport(w http.ResponseWriter, r *http.Request) {
	year, err := ParseYear(r.URL.Query(), s.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := s.svc.Reports.PaymentReport(r.Context(), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	compliance, err := s.svc.Reports.Compliance(r.Context(), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":       year,
		"compliance": compliance,
		"records":    s.paymentRecords(recs),
	})
}

// exportFormats maps a file extension to its encoder and content type.
var exportFormats = map[string]struct {
	write       func(*bytes.Buffer, export.Table) error
	contentType string
}{
	"csv": {
		write:       func(b *bytes.Buffer, t export.Table) error { return export.WriteCSV(b, t) },
		contentType: "text/csv; charset=utf-8",
	},
	"xlsx": {
		write:       func(b *bytes.Buffer, t export.Table) error { return export.WriteXLSX(b, t) },
		contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	},
}

// buildReportTable loads the named report and lays it out as a table.
func (s *Server) buildReportTable(r *http.Request, report string) (export.Table, error) {
	ctx := r.Context()
	switch report {
	case "attendance":
		from, to, err := reportPeriod(r)
		if err != nil {
			return export.Table{}, err
		}
		sums, err := s.svc.Reports.AttendanceReport(ctx, services.ReportPeriod{From: from, To: to})
		if err != nil {
			return export.Table{}, err
		}
		return export.AttendanceTable(sums), nil
	case "alerts":
		alerts, err := s.svc.Reports.AbsenceAlerts(ctx, s.now())
		if err != nil {
			return export.Table{}, err
		}
		return export.AlertsTable(alerts), nil
	case "overdue":
		rep, err := s.overdue(ctx)
		if err != nil {
			return export.Table{}, err
		}
		return export.OverdueTable(rep.Groups), nil
	case "payments":
		year, err := ParseYear(r.URL.Query(), s.now())
		if err != nil {
			return export.Table{}, err
		}
		recs, err := s.svc.Reports.PaymentReport(ctx, year)
		if err != nil {
			return export.Table{}, err
		}
		return export.PaymentTable(year, recs), nil
	case "balance":
		year, err := ParseYear(r.URL.Query(), s.now())
		if err != nil {
			return export.Table{}, err
		}
		bals, err := s.svc.Cash.YearBalances(ctx, year)
		if err != nil {
			return export.Table{}, err
		}
		return export.BalanceTable(year, bals), nil
	case "members":
		ms, err := s.svc.Roster.ListMembers(ctx, false)
		if err != nil {
			return export.Table{}, err
		}
		return export.MembersTable(ms), nil
	}
	return export.Table{}, fmt.Errorf("report %q: %w", report, core.ErrNotFound)
}

// handleExport serves GET /api/export/{report}.{csv|xlsx}. The file is
// encoded in full before anything is written so failures still map to a
// clean error response.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	file := r.PathValue("file")
	report, ext, ok := strings.Cut(file, ".")
	format, known := exportFormats[ext]
	if !ok || !known {
		writeError(w, r, &core.ValidationError{Field: "file", Reason: "must be <report>.csv or <report>.xlsx"})
		return
	}
	t, err := s.buildReportTable(r, report)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := format.write(&buf, t); err != nil {
		writeError(w, r, err)
		return
	}
	s.appMetrics.exports.Add(1)
	applog.FromContext(r.Context()).WithComponent(applog.ComponentExport).InfoContext(r.Context(), "Report exported",
		applog.FieldOperation, applog.OpExport,
		"report", report,
		"format", ext,
		"rows", len(t.Rows))

	w.Header().Set("Content-Type", format.contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
