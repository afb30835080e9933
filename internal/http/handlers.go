package http

import (
	"bytes"
	"context"
	"net/http"
	"time"

	applog "vahan/internal/log"
	"vahan/internal/services"
)

const readyTimeout = 5 * time.Second

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSONResponse(http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)
	fail := func(name string, err error) {
		applog.FromContext(ctx).WarnContext(ctx, "Readiness check failed",
			"check", name,
			applog.FieldError, err)
		checks[name] = "failed: " + PublicMessage(err, StatusFor(err))
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if _, err := s.reports.Options(ctx); err != nil {
		fail("dataset", err)
	} else {
		checks["dataset"] = "ok"
	}

	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			fail(name, err)
		} else {
			checks[name] = "ok"
		}
	}

	JSONResponse(httpStatus, map[string]any{
		"status":         status,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"checks":         checks,
		"active_clients": s.rateLimiter.ActiveClients(),
	}).Write(w)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.reports.Options(r.Context())
	if err != nil {
		s.fail(w, r, "Options load failed", err)
		return
	}
	JSONResponse(http.StatusOK, toOptionsJSON(opts)).Write(w)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	req, err := s.parser.Parse(r.URL.Query())
	if err != nil {
		s.fail(w, r, "Invalid report query", err)
		return
	}
	rep, err := s.reports.Report(r.Context(), req.Query)
	if err != nil {
		s.fail(w, r, "Report failed", err)
		return
	}
	JSONResponse(http.StatusOK, toReportJSON(rep)).Write(w)
}

// handleSeries returns the growth series grouped by the dims parameter.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseWithDims(r)
	if err != nil {
		s.fail(w, r, "Invalid series query", err)
		return
	}
	gs, err := s.reports.Series(r.Context(), req.Query, req.Dims)
	if err != nil {
		s.fail(w, r, "Series failed", err)
		return
	}
	JSONResponse(http.StatusOK, toSeriesJSON(gs)).Write(w)
}

// handleLatest returns the latest row per group for the dims parameter.
// Without top every group is returned.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseWithDims(r)
	if err != nil {
		s.fail(w, r, "Invalid latest query", err)
		return
	}
	board, err := s.reports.Leaderboard(r.Context(), req.Query, req.Dims)
	if err != nil {
		s.fail(w, r, "Leaderboard failed", err)
		return
	}
	JSONResponse(http.StatusOK, toLeaderboardJSON(board)).Write(w)
}

func (s *Server) parseWithDims(r *http.Request) (ReportRequest, error) {
	req, err := s.parser.Parse(r.URL.Query())
	if err != nil {
		return ReportRequest{}, err
	}
	if len(req.Dims) == 0 {
		return ReportRequest{}, ValidationErrors{{Field: "dims", Message: "dims is required"}}
	}
	return req, nil
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	n := s.reports.Invalidate(r.Context())
	NewHTMXResponse().
		TriggerCacheInvalidated(n).
		TriggerSuccessNotification("Data will be reloaded").
		BodyJSON(map[string]int{"invalidated": n}).
		Write(w)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	JSONError(http.StatusTooManyRequests, "rate limit exceeded").
		Header("Retry-After", "60").
		TriggerErrorNotification("Too many refreshes, try again in a minute").
		Write(w)
}

// handleIndex renders the full dashboard. The query string uses the same
// parameters as /api/report so views can be bookmarked.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		InternalServerError("templates not loaded").Write(w)
		return
	}

	view := dashboardView{}
	status := http.StatusOK
	req, err := s.parser.Parse(r.URL.Query())
	if err != nil {
		status = StatusFor(err)
		view.Error = PublicMessage(err, status)
	}
	view.Form = newFormState(req.Query)

	opts, optErr := s.reports.Options(r.Context())
	if optErr != nil {
		s.logError(r, "Options load failed", optErr)
		status = StatusFor(optErr)
		view.Error = PublicMessage(optErr, status)
	}
	view.Options = opts
	view.MinDate = monthValue(opts.MinDate)
	view.MaxDate = monthValue(opts.MaxDate)

	if err == nil && optErr == nil {
		rep, repErr := s.reports.Report(r.Context(), req.Query)
		if repErr != nil {
			s.logError(r, "Report failed", repErr)
			status = StatusFor(repErr)
			view.Error = PublicMessage(repErr, status)
		} else {
			rv := newReportView(rep)
			view.Report = &rv
			view.Form.Top = rep.TopN
		}
	}

	s.render(w, r, status, "dashboard.html", view)
}

// handleReportPartial renders the report section for htmx swaps.
func (s *Server) handleReportPartial(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		InternalServerError("templates not loaded").Write(w)
		return
	}
	req, err := s.parser.Parse(r.URL.Query())
	if err != nil {
		ErrorHTML(err).Write(w)
		return
	}
	rep, err := s.reports.Report(r.Context(), req.Query)
	if err != nil {
		s.logError(r, "Report failed", err)
		ErrorHTML(err).Write(w)
		return
	}
	s.render(w, r, http.StatusOK, "report.html", newReportView(rep))
}

// render executes a template into a buffer so a failure can still produce a
// clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(r.Context()).WithComponent(applog.ComponentTemplate).ErrorContext(r.Context(), "Template execution failed",
			applog.FieldOperation, applog.OpRender,
			"template", name,
			applog.FieldError, err)
		InternalServerError("rendering failed").Write(w)
		return
	}
	NewHTMXResponse().Status(status).BodyHTML(buf.String()).Write(w)
}

// fail writes err as JSON, logging server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if StatusFor(err) >= http.StatusInternalServerError {
		s.logError(r, msg, err)
	}
	ErrorJSON(err).Write(w)
}

func (s *Server) logError(r *http.Request, msg string, err error) {
	applog.FromContext(r.Context()).ErrorContext(r.Context(), msg,
		applog.FieldPath, r.URL.Path,
		applog.FieldError, err)
}

// Compile-time check that the report service satisfies Reports.
var _ Reports = (*services.ReportService)(nil)

