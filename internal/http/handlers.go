package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/audit"
	"github.com/fyrsmithlabs/govern/internal/governance"
	"github.com/fyrsmithlabs/govern/internal/ratelimit"
	"github.com/fyrsmithlabs/govern/internal/store"
)

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.gov.Ping(c.Request().Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Store: "unavailable"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Store: "ok"})
}

func (s *Server) handleSubmit(c echo.Context) error {
	var req SubmitActionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid submit request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if !s.limiter.Allow(ratelimit.Key(req.CompanyID, req.Agent)) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "submission rate exceeded for agent")
	}

	p, err := s.gov.Submit(c.Request().Context(), governance.SubmitRequest{
		CompanyID:      req.CompanyID,
		ActionType:     action.Type(req.ActionType),
		Agent:          req.Agent,
		Title:          req.Title,
		Description:    req.Description,
		DraftContent:   req.DraftContent,
		Reasoning:      req.Reasoning,
		EntitySnapshot: req.EntitySnapshot,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) handleListPending(c echo.Context) error {
	f := store.ActionFilter{
		CompanyID:        c.QueryParam("company_id"),
		ActionType:       action.Type(c.QueryParam("action_type")),
		Agent:            c.QueryParam("agent"),
		RiskLevel:        action.RiskLevel(c.QueryParam("risk")),
		AssignedReviewer: c.QueryParam("assigned_reviewer"),
	}
	var err error
	if f.Limit, err = intParam(c, "limit"); err != nil {
		return err
	}
	if f.Offset, err = intParam(c, "offset"); err != nil {
		return err
	}

	list, err := s.gov.ListPending(c.Request().Context(), f)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, ActionsResponse{Actions: list, Count: len(list)})
}

func (s *Server) handleGetAction(c echo.Context) error {
	p, err := s.gov.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleReview(c echo.Context) error {
	var req ReviewActionRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid review request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	reviewer := req.Reviewer
	if reviewer == "" {
		reviewer = actor(c)
	}

	p, err := s.gov.Review(c.Request().Context(), governance.ReviewRequest{
		ActionID:        c.Param("id"),
		Decision:        action.Decision(req.Decision),
		Reviewer:        reviewer,
		EditedContent:   req.EditedContent,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleAssign(c echo.Context) error {
	var req AssignActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := s.gov.Assign(c.Request().Context(), c.Param("id"), req.Reviewer, actor(c))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleSweep(c echo.Context) error {
	n, err := s.gov.SweepExpired(c.Request().Context())
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, SweepResponse{Expired: n})
}

func (s *Server) handleListAudit(c echo.Context) error {
	q := audit.Query{
		ActionID:  c.QueryParam("action_id"),
		RuleID:    c.QueryParam("rule_id"),
		CompanyID: c.QueryParam("company_id"),
	}
	var err error
	if q.From, err = timeParam(c, "from"); err != nil {
		return err
	}
	if q.To, err = timeParam(c, "to"); err != nil {
		return err
	}
	if q.Limit, err = intParam(c, "limit"); err != nil {
		return err
	}

	entries, err := s.gov.ListAudit(c.Request().Context(), q)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, AuditResponse{Entries: entries, Count: len(entries)})
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a non-negative integer")
	}
	return n, nil
}

func timeParam(c echo.Context, name string) (time.Time, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, name+" must be an RFC3339 timestamp")
	}
	return t, nil
}
