package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/govern/internal/action"
	"github.com/fyrsmithlabs/govern/internal/governance"
	"github.com/fyrsmithlabs/govern/internal/store"
)

func (s *Server) handleCreateRule(c echo.Context) error {
	var in governance.RuleInput
	if err := c.Bind(&in); err != nil {
		s.logger.Warn("invalid rule request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := s.gov.CreateRule(c.Request().Context(), in, actor(c))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (s *Server) handleListRules(c echo.Context) error {
	f := store.RuleFilter{
		CompanyID:  c.QueryParam("company_id"),
		ActionType: action.Type(c.QueryParam("action_type")),
		Agent:      c.QueryParam("agent"),
	}
	if raw := c.QueryParam("include_inactive"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "include_inactive must be a boolean")
		}
		f.IncludeInactive = v
	}

	list, err := s.gov.ListRules(c.Request().Context(), f)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, RulesResponse{Rules: list, Count: len(list)})
}

func (s *Server) handleGetRule(c echo.Context) error {
	r, err := s.gov.GetRule(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) handleUpdateRule(c echo.Context) error {
	var u governance.RuleUpdate
	if err := c.Bind(&u); err != nil {
		s.logger.Warn("invalid rule update", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := s.gov.UpdateRule(c.Request().Context(), c.Param("id"), u, actor(c))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) handleDeactivateRule(c echo.Context) error {
	r, err := s.gov.DeactivateRule(c.Request().Context(), c.Param("id"), actor(c))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) handleRuleStats(c echo.Context) error {
	stats, err := s.gov.GetRuleStats(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleRevokeLevel3(c echo.Context) error {
	var req RevokeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := s.gov.RevokeLevel3(c.Request().Context(), c.Param("id"), actor(c), req.Reason)
	if err != nil {
		return s.toHTTPError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}
