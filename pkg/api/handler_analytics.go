package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/kindryd/askflash-mcp/pkg/state"
)

func parseHours(c *echo.Context) int {
	defaultHours := int(defaultAnalyticsWindow.Hours())
	raw := c.QueryParam("hours")
	if raw == "" {
		return defaultHours
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return defaultHours
	}
	return hours
}

// taskAnalyticsHandler handles GET /api/v1/analytics/tasks.
func (s *Server) taskAnalyticsHandler(c *echo.Context) error {
	if s.state == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "state manager not configured")
	}
	hours := parseHours(c)
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	analytics, err := s.state.Tasks.Analytics(c.Request().Context(), since)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "analytics store unavailable")
	}
	return c.JSON(http.StatusOK, taskAnalyticsResponse{TaskAnalytics: analytics, WindowHours: hours})
}

// agentAnalyticsHandler handles GET /api/v1/analytics/agents.
func (s *Server) agentAnalyticsHandler(c *echo.Context) error {
	if s.state == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "state manager not configured")
	}
	hours := parseHours(c)
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	healths, err := s.state.Agents.AllHealth(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "analytics store unavailable")
	}

	summaries := make([]state.AgentPerformanceSummary, 0, len(healths))
	for _, h := range healths {
		summary, err := s.state.Agents.PerformanceSummary(c.Request().Context(), h.AgentName, since)
		if err != nil {
			continue
		}
		summaries = append(summaries, summary)
	}

	return c.JSON(http.StatusOK, agentAnalyticsResponse{Agents: summaries, WindowHours: hours})
}
