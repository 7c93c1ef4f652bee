package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/kindryd/askflash-mcp/pkg/broker"
)

// queueStatusHandler handles GET /api/v1/queues.
func (s *Server) queueStatusHandler(c *echo.Context) error {
	statuses := make([]broker.QueueStatus, 0, len(broker.KnownQueues))
	for _, q := range broker.KnownQueues {
		st, err := s.brk.GetQueueStatus(q)
		if err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "broker unreachable")
		}
		statuses = append(statuses, st)
	}
	return c.JSON(http.StatusOK, queueStatusResponse{Queues: statuses})
}

// systemStatusHandler handles GET /api/v1/system/status. It never returns
// a non-200: every collaborator's reachability is reported as a
// componentHealth entry instead of failing the request.
func (s *Server) systemStatusHandler(c *echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	resp := systemStatusResponse{
		MCP: componentHealth{Name: "mcp", Healthy: true},
	}

	brokerHealthy := true
	for _, q := range broker.KnownQueues {
		if _, err := s.brk.GetQueueStatus(q); err != nil {
			brokerHealthy = false
			break
		}
	}
	resp.CoreServices = append(resp.CoreServices, componentHealth{
		Name: "broker", Healthy: brokerHealthy,
	})

	storeHealthy := true
	if _, err := s.store.ListUserTasks("healthcheck", 1); err != nil {
		storeHealthy = false
	}
	resp.CoreServices = append(resp.CoreServices, componentHealth{
		Name: "taskstore", Healthy: storeHealthy,
	})

	stateHealthy := false
	detail := "state manager not configured"
	if s.state != nil {
		h := s.state.CheckHealth(ctx)
		stateHealthy = h.Status == "healthy"
		detail = h.Status
	}
	resp.Infrastructure = append(resp.Infrastructure, componentHealth{
		Name: "postgres", Healthy: stateHealthy, Detail: detail,
	})

	adaptiveHealthy := s.ad != nil
	resp.Infrastructure = append(resp.Infrastructure, componentHealth{
		Name: "adaptive", Healthy: adaptiveHealthy,
	})

	if s.state != nil {
		agents, err := s.state.Agents.AllHealth(ctx)
		if err == nil {
			resp.Agents = agents
		}
	}

	resp.OverallHealth = "healthy"
	if !brokerHealthy || !storeHealthy {
		resp.OverallHealth = "unhealthy"
	} else if !stateHealthy {
		resp.OverallHealth = "degraded"
	}

	return c.JSON(http.StatusOK, resp)
}
