package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/kindryd/askflash-mcp/pkg/coordinator"
	"github.com/kindryd/askflash-mcp/pkg/models"
)

// createTaskHandler handles POST /api/v1/tasks.
func (s *Server) createTaskHandler(c *echo.Context) error {
	var req createTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if msg := req.validate(); msg != "" {
		return echo.NewHTTPError(http.StatusBadRequest, msg)
	}

	template := req.TemplateName
	if template == "" {
		template = s.defaultTemplate
	}

	taskID, err := s.coord.CreateAndExecute(c.Request().Context(), req.UserID, req.Query, template, req.ConversationID)
	if err != nil {
		if errors.Is(err, coordinator.ErrUnknownTemplate) {
			return mapError(err)
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, "coordinator unavailable")
	}

	return c.JSON(http.StatusOK, createTaskResponse{
		TaskID:   taskID,
		Status:   string(models.StatusInProgress),
		Template: template,
		UserID:   req.UserID,
	})
}

// getStatusHandler handles GET /api/v1/tasks/:id.
func (s *Server) getStatusHandler(c *echo.Context) error {
	rec, err := s.coord.GetTaskStatus(c.Param("id"))
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

// getProgressHandler handles GET /api/v1/tasks/:id/progress.
func (s *Server) getProgressHandler(c *echo.Context) error {
	taskID := c.Param("id")
	rec, err := s.coord.GetTaskStatus(taskID)
	if err != nil {
		return mapError(err)
	}

	steps, err := s.store.ReplayReact(c.Request().Context(), taskID)
	if err != nil {
		steps = nil
	}

	return c.JSON(http.StatusOK, progressResponse{
		Status:             rec.Status,
		ProgressPercentage: rec.ProgressPercent,
		CurrentStage:       rec.CurrentStage,
		ThinkingSteps:      steps,
		TotalStages:        len(rec.Plan),
		CompletedStages:    rec.CompletedStages,
		LastUpdated:        rec.UpdatedAt,
	})
}

// abortTaskHandler handles POST /api/v1/tasks/:id/abort.
func (s *Server) abortTaskHandler(c *echo.Context) error {
	taskID := c.Param("id")
	rec, err := s.coord.AbortTask(taskID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, abortResponse{TaskID: taskID, Status: string(rec.Status)})
}
