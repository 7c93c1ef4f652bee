package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/kindryd/askflash-mcp/pkg/coordinator"
	"github.com/kindryd/askflash-mcp/pkg/taskstore"
)

// mapError maps domain errors from the Coordinator, TaskStore, and
// StateManager to HTTP error responses, the same translation boundary the
// teacher's mapServiceError draws between service and transport layers.
func mapError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, taskstore.ErrTaskNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	case errors.Is(err, coordinator.ErrUnknownTemplate):
		return echo.NewHTTPError(http.StatusNotFound, "unknown template")
	case errors.Is(err, coordinator.ErrAlreadyTerminal):
		return echo.NewHTTPError(http.StatusNotFound, "task already terminal")
	default:
		slog.Error("unexpected api error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
