package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pulsai/pulsai/internal/channels"
)

func (s *Server) listChannels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"channels": channels.Catalog(),
	})
}

func (s *Server) channelStatus(c echo.Context) error {
	id := c.Param("channel")
	info, err := channels.Status(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"channel":   id,
		"status":    "active",
		"connected": info.Active,
	})
}
