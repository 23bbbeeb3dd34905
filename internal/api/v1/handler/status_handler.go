package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Cray-HPE/sat-sub000/internal/features/session"
)

// StatusHandler exposes the state of running and finished wait sessions.
type StatusHandler struct {
	coordinator *session.Coordinator
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(coordinator *session.Coordinator) *StatusHandler {
	return &StatusHandler{
		coordinator: coordinator,
	}
}

// SetupRoutes configures the routes for this handler
func (h *StatusHandler) SetupRoutes(router *gin.Engine) {
	sessions := router.Group("/api/v1/sessions")
	{
		sessions.GET("", h.listSessions)
		sessions.GET("/:name", h.getSession)
	}
}

// listSessions returns every session in launch order
func (h *StatusHandler) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": h.coordinator.Snapshot(),
		"running":  h.coordinator.Running(),
		"failed":   h.coordinator.Failed(),
	})
}

// getSession returns the status of one session by name
func (h *StatusHandler) getSession(c *gin.Context) {
	name := c.Param("name")

	status, ok := h.coordinator.Status(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "no session named " + name,
		})
		return
	}
	c.JSON(http.StatusOK, status)
}
