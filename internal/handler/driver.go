package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/middleware"
	"github.com/StefanPetk0vic/Locus/internal/service"
)

// EventLocationUpdate is the socket frame a driver sends with its position.
const EventLocationUpdate = "driver.location.update"

// DriverHandler handles driver position updates over HTTP and the socket.
type DriverHandler struct {
	locationService *service.LocationService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(locationService *service.LocationService) *DriverHandler {
	return &DriverHandler{locationService: locationService}
}

// UpdateLocation handles POST /v1/drivers/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req domain.Coordinate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.locationService.UpdateLocation(c.Request.Context(), middleware.CallerID(c), req); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GoOffline handles POST /v1/drivers/offline
func (h *DriverHandler) GoOffline(c *gin.Context) {
	if err := h.locationService.GoOffline(c.Request.Context(), middleware.CallerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleSocketMessage handles inbound socket frames. Only drivers may send
// location updates; other events are ignored.
func (h *DriverHandler) HandleSocketMessage(ctx context.Context, userID string, role domain.Role, event string, data json.RawMessage) error {
	if event != EventLocationUpdate {
		return nil
	}
	if role != domain.RoleDriver {
		return service.ErrUnauthorized
	}

	var at domain.Coordinate
	if err := json.Unmarshal(data, &at); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidLocation, err)
	}
	return h.locationService.UpdateLocation(ctx, userID, at)
}
