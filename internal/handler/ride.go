package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/middleware"
	"github.com/StefanPetk0vic/Locus/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// RequestRideRequest is the HTTP request body for requesting a ride.
type RequestRideRequest struct {
	Pickup      *domain.Coordinate `json:"pickup"`
	Destination *domain.Coordinate `json:"destination"`
	Price       *float64           `json:"price,omitempty"`
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID            string            `json:"id"`
	RiderID       string            `json:"rider_id"`
	DriverID      string            `json:"driver_id,omitempty"`
	Pickup        domain.Coordinate `json:"pickup"`
	Destination   domain.Coordinate `json:"destination"`
	Status        string            `json:"status"`
	Price         float64           `json:"price"`
	PaymentStatus string            `json:"payment_status,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

func toRideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:          r.ID,
		RiderID:     r.RiderID,
		DriverID:    r.DriverID,
		Pickup:      r.Pickup,
		Destination: r.Destination,
		Status:      string(r.Status),
		Price:       r.Price,
		CreatedAt:   r.CreatedAt,
	}
}

func toRideResponses(rides []*domain.Ride) []RideResponse {
	out := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		out = append(out, toRideResponse(r))
	}
	return out
}

// RequestRide handles POST /v1/rides
func (h *RideHandler) RequestRide(c *gin.Context) {
	var req RequestRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Pickup == nil {
		respondError(c, service.ErrInvalidPickupLocation)
		return
	}
	if req.Destination == nil {
		respondError(c, service.ErrInvalidDestinationLocation)
		return
	}

	ride, err := h.rideService.RequestRide(c.Request.Context(), service.RequestRideInput{
		RiderID:       middleware.CallerID(c),
		Pickup:        *req.Pickup,
		Destination:   *req.Destination,
		PriceOverride: req.Price,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRideResponse(ride))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// ListRides handles GET /v1/rides?status=REQUESTED
func (h *RideHandler) ListRides(c *gin.Context) {
	status := domain.RideStatus(c.DefaultQuery("status", string(domain.RideStatusRequested)))
	rides, err := h.rideService.ListByStatus(c.Request.Context(), status)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponses(rides))
}

// ListCompleted handles GET /v1/rides/completed
func (h *RideHandler) ListCompleted(c *gin.Context) {
	rides, err := h.rideService.ListCompleted(c.Request.Context(), middleware.CallerRole(c), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponses(rides))
}

// AcceptRide handles POST /v1/rides/:id/accept
func (h *RideHandler) AcceptRide(c *gin.Context) {
	ride, err := h.rideService.AcceptRide(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// StartRide handles POST /v1/rides/:id/start
func (h *RideHandler) StartRide(c *gin.Context) {
	ride, err := h.rideService.StartRide(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// CompleteRide handles POST /v1/rides/:id/complete
func (h *RideHandler) CompleteRide(c *gin.Context) {
	ride, paymentStatus, err := h.rideService.CompleteRide(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	resp := toRideResponse(ride)
	resp.PaymentStatus = string(paymentStatus)
	respondJSON(c, http.StatusOK, resp)
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	ride, err := h.rideService.CancelRide(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// Rebroadcast handles POST /v1/rides/:id/rebroadcast
func (h *RideHandler) Rebroadcast(c *gin.Context) {
	ride, err := h.rideService.Rebroadcast(c.Request.Context(), c.Param("id"), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusAccepted, toRideResponse(ride))
}
