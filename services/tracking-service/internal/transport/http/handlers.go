package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/domain"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/resolver"
	"github.com/zipplatformofficial/zip-platform/services/tracking-service/internal/service"
)

type TrackingHandler struct {
	svc *service.TrackingSvc
}

func NewTrackingHandler(svc *service.TrackingSvc) *TrackingHandler {
	return &TrackingHandler{svc: svc}
}

type locationUpdateReq struct {
	BookingID string   `json:"booking_id" binding:"required"`
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Heading   *float64 `json:"heading"`
	Speed     *float64 `json:"speed"`
}

func writeErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidCoordinate):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, resolver.ErrBookingNotFound), errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *TrackingHandler) report(c *gin.Context, kind domain.EntityKind) {
	var in locationUpdateReq
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.svc.Report(c.Request.Context(), actorFrom(c), in.BookingID, kind, service.ReportInput{
		Latitude:  *in.Latitude,
		Longitude: *in.Longitude,
		Heading:   in.Heading,
		Speed:     in.Speed,
	})
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/tracking/technicians/location (TECHNICIAN)
func (h *TrackingHandler) ReportTechnicianLocation(c *gin.Context) {
	h.report(c, domain.KindTechnician)
}

// POST /v1/tracking/vehicles/location (ADMIN|VENDOR)
func (h *TrackingHandler) ReportVehicleLocation(c *gin.Context) {
	h.report(c, domain.KindVehicle)
}

// GET /v1/tracking/:booking_id
func (h *TrackingHandler) GetTrackingInfo(c *gin.Context) {
	info, err := h.svc.Info(c.Request.Context(), actorFrom(c), c.Param("booking_id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// GET /v1/tracking/:booking_id/history?limit=50
func (h *TrackingHandler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	res, err := h.svc.History(c.Request.Context(), actorFrom(c), c.Param("booking_id"), limit)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/tracking/:booking_id/start
func (h *TrackingHandler) StartTracking(c *gin.Context) {
	key, startedAt, err := h.svc.Start(c.Request.Context(), actorFrom(c), c.Param("booking_id"))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_key": key.String(),
		"started_at":  startedAt,
		"status":      "tracking_started",
	})
}

// POST /v1/tracking/:booking_id/stop
func (h *TrackingHandler) StopTracking(c *gin.Context) {
	if err := h.svc.Stop(c.Request.Context(), actorFrom(c), c.Param("booking_id")); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "tracking_stopped"})
}

// GET /v1/tracking/sessions/active (ADMIN|OPERATIONS_MANAGER)
func (h *TrackingHandler) ListActiveSessions(c *gin.Context) {
	sessions, err := h.svc.ActiveSessions(actorFrom(c))
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}
