package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/placepicker/backend/internal/catalog"
	"github.com/placepicker/backend/internal/kv"
	"github.com/placepicker/backend/internal/models"
	"github.com/placepicker/backend/internal/service"
)

type Handler struct {
	Sessions  *service.Sessions
	Catalog   *catalog.Catalog
	Health    kv.Pinger
	Validator *validator.Validate
	Logger    zerolog.Logger
}

type PositionRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

type PlaceRequest struct {
	PlaceID string `json:"place_id" validate:"required"`
}

type SessionResponse struct {
	Session models.SelectionView `json:"session"`
}

type PositionResponse struct {
	Applied bool                 `json:"applied"`
	Session models.SelectionView `json:"session"`
}

type PickResponse struct {
	Added   bool                 `json:"added"`
	Session models.SelectionView `json:"session"`
}

type RemovalResponse struct {
	Removed string               `json:"removed"`
	Session models.SelectionView `json:"session"`
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.Health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Health.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Store unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary List catalog places
// @Tags places
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/places [get]
func (h *Handler) PlacesList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.Catalog.All()})
}

// @Summary Create session
// @Description Starts a session with an empty selection
// @Tags sessions
// @Produce json
// @Success 201 {object} SessionResponse
// @Router /api/sessions [post]
func (h *Handler) SessionCreate(c *gin.Context) {
	p, err := h.Sessions.Create(c.Request.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("failed to create session")
		writeError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Failed to load selection", err.Error())
		return
	}
	c.JSON(http.StatusCreated, SessionResponse{Session: p.View()})
}

// @Summary Session state
// @Description Returns picked and available places, restoring the session from the store if needed
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SessionResponse
// @Failure 404 {object} map[string]any
// @Router /api/sessions/{id} [get]
func (h *Handler) SessionDetails(c *gin.Context) {
	p, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: p.View()})
}

// @Summary Deliver position
// @Description One-shot position from the client; later deliveries are ignored
// @Tags location
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param body body PositionRequest true "Position"
// @Success 200 {object} PositionResponse
// @Router /api/sessions/{id}/position [post]
func (h *Handler) PositionSet(c *gin.Context) {
	var req PositionRequest
	if !h.bind(c, &req) {
		return
	}
	p, ok := h.session(c)
	if !ok {
		return
	}
	applied := p.ApplyPosition(models.Position{Lat: *req.Lat, Lng: *req.Lng})
	c.JSON(http.StatusOK, PositionResponse{Applied: applied, Session: p.View()})
}

// @Summary Report position failure
// @Description The client could not get a position; available places stay empty
// @Tags location
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} PositionResponse
// @Router /api/sessions/{id}/position/error [post]
func (h *Handler) PositionFail(c *gin.Context) {
	p, ok := h.session(c)
	if !ok {
		return
	}
	applied := p.FailPosition()
	c.JSON(http.StatusOK, PositionResponse{Applied: applied, Session: p.View()})
}

// @Summary Pick place
// @Tags picks
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param body body PlaceRequest true "Place"
// @Success 200 {object} PickResponse
// @Failure 404 {object} map[string]any
// @Router /api/sessions/{id}/picks [post]
func (h *Handler) PickCreate(c *gin.Context) {
	var req PlaceRequest
	if !h.bind(c, &req) {
		return
	}
	p, ok := h.session(c)
	if !ok {
		return
	}
	added, err := p.Pick(c.Request.Context(), req.PlaceID)
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, PickResponse{Added: added, Session: p.View()})
}

// @Summary Request removal
// @Description Opens the confirmation dialog for a picked place
// @Tags picks
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param body body PlaceRequest true "Place"
// @Success 200 {object} SessionResponse
// @Router /api/sessions/{id}/removal [post]
func (h *Handler) RemovalRequest(c *gin.Context) {
	var req PlaceRequest
	if !h.bind(c, &req) {
		return
	}
	p, ok := h.session(c)
	if !ok {
		return
	}
	if err := p.RequestRemoval(req.PlaceID); err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{Session: p.View()})
}

// @Summary Confirm removal
// @Tags picks
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} RemovalResponse
// @Failure 409 {object} map[string]any
// @Router /api/sessions/{id}/removal/confirm [post]
func (h *Handler) RemovalConfirm(c *gin.Context) {
	p, ok := h.session(c)
	if !ok {
		return
	}
	removed, err := p.ConfirmRemoval(c.Request.Context())
	if err != nil {
		h.writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, RemovalResponse{Removed: removed, Session: p.View()})
}

// @Summary Cancel removal
// @Tags picks
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SessionResponse
// @Router /api/sessions/{id}/removal/cancel [post]
func (h *Handler) RemovalCancel(c *gin.Context) {
	p, ok := h.session(c)
	if !ok {
		return
	}
	p.CancelRemoval()
	c.JSON(http.StatusOK, SessionResponse{Session: p.View()})
}

// @Summary Dismiss confirmation dialog
// @Description Native close of the dialog; treated as cancel
// @Tags picks
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} SessionResponse
// @Router /api/sessions/{id}/removal/dismiss [post]
func (h *Handler) RemovalDismiss(c *gin.Context) {
	p, ok := h.session(c)
	if !ok {
		return
	}
	p.Dismiss()
	c.JSON(http.StatusOK, SessionResponse{Session: p.View()})
}

// @Summary Live sessions
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/admin/sessions [get]
func (h *Handler) SessionsList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.Sessions.List()})
}

func (h *Handler) session(c *gin.Context) (*service.Picker, bool) {
	p, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Session not found", nil)
			return nil, false
		}
		h.Logger.Error().Err(err).Str("session_id", c.Param("id")).Msg("failed to open session")
		writeError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Failed to load selection", err.Error())
		return nil, false
	}
	return p, true
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownPlace):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Place not found", err.Error())
	case errors.Is(err, service.ErrNotPicked):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Place is not picked", err.Error())
	case errors.Is(err, service.ErrNoPendingRemoval):
		writeError(c, http.StatusConflict, "INVALID_STATE", "No removal pending", nil)
	default:
		h.Logger.Error().Err(err).Msg("selection update failed")
		writeError(c, http.StatusInternalServerError, "STORE_ERROR", "Failed to save selection", err.Error())
	}
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}
