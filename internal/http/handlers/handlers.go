package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/omnisense/dispatch/internal/db"
	"github.com/omnisense/dispatch/internal/http/middleware"
	"github.com/omnisense/dispatch/internal/models"
	"github.com/omnisense/dispatch/internal/service"
)

type Handler struct {
	Orchestrator   *service.Orchestrator
	Switch         *service.Switch
	Store          *db.Store
	Validator      *validator.Validate
	Logger         zerolog.Logger
	RequestTimeout time.Duration
}

type createCallRequest struct {
	Contact string `json:"contact" validate:"max=64"`
}

type messageRequest struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type messageResponse struct {
	CallID string            `json:"call_id"`
	Reply  string            `json:"reply"`
	Status models.CallStatus `json:"status"`
}

type disconnectRequest struct {
	Dropped bool `json:"dropped"`
}

type assignRequest struct {
	OperatorID string `json:"operator_id" validate:"required,max=64"`
}

type registerOperatorRequest struct {
	ID   string `json:"id" validate:"required,max=64"`
	Name string `json:"name" validate:"max=128"`
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := h.Store.Ping(ctx); err != nil {
			writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "archive": h.Store != nil})
}

// @Summary Create call
// @Description Open a new emergency call; it goes to a free operator or to the triage agent
// @Tags calls
// @Accept json
// @Produce json
// @Param body body createCallRequest false "Caller contact"
// @Success 201 {object} models.Call
// @Failure 400 {object} map[string]any
// @Router /api/calls [post]
func (h *Handler) CreateCall(c *gin.Context) {
	var req createCallRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	call, err := h.Orchestrator.CreateCall(c.Request.Context(), req.Contact)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

// @Summary List calls
// @Tags calls
// @Produce json
// @Success 200 {array} models.Call
// @Router /api/calls [get]
func (h *Handler) ListCalls(c *gin.Context) {
	c.JSON(http.StatusOK, h.Orchestrator.Snapshot().Calls)
}

// @Summary Call details
// @Tags calls
// @Produce json
// @Param id path string true "Call ID"
// @Success 200 {object} models.Call
// @Failure 404 {object} map[string]any
// @Router /api/calls/{id} [get]
func (h *Handler) GetCall(c *gin.Context) {
	call, ok := h.Orchestrator.Call(c.Param("id"))
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Call not found", nil)
		return
	}
	c.JSON(http.StatusOK, call)
}

// @Summary Send caller text
// @Description Feed one caller utterance to the call; the reply is empty once an operator owns the call
// @Tags calls
// @Accept json
// @Produce json
// @Param id path string true "Call ID"
// @Param body body messageRequest true "Caller text"
// @Success 200 {object} messageResponse
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/calls/{id}/message [post]
func (h *Handler) SendMessage(c *gin.Context) {
	var req messageRequest
	if !h.bind(c, &req) {
		return
	}
	ctx, cancel := h.requestContext(c)
	defer cancel()

	id := c.Param("id")
	reply, err := h.Orchestrator.SendMessage(ctx, id, req.Text)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	call, _ := h.Orchestrator.Call(id)
	c.JSON(http.StatusOK, messageResponse{CallID: id, Reply: reply, Status: call.Status})
}

// @Summary Disconnect call
// @Tags calls
// @Accept json
// @Param id path string true "Call ID"
// @Param body body disconnectRequest false "Whether the caller dropped"
// @Success 200 {object} models.Call
// @Failure 404 {object} map[string]any
// @Router /api/calls/{id}/disconnect [post]
func (h *Handler) Disconnect(c *gin.Context) {
	var req disconnectRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	id := c.Param("id")
	if err := h.Orchestrator.Disconnect(id, req.Dropped); err != nil {
		h.serviceError(c, err)
		return
	}
	if h.Switch != nil {
		h.Switch.DetachCaller(id)
	}
	call, _ := h.Orchestrator.Call(id)
	c.JSON(http.StatusOK, call)
}

// @Summary Archive call
// @Tags calls
// @Param id path string true "Call ID"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/calls/{id}/archive [post]
func (h *Handler) ArchiveCall(c *gin.Context) {
	id := c.Param("id")
	if err := h.Orchestrator.Archive(id); err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": id, "archived": true})
}

// @Summary Force-assign call
// @Description Bind a call to an operator regardless of queue order
// @Tags calls
// @Accept json
// @Produce json
// @Param id path string true "Call ID"
// @Param body body assignRequest true "Target operator"
// @Success 200 {object} models.Call
// @Failure 404 {object} map[string]any
// @Failure 409 {object} map[string]any
// @Router /api/calls/{id}/assign [post]
func (h *Handler) AssignCall(c *gin.Context) {
	var req assignRequest
	if !h.bind(c, &req) {
		return
	}
	call, err := h.Orchestrator.ForceAssign(c.Param("id"), req.OperatorID)
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// @Summary Register operator
// @Tags operators
// @Accept json
// @Produce json
// @Param body body registerOperatorRequest true "Operator"
// @Success 200 {object} models.Operator
// @Router /api/operators [post]
func (h *Handler) RegisterOperator(c *gin.Context) {
	var req registerOperatorRequest
	if !h.bind(c, &req) {
		return
	}
	op := h.Orchestrator.RegisterOperator(req.ID, req.Name, nil)
	c.JSON(http.StatusOK, op)
}

// @Summary Unregister operator
// @Tags operators
// @Param id path string true "Operator ID"
// @Success 200 {object} models.Operator
// @Failure 404 {object} map[string]any
// @Router /api/operators/{id} [delete]
func (h *Handler) UnregisterOperator(c *gin.Context) {
	id := c.Param("id")
	if err := h.Orchestrator.UnregisterOperator(id); err != nil {
		h.serviceError(c, err)
		return
	}
	op, _ := h.Orchestrator.Operator(id)
	c.JSON(http.StatusOK, op)
}

// @Summary Complete operator call
// @Description End the operator's current call and hand it the next queued one
// @Tags operators
// @Produce json
// @Param id path string true "Operator ID"
// @Success 200 {object} service.CompletionResult
// @Failure 404 {object} map[string]any
// @Router /api/operators/{id}/complete [post]
func (h *Handler) CompleteCall(c *gin.Context) {
	res, err := h.Orchestrator.CompleteCall(c.Param("id"))
	if err != nil {
		h.serviceError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary List operators
// @Tags operators
// @Produce json
// @Success 200 {array} models.Operator
// @Router /api/operators [get]
func (h *Handler) ListOperators(c *gin.Context) {
	c.JSON(http.StatusOK, h.Orchestrator.Operators())
}

// @Summary System snapshot
// @Tags state
// @Produce json
// @Success 200 {object} service.Snapshot
// @Router /api/state [get]
func (h *Handler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.Orchestrator.Snapshot())
}

// @Summary Archived call records
// @Tags records
// @Produce json
// @Param limit query int false "Max records"
// @Success 200 {array} db.CallRecord
// @Failure 503 {object} map[string]any
// @Router /api/records [get]
func (h *Handler) Records(c *gin.Context) {
	if h.Store == nil {
		writeError(c, http.StatusServiceUnavailable, "ARCHIVE_DISABLED", "Call archive is not configured", nil)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.Store.RecentCallRecords(c.Request.Context(), limit)
	if err != nil {
		h.log(c).Error().Err(err).Msg("list call records failed")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list call records", nil)
		return
	}
	c.JSON(http.StatusOK, records)
}

// @Summary Archived call transcript
// @Tags records
// @Produce json
// @Param id path string true "Call ID"
// @Success 200 {array} models.TranscriptEntry
// @Failure 404 {object} map[string]any
// @Router /api/records/{id}/transcript [get]
func (h *Handler) RecordTranscript(c *gin.Context) {
	if h.Store == nil {
		writeError(c, http.StatusServiceUnavailable, "ARCHIVE_DISABLED", "Call archive is not configured", nil)
		return
	}
	entries, err := h.Store.CallTranscript(c.Request.Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Call record not found", nil)
		return
	}
	if err != nil {
		h.log(c).Error().Err(err).Msg("load transcript failed")
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load transcript", nil)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON payload", err.Error())
		return false
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout())
}

func (h *Handler) log(c *gin.Context) *zerolog.Logger {
	l := middleware.RequestLogger(c, h.Logger)
	return &l
}

func (h *Handler) serviceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCallNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Call not found", nil)
	case errors.Is(err, service.ErrOperatorNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Operator not found", nil)
	case errors.Is(err, service.ErrInvalidState):
		writeError(c, http.StatusConflict, "INVALID_STATE", "Operation not allowed in current state", err.Error())
	default:
		h.log(c).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		writeError(c, http.StatusInternalServerError, "INTERNAL", "Internal error", nil)
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
