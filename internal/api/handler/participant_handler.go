package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mobistudy/mobistudy-api/internal/api/metrics"
	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// maxEnrollmentBody bounds the enrollment payload read into memory.
const maxEnrollmentBody = 1 << 20

// ParticipantHandler handles participant profile, enrollment and consent routes.
type ParticipantHandler struct {
	service ports.ParticipantService
}

func NewParticipantHandler(service ports.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{service: service}
}

// List handles GET /participants.
//
// @Summary      List participants
// @Description  Participants receive only their own profile. Researchers see participants of their teams' studies.
// @Tags         participants
// @Produce      json
// @Security     BearerAuth
// @Param        teamKey        query     string  false  "Team filter"
// @Param        studyKey       query     string  false  "Study filter"
// @Param        currentStatus  query     string  false  "Enrollment status filter"
// @Success      200            {array}   domain.Participant
// @Failure      403            {object}  errorResponse
// @Failure      500            {object}  errorResponse
// @Router       /participants [get]
func (h *ParticipantHandler) List(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	out, err := h.service.List(c.Request().Context(), actor, toListInput(c))
	if err != nil {
		return err
	}
	if out == nil {
		out = []*domain.Participant{}
	}
	return c.JSON(http.StatusOK, out)
}

// Create handles POST /participants.
//
// @Summary      Create the caller's participant profile
// @Tags         participants
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      profileRequest  true  "Profile"
// @Success      201   {object}  domain.Participant
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /participants [post]
func (h *ParticipantHandler) Create(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req profileRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}

	p, err := h.service.Create(c.Request().Context(), actor, toProfile(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

// Get handles GET /participants/:participant_key.
//
// @Summary      Get a participant by key
// @Tags         participants
// @Produce      json
// @Security     BearerAuth
// @Param        participant_key  path      string  true  "Participant key"
// @Success      200              {object}  domain.Participant
// @Failure      403              {object}  errorResponse
// @Failure      404              {object}  errorResponse
// @Router       /participants/{participant_key} [get]
func (h *ParticipantHandler) Get(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	p, err := h.service.Get(c.Request().Context(), actor, c.Param("participant_key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// GetByUserKey handles GET /participants/byuserkey/:userKey.
//
// @Summary      Get a participant by user key
// @Tags         participants
// @Produce      json
// @Security     BearerAuth
// @Param        userKey  path      string  true  "User key"
// @Success      200      {object}  domain.Participant
// @Failure      403      {object}  errorResponse
// @Failure      404      {object}  errorResponse
// @Router       /participants/byuserkey/{userKey} [get]
func (h *ParticipantHandler) GetByUserKey(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	p, err := h.service.GetByUserKey(c.Request().Context(), actor, c.Param("userKey"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// UpdateProfile handles PATCH /participants/byuserkey/:userKey.
//
// @Summary      Update a participant profile
// @Tags         participants
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userKey  path      string          true  "User key"
// @Param        body     body      profileRequest  true  "Profile"
// @Success      200      {object}  domain.Participant
// @Failure      400      {object}  errorResponse
// @Failure      403      {object}  errorResponse
// @Failure      404      {object}  errorResponse
// @Failure      409      {object}  errorResponse
// @Router       /participants/byuserkey/{userKey} [patch]
func (h *ParticipantHandler) UpdateProfile(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req profileRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}

	p, err := h.service.UpdateProfile(c.Request().Context(), actor, c.Param("userKey"), toProfile(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// UpdateEnrollment handles PATCH /participants/byuserkey/:userKey/studies/:studyKey.
// An empty body or an empty JSON object removes the enrollment.
//
// @Summary      Replace a participant's status block for one study
// @Tags         participants
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        userKey   path      string             true   "User key"
// @Param        studyKey  path      string             true   "Study key"
// @Param        body      body      enrollmentRequest  false  "Status block; empty to reset"
// @Success      200       {object}  domain.Participant
// @Failure      400       {object}  errorResponse
// @Failure      403       {object}  errorResponse
// @Failure      404       {object}  errorResponse
// @Failure      409       {object}  errorResponse
// @Router       /participants/byuserkey/{userKey}/studies/{studyKey} [patch]
func (h *ParticipantHandler) UpdateEnrollment(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	studyKey := c.Param("studyKey")

	payload, err := readEnrollment(c, studyKey)
	if err != nil {
		return err
	}

	p, err := h.service.UpdateEnrollment(c.Request().Context(), actor, c.Param("userKey"), studyKey, payload)
	if err != nil {
		return err
	}

	status := "reset"
	if payload != nil {
		status = string(payload.CurrentStatus)
	}
	metrics.EnrollmentUpdatesTotal.WithLabelValues(status).Inc()
	return c.JSON(http.StatusOK, p)
}

// UpdateTaskConsent handles PATCH /participants/studies/:studyKey/taskItemsConsent/:taskId
// for the calling participant.
//
// @Summary      Update the caller's consent for one task
// @Tags         participants
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        studyKey  path      string              true  "Study key"
// @Param        taskId    path      int                 true  "Task id"
// @Param        body      body      taskConsentRequest  true  "Task consent"
// @Success      200       {object}  domain.Participant
// @Failure      400       {object}  errorResponse
// @Failure      403       {object}  errorResponse
// @Failure      404       {object}  errorResponse
// @Router       /participants/studies/{studyKey}/taskItemsConsent/{taskId} [patch]
func (h *ParticipantHandler) UpdateTaskConsent(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	taskID, err := strconv.Atoi(c.Param("taskId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "taskId must be an integer")
	}
	var req taskConsentRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}

	studyKey := c.Param("studyKey")
	p, err := h.service.UpdateTaskConsent(c.Request().Context(), actor, actor.Key, studyKey, taskID, toTaskConsent(taskID, req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

// Delete handles DELETE /participants/:participant_key.
//
// @Summary      Delete a participant and all their data
// @Tags         participants
// @Security     BearerAuth
// @Param        participant_key  path  string  true  "Participant key"
// @Success      200
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /participants/{participant_key} [delete]
func (h *ParticipantHandler) Delete(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), actor, c.Param("participant_key")); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// DeleteByUserKey handles DELETE /participants/byuserkey/:userKey.
//
// @Summary      Delete a participant by user key
// @Tags         participants
// @Security     BearerAuth
// @Param        userKey  path  string  true  "User key"
// @Success      200
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /participants/byuserkey/{userKey} [delete]
func (h *ParticipantHandler) DeleteByUserKey(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteByUserKey(c.Request().Context(), actor, c.Param("userKey")); err != nil {
		return err
	}
	return c.NoContent(http.StatusOK)
}

// StatusStats handles GET /participants/statusStats/:studyKey.
//
// @Summary      Count participants per enrollment status
// @Tags         participants
// @Produce      json
// @Security     BearerAuth
// @Param        studyKey  path      string  true  "Study key"
// @Success      200       {array}   domain.StatusCount
// @Failure      403       {object}  errorResponse
// @Router       /participants/statusStats/{studyKey} [get]
func (h *ParticipantHandler) StatusStats(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	stats, err := h.service.StatusStats(c.Request().Context(), actor, c.Param("studyKey"))
	if err != nil {
		return err
	}
	if stats == nil {
		stats = []domain.StatusCount{}
	}
	return c.JSON(http.StatusOK, stats)
}

// readEnrollment decodes the status block. It returns nil for an empty body,
// a JSON null or an empty object.
func readEnrollment(c echo.Context, studyKey string) (*domain.StudyEnrollment, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxEnrollmentBody))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if len(fields) == 0 {
		return nil, nil
	}

	var req enrollmentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return toEnrollment(studyKey, req), nil
}
