package handler

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mobistudy/mobistudy-api/internal/api/metrics"
	"github.com/mobistudy/mobistudy-api/internal/core/domain"
	"github.com/mobistudy/mobistudy-api/internal/core/ports"
)

// HealthDataHandler handles health store data submissions and listings.
type HealthDataHandler struct {
	service ports.HealthDataService
}

func NewHealthDataHandler(service ports.HealthDataService) *HealthDataHandler {
	return &HealthDataHandler{service: service}
}

// Create handles POST /healthStoreData.
//
// @Summary      Submit health data for a registered task
// @Tags         healthStoreData
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      healthDataRequest  true  "Submission"
// @Success      201   {object}  domain.HealthDataRecord
// @Failure      400   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /healthStoreData [post]
func (h *HealthDataHandler) Create(c echo.Context) (err error) {
	start := time.Now()
	defer func() {
		result := ingestionResult(err)
		metrics.IngestionsTotal.WithLabelValues(result).Inc()
		metrics.IngestionDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}()

	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	var req healthDataRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	if bytes.Equal(bytes.TrimSpace(req.HealthData), []byte("null")) {
		return echo.NewHTTPError(http.StatusBadRequest, "healthData is required")
	}

	rec, err := h.service.Ingest(c.Request().Context(), actor, toSubmission(actor.Key, req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

// List handles GET /healthStoreData.
//
// @Summary      List health data records
// @Description  Participants receive their own records; researchers must name a study of their teams.
// @Tags         healthStoreData
// @Produce      json
// @Security     BearerAuth
// @Param        studyKey  query     string  false  "Study filter"
// @Param        userKey   query     string  false  "User filter"
// @Success      200       {array}   domain.HealthDataRecord
// @Failure      403       {object}  errorResponse
// @Router       /healthStoreData [get]
func (h *HealthDataHandler) List(c echo.Context) error {
	actor, err := ctxActor(c)
	if err != nil {
		return err
	}
	out, err := h.service.List(c.Request().Context(), actor, ports.HealthDataQuery{
		UserKey:  c.QueryParam("userKey"),
		StudyKey: c.QueryParam("studyKey"),
	})
	if err != nil {
		return err
	}
	if out == nil {
		out = []*domain.HealthDataRecord{}
	}
	return c.JSON(http.StatusOK, out)
}

func ingestionResult(err error) string {
	var he *echo.HTTPError
	switch {
	case err == nil:
		return "stored"
	case errors.As(err, &he) && he.Code < http.StatusInternalServerError:
		return "rejected"
	case errors.Is(err, domain.ErrPartialIngestion), errors.Is(err, domain.ErrStoreUnavailable):
		return "failed"
	case errors.Is(err, domain.ErrInvalidPayload), errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		return "rejected"
	}
	return "failed"
}
