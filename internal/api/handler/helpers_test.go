package handler_test

import (
	"io"
	"net/http/httptest"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/api"
	"github.com/mobistudy/mobistudy-api/internal/api/handler"
	"github.com/mobistudy/mobistudy-api/internal/api/middleware"
)

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = api.NewHTTPErrorHandler(zerolog.Nop(), nil)
	return e
}

type request struct {
	method  string
	target  string
	body    string
	role    string
	userKey string
	params  map[string]string
}

// serve runs h the way the router would, including the central error handler.
func serve(e *echo.Echo, h echo.HandlerFunc, r request) *httptest.ResponseRecorder {
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req := httptest.NewRequest(r.method, r.target, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if r.role != "" {
		c.Set(middleware.ContextRole, r.role)
		c.Set(middleware.ContextUserKey, r.userKey)
	}
	if len(r.params) > 0 {
		names := make([]string, 0, len(r.params))
		values := make([]string, 0, len(r.params))
		for k, v := range r.params {
			names = append(names, k)
			values = append(values, v)
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}

	if err := h(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec
}

