package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

func TestRBAC(t *testing.T) {
	cases := []struct {
		name     string
		role     any
		allowed  []domain.Role
		wantNext bool
	}{
		{"participant on participant route", "participant", []domain.Role{domain.RoleParticipant}, true},
		{"role is case insensitive", "Researcher", []domain.Role{domain.RoleResearcher, domain.RoleAdmin}, true},
		{"researcher on participant route", "researcher", []domain.Role{domain.RoleParticipant}, false},
		{"unknown role", "superuser", []domain.Role{domain.RoleAdmin}, false},
		{"no role claim", nil, []domain.Role{domain.RoleAdmin}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
			if tc.role != nil {
				c.Set(ContextRole, tc.role)
			}

			called := false
			err := RBAC(tc.allowed...)(func(c echo.Context) error {
				called = true
				return nil
			})(c)

			if called != tc.wantNext {
				t.Fatalf("next called = %v, want %v", called, tc.wantNext)
			}
			if tc.wantNext {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != http.StatusForbidden {
				t.Fatalf("expected 403 HTTPError, got %v", err)
			}
		})
	}
}
