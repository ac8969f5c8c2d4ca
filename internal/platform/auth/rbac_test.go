package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func roleContext(roles ...string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), "u", roles, ""))
	return e.NewContext(req, httptest.NewRecorder())
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		has     []string
		require []string
		allowed bool
	}{
		{"matching role", []string{RoleDoctor}, []string{RoleDoctor, RoleStaff}, true},
		{"second role", []string{RolePatient, RoleStaff}, []string{RoleStaff}, true},
		{"admin bypass", []string{RoleAdmin}, []string{RoleDoctor}, true},
		{"denied", []string{RolePatient}, []string{RoleDoctor, RoleStaff}, false},
		{"no roles", nil, []string{RoleStaff}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := roleContext(tt.has...)
			err := RequireRole(tt.require...)(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})(c)
			if tt.allowed && err != nil {
				t.Errorf("expected access, got %v", err)
			}
			if !tt.allowed {
				httpErr, ok := err.(*echo.HTTPError)
				if !ok || httpErr.Code != http.StatusForbidden {
					t.Errorf("expected 403, got %v", err)
				}
			}
		})
	}
}

func TestContextHelpers_Empty(t *testing.T) {
	ctx := context.Background()
	if UserIDFromContext(ctx) != "" {
		t.Error("expected empty user id")
	}
	if RolesFromContext(ctx) != nil {
		t.Error("expected nil roles")
	}
	if DoctorIDFromContext(ctx) != "" {
		t.Error("expected empty doctor id")
	}
	if HasRole(ctx, RoleStaff) {
		t.Error("expected no role")
	}
}
