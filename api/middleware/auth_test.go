package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	pkgauth "github.com/tablepoints/tablepoints-backend/pkg/auth"
	"github.com/tablepoints/tablepoints-backend/pkg/config"
	"github.com/tablepoints/tablepoints-backend/pkg/enums"
)

func authTestConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "middleware-test-secret",
		Issuer:            "tablepoints-test",
		ExpirationMinutes: 10,
	}
}

func TestAuthSeedsContextFromToken(t *testing.T) {
	cfg := authTestConfig()
	staffID := uuid.New()
	restaurantID := uuid.New()

	token, err := pkgauth.MintAccessToken(cfg, time.Now(), pkgauth.AccessTokenPayload{
		StaffID:      staffID,
		Role:         enums.StaffRoleManager,
		RestaurantID: &restaurantID,
	})
	if err != nil {
		t.Fatalf("MintAccessToken: %v", err)
	}

	var gotStaff, gotRole, gotRestaurant string
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotStaff = StaffIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		gotRestaurant = RestaurantIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/search", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotStaff != staffID.String() {
		t.Fatalf("staff id = %q, want %q", gotStaff, staffID)
	}
	if gotRole != string(enums.StaffRoleManager) {
		t.Fatalf("role = %q, want MANAGER", gotRole)
	}
	if gotRestaurant != restaurantID.String() {
		t.Fatalf("restaurant id = %q, want %q", gotRestaurant, restaurantID)
	}
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	cfg := authTestConfig()
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached without valid credentials")
	}))

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"empty bearer", "Bearer "},
		{"garbage", "Bearer not-a-jwt"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/search", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", tc.name, w.Code)
		}
	}
}
