package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := GetUserFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte(claims.Role + " " + claims.Email))
}

func TestMiddleware(t *testing.T) {
	a := NewAuthenticator(Options{}, zerolog.Nop())
	handler := a.Middleware(http.HandlerFunc(echoUser))

	valid := signedToken(t, jwt.MapClaims{
		"email":        "sup@example.com",
		"realm_access": map[string]interface{}{"roles": []interface{}{"agent", "supervisor"}},
		"exp":          float64(time.Now().Add(time.Hour).Unix()),
	})
	expired := signedToken(t, jwt.MapClaims{
		"email": "old@example.com",
		"exp":   float64(time.Now().Add(-time.Hour).Unix()),
	})

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantBody   string
	}{
		{name: "missing token", wantStatus: http.StatusUnauthorized},
		{name: "bearer header", header: "Bearer " + valid, wantStatus: http.StatusOK, wantBody: "supervisor sup@example.com"},
		{name: "query parameter", query: "?token=" + valid, wantStatus: http.StatusOK, wantBody: "supervisor sup@example.com"},
		{name: "expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not-a-jwt", wantStatus: http.StatusUnauthorized},
		{name: "no bearer prefix", header: valid, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ws"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && rr.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestMiddlewareSkipAuth(t *testing.T) {
	a := NewAuthenticator(Options{SkipAuth: true}, zerolog.Nop())
	handler := a.Middleware(http.HandlerFunc(echoUser))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ws", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "admin dev@pbxlive.local" {
		t.Errorf("body = %q", rr.Body.String())
	}
}

func TestVerifySignatureWithoutIssuer(t *testing.T) {
	a := NewAuthenticator(Options{VerifySignature: true}, zerolog.Nop())
	handler := a.Middleware(http.HandlerFunc(echoUser))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{"email": "x@example.com"}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rr.Code)
	}
}

func TestRequireRole(t *testing.T) {
	a := NewAuthenticator(Options{}, zerolog.Nop())
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := a.Middleware(RequireRole(RoleAdmin, RoleSupervisor)(ok))

	tests := []struct {
		name  string
		roles []interface{}
		want  int
	}{
		{"admin", []interface{}{"admin"}, http.StatusNoContent},
		{"supervisor", []interface{}{"supervisor"}, http.StatusNoContent},
		{"agent", []interface{}{"agent"}, http.StatusForbidden},
		{"no roles", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signedToken(t, jwt.MapClaims{
				"realm_access": map[string]interface{}{"roles": tt.roles},
			})
			req := httptest.NewRequest(http.MethodPost, "/internal/agents/roster", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestExtractRole(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"keycloak priority", jwt.MapClaims{"realm_access": map[string]interface{}{"roles": []interface{}{"viewer", "admin"}}}, RoleAdmin},
		{"cognito group", jwt.MapClaims{"cognito:groups": []interface{}{"callcenter-supervisors"}}, RoleSupervisor},
		{"unknown roles", jwt.MapClaims{"realm_access": map[string]interface{}{"roles": []interface{}{"offline_access"}}}, RoleViewer},
		{"nothing", jwt.MapClaims{}, RoleViewer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractRole(tt.claims); got != tt.want {
				t.Errorf("extractRole() = %s, want %s", got, tt.want)
			}
		})
	}
}
