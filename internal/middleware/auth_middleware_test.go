package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"digidiary/pkg/jwt"
)

func TestAuthMiddleware(t *testing.T) {
	secret := "test-secret"

	access, err := jwt.GenerateToken("user-1", time.Hour, secret)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	refresh, err := jwt.GenerateRefreshToken("user-1", time.Hour, secret)
	if err != nil {
		t.Fatalf("failed to generate refresh token: %v", err)
	}
	foreign, _ := jwt.GenerateToken("user-1", time.Hour, "other-secret")

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid access token", header: "Bearer " + access, wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "bad scheme", header: "Token " + access, wantStatus: http.StatusUnauthorized},
		{name: "refresh token", header: "Bearer " + refresh, wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + foreign, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUser, gotDevice string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser = GetUserID(r)
				gotDevice = GetDeviceID(r)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/notes", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			req.Header.Set(DeviceIDHeader, "laptop")
			rec := httptest.NewRecorder()

			AuthMiddleware(secret)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if gotUser != "user-1" {
					t.Errorf("user id = %q, want user-1", gotUser)
				}
				if gotDevice != "laptop" {
					t.Errorf("device id = %q, want laptop", gotDevice)
				}
			}
		})
	}
}
