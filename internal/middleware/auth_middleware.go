package middleware

import (
	"context"
	"net/http"
	"strings"

	"digidiary/pkg/jwt"
	"digidiary/pkg/response"
)

type contextKey string

const (
	UserIDKey   contextKey = "userID"
	DeviceIDKey contextKey = "deviceID"
)

// DeviceIDHeader names the writing device so that change events are not
// echoed back to it.
const DeviceIDHeader = "X-Device-ID"

func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.Unauthorized(w, "Missing authorization header")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.Unauthorized(w, "Invalid authorization header format")
				return
			}

			claims, err := jwt.ValidateToken(parts[1], jwtSecret)
			if err != nil || claims.IsRefresh() {
				response.Unauthorized(w, "Invalid or expired token")
				return
			}

			recordUser(r.Context(), claims.UserID)

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, DeviceIDKey, r.Header.Get(DeviceIDHeader))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetUserID(r *http.Request) string {
	userID, ok := r.Context().Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

func GetDeviceID(r *http.Request) string {
	deviceID, _ := r.Context().Value(DeviceIDKey).(string)
	return deviceID
}
