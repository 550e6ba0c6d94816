package remote

import (
	"context"
	"fmt"
	"net/http"

	"digidiary/internal/domain"
)

// AuthClient covers the account endpoints of the sync server.
type AuthClient struct {
	client *Client
}

func NewAuthClient(client *Client) *AuthClient {
	return &AuthClient{client: client}
}

func (a *AuthClient) Register(ctx context.Context, req *domain.RegisterRequest) error {
	if err := a.client.do(ctx, http.MethodPost, "/api/v1/auth/register", req, nil, false); err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}
	return nil
}

func (a *AuthClient) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	var resp domain.LoginResponse
	if err := a.client.do(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp, false); err != nil {
		return nil, fmt.Errorf("failed to log in: %w", err)
	}
	return &resp, nil
}

func (a *AuthClient) Refresh(ctx context.Context, refreshToken string) (*domain.TokenResponse, error) {
	var resp domain.TokenResponse
	req := &domain.RefreshTokenRequest{RefreshToken: refreshToken}
	if err := a.client.do(ctx, http.MethodPost, "/api/v1/auth/refresh", req, &resp, false); err != nil {
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return &resp, nil
}

func (a *AuthClient) Logout(ctx context.Context) error {
	if err := a.client.do(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil, false); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	return nil
}

func (a *AuthClient) ChangePassword(ctx context.Context, req *domain.ChangePasswordRequest) error {
	if err := a.client.do(ctx, http.MethodPut, "/api/v1/users/me/password", req, nil, true); err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}
	return nil
}

func (a *AuthClient) Me(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := a.client.do(ctx, http.MethodGet, "/api/v1/users/me", nil, &user, true); err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &user, nil
}
