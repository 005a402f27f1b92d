package gateway

import (
	"context"
	"fmt"
	"net/http"

	"folio/apitypes"
)

// Auth is the call group for /api/auth.
type Auth struct {
	c *Client
}

func (c *Client) Auth() *Auth {
	return &Auth{c: c}
}

// Login exchanges credentials for tokens.  It does not persist anything; that
// is the session store's job.
func (a *Auth) Login(ctx context.Context, creds apitypes.Credentials) (apitypes.AuthResponse, error) {
	if err := creds.Validate(); err != nil {
		return apitypes.AuthResponse{}, err
	}

	body, err := jsonBody(creds)
	if err != nil {
		return apitypes.AuthResponse{}, err
	}

	out := apitypes.AuthResponse{}
	err = a.c.do(ctx, &call{
		resource:    "Auth",
		operation:   "Login",
		method:      http.MethodPost,
		url:         a.c.endpoint("api", "auth", "login"),
		body:        body,
		contentType: "application/json",
		out:         &out,
	})
	if err != nil {
		return apitypes.AuthResponse{}, fmt.Errorf("while logging in as %q: %w", creds.Email, err)
	}
	if out.Token == "" {
		return apitypes.AuthResponse{}, fmt.Errorf("%w: login response carried no token", apitypes.ErrAuth)
	}
	return out, nil
}

// Logout invalidates the current token server-side.
func (a *Auth) Logout(ctx context.Context) error {
	err := a.c.do(ctx, &call{
		resource:  "Auth",
		operation: "Logout",
		method:    http.MethodPost,
		url:       a.c.endpoint("api", "auth", "logout"),
		auth:      true,
	})
	if err != nil {
		return fmt.Errorf("while logging out: %w", err)
	}
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Token string `json:"token"`
}

// RefreshToken trades a refresh token for a new bearer token.
func (a *Auth) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", fmt.Errorf("%w: no refresh token available", apitypes.ErrAuth)
	}

	body, err := jsonBody(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", err
	}

	out := refreshResponse{}
	err = a.c.do(ctx, &call{
		resource:    "Auth",
		operation:   "RefreshToken",
		method:      http.MethodPost,
		url:         a.c.endpoint("api", "auth", "refresh"),
		body:        body,
		contentType: "application/json",
		out:         &out,
	})
	if err != nil {
		return "", fmt.Errorf("while refreshing token: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: refresh response carried no token", apitypes.ErrAuth)
	}
	return out.Token, nil
}

// CurrentUser returns the identity behind the stored token.
func (a *Auth) CurrentUser(ctx context.Context) (apitypes.User, error) {
	out := apitypes.User{}
	err := a.c.do(ctx, &call{
		resource:  "Auth",
		operation: "CurrentUser",
		method:    http.MethodGet,
		url:       a.c.endpoint("api", "auth", "me"),
		auth:      true,
		out:       &out,
	})
	if err != nil {
		return apitypes.User{}, fmt.Errorf("while fetching current user: %w", err)
	}
	return out, nil
}
