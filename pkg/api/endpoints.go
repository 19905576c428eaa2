package api

import (
	"context"
	"net/http"
	"net/url"
)

// Salt returns the base64 salt stored for email.
func (c *Client) Salt(ctx context.Context, email string) (string, error) {
	var resp SaltResponse
	if err := c.do(ctx, http.MethodPost, "/auth/salt", SaltRequest{Email: email}, &resp); err != nil {
		return "", err
	}
	return resp.Salt, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*MessageResponse, error) {
	var resp MessageResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges a login proof for session tokens.
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh exchanges a refresh token for a rotated pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var resp TokenPair
	if err := c.do(ctx, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes the refresh token.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", RefreshRequest{RefreshToken: refreshToken}, nil)
}

// ListPasswords returns every stored password item.
func (c *Client) ListPasswords(ctx context.Context) ([]PasswordItem, error) {
	var items []PasswordItem
	if err := c.doAuth(ctx, http.MethodGet, "/passwords", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// CreatePassword stores a new item.
func (c *Client) CreatePassword(ctx context.Context, in *PasswordInput) (*PasswordItem, error) {
	var item PasswordItem
	if err := c.doAuth(ctx, http.MethodPost, "/passwords", in, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdatePassword applies patch to item id.
func (c *Client) UpdatePassword(ctx context.Context, id ItemID, patch *PasswordPatch) (*PasswordItem, error) {
	var item PasswordItem
	if err := c.doAuth(ctx, http.MethodPut, "/passwords/"+url.PathEscape(id.String()), patch, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DeletePassword removes item id.
func (c *Client) DeletePassword(ctx context.Context, id ItemID) error {
	var resp DeleteResponse
	return c.doAuth(ctx, http.MethodDelete, "/passwords/"+url.PathEscape(id.String()), nil, &resp)
}
