package apiclient

import (
	"context"
	"net/http"

	"github.com/agchavez/interlace/internal/models"
)

// Login exchanges credentials for a token pair
func (c *Client) Login(ctx context.Context, creds models.Credentials) (*models.TokenPair, error) {
	var pair models.TokenPair
	if err := c.sendJSON(ctx, nil, http.MethodPost, "/auth/login/", creds, &pair); err != nil {
		return nil, err
	}
	return &pair, nil
}

// Refresh exchanges a refresh token for a new access token. The claims API
// may rotate the refresh token; an empty Refresh in the result keeps the
// old one.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	var pair models.TokenPair
	body := map[string]string{"refresh": refreshToken}
	if err := c.sendJSON(ctx, nil, http.MethodPost, "/auth/refresh/", body, &pair); err != nil {
		return nil, err
	}
	if pair.Refresh == "" {
		pair.Refresh = refreshToken
	}
	return &pair, nil
}

// Me returns the signed in user
func (c *Client) Me(ctx context.Context, ts TokenSource) (*models.User, error) {
	var user models.User
	if err := c.getJSON(ctx, ts, "/auth/me/", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
