package api

import (
	"context"

	"github.com/rickgao/livesync/internal/model"
)

// Login exchanges user credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) (model.Credentials, error) {
	var resp tokenResponse
	if err := c.postAnonymous(ctx, "/auth/login/", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return model.Credentials{}, err
	}
	return model.Credentials{AccessToken: resp.Access, RefreshToken: resp.Refresh}, nil
}

// RefreshCredentials exchanges a refresh token for a new token pair. When
// the server does not rotate the refresh token the old one is kept.
func (c *Client) RefreshCredentials(ctx context.Context, refreshToken string) (model.Credentials, error) {
	var resp tokenResponse
	if err := c.postAnonymous(ctx, "/auth/token/refresh/", refreshRequest{Refresh: refreshToken}, &resp); err != nil {
		return model.Credentials{}, err
	}
	creds := model.Credentials{AccessToken: resp.Access, RefreshToken: resp.Refresh}
	if creds.RefreshToken == "" {
		creds.RefreshToken = refreshToken
	}
	return creds, nil
}

// CurrentUser fetches the signed-in user.
func (c *Client) CurrentUser(ctx context.Context) (model.User, error) {
	var u model.User
	err := c.get(ctx, "/auth/me/", nil, &u)
	return u, err
}
