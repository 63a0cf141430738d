package client

import (
	"context"

	"github.com/go-resty/resty/v2"
	"github.com/gravitational/trace"
)

// RefreshTokenPath is the API endpoint that exchanges a refresh token.
const RefreshTokenPath = "/auth/refresh-token"

// RefreshResult is the outcome of a successful refresh.
type RefreshResult struct {
	AccessToken string
	// RefreshToken is set when the API rotated the refresh token.
	RefreshToken string
}

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (*RefreshResult, error)

// Refresh implements Refresher
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	return f(ctx, refreshToken)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	Data struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken,omitempty"`
	} `json:"data"`
}

// APIRefresher calls the refresh endpoint of the marketplace API.
type APIRefresher struct {
	client *resty.Client
}

// NewAPIRefresher returns a refresher using the given resty client. The call
// does not go through the refresh coordinator, so an expired token reported
// by the refresh endpoint is just an error.
func NewAPIRefresher(client *resty.Client) *APIRefresher {
	return &APIRefresher{client: client}
}

// Refresh implements Refresher
func (a *APIRefresher) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	var result refreshResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(&refreshRequest{RefreshToken: refreshToken}).
		SetResult(&result).
		Post(RefreshTokenPath)
	if err := normalize(resp, err); err != nil {
		return nil, trace.Wrap(err)
	}

	if result.Data.AccessToken == "" {
		return nil, trace.BadParameter("refresh response contains no access token")
	}

	return &RefreshResult{
		AccessToken:  result.Data.AccessToken,
		RefreshToken: result.Data.RefreshToken,
	}, nil
}

var _ Refresher = &APIRefresher{}
