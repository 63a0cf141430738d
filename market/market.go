// Package market is a client for the campus marketplace API: signing in and
// out, the user profile and listings.
package market

import (
	"context"
	"net/http"

	"github.com/google/go-querystring/query"
	"github.com/gravitational/trace"

	"github.com/campusmarket/market-client/client"
	"github.com/campusmarket/market-client/lib"
	"github.com/campusmarket/market-client/lib/logger"
	"github.com/campusmarket/market-client/session"
)

const (
	loginPath  = "/auth/login"
	logoutPath = "/auth/logout"
	mePath     = "/users/me"
)

// Service calls the marketplace API through an authenticated client.
type Service struct {
	client *client.Client
}

func NewService(c *client.Client) *Service {
	return &Service{client: c}
}

// Login signs the user in, keeps the refresh token in durable storage and
// the access token in the session.
func (s *Service) Login(ctx context.Context, email, password string) (*session.User, error) {
	if email == "" || password == "" {
		return nil, trace.BadParameter("email and password are required")
	}

	var result loginResponse
	req := s.client.R(ctx).
		SetBody(&loginRequest{Email: email, Password: password}).
		SetResult(&result)
	if _, err := s.client.Post(req, loginPath); err != nil {
		return nil, trace.Wrap(err)
	}

	data := result.Data
	if data.AccessToken == "" || data.RefreshToken == "" {
		return nil, trace.BadParameter("login response contains no tokens")
	}
	if err := s.client.Storage().PutRefreshToken(ctx, data.RefreshToken); err != nil {
		return nil, trace.Wrap(err, "failed to store the refresh token")
	}
	s.client.Session().Login(session.Credentials{
		AccessToken:  data.AccessToken,
		RefreshToken: data.RefreshToken,
	}, data.User)

	logger.Get(ctx).WithField("email", email).Debug("Signed in")
	return s.client.Session().User(), nil
}

// Logout revokes the refresh token on the API, if it can, and signs out locally.
func (s *Service) Logout(ctx context.Context) error {
	log := logger.Get(ctx)

	refreshToken, err := s.client.Storage().GetRefreshToken(ctx)
	if err != nil && !trace.IsNotFound(err) {
		log.WithError(err).Warn("Failed to read the stored refresh token")
	}
	if s.client.Session().IsAuthenticated() {
		req := s.client.R(ctx).SetBody(&logoutRequest{RefreshToken: refreshToken})
		if _, err := s.client.Post(req, logoutPath); err != nil {
			log.WithError(err).Warn("Failed to revoke the session on the API")
		}
	}

	s.client.Session().Logout()
	return trace.Wrap(s.client.Storage().DeleteRefreshToken(ctx))
}

// Restore re-establishes the session from the stored refresh token, e.g. when
// the process starts. An already authenticated session is left alone.
func (s *Service) Restore(ctx context.Context) (*session.User, error) {
	if s.client.Session().IsAuthenticated() {
		return s.client.Session().User(), nil
	}
	if _, err := s.client.Storage().GetRefreshToken(ctx); err != nil {
		return nil, trace.Wrap(err)
	}
	accessToken, err := s.client.RefreshAccessToken(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	// the refresh may have rotated the stored token
	refreshToken, err := s.client.Storage().GetRefreshToken(ctx)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	s.client.Session().Login(session.Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil)
	return s.Me(ctx)
}

// Me fetches the signed-in user and caches it in the session.
func (s *Service) Me(ctx context.Context) (*session.User, error) {
	var result userResponse
	if _, err := s.client.Get(s.client.R(ctx).SetResult(&result), mePath); err != nil {
		return nil, trace.Wrap(err)
	}
	if result.Data == nil {
		return nil, trace.NotFound("profile response contains no user")
	}
	s.client.Session().SetUser(result.Data)
	return s.client.Session().User(), nil
}

// ListListings returns a page of listings matching q.
func (s *Service) ListListings(ctx context.Context, q ListingsQuery) (*ListingsPage, error) {
	if err := q.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	values, err := query.Values(q)
	if err != nil {
		return nil, trace.Wrap(err)
	}

	var page ListingsPage
	req := s.client.R(ctx).
		SetQueryParamsFromValues(values).
		SetResult(&page)
	if _, err := s.client.Get(req, lib.BuildURLPath("listings")); err != nil {
		return nil, trace.Wrap(err)
	}
	return &page, nil
}

// GetListing returns a single listing.
func (s *Service) GetListing(ctx context.Context, id string) (*Listing, error) {
	if id == "" {
		return nil, trace.BadParameter("missing listing id")
	}

	var result listingResponse
	if _, err := s.client.Get(s.client.R(ctx).SetResult(&result), lib.BuildURLPath("listings", id)); err != nil {
		if client.StatusCode(err) == http.StatusNotFound {
			return nil, trace.NotFound("listing %q not found", id)
		}
		return nil, trace.Wrap(err)
	}
	if result.Data == nil {
		return nil, trace.NotFound("listing %q not found", id)
	}
	return result.Data, nil
}

// CreateListing publishes a new listing as the signed-in user.
func (s *Service) CreateListing(ctx context.Context, in ListingInput) (*Listing, error) {
	if err := in.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}

	var result listingResponse
	req := s.client.R(ctx).SetBody(&in).SetResult(&result)
	if _, err := s.client.Post(req, lib.BuildURLPath("listings")); err != nil {
		return nil, trace.Wrap(err)
	}
	if result.Data == nil {
		return nil, trace.BadParameter("create response contains no listing")
	}
	return result.Data, nil
}
