/*
Copyright 2024 Gravitational, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package client is an HTTP client for the marketplace API that authenticates
// requests with the session's access token and transparently refreshes an
// expired token once, even when many requests hit the expiry at the same time.
package client

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"

	"github.com/campusmarket/market-client/lib"
	"github.com/campusmarket/market-client/lib/logger"
	"github.com/campusmarket/market-client/session"
	"github.com/campusmarket/market-client/session/storage"
)

const (
	defaultRefreshRetryInterval = 1 * time.Minute
	defaultTokenBufferInterval  = 30 * time.Second
	defaultRefreshBackoffCap    = 10 * time.Minute
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config holds the collaborators of a Client.
type Config struct {
	// Session is the shared in-memory session. Required.
	Session *session.Session
	// Storage holds the durable refresh token. Required.
	Storage storage.Store
	// Refresher exchanges a refresh token for an access token. Defaults to
	// the API's /auth/refresh-token endpoint.
	Refresher Refresher
	// Notifier is told when the session is forcibly ended.
	Notifier Notifier
	// Clock drives the proactive refresh loop.
	Clock clockwork.Clock
	// Log is the client logger.
	Log logrus.FieldLogger

	// RetryInterval is how often the refresh loop re-checks a token it cannot schedule.
	RetryInterval time.Duration
	// TokenBufferInterval is how long before expiry the refresh loop refreshes.
	TokenBufferInterval time.Duration
}

func (c *Config) CheckAndSetDefaults() error {
	if c.Session == nil {
		return trace.BadParameter("missing required value Session")
	}
	if c.Storage == nil {
		return trace.BadParameter("missing required value Storage")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Log == nil {
		c.Log = logger.Standard()
	}
	if c.Notifier == nil {
		c.Notifier = logNotifier{log: c.Log}
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = defaultRefreshRetryInterval
	}
	if c.TokenBufferInterval <= 0 {
		c.TokenBufferInterval = defaultTokenBufferInterval
	}
	return nil
}

// Client is a wrapper around resty.Client.
type Client struct {
	api       *resty.Client
	session   *session.Session
	storage   storage.Store
	refresher Refresher
	notifier  Notifier
	clock     clockwork.Clock
	log       logrus.FieldLogger

	retryInterval       time.Duration
	tokenBufferInterval time.Duration

	refresh coordinator
}

// New builds a client for the API described by apiConf.
func New(apiConf lib.APIConfig, conf Config) (*Client, error) {
	if err := apiConf.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}
	if err := conf.CheckAndSetDefaults(); err != nil {
		return nil, trace.Wrap(err)
	}

	tlsConf, err := apiConf.TLSConfig()
	if err != nil {
		return nil, trace.Wrap(err)
	}

	api := resty.NewWithClient(&http.Client{
		Timeout: apiConf.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxConnsPerHost:     apiConf.MaxConns,
			MaxIdleConnsPerHost: apiConf.MaxConns,
			TLSClientConfig:     tlsConf,
		},
	})
	api.SetBaseURL(apiConf.URL)
	api.SetHeader("Content-Type", "application/json")
	api.SetHeader("Accept", "application/json")
	api.SetLogger(conf.Log)
	api.JSONMarshal = json.Marshal
	api.JSONUnmarshal = json.Unmarshal

	c := &Client{
		api:                 api,
		session:             conf.Session,
		storage:             conf.Storage,
		refresher:           conf.Refresher,
		notifier:            conf.Notifier,
		clock:               conf.Clock,
		log:                 conf.Log,
		retryInterval:       conf.RetryInterval,
		tokenBufferInterval: conf.TokenBufferInterval,
	}
	if c.refresher == nil {
		c.refresher = NewAPIRefresher(api)
	}

	api.OnBeforeRequest(setRequestID)
	api.OnBeforeRequest(c.authenticate)
	api.OnAfterResponse(c.onAfterResponse)

	return c, nil
}

// Session returns the session the client authenticates with.
func (c *Client) Session() *session.Session {
	return c.session
}

// Storage returns the durable refresh token storage.
func (c *Client) Storage() storage.Store {
	return c.storage
}

func (c *Client) logFor(ctx context.Context) logrus.FieldLogger {
	return logger.From(ctx, c.log)
}

// R returns a new request bound to ctx.
func (c *Client) R(ctx context.Context) *resty.Request {
	return c.api.R().SetContext(ctx)
}

// Execute sends the request. If the API reports an expired access token the
// request is replayed once with a refreshed token; any other failure, and a
// failure of the replay, is returned to the caller.
//
// Request bodies must be replayable, i.e. not an io.Reader.
func (c *Client) Execute(req *resty.Request, method, url string) (*resty.Response, error) {
	resp, err := req.Execute(method, url)
	err = normalize(resp, err)
	if err == nil || !IsTokenExpired(err) {
		return resp, trace.Wrap(err)
	}

	ctx := req.Context()
	log := c.logFor(ctx).WithFields(logrus.Fields{"method": method, "url": url})
	log.Debug("Access token expired, waiting for a refreshed token")

	// A 401 that arrives after another request finished the refresh needs no
	// refresh of its own.
	token, ok := c.session.AccessToken()
	if !ok || token == sentAccessToken(req) {
		var refreshErr error
		if token, refreshErr = c.refreshAccessToken(ctx); refreshErr != nil {
			return resp, trace.Wrap(refreshErr)
		}
	} else {
		log.Debug("Access token was refreshed meanwhile, replaying with the current token")
	}

	// The replay is final: a second expiry goes back to the caller.
	req.SetHeader("Authorization", "Bearer "+token)
	resp, err = req.Execute(method, url)
	if err = normalize(resp, err); err != nil {
		log.WithError(err).Debug("Replayed request failed")
		return resp, trace.Wrap(err)
	}
	return resp, nil
}

// Get is Execute with the GET method.
func (c *Client) Get(req *resty.Request, url string) (*resty.Response, error) {
	return c.Execute(req, resty.MethodGet, url)
}

// Post is Execute with the POST method.
func (c *Client) Post(req *resty.Request, url string) (*resty.Response, error) {
	return c.Execute(req, resty.MethodPost, url)
}

// Put is Execute with the PUT method.
func (c *Client) Put(req *resty.Request, url string) (*resty.Response, error) {
	return c.Execute(req, resty.MethodPut, url)
}

// Patch is Execute with the PATCH method.
func (c *Client) Patch(req *resty.Request, url string) (*resty.Response, error) {
	return c.Execute(req, resty.MethodPatch, url)
}

// Delete is Execute with the DELETE method.
func (c *Client) Delete(req *resty.Request, url string) (*resty.Response, error) {
	return c.Execute(req, resty.MethodDelete, url)
}

// onAfterResponse turns every non-2xx response into a ServerError. A 500
// telling that the refresh token expired ends the session, whichever request
// received it.
func (c *Client) onAfterResponse(_ *resty.Client, resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}
	serverErr := newServerError(resp)
	if isRefreshTokenDead(serverErr) {
		c.ForceLogout(resp.Request.Context(), serverErr)
	}
	return serverErr
}
