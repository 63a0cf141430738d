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

package client

import (
	"context"
	"sync"

	"github.com/gravitational/trace"
)

type refreshResult struct {
	token string
	err   error
}

// coordinator makes sure at most one token refresh is in flight. The first
// caller becomes the driver and performs the refresh, callers arriving while
// it runs are parked until it settles.
type coordinator struct {
	mu         sync.Mutex
	refreshing bool
	parked     []chan refreshResult
}

// join returns (nil, true) when the caller must drive the refresh, or a
// channel that receives exactly one result otherwise.
func (co *coordinator) join() (<-chan refreshResult, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()

	if co.refreshing {
		wait := make(chan refreshResult, 1)
		co.parked = append(co.parked, wait)
		return wait, false
	}
	co.refreshing = true
	return nil, true
}

// settle returns the coordinator to idle and releases every parked caller
// with the result of the refresh.
func (co *coordinator) settle(result refreshResult) {
	co.mu.Lock()
	parked := co.parked
	co.parked = nil
	co.refreshing = false
	co.mu.Unlock()

	for _, wait := range parked {
		wait <- result
	}
}

// inFlight reports whether a refresh is running and how many callers wait for it.
func (co *coordinator) inFlight() (bool, int) {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.refreshing, len(co.parked)
}

// RefreshAccessToken exchanges the stored refresh token for a new access
// token. It joins a refresh that is already running instead of starting another.
func (c *Client) RefreshAccessToken(ctx context.Context) (string, error) {
	token, err := c.refreshAccessToken(ctx)
	return token, trace.Wrap(err)
}

// refreshAccessToken returns a fresh access token, either by refreshing it or
// by waiting for the refresh already in flight.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	wait, driver := c.refresh.join()
	if !driver {
		select {
		case result := <-wait:
			return result.token, trace.Wrap(result.err)
		case <-ctx.Done():
			return "", trace.Wrap(ctx.Err())
		}
	}

	result := refreshResult{err: trace.Errorf("access token refresh aborted")}
	defer func() {
		c.refresh.settle(result)
	}()

	// Parked callers share this refresh, it must not be canceled with the driver.
	result.token, result.err = c.doRefresh(context.WithoutCancel(ctx))
	return result.token, trace.Wrap(result.err)
}

func (c *Client) doRefresh(ctx context.Context) (string, error) {
	log := c.logFor(ctx)

	// A logout while the refresh runs must not be undone by its result.
	generation := c.session.Generation()

	refreshToken, err := c.storage.GetRefreshToken(ctx)
	if err != nil {
		return "", trace.Wrap(err, "failed to read the stored refresh token")
	}

	start := c.clock.Now()
	log.Debug("Refreshing access token")
	result, err := c.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		if IsRefreshTokenExpired(err) {
			c.ForceLogout(ctx, err)
		}
		log.WithError(err).Warn("Failed to refresh access token")
		return "", trace.Wrap(err)
	}

	if !c.session.SetAccessTokenIf(result.AccessToken, generation) {
		log.Warn("Session ended while the access token was being refreshed, dropping the new token")
		return "", trace.AccessDenied("session ended while the access token was being refreshed")
	}
	if result.RefreshToken != "" && result.RefreshToken != refreshToken {
		if err := c.storage.PutRefreshToken(ctx, result.RefreshToken); err != nil {
			log.WithError(err).Error("Failed to store the rotated refresh token")
		}
	}

	log.Debugf("Successfully refreshed access token in %s", c.clock.Since(start))
	return result.AccessToken, nil
}
