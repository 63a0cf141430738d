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
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gravitational/trace"

	"github.com/campusmarket/market-client/lib"
	"github.com/campusmarket/market-client/lib/backoff"
)

// RefreshLoop refreshes the access token shortly before it expires, until
// ctx is done. Refreshes share the single-flight coordinator with requests
// that hit an expired token, so both never refresh at the same time.
func (c *Client) RefreshLoop(ctx context.Context) {
	log := c.logFor(ctx)
	retry := backoff.NewDecorr(c.retryInterval, defaultRefreshBackoffCap, c.clock)

	refreshed := false
	for {
		period := c.refreshPeriod()
		// A freshly issued token that is already inside the buffer must not
		// be refreshed over and over.
		if refreshed && period <= 0 {
			period = c.retryInterval
		}
		log.Debugf("Will attempt token refresh in: %s", period)

		if err := c.sleep(ctx, period); err != nil {
			log.Debug("Shutting down")
			return
		}

		refreshed = false
		if !c.shouldRefresh() {
			continue
		}

		if _, err := c.refreshAccessToken(ctx); err != nil {
			if lib.IsCanceled(err) {
				log.Debug("Shutting down")
				return
			}
			log.WithError(err).Error("Error while refreshing the access token")
			if err := retry.Do(ctx); err != nil {
				log.Debug("Shutting down")
				return
			}
			continue
		}
		retry.Reset()
		refreshed = true
	}
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return trace.Wrap(ctx.Err())
	}
	select {
	case <-c.clock.After(d):
		return nil
	case <-ctx.Done():
		return trace.Wrap(ctx.Err())
	}
}

// refreshPeriod is the time left until the access token should be refreshed.
// Tokens that cannot be scheduled are looked at again after the retry interval.
func (c *Client) refreshPeriod() time.Duration {
	token, ok := c.session.AccessToken()
	if !ok {
		return c.retryInterval
	}
	expires, err := accessTokenExpiry(token)
	if err != nil {
		return c.retryInterval
	}
	d := expires.Sub(c.clock.Now()) - c.tokenBufferInterval
	if d < 0 {
		d = 0
	}
	return d
}

func (c *Client) shouldRefresh() bool {
	token, ok := c.session.AccessToken()
	if !ok {
		return false
	}
	expires, err := accessTokenExpiry(token)
	if err != nil {
		return false
	}
	return !c.clock.Now().Before(expires.Add(-c.tokenBufferInterval))
}

// accessTokenExpiry reads the exp claim of a JWT access token. The signature
// is not verified, the API does that.
func accessTokenExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, trace.BadParameter("access token is not a JWT: %v", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, trace.NotFound("access token has no expiry")
	}
	return claims.ExpiresAt.Time, nil
}
