package client

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gravitational/trace"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/campusmarket/market-client/lib"
	"github.com/campusmarket/market-client/session"
	"github.com/campusmarket/market-client/session/storage"
)

func signedToken(t *testing.T, expires time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "user-1"}
	if !expires.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expires)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestAccessTokenExpiry(t *testing.T) {
	expires := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

	got, err := accessTokenExpiry(signedToken(t, expires))
	require.NoError(t, err)
	require.True(t, expires.Equal(got))

	_, err = accessTokenExpiry(signedToken(t, time.Time{}))
	require.True(t, trace.IsNotFound(err))

	_, err = accessTokenExpiry("opaque-token")
	require.True(t, trace.IsBadParameter(err))
}

func TestRefreshLoop(t *testing.T) {
	log := logrus.New()
	log.Level = logrus.DebugLevel

	newClient := func(t *testing.T, clock clockwork.Clock, sess *session.Session, refresher Refresher) *Client {
		store := storage.NewMemoryStore()
		require.NoError(t, store.PutRefreshToken(context.Background(), "my-refresh-token"))

		client, err := New(lib.APIConfig{URL: "http://127.0.0.1:1"}, Config{
			Session:             sess,
			Storage:             store,
			Refresher:           refresher,
			Clock:               clock,
			Log:                 log,
			RetryInterval:       1 * time.Minute,
			TokenBufferInterval: 1 * time.Hour,
		})
		require.NoError(t, err)
		return client
	}

	t.Run("Refresh", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		initialToken := signedToken(t, clock.Now().Add(2*time.Hour))
		var newToken string

		sess := session.New()
		sess.Login(session.Credentials{AccessToken: initialToken, RefreshToken: "my-refresh-token"}, nil)

		var refreshCalled int32
		refresher := RefresherFunc(func(ctx context.Context, refreshToken string) (*RefreshResult, error) {
			require.Equal(t, "my-refresh-token", refreshToken)
			// fail the first call
			if atomic.AddInt32(&refreshCalled, 1) == 1 {
				return nil, trace.Errorf("some error")
			}
			newToken = signedToken(t, clock.Now().Add(2*time.Hour))
			return &RefreshResult{AccessToken: newToken}, nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client := newClient(t, clock, sess, refresher)
		go client.RefreshLoop(ctx)

		clock.BlockUntil(1)
		require.Zero(t, atomic.LoadInt32(&refreshCalled)) // before attempting refresh

		clock.Advance(1 * time.Hour) // trigger refresh (2 hours - 1 hour buffer)
		clock.BlockUntil(1)
		require.Equal(t, int32(1), atomic.LoadInt32(&refreshCalled)) // after first refresh has failed
		token, _ := sess.AccessToken()
		require.Equal(t, initialToken, token)

		clock.Advance(defaultRefreshBackoffCap) // trigger refresh (after backoff)
		clock.BlockUntil(1)
		require.Equal(t, int32(2), atomic.LoadInt32(&refreshCalled))
		token, _ = sess.AccessToken()
		require.Equal(t, newToken, token)
	})

	t.Run("OpaqueToken", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		sess := session.New()
		sess.Login(session.Credentials{AccessToken: "opaque-token"}, nil)

		refresher := RefresherFunc(func(ctx context.Context, refreshToken string) (*RefreshResult, error) {
			t.Error("opaque tokens must not be refreshed proactively")
			return nil, trace.NotImplemented("unexpected refresh")
		})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client := newClient(t, clock, sess, refresher)
		require.Equal(t, time.Minute, client.refreshPeriod())
		require.False(t, client.shouldRefresh())

		go client.RefreshLoop(ctx)
		clock.BlockUntil(1)
		clock.Advance(time.Minute)
		clock.BlockUntil(1)
	})

	t.Run("Cancel", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		sess := session.New()
		sess.Login(session.Credentials{AccessToken: signedToken(t, clock.Now().Add(2*time.Hour))}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client := newClient(t, clock, sess, nil)
		finished := make(chan struct{}, 1)

		go func() {
			client.RefreshLoop(ctx)
			finished <- struct{}{}
		}()

		cancel()
		require.Eventually(t, func() bool {
			select {
			case <-finished:
				return true
			default:
				return false
			}
		}, time.Second, time.Second/10)
	})
}
