package client

import (
	"context"

	"github.com/sirupsen/logrus"
)

// SessionExpiredNotice is the user-facing text of a forced logout.
const SessionExpiredNotice = "Your session has expired. Please log in again."

// Notifier surfaces a forced logout to the user.
type Notifier interface {
	SessionExpired(ctx context.Context, reason error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, reason error)

// SessionExpired implements Notifier
func (f NotifierFunc) SessionExpired(ctx context.Context, reason error) {
	f(ctx, reason)
}

type logNotifier struct {
	log logrus.FieldLogger
}

func (n logNotifier) SessionExpired(_ context.Context, reason error) {
	n.log.WithError(reason).Warn(SessionExpiredNotice)
}

// ForceLogout ends the session: credentials and the cached user are cleared,
// the durable refresh token is deleted and the user is notified once.
func (c *Client) ForceLogout(ctx context.Context, reason error) {
	log := c.logFor(ctx)

	wasAuthenticated := c.session.Logout()
	// cleanup must not be skipped because the triggering request was canceled
	if err := c.storage.DeleteRefreshToken(context.WithoutCancel(ctx)); err != nil {
		log.WithError(err).Error("Failed to delete the stored refresh token")
	}
	if !wasAuthenticated {
		return
	}

	log.WithError(reason).Info("Session ended by the API")
	c.notifier.SessionExpired(ctx, reason)
}
