package client

import (
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// authenticate attaches the session's access token to an outgoing request.
// A signed-out session leaves the headers untouched.
func (c *Client) authenticate(_ *resty.Client, req *resty.Request) error {
	if token, ok := c.session.AccessToken(); ok {
		req.SetHeader("Authorization", "Bearer "+token)
	}
	return nil
}

// sentAccessToken returns the access token req was last sent with.
func sentAccessToken(req *resty.Request) string {
	return strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
}

// setRequestID tags the request so that a replay carries the same ID as the
// original attempt.
func setRequestID(_ *resty.Client, req *resty.Request) error {
	if req.Header.Get(requestIDHeader) == "" {
		req.SetHeader(requestIDHeader, uuid.NewString())
	}
	return nil
}
