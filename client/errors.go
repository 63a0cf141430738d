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
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/gravitational/trace"
	"github.com/tidwall/gjson"
)

const (
	// DefaultServerErrorMessage is used when the API error body carries no message.
	DefaultServerErrorMessage = "Server error occurred"
	// NoResponseMessage is the message of every NetworkError.
	NoResponseMessage = "No response from server. Please check your internet connection."
	// DefaultRequestErrorMessage is used when a request fails before it is sent
	// and the cause has no message.
	DefaultRequestErrorMessage = "An error occurred while preparing the request"
	// MalformedResponseMessage is used when a successful response body cannot be decoded.
	MalformedResponseMessage = "Server sent a malformed response"

	// TokenExpiredMessage is the 401 message the API sends for an expired access token.
	TokenExpiredMessage = "Unauthorized: Token has expired"
	// RefreshTokenExpiredMessage is the message the API sends once the refresh token is dead.
	RefreshTokenExpiredMessage = "Refresh token expired"
)

// ServerError is an API response with a non-2xx status, or a response whose
// body could not be decoded.
type ServerError struct {
	Status  int
	Message string
	// Errors is the decoded "errors" field of the body, e.g. field validation failures.
	Errors interface{}
	Code   string
	// Err is the decoding failure, if any.
	Err error

	body string
}

func (e *ServerError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (status: %d, code: %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("%s (status: %d)", e.Message, e.Status)
}

func (e *ServerError) Unwrap() error {
	return e.Err
}

// NetworkError is a request that was sent but got no response.
type NetworkError struct {
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// RequestError is a request that could not be built or sent.
type RequestError struct {
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

func newServerError(resp *resty.Response) *ServerError {
	body := resp.Body()
	serverErr := &ServerError{
		Status:  resp.StatusCode(),
		Message: DefaultServerErrorMessage,
		body:    string(body),
	}
	if !gjson.ValidBytes(body) {
		return serverErr
	}
	// message may be a plain string or a nested object
	if message := gjson.GetBytes(body, "message"); message.Exists() && message.String() != "" {
		serverErr.Message = message.String()
	}
	if errs := gjson.GetBytes(body, "errors"); errs.Exists() {
		serverErr.Errors = errs.Value()
	}
	if code := gjson.GetBytes(body, "code"); code.Exists() {
		serverErr.Code = code.String()
	}
	return serverErr
}

func newRequestError(err error) *RequestError {
	message := DefaultRequestErrorMessage
	if err != nil && err.Error() != "" {
		message = err.Error()
	}
	return &RequestError{Message: message, Err: err}
}

// normalize maps the outcome of a resty call to a ServerError, a NetworkError
// or a RequestError.
func normalize(resp *resty.Response, err error) error {
	if err == nil {
		if resp != nil && resp.IsError() {
			return trace.Wrap(newServerError(resp))
		}
		return nil
	}

	var serverErr *ServerError
	var networkErr *NetworkError
	var requestErr *RequestError
	switch {
	case errors.As(err, &serverErr), errors.As(err, &networkErr), errors.As(err, &requestErr):
		return trace.Wrap(err)
	case resp == nil:
		// resty fails before creating a response only while preparing the request
		return trace.Wrap(newRequestError(err))
	case resp.RawResponse == nil:
		return trace.Wrap(&NetworkError{Message: NoResponseMessage, Err: err})
	case resp.IsError():
		return trace.Wrap(newServerError(resp))
	default:
		// the response arrived but its body did not decode
		return trace.Wrap(&ServerError{
			Status:  resp.StatusCode(),
			Message: MalformedResponseMessage,
			Err:     err,
			body:    string(resp.Body()),
		})
	}
}

// AsServerError returns the ServerError in the chain, if any.
func AsServerError(err error) (*ServerError, bool) {
	var serverErr *ServerError
	if errors.As(trace.Unwrap(err), &serverErr) || errors.As(err, &serverErr) {
		return serverErr, true
	}
	return nil, false
}

// IsServerError reports whether the API answered with a non-2xx status.
func IsServerError(err error) bool {
	_, ok := AsServerError(err)
	return ok
}

// IsNetworkError reports whether the request got no response.
func IsNetworkError(err error) bool {
	var networkErr *NetworkError
	return errors.As(trace.Unwrap(err), &networkErr) || errors.As(err, &networkErr)
}

// IsRequestError reports whether the request could not be prepared.
func IsRequestError(err error) bool {
	var requestErr *RequestError
	return errors.As(trace.Unwrap(err), &requestErr) || errors.As(err, &requestErr)
}

// StatusCode returns the HTTP status of a ServerError and 0 otherwise.
func StatusCode(err error) int {
	if serverErr, ok := AsServerError(err); ok {
		return serverErr.Status
	}
	return 0
}

// IsTokenExpired reports whether the API rejected the access token as expired.
// Other 401 responses are not considered expired tokens.
func IsTokenExpired(err error) bool {
	serverErr, ok := AsServerError(err)
	return ok && serverErr.Status == http.StatusUnauthorized && serverErr.Message == TokenExpiredMessage
}

// IsRefreshTokenExpired reports whether the error text or the raw API payload
// mentions an expired refresh token, in any casing.
func IsRefreshTokenExpired(err error) bool {
	if err == nil {
		return false
	}
	if serverErr, ok := AsServerError(err); ok {
		if mentionsRefreshTokenExpiry(serverErr.Message) || mentionsRefreshTokenExpiry(serverErr.body) {
			return true
		}
	}
	return mentionsRefreshTokenExpiry(err.Error())
}

func isRefreshTokenDead(serverErr *ServerError) bool {
	return serverErr.Status == http.StatusInternalServerError && mentionsRefreshTokenExpiry(serverErr.Message)
}

func mentionsRefreshTokenExpiry(text string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(RefreshTokenExpiredMessage))
}
