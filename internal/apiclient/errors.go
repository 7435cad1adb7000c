// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrSessionExpired is returned (wrapped) for every response with status 401.
// Use errors.Is to detect it; errors.As still yields the *RemoteError.
var ErrSessionExpired = errors.New("session expired")

// RemoteError is a response received with a non-success status.
type RemoteError struct {
	Method string
	Path   string
	Status int
	Body   []byte
}

func (e *RemoteError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, string(e.Body))
}

// NotFound reports whether the service answered 404.
func (e *RemoteError) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// TransportError means no response was obtained: DNS, connection, timeout,
// cancelled context or an unreadable body.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// sessionExpiredError ties a 401 RemoteError to ErrSessionExpired.
type sessionExpiredError struct {
	remote *RemoteError
}

func (e *sessionExpiredError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSessionExpired, e.remote)
}

func (e *sessionExpiredError) Is(target error) bool { return target == ErrSessionExpired }

func (e *sessionExpiredError) Unwrap() error { return e.remote }

// StatusCode returns the HTTP status carried by err, or 0 if err did not come
// from a service response.
func StatusCode(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}
