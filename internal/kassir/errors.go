// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package kassir

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNotFound            = errors.New("kassir: resource not found")
	ErrForbidden           = errors.New("kassir: access forbidden")
	ErrRejected            = errors.New("kassir: request rejected")
	ErrUpstreamUnavailable = errors.New("kassir: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("kassir: internal error (5xx)")
	ErrBadResponse         = errors.New("kassir: invalid response format or malformed data")
	ErrTimeout             = errors.New("kassir: request timed out")
)

// RemoteError describes a failed call to the ticketing API. It is non-fatal:
// callers record it as per-item data.
type RemoteError struct {
	Sentinel   error
	Op         string
	HTTPStatus int
	Message    string
	Err        error // lower-level cause (net.Error, context error, json error)
}

func (e *RemoteError) Error() string {
	msg := fmt.Sprintf("kassir: %s: %v", e.Op, e.Sentinel)
	if e.HTTPStatus > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.HTTPStatus)
	}
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the sentinel and the cause.
func (e *RemoteError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Err}
}

// StatusCode returns the HTTP status observed, or 0 when no response arrived.
func (e *RemoteError) StatusCode() int {
	return e.HTTPStatus
}

func sentinelForStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ErrTimeout
	case status >= 500:
		return ErrUpstreamError
	default:
		return ErrRejected
	}
}
