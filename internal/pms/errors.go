// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package pms

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider API failures. The kind drives retry
// behavior: auth errors trigger one token refresh, rate limit and server
// errors are retried with backoff, validation and configuration errors are
// never retried.
type ErrorKind string

const (
	KindAuth          ErrorKind = "auth"
	KindRateLimit     ErrorKind = "rate_limit"
	KindServer        ErrorKind = "server"
	KindNetwork       ErrorKind = "network"
	KindValidation    ErrorKind = "validation"
	KindConfiguration ErrorKind = "configuration"

	// KindAPI covers requests the provider accepted at the HTTP level but
	// rejected in the response envelope (success=false).
	KindAPI ErrorKind = "api"
)

// APIError is the error type returned for failed provider calls.
type APIError struct {
	Kind       ErrorKind
	Endpoint   string
	StatusCode int
	Message    string
	RequestID  string
	Err        error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("pms %s: %s error", e.Endpoint, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

// KindOf returns the error kind, or "" if err is not an APIError.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// Retriable reports whether the failure may succeed on a later attempt.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindServer, KindNetwork:
		return true
	}
	return false
}

// classifyStatus maps an HTTP status code to an error kind.
func classifyStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429:
		return KindRateLimit
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}
