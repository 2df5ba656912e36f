// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package gcserr defines the stable error taxonomy shared across every
// component of the runtime. Every error that crosses a component boundary
// carries one of these kind codes so callers can branch on it without
// parsing strings.
package gcserr

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification code.
type Kind string

const (
	ValidationError   Kind = "VALIDATION_ERROR"
	ToolNotFound      Kind = "TOOL_NOT_FOUND"
	NoRoute           Kind = "NO_ROUTE"
	ExecutionTimeout  Kind = "EXECUTION_TIMEOUT"
	ExecutionFailed   Kind = "EXECUTION_FAILED"
	ApprovalDenied    Kind = "APPROVAL_DENIED"
	ApprovalTimeout   Kind = "APPROVAL_TIMEOUT"
	AuthError         Kind = "AUTH_ERROR"
	NetworkError      Kind = "NETWORK_ERROR"
	RateLimit         Kind = "RATE_LIMIT"
	ServerError       Kind = "SERVER_ERROR"
	LLMParseError     Kind = "LLM_PARSE_ERROR"
	Cancelled         Kind = "CANCELLED"
	LockTimeout       Kind = "LOCK_TIMEOUT"
	NoValidCredential Kind = "NO_VALID_CREDENTIALS"
)

// Error wraps an underlying cause with a stable Kind.
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Wrap constructs an Error that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Kind returns the stable classification code.
func (e *Error) Kind() Kind { return e.kind }

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the Kind from err if it (or something it wraps) is an *Error.
// Returns "" if no Kind is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return ""
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the error's kind is one C3 should retry with
// backoff per §7's propagation policy.
func Retryable(kind Kind) bool {
	switch kind {
	case NetworkError, RateLimit, ServerError:
		return true
	default:
		return false
	}
}
