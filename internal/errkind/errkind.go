// Copyright 2025 SireJeff
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errkind defines the error-kind taxonomy shared across k0ntext's
// components, so batch drivers (scan, sync, drift report) can distinguish
// "skip this file and keep going" from "abort the whole run" without
// string-matching error messages.
package errkind

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed.
type Kind int

const (
	// Unknown is the zero value; never attach it deliberately.
	Unknown Kind = iota
	// NotFound means a referenced path or item does not exist.
	NotFound
	// InvalidData means a corrupt manifest, malformed anchor, or mismatched
	// embedding dimension was encountered.
	InvalidData
	// Busy means the store's write lock could not be acquired before the
	// configured timeout.
	Busy
	// IoFailure means a filesystem read/write error or permission denial.
	IoFailure
	// AuthFailure means an external service refused credentials.
	AuthFailure
	// Conflict means a template-sync conflict was left unresolved after
	// the conflict resolver ran.
	Conflict
	// Cancelled means the operation observed a cooperative cancellation
	// signal.
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidData:
		return "invalid_data"
	case Busy:
		return "busy"
	case IoFailure:
		return "io_failure"
	case AuthFailure:
		return "auth_failure"
	case Conflict:
		return "conflict"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is a k0ntext error: a kind, a message, and an optional hint and
// cause. It implements Unwrap so errors.Is/errors.As keep working across
// wrapping.
type Error struct {
	Kind  Kind
	Msg   string
	Hint  string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a kinded error with no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap creates a kinded error that wraps cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// WithHint attaches a user-facing hint (e.g. "did you mean ...?") and
// returns the same error for chaining.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}

// Of returns the Kind carried by err, or Unknown if err is not (or does not
// wrap) an *Error.
func Of(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return Unknown
}
