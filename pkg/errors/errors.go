// Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// New creates a DaemonError for a registered code. details carries the
// call-site specific explanation.
func New(code ErrorCode, details string) *DaemonError {
	def, ok := errorDefinitions[code]
	if !ok {
		return &DaemonError{
			Code:       code,
			Domain:     DomainMisc,
			Message:    "Unknown error",
			Details:    details,
			HTTPStatus: http.StatusInternalServerError,
		}
	}

	return &DaemonError{
		Code:       code,
		Domain:     def.domain,
		Message:    def.message,
		Details:    details,
		HTTPStatus: def.httpStatus,
	}
}

// Wrap wraps err into a DaemonError. If err already is a DaemonError its
// metadata is carried over.
func Wrap(err error, code ErrorCode) *DaemonError {
	if err == nil {
		return New(code, "")
	}

	de := New(code, err.Error())
	de.cause = err

	var inner *DaemonError
	if stderrors.As(err, &inner) {
		for k, v := range inner.Metadata {
			de.WithMetadata(k, v)
		}
	}

	return de
}

// WithMetadata attaches a key/value pair and returns the receiver for chaining.
func (e *DaemonError) WithMetadata(key, value string) *DaemonError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

func (e *DaemonError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s-%d] %s: %s", e.Domain, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s-%d] %s", e.Domain, e.Code, e.Message)
}

func (e *DaemonError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a DaemonError with the same code, so callers
// can match with errors.Is(err, errors.New(code, "")).
func (e *DaemonError) Is(target error) bool {
	t, ok := target.(*DaemonError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// HasCode reports whether err or anything it wraps is a DaemonError with code.
func HasCode(err error, code ErrorCode) bool {
	var de *DaemonError
	for err != nil {
		if stderrors.As(err, &de) {
			if de.Code == code {
				return true
			}
			err = de.cause
			continue
		}
		return false
	}
	return false
}

// As is re-exported so callers importing this package under the name
// "errors" keep access to the standard helper.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is re-exported for the same reason as As.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}
