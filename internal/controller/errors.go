// SPDX-License-Identifier: MIT

package controller

import "errors"

// Sentinel errors describing why an operation was refused. The API layer
// maps them onto HTTP status codes.
var (
	// ErrNotFound: the referenced entity does not exist (404).
	ErrNotFound = errors.New("not found")

	// ErrConflict: the operation clashes with current state (409).
	ErrConflict = errors.New("conflict")

	// ErrProjectClosed: a mutating operation hit a closed project (403).
	ErrProjectClosed = errors.New("the project is not opened")

	// ErrInvalid: the request itself is malformed (400).
	ErrInvalid = errors.New("invalid request")
)
