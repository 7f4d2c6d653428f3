package application

import "errors"

var (
	// ErrNotFound means the referenced application, user, or visa type
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotOwner means the actor lacks rights over the resource.
	ErrNotOwner = errors.New("actor is not permitted to modify this application")

	// ErrInvalidState means the operation is not legal in the current
	// status. Nothing was mutated.
	ErrInvalidState = errors.New("operation not allowed in current state")

	// ErrInvalidTransition means the requested status is not reachable
	// from the current one. Nothing was mutated.
	ErrInvalidTransition = errors.New("illegal status transition")

	// ErrInvalidSignature means the payment confirmation failed
	// cryptographic verification. Nothing was mutated.
	ErrInvalidSignature = errors.New("payment signature verification failed")

	// ErrConflict means a concurrent modification was detected, or a
	// duplicate payment completion carried a different payment id.
	ErrConflict = errors.New("concurrent modification conflict")
)
