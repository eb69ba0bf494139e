package services

import "errors"

var (
	// ErrNotSignedIn is returned by identity accessors when no user is signed in.
	ErrNotSignedIn = errors.New("not signed in")

	// ErrUnknownFlow is returned for flow kinds outside the correlation table.
	ErrUnknownFlow = errors.New("unknown sign-in flow")

	// ErrUnknownMethod is returned by Plugin.Invoke for unregistered names.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrBadArgument is returned when a host argument has the wrong type or arity.
	ErrBadArgument = errors.New("bad argument")

	// ErrProviderUnavailable is returned when a collaborator was not configured.
	ErrProviderUnavailable = errors.New("provider unavailable")
)
