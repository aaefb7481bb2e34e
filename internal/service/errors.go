package service

import "errors"

var (
	// ErrInvalidCredentials is returned on failed login attempts
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserInactive is returned when a deactivated user tries to log in
	ErrUserInactive = errors.New("user account is inactive")

	// ErrPermissionDenied is returned when the acting user is not allowed to
	// perform the operation on this resource
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPreconditionFailed is returned when the assessment is not in a state
	// that allows the requested transition
	ErrPreconditionFailed = errors.New("precondition failed")
)
