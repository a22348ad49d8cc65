package identity

import "errors"

var (
	// ErrWorkspaceNotFound is returned when an access check references a
	// workspace that does not exist.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrPermissionDenied is returned by Authorize when no access source
	// grants the requested action.
	ErrPermissionDenied = errors.New("permission denied")
)
