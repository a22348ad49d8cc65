package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BaseModel carries the identity and bookkeeping columns shared by
// UUID-keyed rows.
type BaseModel struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GenNewID returns a new time-ordered UUID (v7).
func GenNewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("not found")

const maxUserIDLen = 256

// ValidateUserID rejects ids that cannot be stored or used in paths.
func ValidateUserID(userID string) error {
	if userID == "" {
		return errors.New("user id is empty")
	}
	if len(userID) > maxUserIDLen {
		return fmt.Errorf("user id exceeds %d bytes", maxUserIDLen)
	}
	for _, r := range userID {
		if r < 0x20 || r == 0x7f {
			return errors.New("user id contains control characters")
		}
	}
	return nil
}

// Workspace member roles, ordered weakest to strongest.
const (
	RoleReader = "reader"
	RoleEditor = "editor"
	RoleAdmin  = "admin"
)

// Access actions checked against a role.
const (
	ActionRead  = "read"
	ActionWrite = "write"
	ActionAdmin = "admin"
)

var roleRank = map[string]int{RoleReader: 1, RoleEditor: 2, RoleAdmin: 3}

var actionRank = map[string]int{ActionRead: 1, ActionWrite: 2, ActionAdmin: 3}

// RoleAllows reports whether a role grants an action.
// admin grants everything, editor grants read+write, reader grants read.
func RoleAllows(role, action string) bool {
	r, ok := roleRank[role]
	if !ok {
		return false
	}
	a, ok := actionRank[action]
	if !ok {
		return false
	}
	return r >= a
}

// MaxRole returns the stronger of two roles ("" loses to anything).
func MaxRole(a, b string) string {
	if roleRank[a] >= roleRank[b] {
		return a
	}
	return b
}

// PermissionToRole maps an ACL permission onto the member role lattice.
func PermissionToRole(permission string) string {
	switch permission {
	case ActionAdmin:
		return RoleAdmin
	case ActionWrite:
		return RoleEditor
	case ActionRead:
		return RoleReader
	default:
		return ""
	}
}
