package notes

import (
	"fmt"
	"strings"
)

// Role is a user's effective access level on a note.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
	RoleNone   Role = "NONE"
)

// ParseGrantRole accepts the roles that can be stored on a collaboration grant.
func ParseGrantRole(value string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(value))) {
	case RoleEditor:
		return RoleEditor, nil
	case RoleViewer:
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, value)
	}
}

// IsOwner reports whether the role is OWNER.
func (r Role) IsOwner() bool {
	return r == RoleOwner
}

// CanEdit reports whether the role may change title or content.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// CanView reports whether the role may read the note.
func (r Role) CanView() bool {
	return r == RoleOwner || r == RoleEditor || r == RoleViewer
}

// Capability is a predicate over an effective role.
type Capability func(Role) bool

var (
	CapabilityView  Capability = Role.CanView
	CapabilityEdit  Capability = Role.CanEdit
	CapabilityOwner Capability = Role.IsOwner
)

// NoteAccess is a note together with its current collaboration grants.
type NoteAccess struct {
	Note   Note
	Grants []Collaborator
}

// EffectiveRole computes the user's role from ownership and grants alone.
func (access NoteAccess) EffectiveRole(userID UserID) Role {
	if userID == "" {
		return RoleNone
	}
	if access.Note.OwnerID == userID.String() {
		return RoleOwner
	}
	for _, grant := range access.Grants {
		if grant.UserID != userID.String() {
			continue
		}
		switch grant.Role {
		case RoleEditor:
			return RoleEditor
		case RoleViewer:
			return RoleViewer
		}
	}
	return RoleNone
}

// CanEdit reports whether the user may edit the note.
func (access NoteAccess) CanEdit(userID UserID) bool {
	return access.EffectiveRole(userID).CanEdit()
}

// CanView reports whether the user may read the note.
func (access NoteAccess) CanView(userID UserID) bool {
	return access.EffectiveRole(userID).CanView()
}

// Allows evaluates an arbitrary capability for the user.
func (access NoteAccess) Allows(userID UserID, capability Capability) bool {
	if capability == nil {
		return false
	}
	return capability(access.EffectiveRole(userID))
}
