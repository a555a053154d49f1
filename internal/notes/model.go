package notes

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("notes: invalid user id")
	// ErrInvalidCollaboratorID indicates that a collaborator identifier is empty or too long.
	ErrInvalidCollaboratorID = errors.New("notes: invalid collaborator id")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed, err := validateIdentifier(rawInput, ErrInvalidNoteID)
	if err != nil {
		return "", err
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed, err := validateIdentifier(rawInput, ErrInvalidUserID)
	if err != nil {
		return "", err
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// CollaboratorID identifies a single collaboration grant.
type CollaboratorID string

// NewCollaboratorID validates raw input and returns a CollaboratorID.
func NewCollaboratorID(rawInput string) (CollaboratorID, error) {
	trimmed, err := validateIdentifier(rawInput, ErrInvalidCollaboratorID)
	if err != nil {
		return "", err
	}
	return CollaboratorID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CollaboratorID) String() string {
	return string(id)
}

func validateIdentifier(rawInput string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", sentinel)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", sentinel, maxIdentifierLength)
	}
	return trimmed, nil
}

// ActivityAction tags an entry of the append-only activity log.
type ActivityAction string

const (
	ActivityNoteCreated         ActivityAction = "NOTE_CREATED"
	ActivityNoteUpdated         ActivityAction = "NOTE_UPDATED"
	ActivityNoteDeleted         ActivityAction = "NOTE_DELETED"
	ActivityCollaboratorAdded   ActivityAction = "COLLABORATOR_ADDED"
	ActivityCollaboratorRemoved ActivityAction = "COLLABORATOR_REMOVED"
	ActivityShareLinkCreated    ActivityAction = "SHARE_LINK_CREATED"
	ActivityShareLinkAccessed   ActivityAction = "SHARE_LINK_ACCESSED"
)

// Note is the persisted note row. OwnerID never changes after creation.
type Note struct {
	NoteID           string `gorm:"column:note_id;primaryKey;size:190;not null"`
	OwnerID          string `gorm:"column:owner_id;size:190;not null;index:idx_notes_owner_updated,priority:1"`
	Title            string `gorm:"column:title;type:text;not null;default:''"`
	Content          string `gorm:"column:content;type:text;not null;default:''"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null;index:idx_notes_owner_updated,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// Collaborator grants a non-owner user EDITOR or VIEWER access to a note.
type Collaborator struct {
	CollaboratorID   string `gorm:"column:collaborator_id;primaryKey;size:190;not null"`
	NoteID           string `gorm:"column:note_id;size:190;not null;uniqueIndex:idx_collaborator_note_user,priority:1"`
	UserID           string `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_collaborator_note_user,priority:2;index"`
	Role             Role   `gorm:"column:role;size:16;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Collaborator) TableName() string {
	return "note_collaborators"
}

// ShareLink exposes a single note read-only to anyone holding the token.
type ShareLink struct {
	NoteID           string `gorm:"column:note_id;primaryKey;size:190;not null"`
	Token            string `gorm:"column:token;size:128;not null;uniqueIndex"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (ShareLink) TableName() string {
	return "note_share_links"
}

// ActivityRecord is an immutable activity log entry. UserID is nil for anonymous share access.
type ActivityRecord struct {
	ActivityID       string         `gorm:"column:activity_id;primaryKey;size:190;not null"`
	Action           ActivityAction `gorm:"column:action;size:32;not null"`
	UserID           *string        `gorm:"column:user_id;size:190"`
	NoteID           string         `gorm:"column:note_id;size:190;not null;index:idx_activity_note_time,priority:1"`
	CreatedAtSeconds int64          `gorm:"column:created_at_s;not null;index:idx_activity_note_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (ActivityRecord) TableName() string {
	return "note_activity"
}

// SharedNote is the subset of a note visible through a share link.
type SharedNote struct {
	NoteID           string
	Title            string
	Content          string
	CreatedAtSeconds int64
	UpdatedAtSeconds int64
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{&Note{}, &Collaborator{}, &ShareLink{}, &ActivityRecord{}}
}
