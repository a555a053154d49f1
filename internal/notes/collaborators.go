package notes

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrCollaboratorExists indicates the user already holds a grant on the note.
	ErrCollaboratorExists = errors.New("notes: user already a collaborator")
	// ErrOwnerCollaborator indicates an attempt to grant the owner access to their own note.
	ErrOwnerCollaborator = errors.New("notes: owner cannot be a collaborator")
	// ErrCollaboratorNotFound indicates the referenced grant does not exist.
	ErrCollaboratorNotFound = errors.New("notes: collaborator not found")
)

const (
	opAddCollaborator        = "notes.add_collaborator"
	opUpdateCollaboratorRole = "notes.update_collaborator_role"
	opRemoveCollaborator     = "notes.remove_collaborator"
	opListCollaborators      = "notes.list_collaborators"
	opAuthorizeOwner         = "notes.authorize_owner"
	queryCollaboratorID      = "collaborator_id = ?"
)

// AuthorizeOwner reports ErrForbidden unless userID owns noteID, and ErrNoteNotFound when the
// note does not exist. Handlers call it before resolving anything else about the request.
func (s *Service) AuthorizeOwner(ctx context.Context, userID UserID, noteID NoteID) error {
	return s.authorizeThen(ctx, opAuthorizeOwner, userID, noteID, CapabilityOwner, nil)
}

// AddCollaborator grants collaboratorID the role on noteID. Only the owner may add grants.
func (s *Service) AddCollaborator(ctx context.Context, ownerID UserID, noteID NoteID, collaboratorID UserID, role Role) (Collaborator, error) {
	if role != RoleEditor && role != RoleViewer {
		return Collaborator{}, newServiceError(opAddCollaborator, "invalid_role", ErrInvalidRole)
	}
	var created Collaborator
	err := s.authorizeThen(ctx, opAddCollaborator, ownerID, noteID, CapabilityOwner, func(tx *gorm.DB, access NoteAccess) error {
		if collaboratorID.String() == access.Note.OwnerID {
			return newServiceError(opAddCollaborator, "owner_collaborator", ErrOwnerCollaborator)
		}
		for _, grant := range access.Grants {
			if grant.UserID == collaboratorID.String() {
				return newServiceError(opAddCollaborator, "collaborator_exists", ErrCollaboratorExists)
			}
		}
		grantID, err := s.newID(opAddCollaborator)
		if err != nil {
			return err
		}
		now := s.now()
		created = Collaborator{
			CollaboratorID:   grantID,
			NoteID:           noteID.String(),
			UserID:           collaboratorID.String(),
			Role:             role,
			CreatedAtSeconds: now,
			UpdatedAtSeconds: now,
		}
		if err := tx.Create(&created).Error; err != nil {
			s.logError(opAddCollaborator, reasonInsertFailed, err,
				zap.String("note_id", noteID.String()),
				zap.String("user_id", collaboratorID.String()))
			return newServiceError(opAddCollaborator, reasonInsertFailed, err)
		}
		return s.appendActivity(tx, opAddCollaborator, ActivityCollaboratorAdded, &ownerID, noteID, now)
	})
	if err != nil {
		return Collaborator{}, err
	}
	return created, nil
}

// UpdateCollaboratorRole changes the role of an existing grant. Only the note owner may do this.
func (s *Service) UpdateCollaboratorRole(ctx context.Context, ownerID UserID, collaboratorID CollaboratorID, role Role) (Collaborator, error) {
	if role != RoleEditor && role != RoleViewer {
		return Collaborator{}, newServiceError(opUpdateCollaboratorRole, "invalid_role", ErrInvalidRole)
	}
	grant, err := s.findCollaborator(ctx, opUpdateCollaboratorRole, collaboratorID)
	if err != nil {
		return Collaborator{}, err
	}
	var updated Collaborator
	err = s.authorizeThen(ctx, opUpdateCollaboratorRole, ownerID, NoteID(grant.NoteID), CapabilityOwner, func(tx *gorm.DB, _ NoteAccess) error {
		now := s.now()
		result := tx.Model(&Collaborator{}).
			Where(queryCollaboratorID, collaboratorID.String()).
			Updates(map[string]any{"role": role, "updated_at_s": now})
		if result.Error != nil {
			s.logError(opUpdateCollaboratorRole, reasonUpdateFailed, result.Error,
				zap.String("collaborator_id", collaboratorID.String()))
			return newServiceError(opUpdateCollaboratorRole, reasonUpdateFailed, result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opUpdateCollaboratorRole, "collaborator_not_found", ErrCollaboratorNotFound)
		}
		updated = grant
		updated.Role = role
		updated.UpdatedAtSeconds = now
		return nil
	})
	if err != nil {
		return Collaborator{}, err
	}
	return updated, nil
}

// RemoveCollaborator deletes a grant. Only the note owner may do this.
func (s *Service) RemoveCollaborator(ctx context.Context, ownerID UserID, collaboratorID CollaboratorID) error {
	grant, err := s.findCollaborator(ctx, opRemoveCollaborator, collaboratorID)
	if err != nil {
		return err
	}
	noteID := NoteID(grant.NoteID)
	return s.authorizeThen(ctx, opRemoveCollaborator, ownerID, noteID, CapabilityOwner, func(tx *gorm.DB, _ NoteAccess) error {
		result := tx.Where(queryCollaboratorID, collaboratorID.String()).Delete(&Collaborator{})
		if result.Error != nil {
			s.logError(opRemoveCollaborator, reasonDeleteFailed, result.Error,
				zap.String("collaborator_id", collaboratorID.String()))
			return newServiceError(opRemoveCollaborator, reasonDeleteFailed, result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opRemoveCollaborator, "collaborator_not_found", ErrCollaboratorNotFound)
		}
		return s.appendActivity(tx, opRemoveCollaborator, ActivityCollaboratorRemoved, &ownerID, noteID, s.now())
	})
}

// ListCollaborators returns the note's grants to any participant.
func (s *Service) ListCollaborators(ctx context.Context, userID UserID, noteID NoteID) ([]Collaborator, error) {
	var grants []Collaborator
	err := s.authorizeThen(ctx, opListCollaborators, userID, noteID, CapabilityView, func(_ *gorm.DB, access NoteAccess) error {
		grants = access.Grants
		return nil
	})
	if err != nil {
		return nil, err
	}
	if grants == nil {
		grants = []Collaborator{}
	}
	return grants, nil
}

// findCollaborator resolves a grant outside of authorization. A missing grant is reported as
// forbidden so callers cannot probe for grant ids on notes they do not own.
func (s *Service) findCollaborator(ctx context.Context, operation string, collaboratorID CollaboratorID) (Collaborator, error) {
	if err := s.ensureDatabase(operation); err != nil {
		return Collaborator{}, err
	}
	var grant Collaborator
	err := s.db.WithContext(ctx).Where(queryCollaboratorID, collaboratorID.String()).Take(&grant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Collaborator{}, newServiceError(operation, reasonForbidden, ErrForbidden)
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("collaborator_id", collaboratorID.String()))
		return Collaborator{}, newServiceError(operation, reasonQueryFailed, err)
	}
	return grant, nil
}
