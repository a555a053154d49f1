package notes

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrShareLinkNotFound indicates the token does not match any share link.
var ErrShareLinkNotFound = errors.New("notes: share link not found")

const (
	opCreateShareLink = "notes.create_share_link"
	opOpenShareLink   = "notes.open_share_link"
)

// CreateShareLink returns the note's share link, creating it on first use. Owner only.
func (s *Service) CreateShareLink(ctx context.Context, ownerID UserID, noteID NoteID) (ShareLink, error) {
	var link ShareLink
	err := s.authorizeThen(ctx, opCreateShareLink, ownerID, noteID, CapabilityOwner, func(tx *gorm.DB, _ NoteAccess) error {
		err := tx.Where(queryNoteID, noteID.String()).Take(&link).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logError(opCreateShareLink, reasonQueryFailed, err, zap.String("note_id", noteID.String()))
			return newServiceError(opCreateShareLink, reasonQueryFailed, err)
		}

		token, err := s.newShareToken()
		if err != nil {
			return err
		}
		now := s.now()
		candidate := ShareLink{NoteID: noteID.String(), Token: token, CreatedAtSeconds: now}
		result := tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "note_id"}}, DoNothing: true}).Create(&candidate)
		if result.Error != nil {
			s.logError(opCreateShareLink, reasonInsertFailed, result.Error, zap.String("note_id", noteID.String()))
			return newServiceError(opCreateShareLink, reasonInsertFailed, result.Error)
		}
		if result.RowsAffected == 0 {
			// A concurrent request won; return its link.
			if err := tx.Where(queryNoteID, noteID.String()).Take(&link).Error; err != nil {
				s.logError(opCreateShareLink, reasonQueryFailed, err, zap.String("note_id", noteID.String()))
				return newServiceError(opCreateShareLink, reasonQueryFailed, err)
			}
			return nil
		}
		link = candidate
		return s.appendActivity(tx, opCreateShareLink, ActivityShareLinkCreated, &ownerID, noteID, now)
	})
	if err != nil {
		return ShareLink{}, err
	}
	return link, nil
}

// OpenShareLink resolves a public token to its note and records anonymous access.
func (s *Service) OpenShareLink(ctx context.Context, token string) (SharedNote, error) {
	if err := s.ensureDatabase(opOpenShareLink); err != nil {
		return SharedNote{}, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return SharedNote{}, newServiceError(opOpenShareLink, "share_link_not_found", ErrShareLinkNotFound)
	}

	db := s.db.WithContext(ctx)
	var link ShareLink
	if err := db.Where("token = ?", token).Take(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SharedNote{}, newServiceError(opOpenShareLink, "share_link_not_found", ErrShareLinkNotFound)
		}
		s.logError(opOpenShareLink, reasonQueryFailed, err)
		return SharedNote{}, newServiceError(opOpenShareLink, reasonQueryFailed, err)
	}
	var note Note
	if err := db.Where(queryNoteID, link.NoteID).Take(&note).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return SharedNote{}, newServiceError(opOpenShareLink, "share_link_not_found", ErrShareLinkNotFound)
		}
		s.logError(opOpenShareLink, reasonQueryFailed, err, zap.String("note_id", link.NoteID))
		return SharedNote{}, newServiceError(opOpenShareLink, reasonQueryFailed, err)
	}
	if err := s.RecordActivity(ctx, ActivityShareLinkAccessed, nil, NoteID(note.NoteID)); err != nil {
		return SharedNote{}, err
	}
	return SharedNote{
		NoteID:           note.NoteID,
		Title:            note.Title,
		Content:          note.Content,
		CreatedAtSeconds: note.CreatedAtSeconds,
		UpdatedAtSeconds: note.UpdatedAtSeconds,
	}, nil
}

func (s *Service) newShareToken() (string, error) {
	tokens := s.tokens
	if tokens == nil {
		tokens = NewRandomTokenSource()
	}
	token, err := tokens.NewToken()
	if err != nil {
		s.logError(opCreateShareLink, "token_generation_failed", err)
		return "", newServiceError(opCreateShareLink, "token_generation_failed", err)
	}
	return token, nil
}
