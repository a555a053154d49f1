package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNoteNotFound indicates the referenced note does not exist.
	ErrNoteNotFound = errors.New("notes: note not found")
	// ErrForbidden indicates the caller's role does not allow the operation.
	ErrForbidden = errors.New("notes: forbidden")
	// ErrInvalidRole indicates a grant role other than EDITOR or VIEWER.
	ErrInvalidRole = errors.New("notes: invalid role")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew          = "notes.service.new"
	opCreateNote          = "notes.create_note"
	opListNotes           = "notes.list_notes"
	opGetNote             = "notes.get_note"
	opUpdateNote          = "notes.update_note"
	opDeleteNote          = "notes.delete_note"
	opListActivity        = "notes.list_activity"
	opFindNoteWithGrants  = "notes.find_note_with_grants"
	opReplaceNoteContent  = "notes.replace_note_content"
	opRecordActivity      = "notes.record_activity"
	reasonMissingDatabase = "missing_database"
	reasonNoteNotFound    = "note_not_found"
	reasonForbidden       = "forbidden"
	reasonQueryFailed     = "query_failed"
	reasonInsertFailed    = "insert_failed"
	reasonUpdateFailed    = "update_failed"
	reasonDeleteFailed    = "delete_failed"
	reasonIDFailed        = "id_generation_failed"
	queryNoteID           = "note_id = ?"
	orderNewestFirst      = "updated_at_s DESC, note_id DESC"
	orderActivityNewest   = "created_at_s DESC, activity_id DESC"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database    *gorm.DB
	Clock       func() time.Time
	IDProvider  IDProvider
	TokenSource TokenSource
	Logger      *zap.Logger
}

type IDProvider interface {
	NewID() (string, error)
}

// Service owns notes, collaboration grants, share links and the activity log.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	tokens     TokenSource
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	tokens := cfg.TokenSource
	if tokens == nil {
		tokens = NewRandomTokenSource()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// CreateNote stores a new note owned by ownerID and records NOTE_CREATED.
func (s *Service) CreateNote(ctx context.Context, ownerID UserID, title, content string) (Note, error) {
	if err := s.ensureDatabase(opCreateNote); err != nil {
		return Note{}, err
	}
	noteID, err := s.newID(opCreateNote)
	if err != nil {
		return Note{}, err
	}
	now := s.now()
	note := Note{
		NoteID:           noteID,
		OwnerID:          ownerID.String(),
		Title:            title,
		Content:          content,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&note).Error; err != nil {
			s.logError(opCreateNote, reasonInsertFailed, err, zap.String("user_id", ownerID.String()))
			return newServiceError(opCreateNote, reasonInsertFailed, err)
		}
		return s.appendActivity(tx, opCreateNote, ActivityNoteCreated, &ownerID, NoteID(note.NoteID), now)
	})
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// ListNotes returns notes the user owns or collaborates on, most recently updated first.
func (s *Service) ListNotes(ctx context.Context, userID UserID) ([]NoteAccess, error) {
	if err := s.ensureDatabase(opListNotes); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	sharedNoteIDs := db.Model(&Collaborator{}).Select("note_id").Where("user_id = ?", userID.String())

	var rows []Note
	if err := db.
		Where("owner_id = ? OR note_id IN (?)", userID.String(), sharedNoteIDs).
		Order(orderNewestFirst).
		Find(&rows).Error; err != nil {
		s.logError(opListNotes, reasonQueryFailed, err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListNotes, reasonQueryFailed, err)
	}
	if len(rows) == 0 {
		return []NoteAccess{}, nil
	}

	noteIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		noteIDs = append(noteIDs, row.NoteID)
	}
	var grants []Collaborator
	if err := db.Where("note_id IN ?", noteIDs).Order("created_at_s ASC").Find(&grants).Error; err != nil {
		s.logError(opListNotes, reasonQueryFailed, err, zap.String("user_id", userID.String()))
		return nil, newServiceError(opListNotes, reasonQueryFailed, err)
	}
	grantsByNote := make(map[string][]Collaborator, len(rows))
	for _, grant := range grants {
		grantsByNote[grant.NoteID] = append(grantsByNote[grant.NoteID], grant)
	}

	result := make([]NoteAccess, 0, len(rows))
	for _, row := range rows {
		result = append(result, NoteAccess{Note: row, Grants: grantsByNote[row.NoteID]})
	}
	return result, nil
}

// GetNote returns the note and its grants when the user may view it.
func (s *Service) GetNote(ctx context.Context, userID UserID, noteID NoteID) (NoteAccess, error) {
	var loaded NoteAccess
	err := s.authorizeThen(ctx, opGetNote, userID, noteID, CapabilityView, func(_ *gorm.DB, access NoteAccess) error {
		loaded = access
		return nil
	})
	if err != nil {
		return NoteAccess{}, err
	}
	return loaded, nil
}

// UpdateNote replaces title and content when the user is the owner or an editor.
func (s *Service) UpdateNote(ctx context.Context, userID UserID, noteID NoteID, title, content string) (Note, error) {
	var updated Note
	err := s.authorizeThen(ctx, opUpdateNote, userID, noteID, CapabilityEdit, func(tx *gorm.DB, access NoteAccess) error {
		note, err := s.replaceContent(tx, opUpdateNote, access.Note, userID, title, content)
		if err != nil {
			return err
		}
		updated = note
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	return updated, nil
}

// DeleteNote removes the note with its grants, share link and activity. Owner only.
func (s *Service) DeleteNote(ctx context.Context, userID UserID, noteID NoteID) error {
	err := s.authorizeThen(ctx, opDeleteNote, userID, noteID, CapabilityOwner, func(tx *gorm.DB, _ NoteAccess) error {
		for _, model := range []any{&Collaborator{}, &ShareLink{}, &ActivityRecord{}, &Note{}} {
			if err := tx.Where(queryNoteID, noteID.String()).Delete(model).Error; err != nil {
				s.logError(opDeleteNote, reasonDeleteFailed, err, zap.String("note_id", noteID.String()))
				return newServiceError(opDeleteNote, reasonDeleteFailed, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	// The NOTE_DELETED entry would be cascaded away with the note, so it only reaches the log.
	s.loggerOrDefault().Info("note deleted",
		zap.String("action", string(ActivityNoteDeleted)),
		zap.String("user_id", userID.String()),
		zap.String("note_id", noteID.String()))
	return nil
}

// ListActivity returns the note's activity newest first for any participant.
func (s *Service) ListActivity(ctx context.Context, userID UserID, noteID NoteID) ([]ActivityRecord, error) {
	var records []ActivityRecord
	err := s.authorizeThen(ctx, opListActivity, userID, noteID, CapabilityView, func(tx *gorm.DB, _ NoteAccess) error {
		if err := tx.Where(queryNoteID, noteID.String()).Order(orderActivityNewest).Find(&records).Error; err != nil {
			s.logError(opListActivity, reasonQueryFailed, err, zap.String("note_id", noteID.String()))
			return newServiceError(opListActivity, reasonQueryFailed, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FindNoteWithGrants loads a note and its current grants without any authorization.
func (s *Service) FindNoteWithGrants(ctx context.Context, noteID NoteID) (NoteAccess, error) {
	if err := s.ensureDatabase(opFindNoteWithGrants); err != nil {
		return NoteAccess{}, err
	}
	return s.loadNoteAccess(s.db.WithContext(ctx), opFindNoteWithGrants, noteID)
}

// ReplaceNoteContent overwrites title and content and records NOTE_UPDATED in one transaction.
// Callers are responsible for authorization.
func (s *Service) ReplaceNoteContent(ctx context.Context, noteID NoteID, actorID UserID, title, content string) (Note, error) {
	if err := s.ensureDatabase(opReplaceNoteContent); err != nil {
		return Note{}, err
	}
	var updated Note
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Note
		if err := tx.Where(queryNoteID, noteID.String()).Take(&existing).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return newServiceError(opReplaceNoteContent, reasonNoteNotFound, ErrNoteNotFound)
			}
			s.logError(opReplaceNoteContent, reasonQueryFailed, err, zap.String("note_id", noteID.String()))
			return newServiceError(opReplaceNoteContent, reasonQueryFailed, err)
		}
		note, err := s.replaceContent(tx, opReplaceNoteContent, existing, actorID, title, content)
		if err != nil {
			return err
		}
		updated = note
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	return updated, nil
}

// RecordActivity appends an activity entry. A nil actor marks anonymous access.
func (s *Service) RecordActivity(ctx context.Context, action ActivityAction, actorID *UserID, noteID NoteID) error {
	if err := s.ensureDatabase(opRecordActivity); err != nil {
		return err
	}
	return s.appendActivity(s.db.WithContext(ctx), opRecordActivity, action, actorID, noteID, s.now())
}

// authorizeThen loads the note fresh, checks the capability for userID and runs mutate inside
// the same transaction.
func (s *Service) authorizeThen(ctx context.Context, operation string, userID UserID, noteID NoteID, capability Capability, mutate func(tx *gorm.DB, access NoteAccess) error) error {
	if err := s.ensureDatabase(operation); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		access, err := s.loadNoteAccess(tx, operation, noteID)
		if err != nil {
			return err
		}
		if !access.Allows(userID, capability) {
			return newServiceError(operation, reasonForbidden, ErrForbidden)
		}
		if mutate == nil {
			return nil
		}
		return mutate(tx, access)
	})
}

func (s *Service) loadNoteAccess(db *gorm.DB, operation string, noteID NoteID) (NoteAccess, error) {
	var note Note
	if err := db.Where(queryNoteID, noteID.String()).Take(&note).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NoteAccess{}, newServiceError(operation, reasonNoteNotFound, ErrNoteNotFound)
		}
		s.logError(operation, reasonQueryFailed, err, zap.String("note_id", noteID.String()))
		return NoteAccess{}, newServiceError(operation, reasonQueryFailed, err)
	}
	var grants []Collaborator
	if err := db.Where(queryNoteID, noteID.String()).Order("created_at_s ASC").Find(&grants).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String("note_id", noteID.String()))
		return NoteAccess{}, newServiceError(operation, reasonQueryFailed, err)
	}
	return NoteAccess{Note: note, Grants: grants}, nil
}

func (s *Service) replaceContent(tx *gorm.DB, operation string, existing Note, actorID UserID, title, content string) (Note, error) {
	now := s.now()
	if err := tx.Model(&Note{}).
		Where(queryNoteID, existing.NoteID).
		Updates(map[string]any{
			"title":        title,
			"content":      content,
			"updated_at_s": now,
		}).Error; err != nil {
		s.logError(operation, reasonUpdateFailed, err, zap.String("note_id", existing.NoteID))
		return Note{}, newServiceError(operation, reasonUpdateFailed, err)
	}
	if err := s.appendActivity(tx, operation, ActivityNoteUpdated, &actorID, NoteID(existing.NoteID), now); err != nil {
		return Note{}, err
	}
	updated := existing
	updated.Title = title
	updated.Content = content
	updated.UpdatedAtSeconds = now
	return updated, nil
}

func (s *Service) appendActivity(db *gorm.DB, operation string, action ActivityAction, actorID *UserID, noteID NoteID, at int64) error {
	activityID, err := s.newID(operation)
	if err != nil {
		return err
	}
	record := ActivityRecord{
		ActivityID:       activityID,
		Action:           action,
		NoteID:           noteID.String(),
		CreatedAtSeconds: at,
	}
	if actorID != nil {
		actor := actorID.String()
		record.UserID = &actor
	}
	if err := db.Create(&record).Error; err != nil {
		s.logError(operation, "activity_insert_failed", err,
			zap.String("note_id", noteID.String()),
			zap.String("action", string(action)))
		return newServiceError(operation, "activity_insert_failed", err)
	}
	return nil
}

func (s *Service) ensureDatabase(operation string) error {
	if s == nil || s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(operation, reasonMissingDatabase, errMissingDatabase)
	}
	return nil
}

func (s *Service) newID(operation string) (string, error) {
	if s.idProvider == nil {
		s.logError(operation, "missing_id_provider", errMissingIDProvider)
		return "", newServiceError(operation, "missing_id_provider", errMissingIDProvider)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, reasonIDFailed, err)
		return "", newServiceError(operation, reasonIDFailed, err)
	}
	return id, nil
}

func (s *Service) now() int64 {
	if s.clock == nil {
		return time.Now().UTC().Unix()
	}
	return s.clock().UTC().Unix()
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
