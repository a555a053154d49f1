package notes

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testClockSeconds = 1700000600

type sequentialIDGenerator struct {
	mu   sync.Mutex
	next int
}

func (g *sequentialIDGenerator) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("id-%04d", g.next), nil
}

type failingIDGenerator struct{}

func (failingIDGenerator) NewID() (string, error) {
	return "", errors.New("exhausted ids")
}

type staticTokenSource struct {
	tokens []string
	index  int
}

func (s *staticTokenSource) NewToken() (string, error) {
	if s.index >= len(s.tokens) {
		return "", errors.New("exhausted tokens")
	}
	token := s.tokens[s.index]
	s.index++
	return token, nil
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:notes_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db := newTestDatabase(t)
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(testClockSeconds, 0).UTC() },
		IDProvider: &sequentialIDGenerator{},
	})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}
	return service, db
}

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustNoteID(t *testing.T, value string) NoteID {
	t.Helper()
	id, err := NewNoteID(value)
	if err != nil {
		t.Fatalf("unexpected note id error: %v", err)
	}
	return id
}

func mustCreateNote(t *testing.T, service *Service, ownerID UserID, title, content string) Note {
	t.Helper()
	note, err := service.CreateNote(t.Context(), ownerID, title, content)
	if err != nil {
		t.Fatalf("failed to create note: %v", err)
	}
	return note
}

func mustAddCollaborator(t *testing.T, service *Service, ownerID UserID, noteID NoteID, userID UserID, role Role) Collaborator {
	t.Helper()
	grant, err := service.AddCollaborator(t.Context(), ownerID, noteID, userID, role)
	if err != nil {
		t.Fatalf("failed to add collaborator: %v", err)
	}
	return grant
}

func countRows(t *testing.T, db *gorm.DB, model any, noteID string) int64 {
	t.Helper()
	var count int64
	if err := db.Model(model).Where("note_id = ?", noteID).Count(&count).Error; err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	return count
}
