package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/enpointe/notes/internal/notes"
)

const testClockSeconds = 1700000600

var errStoreUnavailable = errors.New("store unavailable")

type fakeStore struct {
	mu           sync.Mutex
	notes        map[notes.NoteID]notes.NoteAccess
	findErr      error
	replaceErr   error
	replaceCalls int
	tick         int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{notes: make(map[notes.NoteID]notes.NoteAccess)}
}

func (s *fakeStore) put(note notes.Note, grants ...notes.Collaborator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes[notes.NoteID(note.NoteID)] = notes.NoteAccess{Note: note, Grants: grants}
}

func (s *fakeStore) FindNoteWithGrants(_ context.Context, noteID notes.NoteID) (notes.NoteAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return notes.NoteAccess{}, s.findErr
	}
	access, ok := s.notes[noteID]
	if !ok {
		return notes.NoteAccess{}, fmt.Errorf("find: %w", notes.ErrNoteNotFound)
	}
	return access, nil
}

func (s *fakeStore) ReplaceNoteContent(_ context.Context, noteID notes.NoteID, _ notes.UserID, title, content string) (notes.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceCalls++
	if s.replaceErr != nil {
		return notes.Note{}, s.replaceErr
	}
	access, ok := s.notes[noteID]
	if !ok {
		return notes.Note{}, notes.ErrNoteNotFound
	}
	s.tick++
	access.Note.Title = title
	access.Note.Content = content
	access.Note.UpdatedAtSeconds = testClockSeconds + s.tick
	s.notes[noteID] = access
	return access.Note, nil
}

func (s *fakeStore) stored(noteID notes.NoteID) notes.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notes[noteID].Note
}

func (s *fakeStore) replaces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceCalls
}

func newTestCoordinator(t *testing.T, store NoteStore) *Coordinator {
	t.Helper()
	coordinator, err := NewCoordinator(CoordinatorConfig{Store: store, Registry: NewRegistry()})
	if err != nil {
		t.Fatalf("failed to construct coordinator: %v", err)
	}
	return coordinator
}

func newTestSession(userID string) *Session {
	return NewSession(Identity{UserID: notes.UserID(userID), Email: userID + "@example.com"}, 16)
}

// drain returns every event queued on the session without blocking.
func drain(session *Session) []Outbound {
	var events []Outbound
	for {
		select {
		case event := <-session.Outbound():
			events = append(events, event)
		default:
			return events
		}
	}
}

func expectSingle(t *testing.T, session *Session, eventType string) Outbound {
	t.Helper()
	events := drain(session)
	if len(events) != 1 {
		t.Fatalf("expected exactly one event for %s, got %d: %+v", session.Identity().UserID, len(events), events)
	}
	if events[0].Type != eventType {
		t.Fatalf("expected %s, got %s (%+v)", eventType, events[0].Type, events[0].Data)
	}
	return events[0]
}

func expectError(t *testing.T, session *Session, kind ErrorKind) ErrorPayload {
	t.Helper()
	event := expectSingle(t, session, EventError)
	payload, ok := event.Data.(ErrorPayload)
	if !ok {
		t.Fatalf("unexpected error payload %T", event.Data)
	}
	if payload.Kind != kind {
		t.Fatalf("expected %s error, got %s (%s)", kind, payload.Kind, payload.Message)
	}
	return payload
}

func newSQLiteNotesService(t *testing.T) *notes.Service {
	t.Helper()
	dsn := fmt.Sprintf("file:realtime_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
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
	if err := db.AutoMigrate(notes.Models()...); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := notes.NewService(notes.ServiceConfig{Database: db, IDProvider: notes.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to construct notes service: %v", err)
	}
	return service
}

func notesFixture() notes.Note {
	return notes.Note{
		NoteID:           "note-1",
		OwnerID:          "owner",
		Title:            "B",
		Content:          "x",
		CreatedAtSeconds: testClockSeconds,
		UpdatedAtSeconds: testClockSeconds,
	}
}
