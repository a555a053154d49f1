package realtime

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/enpointe/notes/internal/notes"
)

const (
	messageNoteNotFound   = "Note not found"
	messageNotAuthorized  = "Not authorized"
	messageReadOnlyAccess = "Read-only access"
	messageJoinFailed     = "Join failed"
	messageUpdateFailed   = "Update failed"
)

var (
	errMissingStore    = errors.New("realtime: note store is required")
	errMissingRegistry = errors.New("realtime: registry is required")
)

// NoteStore is the persistence the coordinator reads and writes through.
type NoteStore interface {
	FindNoteWithGrants(ctx context.Context, noteID notes.NoteID) (notes.NoteAccess, error)
	ReplaceNoteContent(ctx context.Context, noteID notes.NoteID, actorID notes.UserID, title, content string) (notes.Note, error)
}

type CoordinatorConfig struct {
	Store    NoteStore
	Registry *Registry
	Logger   *zap.Logger
}

// Coordinator handles join and update events for admitted sessions.
type Coordinator struct {
	store    NoteStore
	registry *Registry
	logger   *zap.Logger
}

func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{store: cfg.Store, registry: cfg.Registry, logger: logger}, nil
}

// Registry returns the room registry the coordinator broadcasts through.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// HandleFrame decodes a raw client frame and dispatches it. Invalid frames are answered with an
// invalid_request error.
func (c *Coordinator) HandleFrame(ctx context.Context, session *Session, frame []byte) {
	event, err := DecodeInbound(frame)
	if err != nil {
		c.logger.Debug("realtime frame rejected",
			zap.String("session_id", session.ID()),
			zap.Error(err))
		session.Send(errorEvent(ErrorInvalidRequest, err.Error(), ""))
		return
	}
	c.Dispatch(ctx, session, event)
}

// Dispatch routes a decoded event to its handler.
func (c *Coordinator) Dispatch(ctx context.Context, session *Session, event InboundEvent) {
	switch typed := event.(type) {
	case JoinEvent:
		c.Join(ctx, session, typed)
	case UpdateEvent:
		c.Update(ctx, session, typed)
	default:
		session.Send(errorEvent(ErrorInvalidRequest, "unsupported event", ""))
	}
}

// Join subscribes the session to the note room when its identity may view the note.
func (c *Coordinator) Join(ctx context.Context, session *Session, event JoinEvent) {
	if !c.authorize(ctx, session, event.NoteID, notes.CapabilityView, messageNotAuthorized, messageJoinFailed) {
		return
	}
	c.registry.Join(session, event.NoteID)
	session.Send(joinedEvent(event.NoteID))
	c.logger.Debug("realtime session joined note",
		zap.String("session_id", session.ID()),
		zap.String("user_id", session.Identity().UserID.String()),
		zap.String("note_id", event.NoteID.String()))
}

// Update persists a full replace of title and content and broadcasts the stored note to the room.
// Joining first is not required; the edit capability is checked against fresh state every time.
func (c *Coordinator) Update(ctx context.Context, session *Session, event UpdateEvent) {
	ctx = context.WithoutCancel(ctx)
	if !c.authorize(ctx, session, event.NoteID, notes.CapabilityEdit, messageReadOnlyAccess, messageUpdateFailed) {
		return
	}
	identity := session.Identity()
	note, err := c.store.ReplaceNoteContent(ctx, event.NoteID, identity.UserID, event.Title, event.Content)
	if err != nil {
		c.fail(session, event.NoteID, err, messageUpdateFailed)
		return
	}
	delivered := c.registry.Broadcast(event.NoteID, updatedEvent(note, identity))
	c.logger.Debug("realtime note updated",
		zap.String("session_id", session.ID()),
		zap.String("user_id", identity.UserID.String()),
		zap.String("note_id", event.NoteID.String()),
		zap.Int("delivered", delivered))
}

// Disconnect removes the session from every room.
func (c *Coordinator) Disconnect(session *Session) {
	c.registry.LeaveAll(session)
	session.Close()
}

// authorize loads the note fresh and checks capability for the session's identity. On failure it
// has already sent the error event and returns false.
func (c *Coordinator) authorize(ctx context.Context, session *Session, noteID notes.NoteID, capability notes.Capability, denial, failure string) bool {
	access, err := c.store.FindNoteWithGrants(ctx, noteID)
	if err != nil {
		c.fail(session, noteID, err, failure)
		return false
	}
	if !access.Allows(session.Identity().UserID, capability) {
		session.Send(errorEvent(ErrorUnauthorized, denial, noteID))
		return false
	}
	return true
}

func (c *Coordinator) fail(session *Session, noteID notes.NoteID, err error, failure string) {
	if errors.Is(err, notes.ErrNoteNotFound) {
		session.Send(errorEvent(ErrorNotFound, messageNoteNotFound, noteID))
		return
	}
	c.logger.Error("realtime store failure",
		zap.String("session_id", session.ID()),
		zap.String("note_id", noteID.String()),
		zap.Error(err))
	session.Send(errorEvent(ErrorInternal, failure, noteID))
}
