package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/enpointe/notes/internal/notes"
)

const (
	EventJoin    = "note:join"
	EventUpdate  = "note:update"
	EventJoined  = "note:joined"
	EventUpdated = "note:updated"
	EventError   = "note:error"
)

// ErrorKind classifies an error event delivered to the originating session.
type ErrorKind string

const (
	ErrorNotFound       ErrorKind = "not_found"
	ErrorUnauthorized   ErrorKind = "unauthorized"
	ErrorInternal       ErrorKind = "internal"
	ErrorInvalidRequest ErrorKind = "invalid_request"
)

// ErrInvalidEvent indicates an inbound frame that does not match any known event schema.
var ErrInvalidEvent = errors.New("realtime: invalid event")

// InboundEvent is one of the client-to-server variants: JoinEvent or UpdateEvent.
type InboundEvent interface {
	Type() string
	Note() notes.NoteID
}

// JoinEvent asks to subscribe the session to a note room.
type JoinEvent struct {
	NoteID notes.NoteID
}

func (JoinEvent) Type() string { return EventJoin }

func (e JoinEvent) Note() notes.NoteID { return e.NoteID }

// UpdateEvent replaces the note's title and content.
type UpdateEvent struct {
	NoteID  notes.NoteID
	Title   string
	Content string
}

func (UpdateEvent) Type() string { return EventUpdate }

func (e UpdateEvent) Note() notes.NoteID { return e.NoteID }

// Outbound is a server-to-client event. It encodes as an envelope.
type Outbound struct {
	Type string
	Data any
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (o Outbound) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(o.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: o.Type, Data: data})
}

// JoinedPayload acknowledges a successful join.
type JoinedPayload struct {
	NoteID string `json:"note_id"`
}

// UpdatedPayload carries the persisted note after a successful update.
type UpdatedPayload struct {
	NoteID           string   `json:"note_id"`
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	UpdatedAtSeconds int64    `json:"updated_at_s"`
	UpdatedBy        Identity `json:"updated_by"`
}

// ErrorPayload describes a failed operation.
type ErrorPayload struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	NoteID  string    `json:"note_id,omitempty"`
}

func joinedEvent(noteID notes.NoteID) Outbound {
	return Outbound{Type: EventJoined, Data: JoinedPayload{NoteID: noteID.String()}}
}

func updatedEvent(note notes.Note, actor Identity) Outbound {
	return Outbound{Type: EventUpdated, Data: UpdatedPayload{
		NoteID:           note.NoteID,
		Title:            note.Title,
		Content:          note.Content,
		UpdatedAtSeconds: note.UpdatedAtSeconds,
		UpdatedBy:        actor,
	}}
}

func errorEvent(kind ErrorKind, message string, noteID notes.NoteID) Outbound {
	return Outbound{Type: EventError, Data: ErrorPayload{Kind: kind, Message: message, NoteID: noteID.String()}}
}

type joinData struct {
	NoteID string `json:"note_id"`
}

type updateData struct {
	NoteID  string  `json:"note_id"`
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// DecodeInbound parses and validates a client frame. Errors wrap ErrInvalidEvent.
func DecodeInbound(frame []byte) (InboundEvent, error) {
	var raw envelope
	if err := json.Unmarshal(frame, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed frame", ErrInvalidEvent)
	}

	switch raw.Type {
	case EventJoin:
		var payload joinData
		if err := decodeData(raw, &payload); err != nil {
			return nil, err
		}
		noteID, err := notes.NewNoteID(payload.NoteID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		return JoinEvent{NoteID: noteID}, nil
	case EventUpdate:
		var payload updateData
		if err := decodeData(raw, &payload); err != nil {
			return nil, err
		}
		noteID, err := notes.NewNoteID(payload.NoteID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
		if payload.Title == nil || payload.Content == nil {
			return nil, fmt.Errorf("%w: title and content are required", ErrInvalidEvent)
		}
		return UpdateEvent{NoteID: noteID, Title: *payload.Title, Content: *payload.Content}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, raw.Type)
	}
}

func decodeData(raw envelope, target any) error {
	data := bytes.TrimSpace(raw.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("%w: %s requires data", ErrInvalidEvent, raw.Type)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: malformed %s payload", ErrInvalidEvent, raw.Type)
	}
	return nil
}
