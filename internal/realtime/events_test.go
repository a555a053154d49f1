package realtime

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecodeInboundVariants(t *testing.T) {
	event, err := DecodeInbound([]byte(`{"type":"note:join","data":{"note_id":" note-1 "}}`))
	if err != nil {
		t.Fatalf("join decode failed: %v", err)
	}
	join, ok := event.(JoinEvent)
	if !ok || join.NoteID != "note-1" {
		t.Fatalf("unexpected join event %#v", event)
	}

	event, err = DecodeInbound([]byte(`{"type":"note:update","data":{"note_id":"note-1","title":"","content":"body"}}`))
	if err != nil {
		t.Fatalf("update decode failed: %v", err)
	}
	update, ok := event.(UpdateEvent)
	if !ok || update.Title != "" || update.Content != "body" || update.Note() != "note-1" {
		t.Fatalf("unexpected update event %#v", event)
	}
}

func TestDecodeInboundRejectsInvalidFrames(t *testing.T) {
	longID := strings.Repeat("n", 191)
	testCases := map[string]string{
		"malformed":       `{"type":`,
		"unknown-type":    `{"type":"note:delete","data":{"note_id":"n"}}`,
		"missing-data":    `{"type":"note:join"}`,
		"null-data":       `{"type":"note:join","data":null}`,
		"empty-note-id":   `{"type":"note:join","data":{"note_id":"  "}}`,
		"long-note-id":    `{"type":"note:join","data":{"note_id":"` + longID + `"}}`,
		"missing-title":   `{"type":"note:update","data":{"note_id":"n","content":"c"}}`,
		"missing-content": `{"type":"note:update","data":{"note_id":"n","title":"t"}}`,
		"wrong-shape":     `{"type":"note:update","data":["n"]}`,
	}
	for name, frame := range testCases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeInbound([]byte(frame)); !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("expected invalid event error, got %v", err)
			}
		})
	}
}

func TestOutboundEncodesEnvelope(t *testing.T) {
	encoded, err := json.Marshal(updatedEvent(notesFixture(), Identity{UserID: "u-1", Email: "u@example.com"}))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded.Type != EventUpdated {
		t.Fatalf("unexpected type %s", decoded.Type)
	}
	if decoded.Data["note_id"] != "note-1" || decoded.Data["title"] != "B" {
		t.Fatalf("unexpected data %#v", decoded.Data)
	}
	updatedBy, ok := decoded.Data["updated_by"].(map[string]any)
	if !ok || updatedBy["user_id"] != "u-1" || updatedBy["email"] != "u@example.com" {
		t.Fatalf("unexpected updated_by %#v", decoded.Data["updated_by"])
	}
	if decoded.Data["updated_at_s"] != float64(testClockSeconds) {
		t.Fatalf("unexpected updated_at_s %#v", decoded.Data["updated_at_s"])
	}
}
