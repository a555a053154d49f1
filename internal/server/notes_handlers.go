package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/enpointe/notes/internal/notes"
)

type noteWritePayload struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type notePayload struct {
	NoteID           string                `json:"note_id"`
	OwnerID          string                `json:"owner_id"`
	Title            string                `json:"title"`
	Content          string                `json:"content"`
	CreatedAtSeconds int64                 `json:"created_at_s"`
	UpdatedAtSeconds int64                 `json:"updated_at_s"`
	Role             notes.Role            `json:"role,omitempty"`
	Collaborators    []collaboratorPayload `json:"collaborators,omitempty"`
}

type collaboratorPayload struct {
	CollaboratorID   string     `json:"collaborator_id"`
	NoteID           string     `json:"note_id"`
	UserID           string     `json:"user_id"`
	Email            string     `json:"email,omitempty"`
	Role             notes.Role `json:"role"`
	CreatedAtSeconds int64      `json:"created_at_s"`
}

type activityPayload struct {
	ActivityID       string               `json:"activity_id"`
	Action           notes.ActivityAction `json:"action"`
	UserID           *string              `json:"user_id"`
	UserEmail        *string              `json:"user_email"`
	NoteID           string               `json:"note_id"`
	CreatedAtSeconds int64                `json:"created_at_s"`
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	var request noteWritePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Title == nil || strings.TrimSpace(*request.Title) == "" {
		badRequest(c)
		return
	}
	content := ""
	if request.Content != nil {
		content = *request.Content
	}
	note, err := h.notesService.CreateNote(c.Request.Context(), userID, strings.TrimSpace(*request.Title), content)
	if err != nil {
		h.respondError(c, err, "create_failed")
		return
	}
	c.JSON(http.StatusCreated, newNotePayload(note, notes.RoleOwner))
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	accessible, err := h.notesService.ListNotes(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err, "list_failed")
		return
	}
	response := make([]notePayload, 0, len(accessible))
	for _, access := range accessible {
		response = append(response, newNotePayload(access.Note, access.EffectiveRole(userID)))
	}
	c.JSON(http.StatusOK, gin.H{"notes": response})
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "invalid_note_id")
		return
	}
	access, err := h.notesService.GetNote(c.Request.Context(), userID, noteID)
	if err != nil {
		h.respondError(c, err, "get_failed")
		return
	}
	payload := newNotePayload(access.Note, access.EffectiveRole(userID))
	payload.Collaborators = h.collaboratorPayloads(c, access.Grants)
	c.JSON(http.StatusOK, payload)
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "invalid_note_id")
		return
	}
	var request noteWritePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Title == nil || request.Content == nil {
		badRequest(c)
		return
	}
	note, err := h.notesService.UpdateNote(c.Request.Context(), userID, noteID, *request.Title, *request.Content)
	if err != nil {
		h.respondError(c, err, "update_failed")
		return
	}
	c.JSON(http.StatusOK, newNotePayload(note, ""))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "invalid_note_id")
		return
	}
	if err := h.notesService.DeleteNote(c.Request.Context(), userID, noteID); err != nil {
		h.respondError(c, err, "delete_failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListCollaborators(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "invalid_note_id")
		return
	}
	grants, err := h.notesService.ListCollaborators(c.Request.Context(), userID, noteID)
	if err != nil {
		h.respondError(c, err, "list_collaborators_failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"collaborators": h.collaboratorPayloads(c, grants)})
}

func (h *httpHandler) handleListActivity(c *gin.Context) {
	userID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	noteID, err := notes.NewNoteID(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "invalid_note_id")
		return
	}
	records, err := h.notesService.ListActivity(c.Request.Context(), userID, noteID)
	if err != nil {
		h.respondError(c, err, "list_activity_failed")
		return
	}
	actorIDs := make([]string, 0, len(records))
	for _, record := range records {
		if record.UserID != nil {
			actorIDs = append(actorIDs, *record.UserID)
		}
	}
	emails := h.lookupEmails(c, actorIDs)

	response := make([]activityPayload, 0, len(records))
	for _, record := range records {
		payload := activityPayload{
			ActivityID:       record.ActivityID,
			Action:           record.Action,
			UserID:           record.UserID,
			NoteID:           record.NoteID,
			CreatedAtSeconds: record.CreatedAtSeconds,
		}
		if record.UserID != nil {
			if email, ok := emails[*record.UserID]; ok {
				payload.UserEmail = &email
			}
		}
		response = append(response, payload)
	}
	c.JSON(http.StatusOK, gin.H{"activity": response})
}

func (h *httpHandler) collaboratorPayloads(c *gin.Context, grants []notes.Collaborator) []collaboratorPayload {
	userIDs := make([]string, 0, len(grants))
	for _, grant := range grants {
		userIDs = append(userIDs, grant.UserID)
	}
	emails := h.lookupEmails(c, userIDs)
	payloads := make([]collaboratorPayload, 0, len(grants))
	for _, grant := range grants {
		payloads = append(payloads, newCollaboratorPayload(grant, emails[grant.UserID]))
	}
	return payloads
}

// lookupEmails resolves user emails for display. Lookup failures degrade to missing emails.
func (h *httpHandler) lookupEmails(c *gin.Context, userIDs []string) map[string]string {
	if len(userIDs) == 0 {
		return map[string]string{}
	}
	emails, err := h.users.EmailsByID(c.Request.Context(), userIDs)
	if err != nil {
		h.logger.Warn("email lookup failed", zap.Error(err))
		return map[string]string{}
	}
	return emails
}

func newNotePayload(note notes.Note, role notes.Role) notePayload {
	return notePayload{
		NoteID:           note.NoteID,
		OwnerID:          note.OwnerID,
		Title:            note.Title,
		Content:          note.Content,
		CreatedAtSeconds: note.CreatedAtSeconds,
		UpdatedAtSeconds: note.UpdatedAtSeconds,
		Role:             role,
	}
}

func newCollaboratorPayload(grant notes.Collaborator, email string) collaboratorPayload {
	return collaboratorPayload{
		CollaboratorID:   grant.CollaboratorID,
		NoteID:           grant.NoteID,
		UserID:           grant.UserID,
		Email:            email,
		Role:             grant.Role,
		CreatedAtSeconds: grant.CreatedAtSeconds,
	}
}
