package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/enpointe/notes/internal/notes"
)

type addCollaboratorPayload struct {
	NoteID            string `json:"note_id"`
	CollaboratorEmail string `json:"collaborator_email"`
	Role              string `json:"role"`
}

type updateCollaboratorPayload struct {
	Role string `json:"role"`
}

func (h *httpHandler) handleAddCollaborator(c *gin.Context) {
	ownerID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	var request addCollaboratorPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c)
		return
	}
	noteID, err := notes.NewNoteID(request.NoteID)
	if err != nil {
		h.respondError(c, err, "invalid_note_id")
		return
	}
	role, err := notes.ParseGrantRole(request.Role)
	if err != nil {
		h.respondError(c, err, "invalid_role")
		return
	}
	if err := h.notesService.AuthorizeOwner(c.Request.Context(), ownerID, noteID); err != nil {
		h.respondError(c, err, "add_collaborator_failed")
		return
	}
	collaborator, err := h.users.FindByEmail(c.Request.Context(), request.CollaboratorEmail)
	if err != nil {
		h.respondError(c, err, "add_collaborator_failed")
		return
	}
	grant, err := h.notesService.AddCollaborator(c.Request.Context(), ownerID, noteID, notes.UserID(collaborator.UserID), role)
	if err != nil {
		h.respondError(c, err, "add_collaborator_failed")
		return
	}
	c.JSON(http.StatusCreated, newCollaboratorPayload(grant, collaborator.Email))
}

func (h *httpHandler) handleUpdateCollaborator(c *gin.Context) {
	ownerID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	collaboratorID, err := notes.NewCollaboratorID(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "invalid_collaborator_id")
		return
	}
	var request updateCollaboratorPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c)
		return
	}
	role, err := notes.ParseGrantRole(request.Role)
	if err != nil {
		h.respondError(c, err, "invalid_role")
		return
	}
	grant, err := h.notesService.UpdateCollaboratorRole(c.Request.Context(), ownerID, collaboratorID, role)
	if err != nil {
		h.respondError(c, err, "update_collaborator_failed")
		return
	}
	emails := h.lookupEmails(c, []string{grant.UserID})
	c.JSON(http.StatusOK, newCollaboratorPayload(grant, emails[grant.UserID]))
}

func (h *httpHandler) handleRemoveCollaborator(c *gin.Context) {
	ownerID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	collaboratorID, err := notes.NewCollaboratorID(c.Param("id"))
	if err != nil {
		h.respondError(c, err, "invalid_collaborator_id")
		return
	}
	if err := h.notesService.RemoveCollaborator(c.Request.Context(), ownerID, collaboratorID); err != nil {
		h.respondError(c, err, "remove_collaborator_failed")
		return
	}
	c.Status(http.StatusNoContent)
}
