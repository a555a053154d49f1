package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/enpointe/notes/internal/notes"
)

type createShareLinkPayload struct {
	NoteID string `json:"note_id"`
}

type shareLinkPayload struct {
	NoteID string `json:"note_id"`
	Token  string `json:"token"`
	URL    string `json:"url"`
}

type sharedNotePayload struct {
	NoteID           string `json:"note_id"`
	Title            string `json:"title"`
	Content          string `json:"content"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	UpdatedAtSeconds int64  `json:"updated_at_s"`
}

func (h *httpHandler) handleCreateShareLink(c *gin.Context) {
	ownerID, ok := h.currentUserID(c)
	if !ok {
		return
	}
	var request createShareLinkPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c)
		return
	}
	noteID, err := notes.NewNoteID(request.NoteID)
	if err != nil {
		h.respondError(c, err, "invalid_note_id")
		return
	}
	link, err := h.notesService.CreateShareLink(c.Request.Context(), ownerID, noteID)
	if err != nil {
		h.respondError(c, err, "share_failed")
		return
	}
	c.JSON(http.StatusOK, shareLinkPayload{
		NoteID: link.NoteID,
		Token:  link.Token,
		URL:    h.shareBaseURL + "/share/" + link.Token,
	})
}

func (h *httpHandler) handleOpenShareLink(c *gin.Context) {
	shared, err := h.notesService.OpenShareLink(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.respondError(c, err, "share_lookup_failed")
		return
	}
	c.JSON(http.StatusOK, sharedNotePayload{
		NoteID:           shared.NoteID,
		Title:            shared.Title,
		Content:          shared.Content,
		CreatedAtSeconds: shared.CreatedAtSeconds,
		UpdatedAtSeconds: shared.UpdatedAtSeconds,
	})
}
