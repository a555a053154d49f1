package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/enpointe/notes/internal/notes"
	"github.com/enpointe/notes/internal/users"
)

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{target: notes.ErrNoteNotFound, status: http.StatusNotFound, code: "note_not_found"},
	{target: notes.ErrCollaboratorNotFound, status: http.StatusNotFound, code: "collaborator_not_found"},
	{target: notes.ErrShareLinkNotFound, status: http.StatusNotFound, code: "share_link_not_found"},
	{target: users.ErrUserNotFound, status: http.StatusNotFound, code: "user_not_found"},
	{target: notes.ErrForbidden, status: http.StatusForbidden, code: "forbidden"},
	{target: notes.ErrInvalidRole, status: http.StatusBadRequest, code: "invalid_role"},
	{target: notes.ErrInvalidNoteID, status: http.StatusBadRequest, code: "invalid_note_id"},
	{target: notes.ErrInvalidUserID, status: http.StatusBadRequest, code: "invalid_user_id"},
	{target: notes.ErrInvalidCollaboratorID, status: http.StatusBadRequest, code: "invalid_collaborator_id"},
	{target: notes.ErrOwnerCollaborator, status: http.StatusBadRequest, code: "owner_collaborator"},
	{target: users.ErrInvalidEmail, status: http.StatusBadRequest, code: "invalid_email"},
	{target: users.ErrWeakPassword, status: http.StatusBadRequest, code: "weak_password"},
	{target: users.ErrPasswordTooLong, status: http.StatusBadRequest, code: "password_too_long"},
	{target: notes.ErrCollaboratorExists, status: http.StatusConflict, code: "collaborator_exists"},
	{target: users.ErrUserExists, status: http.StatusConflict, code: "user_exists"},
	{target: users.ErrInvalidCredentials, status: http.StatusUnauthorized, code: "invalid_credentials"},
}

// respondError writes the status mapped from err. Unmapped errors are logged and reported as
// fallback with status 500. Service error codes are echoed in the "code" field.
func (h *httpHandler) respondError(c *gin.Context, err error, fallback string) {
	body := gin.H{}
	var serviceErr *notes.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	for _, mapping := range errorMappings {
		if errors.Is(err, mapping.target) {
			body["error"] = mapping.code
			c.JSON(mapping.status, body)
			return
		}
	}
	h.logger.Error("request failed",
		zap.String("path", c.FullPath()),
		zap.String("error_code", fallback),
		zap.Error(err))
	body["error"] = fallback
	c.JSON(http.StatusInternalServerError, body)
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
}
