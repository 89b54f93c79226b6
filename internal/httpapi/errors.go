package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wrapdesk/internal/calls"
	"wrapdesk/internal/contacts"
	"wrapdesk/internal/messages"
	"wrapdesk/internal/reporting"
	"wrapdesk/internal/team"
	"wrapdesk/pkg/logger"
	"wrapdesk/pkg/validate"
)

// writeError maps the domain error taxonomy onto HTTP statuses. Anything
// unrecognised is a 500 and is logged with the request.
func writeError(c *gin.Context, err error) {
	var (
		conflict *contacts.LinkConflictError
		provider *messages.ProviderError
	)
	switch {
	case errors.As(err, &conflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"error":                "phone already linked to another customer",
			"existing_customer_id": conflict.ExistingCustomerID,
		})
	case errors.Is(err, contacts.ErrAlreadyLinked), errors.Is(err, team.ErrDuplicatePhone):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &provider):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": provider.Message})
	case errors.Is(err, validate.ErrInvalid),
		errors.Is(err, messages.ErrInvalidPhone),
		errors.Is(err, messages.ErrEmptyMessage),
		errors.Is(err, contacts.ErrUnmatchablePhone),
		errors.Is(err, team.ErrInvalidPhone),
		errors.Is(err, team.ErrNameRequired),
		errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFound),
		errors.Is(err, messages.ErrNotFound),
		errors.Is(err, contacts.ErrCustomerNotFound),
		errors.Is(err, contacts.ErrNotLinked),
		errors.Is(err, team.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("request failed", "path", c.FullPath(), "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
