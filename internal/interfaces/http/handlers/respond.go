// internal/interfaces/http/handlers/respond.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/your-org/storefront-backend/internal/pkg/apperrors"
)

// respondError writes a service error with the status its kind maps to.
// Internal error text never reaches the client; everything else is worded
// by the services for end users.
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}

	body := gin.H{"error": message}
	if code := apperrors.CodeOf(err); code != "" {
		body["code"] = code
	}

	c.JSON(status, body)
}
