package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Larvizub/arvidev-presupuestos/internal/errors"
	"github.com/Larvizub/arvidev-presupuestos/internal/middleware"
)

// getUserID extracts the authenticated user ID from the Gin context.
// Returns ErrUnauthorized if not present.
func getUserID(c *gin.Context) (string, error) {
	userID, ok := c.Get(middleware.ContextUserID)
	if !ok {
		return "", apperrors.ErrUnauthorized
	}
	id, _ := userID.(string)
	if id == "" {
		return "", apperrors.ErrUnauthorized
	}
	return id, nil
}

// parseMonthYear reads the optional month and year query parameters. Months
// are zero-based like the stored budgets.
func parseMonthYear(c *gin.Context) (month, year *int, err error) {
	if v := c.Query("month"); v != "" {
		m, convErr := strconv.Atoi(v)
		if convErr != nil || m < 0 || m > 11 {
			return nil, nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid month")
		}
		month = &m
	}
	if v := c.Query("year"); v != "" {
		y, convErr := strconv.Atoi(v)
		if convErr != nil || y < 1 {
			return nil, nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid year")
		}
		year = &y
	}
	return month, year, nil
}

// respondWithError writes a consistent JSON error response.
func respondWithError(c *gin.Context, err error) {
	middleware.WriteError(c, err)
}

// ErrorDetail represents the inner error object in an error response.
type ErrorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}
