// Package validation provides input validation middleware for the Kaalis API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 255

var (
	// idRegex validates user and item identifiers (short slugs)
	idRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
	// refCommandRegex validates purchase references: "<item id>-<unix nanos>"
	refCommandRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}-\d{1,20}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidID checks if a string is a valid user or item identifier
func IsValidID(id string) bool {
	return idRegex.MatchString(id)
}

// IsValidRefCommand checks if a string is a well-formed purchase reference
func IsValidRefCommand(ref string) bool {
	return refCommandRegex.MatchString(ref)
}

// SanitizeString trims whitespace, limits length, and strips null bytes
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects their errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks that a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidID checks that a field is a well-formed identifier
func ValidID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidID(value) {
			return &ValidationError{Field: field, Message: "must be letters, digits, '-' or '_' (max 64 chars)"}
		}
		return nil
	}
}

// MaxLength checks that a field does not exceed max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// RefParamMiddleware validates the :ref URL parameter on routes that use it.
func RefParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := c.Param("ref")
		if ref != "" && !IsValidRefCommand(ref) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_ref_command",
				"message": "ref must look like <itemId>-<digits>",
			})
			return
		}
		c.Next()
	}
}
