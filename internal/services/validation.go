package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse is the JSON error shape every endpoint returns.
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Per-field validation details
}

// Skill tags are lowercase slugs ("plumbing", "mural-painting"); they double
// as search keys and feed filters, so the format is enforced at the edge.
var skillTagPattern = regexp.MustCompile(`^[a-z][a-z-]*$`)

// ValidationHelper wraps the shared validator with the platform's custom
// rules registered.
type ValidationHelper struct {
	validator *validator.Validate
}

func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	v.RegisterValidation("skilltag", func(fl validator.FieldLevel) bool {
		return skillTagPattern.MatchString(fl.Field().String())
	})
	return &ValidationHelper{validator: v}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if validationErr != nil {
		errorResp.Details = make(map[string]string)
		for _, err := range validationErr.(validator.ValidationErrors) {
			errorResp.Details[err.Field()] = tagMessage(err)
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

func tagMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Must be a valid email address"
	case "skilltag":
		return "Must be a lowercase skill slug, e.g. 'plumbing'"
	case "min":
		return fmt.Sprintf("Must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s", err.Param())
	default:
		return fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
	}
}
