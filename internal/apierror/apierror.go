// Package apierror maps domain failures onto structured JSON error responses.
package apierror

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Kind classifies an error for the HTTP boundary
type Kind int

// Error kinds
const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindPaymentRequired
	KindForbidden
	KindNotFound
	KindPrecondition
	KindConflict
	KindUnavailable
)

var statusByKind = map[Kind]int{
	KindInternal:        http.StatusInternalServerError,
	KindValidation:      http.StatusBadRequest,
	KindUnauthenticated: http.StatusUnauthorized,
	KindPaymentRequired: http.StatusPaymentRequired,
	KindForbidden:       http.StatusForbidden,
	KindNotFound:        http.StatusNotFound,
	KindPrecondition:    http.StatusBadRequest,
	KindConflict:        http.StatusConflict,
	KindUnavailable:     http.StatusServiceUnavailable,
}

var codeByKind = map[Kind]string{
	KindInternal:        "SERVER_ERROR",
	KindValidation:      "VALIDATION_ERROR",
	KindUnauthenticated: "UNAUTHORIZED",
	KindPaymentRequired: "PAYMENT_REQUIRED",
	KindForbidden:       "FORBIDDEN",
	KindNotFound:        "NOT_FOUND",
	KindPrecondition:    "PRECONDITION_FAILED",
	KindConflict:        "CONFLICT",
	KindUnavailable:     "SERVICE_UNAVAILABLE",
}

// Error is a classified failure carrying a client-safe message
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details []string
	Extra   map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status code for the error kind
func (e *Error) Status() int {
	return statusByKind[e.Kind]
}

// With attaches an extra response field and returns the error
func (e *Error) With(key string, value any) *Error {
	if e.Extra == nil {
		e.Extra = make(map[string]any)
	}
	e.Extra[key] = value
	return e
}

// WithCode overrides the machine-readable code
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Validation returns a 400 error with optional field details
func Validation(message string, details ...string) *Error {
	e := newError(KindValidation, message)
	e.Details = details
	return e
}

// Unauthenticated returns a 401 error
func Unauthenticated(message string) *Error { return newError(KindUnauthenticated, message) }

// PaymentRequired returns a 402 error
func PaymentRequired(message string) *Error { return newError(KindPaymentRequired, message) }

// Forbidden returns a 403 error
func Forbidden(message string) *Error { return newError(KindForbidden, message) }

// NotFound returns a 404 error
func NotFound(message string) *Error { return newError(KindNotFound, message) }

// Precondition returns a 400 error for requests that are well-formed but cannot proceed
func Precondition(message string) *Error { return newError(KindPrecondition, message) }

// Conflict returns a 409 error
func Conflict(message string) *Error { return newError(KindConflict, message) }

// Unavailable returns a 503 error for features whose backing service is not configured
func Unavailable(message string) *Error { return newError(KindUnavailable, message) }

// Internal wraps an unexpected failure
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "Server error", Err: err}
}

// Responder writes errors as JSON. Internal error text is hidden in production.
type Responder struct {
	Production bool
	Logger     *slog.Logger
}

// Respond aborts the request with the JSON form of err
func (r Responder) Respond(c *gin.Context, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = Internal(err)
	}

	status := apiErr.Status()
	message := apiErr.Message
	if apiErr.Kind == KindInternal {
		r.logger().Error("Request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err.Error(),
		)
		if !r.Production && apiErr.Err != nil {
			message = apiErr.Err.Error()
		}
	}

	code := apiErr.Code
	if code == "" {
		code = codeByKind[apiErr.Kind]
	}

	body := gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	}
	if len(apiErr.Details) > 0 {
		body["details"] = apiErr.Details
	}
	for k, v := range apiErr.Extra {
		body[k] = v
	}

	c.AbortWithStatusJSON(status, body)
}

func (r Responder) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// OK writes a success envelope
func OK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

// FromBinding converts a gin binding failure into a validation error listing each failed field
func FromBinding(err error) *Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Validation("Invalid request body", err.Error())
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, describeField(fe))
	}
	return Validation("Validation failed", details...)
}

func describeField(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
