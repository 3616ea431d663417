package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"finease/internal/core"
	"finease/internal/log"
)

// ResponseBuilder assembles the JSON envelope every endpoint answers with:
// a "success" flag plus endpoint specific fields.
type ResponseBuilder struct {
	statusCode int
	fields     map[string]any
	headers    map[string]string
}

// NewResponse starts a successful 200 response.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		fields:     map[string]any{"success": true},
		headers:    map[string]string{},
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) With(key string, value any) *ResponseBuilder {
	b.fields[key] = value
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.fields)
}

// ErrorResponse is a failed envelope carrying a user-facing message.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().
		Status(statusCode).
		With("success", false).
		With("error", message)
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// ValidationError reports inline field errors with 422.
func ValidationError(fe core.FieldErrors) *ResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, "Please correct the highlighted fields").
		With("errors", map[string]string(fe))
}

func UnauthorizedError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, message).Header("WWW-Authenticate", "Bearer")
}

func ForbiddenError() *ResponseBuilder {
	return ErrorResponse(http.StatusForbidden, "You do not have access to this resource")
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func TooManyRequestsError() *ResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

func InternalServerError() *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "Something went wrong. Please try again.")
}

// ServiceError maps service and domain errors to a response. Unexpected
// errors are logged and hidden behind a generic 500.
func ServiceError(r *http.Request, err error) *ResponseBuilder {
	var fe core.FieldErrors
	switch {
	case errors.As(err, &fe):
		return ValidationError(fe)
	case errors.Is(err, errBadRequest):
		return BadRequestError(err.Error())
	case errors.Is(err, core.ErrNotFound):
		return NotFoundError("Not found")
	case errors.Is(err, core.ErrForbidden):
		return ForbiddenError()
	case errors.Is(err, core.ErrUnauthorized):
		return UnauthorizedError("Invalid email or password")
	case errors.Is(err, core.ErrConflict):
		return ErrorResponse(http.StatusConflict, "Already exists")
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).LogError(r.Context(), "Request failed", err,
		log.ComponentHTTP, r.Method+" "+r.URL.Path, nil)
	return InternalServerError()
}
