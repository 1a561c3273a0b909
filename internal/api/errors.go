package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/brandchat/internal/chat"
)

type ApiError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"error"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func newApiError(statusCode int, msg string) *ApiError {
	if msg == "" {
		msg = lower(http.StatusText(statusCode))
	}
	return &ApiError{StatusCode: statusCode, Message: msg}
}

func NewBadRequestError() *ApiError {
	return newApiError(http.StatusBadRequest, "")
}

func NewNotFoundError() *ApiError {
	return newApiError(http.StatusNotFound, "")
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return newApiError(http.StatusUnauthorized, "")
}

func NewForbiddenError() *ApiError {
	return newApiError(http.StatusForbidden, "")
}

func NewConflictError() *ApiError {
	return newApiError(http.StatusConflict, "")
}

// apiErrorFrom maps a chat error to its HTTP form. Messages of client
// errors are passed through; internal causes never are.
func apiErrorFrom(err error) *ApiError {
	var ce *chat.Error
	if !errors.As(err, &ce) {
		return NewInternalServerError(err)
	}

	switch ce.Kind {
	case chat.BadRequest:
		return newApiError(http.StatusBadRequest, ce.Message)
	case chat.Unauthorized:
		return newApiError(http.StatusUnauthorized, ce.Message)
	case chat.Forbidden:
		return newApiError(http.StatusForbidden, ce.Message)
	case chat.NotFound:
		return newApiError(http.StatusNotFound, ce.Message)
	case chat.Conflict:
		return newApiError(http.StatusConflict, ce.Message)
	default:
		return NewInternalServerError(err)
	}
}
