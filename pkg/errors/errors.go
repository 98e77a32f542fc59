package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrBadRequest         = errors.New("bad request")
	ErrInternalServer     = errors.New("internal server error")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrRateLimited        = errors.New("rate limit exceeded")

	ErrGroupNotFound   = errors.New("group not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotMember       = errors.New("not a member of this group")
	ErrNotSender       = errors.New("only the sender can modify this message")
	ErrMessageDeleted  = errors.New("message is already deleted")
	ErrEmptyMessage    = errors.New("message content cannot be empty")
	ErrContentTooLong  = errors.New("message content is too long")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrGroupNotFound), errors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotMember), errors.Is(err, ErrNotSender):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrEmptyMessage),
		errors.Is(err, ErrContentTooLong), errors.Is(err, ErrMessageDeleted):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus maps a response status back onto a sentinel so that clients of the
// REST API can use errors.Is on failures.
func FromHTTPStatus(code int) error {
	switch code {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrInternalServer
	}
}
