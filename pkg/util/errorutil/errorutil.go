package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes returned to callers.
const (
	CodeInvalidArgument     = "INVALID_ARGUMENT"
	CodeEmptyMessage        = "EMPTY_MESSAGE"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeNotFound            = "NOT_FOUND"
	CodeDuplicateOpenTicket = "DUPLICATE_OPEN_TICKET"
	CodeTicketClosed        = "TICKET_CLOSED"
	CodeTicketAlreadyClosed = "TICKET_ALREADY_CLOSED"
	CodeResolutionTooEarly  = "RESOLUTION_TOO_EARLY"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

// Sentinels for errors.Is comparisons. Matching is by Code only.
var (
	ErrInvalidArgument     = NewDomainError(CodeInvalidArgument, "invalid argument", http.StatusBadRequest, nil)
	ErrEmptyMessage        = NewDomainError(CodeEmptyMessage, "message body must not be empty", http.StatusBadRequest, nil)
	ErrUnauthorized        = NewDomainError(CodeUnauthorized, "actor is not permitted on this ticket", http.StatusForbidden, nil)
	ErrUnauthenticated     = NewDomainError(CodeUnauthenticated, "authentication required", http.StatusUnauthorized, nil)
	ErrNotFound            = NewDomainError(CodeNotFound, "resource not found", http.StatusNotFound, nil)
	ErrDuplicateOpenTicket = NewDomainError(CodeDuplicateOpenTicket, "an open ticket already exists", http.StatusConflict, nil)
	ErrTicketClosed        = NewDomainError(CodeTicketClosed, "ticket is closed", http.StatusConflict, nil)
	ErrTicketAlreadyClosed = NewDomainError(CodeTicketAlreadyClosed, "ticket is already closed", http.StatusConflict, nil)
	ErrResolutionTooEarly  = NewDomainError(CodeResolutionTooEarly, "ticket cannot be resolved yet", http.StatusConflict, nil)
	ErrInvalidTransition   = NewDomainError(CodeInvalidTransition, "invalid status transition", http.StatusConflict, nil)
	ErrRateLimited         = NewDomainError(CodeRateLimited, "too many requests", http.StatusTooManyRequests, nil)
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewInvalidArgument(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidArgument, message, http.StatusBadRequest, details)
}

func NewEmptyMessage() error {
	return NewDomainError(CodeEmptyMessage, ErrEmptyMessage.Message, http.StatusBadRequest, nil)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusForbidden, nil)
}

func NewUnauthenticated(message string) error {
	return NewDomainError(CodeUnauthenticated, message, http.StatusUnauthorized, nil)
}

// NewDuplicateOpenTicket points the caller at the ticket it should resume.
func NewDuplicateOpenTicket(existingTicketID string) error {
	return NewDomainError(CodeDuplicateOpenTicket, ErrDuplicateOpenTicket.Message, http.StatusConflict,
		map[string]any{"existing_ticket_id": existingTicketID})
}

func NewTicketClosed(ticketID string) error {
	return NewDomainError(CodeTicketClosed, ErrTicketClosed.Message, http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

func NewTicketAlreadyClosed(ticketID string) error {
	return NewDomainError(CodeTicketAlreadyClosed, ErrTicketAlreadyClosed.Message, http.StatusConflict,
		map[string]any{"ticket_id": ticketID})
}

// NewResolutionTooEarly reports the remaining cool-down. A zero resolvableAt means the target
// has not replied yet.
func NewResolutionTooEarly(remaining time.Duration, resolvableAt time.Time) error {
	details := map[string]any{}
	message := "target must reply before resolving"
	if !resolvableAt.IsZero() {
		secs := int64(remaining / time.Second)
		if remaining%time.Second != 0 {
			secs++
		}
		details["retry_after_seconds"] = secs
		details["resolvable_at"] = resolvableAt.UTC().Format(time.RFC3339)
		message = fmt.Sprintf("ticket can be resolved in %s", remaining.Round(time.Second))
	}
	return NewDomainError(CodeResolutionTooEarly, message, http.StatusConflict, details)
}

func NewInvalidTransition(from, event string) error {
	return NewDomainError(CodeInvalidTransition, ErrInvalidTransition.Message, http.StatusConflict,
		map[string]any{"from": from, "event": event})
}

func NewRateLimited() error {
	return NewDomainError(CodeRateLimited, ErrRateLimited.Message, http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}
