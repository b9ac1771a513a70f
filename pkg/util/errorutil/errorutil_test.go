package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDomainErrorIsMatchesByCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{name: "same code with details", err: NewDuplicateOpenTicket("t-1"), target: ErrDuplicateOpenTicket, want: true},
		{name: "wrapped", err: fmt.Errorf("create: %w", NewTicketClosed("t-1")), target: ErrTicketClosed, want: true},
		{name: "different code", err: NewTicketClosed("t-1"), target: ErrTicketAlreadyClosed, want: false},
		{name: "plain error", err: errors.New("boom"), target: ErrNotFound, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestNewResolutionTooEarlyRoundsUpSeconds(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	err := NewResolutionTooEarly(90*time.Second+time.Millisecond, at)

	de := ToDomainError(err)
	require.Equal(t, CodeResolutionTooEarly, de.Code)
	require.Equal(t, http.StatusConflict, de.HTTPStatus)
	require.Equal(t, int64(91), de.Details["retry_after_seconds"])
	require.Equal(t, "2026-01-02T03:04:05Z", de.Details["resolvable_at"])
}

func TestNewResolutionTooEarlyWithoutReply(t *testing.T) {
	de := ToDomainError(NewResolutionTooEarly(0, time.Time{}))
	require.Empty(t, de.Details)
	require.Equal(t, "target must reply before resolving", de.Message)
}

func TestToDomainErrorWrapsUnknown(t *testing.T) {
	de := ToDomainError(errors.New("db down"))
	require.Equal(t, CodeInternal, de.Code)
	require.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	require.Nil(t, ToDomainError(nil))
}
