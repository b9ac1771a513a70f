package handlers

import (
	"bufio"
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/live"
)

func TestWriteEventCarriesMessageID(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	err := writeEvent(w, "message", live.Update{
		Kind:     live.UpdateMessage,
		TicketID: "t1",
		Status:   domain.TicketStatusReplied,
		Message:  &live.MessageUpdate{ID: "m1", SenderID: "bob", Body: "hi", CreatedAt: time.Unix(0, 0).UTC()},
	})
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "id: m1\n")
	require.Contains(t, out, "event: message\n")
	require.Contains(t, out, `"ticket_id":"t1"`)
	require.True(t, bytes.HasSuffix(buf.Bytes(), []byte("\n\n")))
}

func TestWriteEventStatusHasNoID(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	require.NoError(t, writeEvent(w, "status", live.Update{Kind: live.UpdateStatus, TicketID: "t1", Status: domain.TicketStatusResolved}))
	require.NotContains(t, buf.String(), "id:")
	require.Contains(t, buf.String(), `"status":"resolved"`)
}
