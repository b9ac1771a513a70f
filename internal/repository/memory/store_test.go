package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/repository"
)

func strPtr(s string) *string { return &s }

func newTicket(id, requester string, target *string, subject string, updated time.Time) *domain.Ticket {
	return &domain.Ticket{
		ID:          id,
		RequesterID: requester,
		TargetID:    target,
		Type:        domain.TicketTypeGeneral,
		Subject:     subject,
		Status:      domain.TicketStatusOpen,
		DedupKey:    domain.DedupKey(requester, nil, target),
		CreatedAt:   updated,
		UpdatedAt:   updated,
	}
}

func TestRunInTxDiscardsOnError(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		require.NoError(t, repos.Tickets.Create(ctx, newTicket("t1", "u1", strPtr("u2"), "hello", time.Now())))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Repositories().Tickets.GetByID(ctx, "t1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateRejectsSecondOpenTicketForKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := store.Repositories()
	now := time.Now()

	require.NoError(t, repos.Tickets.Create(ctx, newTicket("t1", "u1", strPtr("u2"), "first", now)))
	err := repos.Tickets.Create(ctx, newTicket("t2", "u1", strPtr("u2"), "second", now))
	require.ErrorIs(t, err, repository.ErrDuplicateOpenTicket)

	// once the first leaves open, the key is free again
	first, err := repos.Tickets.GetByID(ctx, "t1")
	require.NoError(t, err)
	first.Status = domain.TicketStatusReplied
	require.NoError(t, repos.Tickets.Update(ctx, first))
	require.NoError(t, repos.Tickets.Create(ctx, newTicket("t3", "u1", strPtr("u2"), "third", now)))
}

func TestListWithFilter(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := store.Repositories()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repos.Tickets.Create(ctx, newTicket("a", "alice", strPtr("bob"), "Schedule question", base)))
	require.NoError(t, repos.Tickets.Create(ctx, newTicket("b", "bob", strPtr("alice"), "Pricing", base.Add(time.Hour))))
	require.NoError(t, repos.Tickets.Create(ctx, newTicket("c", "carol", strPtr("dave"), "Unrelated", base.Add(2*time.Hour))))
	support := newTicket("d", "erin", nil, "Login broken", base.Add(3*time.Hour))
	support.Type = domain.TicketTypeSupport
	require.NoError(t, repos.Tickets.Create(ctx, support))

	sent := domain.DirectionSent
	received := domain.DirectionReceived
	tests := []struct {
		name   string
		filter repository.TicketFilter
		want   []string
	}{
		{name: "all for alice", filter: repository.TicketFilter{ParticipantID: "alice"}, want: []string{"b", "a"}},
		{name: "sent", filter: repository.TicketFilter{ParticipantID: "alice", Direction: &sent}, want: []string{"a"}},
		{name: "received", filter: repository.TicketFilter{ParticipantID: "alice", Direction: &received}, want: []string{"b"}},
		{name: "search", filter: repository.TicketFilter{ParticipantID: "alice", SearchTerm: strPtr("SCHED")}, want: []string{"a"}},
		{name: "operator queue", filter: repository.TicketFilter{ParticipantID: "op", IncludeSupportQueue: true, Direction: &received}, want: []string{"d"}},
		{name: "non operator", filter: repository.TicketFilter{ParticipantID: "op"}, want: nil},
		{name: "paging", filter: repository.TicketFilter{ParticipantID: "alice", Limit: 1, Offset: 1}, want: []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repos.Tickets.ListWithFilter(ctx, tt.filter)
			require.NoError(t, err)
			var ids []string
			for _, tk := range got {
				ids = append(ids, tk.ID)
			}
			require.Equal(t, tt.want, ids)
		})
	}
}

func TestMessagesOrderedAndLatestReply(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	repos := store.Repositories()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repos.Tickets.Create(ctx, newTicket("t", "alice", strPtr("bob"), "hi", base)))

	require.NoError(t, repos.Messages.Create(ctx, &domain.Message{ID: "m2", TicketID: "t", SenderID: "bob", Body: "reply", CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, repos.Messages.Create(ctx, &domain.Message{ID: "m1", TicketID: "t", SenderID: "alice", Body: "first", CreatedAt: base}))
	require.NoError(t, repos.Messages.Create(ctx, &domain.Message{ID: "m3", TicketID: "t", SenderID: "alice", Body: "again", CreatedAt: base.Add(2 * time.Minute)}))

	msgs, err := repos.Messages.ListByTicket(ctx, "t")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "m1", msgs[0].ID)
	require.Equal(t, "m3", msgs[2].ID)

	latest, err := repos.Messages.LatestReply(ctx, "t", "alice")
	require.NoError(t, err)
	require.Equal(t, "m2", latest.ID)

	_, err = repos.Messages.LatestReply(ctx, "t", "bob")
	require.NoError(t, err)

	err = repos.Messages.Create(ctx, &domain.Message{ID: "x", TicketID: "missing"})
	require.ErrorIs(t, err, repository.ErrNotFound)
}
