package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/inquirydesk/inquiry-service/internal/clock"
	"github.com/inquirydesk/inquiry-service/internal/config"
	"github.com/inquirydesk/inquiry-service/internal/directory"
	"github.com/inquirydesk/inquiry-service/internal/domain"
	"github.com/inquirydesk/inquiry-service/internal/events"
	"github.com/inquirydesk/inquiry-service/internal/repository/memory"
	apperrors "github.com/inquirydesk/inquiry-service/pkg/util/errorutil"
)

var (
	requester = Actor{UserID: "rita"}
	owner     = Actor{UserID: "oscar"}
	stranger  = Actor{UserID: "sam"}
	operator  = Actor{UserID: "olga", Operator: true}
)

type fixture struct {
	svc        *TicketService
	store      *memory.Store
	clock      *clock.FakeClock
	dispatcher events.Dispatcher
	queue      *captureQueue
	directory  *directory.Static
}

type captureQueue struct {
	mu     sync.Mutex
	items  []domain.Notification
	reject bool
}

func (q *captureQueue) Enqueue(n domain.Notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject {
		return false
	}
	q.items = append(q.items, n)
	return true
}

func (q *captureQueue) all() []domain.Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.Notification(nil), q.items...)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	queue := &captureQueue{}
	NewNotificationService(dispatcher, queue, "support", zap.NewNop()).RegisterHandlers()
	dir := directory.NewStatic()
	store := memory.NewStore()

	svc := NewTicketService(TicketDependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Directory:  dir,
		Clock:      clk,
		Config:     config.Defaults().Tickets,
		Logger:     zap.NewNop(),
	})
	return &fixture{svc: svc, store: store, clock: clk, dispatcher: dispatcher, queue: queue, directory: dir}
}

func strPtr(s string) *string { return &s }

func groupInquiry(subject string) TicketCreateInput {
	return TicketCreateInput{
		Type:         domain.TicketTypeGroupInquiry,
		TargetID:     strPtr(owner.UserID),
		Entity:       &domain.EntityRef{Type: domain.EntityTypeGroup, ID: "g-42"},
		Subject:      subject,
		FirstMessage: "When do you meet?",
	}
}

func requireCode(t *testing.T, err error, sentinel error) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, sentinel)
}

func TestScenarioRepliesKeepThreadOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusOpen, ticket.Status)

	_, err = f.svc.PostMessage(ctx, owner, ticket.ID, "Tuesdays at 7")
	require.NoError(t, err)
	thread, err := f.svc.GetThread(ctx, requester, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusReplied, thread.Ticket.Status)

	f.clock.Advance(10 * time.Second)
	_, err = f.svc.PostMessage(ctx, requester, ticket.ID, "Thanks!")
	require.NoError(t, err)

	thread, err = f.svc.GetThread(ctx, requester, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusReplied, thread.Ticket.Status)
	require.Len(t, thread.Messages, 3)

	senders := []string{}
	for i, m := range thread.Messages {
		senders = append(senders, m.Message.SenderID)
		if i > 0 {
			require.True(t, m.Message.CreatedAt.After(thread.Messages[i-1].Message.CreatedAt))
		}
	}
	require.Equal(t, []string{requester.UserID, owner.UserID, requester.UserID}, senders)
	require.False(t, thread.Messages[0].VerifiedReply)
	require.True(t, thread.Messages[1].VerifiedReply)
}

func TestScenarioDuplicateOpenTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)

	_, err = f.svc.CreateTicket(ctx, requester, groupInquiry("Another question"))
	requireCode(t, err, apperrors.ErrDuplicateOpenTicket)
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, first.ID, domainErr.Details["existing_ticket_id"])

	// a different requester for the same entity is unaffected
	_, err = f.svc.CreateTicket(ctx, stranger, groupInquiry("Schedule?"))
	require.NoError(t, err)
}

func TestDedupReleasedOnceTicketLeavesOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)
	_, err = f.svc.PostMessage(ctx, owner, first.ID, "Tuesdays")
	require.NoError(t, err)

	_, err = f.svc.CreateTicket(ctx, requester, groupInquiry("Follow-up"))
	require.NoError(t, err)
}

func TestDedupWithoutEntityKeysOnTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	input := TicketCreateInput{Type: domain.TicketTypeGeneral, TargetID: strPtr(owner.UserID), Subject: "Hi", FirstMessage: "Hello"}
	_, err := f.svc.CreateTicket(ctx, requester, input)
	require.NoError(t, err)

	_, err = f.svc.CreateTicket(ctx, requester, input)
	requireCode(t, err, apperrors.ErrDuplicateOpenTicket)

	input.TargetID = strPtr("someone-else")
	_, err = f.svc.CreateTicket(ctx, requester, input)
	require.NoError(t, err)
}

func TestConcurrentCreateSameKeyYieldsOneTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 16
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Race"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperrors.ErrDuplicateOpenTicket):
				duplicates++
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, successes)
	require.Equal(t, attempts-1, duplicates)
}

func TestScenarioResolutionCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	t0 := f.clock.Now()
	_, err = f.svc.PostMessage(ctx, owner, ticket.ID, "Tuesdays")
	require.NoError(t, err)

	f.clock.Set(t0.Add(time.Hour))
	_, err = f.svc.Resolve(ctx, owner, ticket.ID)
	requireCode(t, err, apperrors.ErrResolutionTooEarly)
	require.Equal(t, int64(23*60*60), apperrors.ToDomainError(err).Details["retry_after_seconds"])

	f.clock.Set(t0.Add(24 * time.Hour))
	resolved, err := f.svc.Resolve(ctx, owner, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	require.True(t, resolved.ResolvedAt.Equal(t0.Add(24*time.Hour)))

	// closed tickets reject replies and repeat resolution
	_, err = f.svc.PostMessage(ctx, requester, ticket.ID, "One more thing")
	requireCode(t, err, apperrors.ErrTicketClosed)
	_, err = f.svc.Resolve(ctx, owner, ticket.ID)
	requireCode(t, err, apperrors.ErrTicketAlreadyClosed)

	thread, err := f.svc.GetThread(ctx, owner, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusResolved, thread.Ticket.Status)
	require.Len(t, thread.Messages, 2)
}

func TestResolveCooldownCountsFromLatestTargetMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)
	_, err = f.svc.PostMessage(ctx, owner, ticket.ID, "Tuesdays")
	require.NoError(t, err)

	f.clock.Advance(20 * time.Hour)
	_, err = f.svc.PostMessage(ctx, owner, ticket.ID, "Also Thursdays")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Hour)
	_, err = f.svc.Resolve(ctx, owner, ticket.ID)
	requireCode(t, err, apperrors.ErrResolutionTooEarly)

	// requester messages do not restart the cool-down
	f.clock.Advance(18 * time.Hour)
	_, err = f.svc.PostMessage(ctx, requester, ticket.ID, "ok")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.svc.Resolve(ctx, owner, ticket.ID)
	require.NoError(t, err)
}

func TestResolveRequiresTargetReply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	_, err = f.svc.Resolve(ctx, owner, ticket.ID)
	requireCode(t, err, apperrors.ErrResolutionTooEarly)
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "stranger posts",
			call: func() error { _, err := f.svc.PostMessage(ctx, stranger, ticket.ID, "hi"); return err },
			want: apperrors.ErrUnauthorized,
		},
		{
			name: "stranger reads",
			call: func() error { _, err := f.svc.GetThread(ctx, stranger, ticket.ID); return err },
			want: apperrors.ErrUnauthorized,
		},
		{
			name: "requester resolves",
			call: func() error { _, err := f.svc.Resolve(ctx, requester, ticket.ID); return err },
			want: apperrors.ErrUnauthorized,
		},
		{
			name: "operator resolves non-support ticket",
			call: func() error { _, err := f.svc.Resolve(ctx, operator, ticket.ID); return err },
			want: apperrors.ErrUnauthorized,
		},
		{
			name: "stranger disputes",
			call: func() error { _, err := f.svc.Dispute(ctx, stranger, ticket.ID); return err },
			want: apperrors.ErrUnauthorized,
		},
		{
			name: "unknown ticket",
			call: func() error { _, err := f.svc.PostMessage(ctx, requester, "missing", "hi"); return err },
			want: apperrors.ErrNotFound,
		},
		{
			name: "empty body",
			call: func() error { _, err := f.svc.PostMessage(ctx, requester, ticket.ID, "   "); return err },
			want: apperrors.ErrEmptyMessage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, tt.call(), tt.want)
		})
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		input TicketCreateInput
	}{
		{name: "blank subject", input: TicketCreateInput{Type: domain.TicketTypeGeneral, TargetID: strPtr("o"), Subject: "  ", FirstMessage: "x"}},
		{name: "blank message", input: TicketCreateInput{Type: domain.TicketTypeGeneral, TargetID: strPtr("o"), Subject: "s", FirstMessage: " "}},
		{name: "unknown type", input: TicketCreateInput{Type: "complaint", TargetID: strPtr("o"), Subject: "s", FirstMessage: "x"}},
		{name: "missing target", input: TicketCreateInput{Type: domain.TicketTypeGeneral, Subject: "s", FirstMessage: "x"}},
		{name: "self target", input: TicketCreateInput{Type: domain.TicketTypeGeneral, TargetID: strPtr(requester.UserID), Subject: "s", FirstMessage: "x"}},
		{name: "bad entity", input: TicketCreateInput{Type: domain.TicketTypeGeneral, TargetID: strPtr("o"), Entity: &domain.EntityRef{Type: "venue", ID: "1"}, Subject: "s", FirstMessage: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateTicket(ctx, requester, tt.input)
			requireCode(t, err, apperrors.ErrInvalidArgument)
		})
	}
}

func TestDispute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Refund"))
	require.NoError(t, err)

	disputed, err := f.svc.Dispute(ctx, requester, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusDisputed, disputed.Status)
	require.Nil(t, disputed.ResolvedAt)

	_, err = f.svc.Dispute(ctx, owner, ticket.ID)
	requireCode(t, err, apperrors.ErrTicketAlreadyClosed)
	_, err = f.svc.PostMessage(ctx, owner, ticket.ID, "hello?")
	requireCode(t, err, apperrors.ErrTicketClosed)
	_, err = f.svc.Resolve(ctx, owner, ticket.ID)
	requireCode(t, err, apperrors.ErrTicketAlreadyClosed)
}

func TestSupportTicketsRouteToOperators(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, requester, TicketCreateInput{
		Type:         domain.TicketTypeSupport,
		Subject:      "Cannot log in",
		FirstMessage: "Password reset never arrives",
	})
	require.NoError(t, err)
	require.Nil(t, ticket.TargetID)

	_, err = f.svc.PostMessage(ctx, operator, ticket.ID, "Looking into it")
	require.NoError(t, err)

	thread, err := f.svc.GetThread(ctx, operator, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.DirectionReceived, thread.Direction)
	require.True(t, thread.Messages[1].VerifiedReply)

	inbox, err := f.svc.ListTickets(ctx, operator, TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, inbox, 1)

	f.clock.Advance(25 * time.Hour)
	_, err = f.svc.Resolve(ctx, operator, ticket.ID)
	require.NoError(t, err)

	notes := f.queue.all()
	require.Len(t, notes, 2)
	require.Equal(t, "support", notes[0].RecipientID)
	require.Equal(t, requester.UserID, notes[1].RecipientID)
}

func TestNotificationsTargetOtherParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)
	reply, err := f.svc.PostMessage(ctx, owner, ticket.ID, "Tuesdays")
	require.NoError(t, err)
	_, err = f.svc.PostMessage(ctx, requester, ticket.ID, "Thanks")
	require.NoError(t, err)

	notes := f.queue.all()
	require.Len(t, notes, 3)
	require.Equal(t, domain.NotificationNewTicket, notes[0].Kind)
	require.Equal(t, owner.UserID, notes[0].RecipientID)
	require.Equal(t, domain.NotificationNewReply, notes[1].Kind)
	require.Equal(t, requester.UserID, notes[1].RecipientID)
	require.Equal(t, reply.ID, notes[1].MessageID)
	require.Equal(t, owner.UserID, notes[2].RecipientID)
}

func TestNotificationFailureDoesNotFailWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.queue.reject = true
	f.dispatcher.Subscribe(events.EventTicketCreated, func(context.Context, events.Event) error {
		return errors.New("delivery collaborator down")
	})
	f.dispatcher.Subscribe(events.EventMessagePosted, func(context.Context, events.Event) error {
		panic("sink exploded")
	})

	ticket, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)
	_, err = f.svc.PostMessage(ctx, owner, ticket.ID, "Tuesdays")
	require.NoError(t, err)

	thread, err := f.svc.GetThread(ctx, owner, ticket.ID)
	require.NoError(t, err)
	require.Len(t, thread.Messages, 2)
}

func TestListTicketsFiltersAndEnrichment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.directory.PutProfile(directory.Profile{ID: owner.UserID, DisplayName: "Oscar"})
	f.directory.PutProfile(directory.Profile{ID: requester.UserID, DisplayName: "Rita"})
	f.directory.PutEntity(domain.EntityRef{Type: domain.EntityTypeGroup, ID: "g-42"}, "Morning Runners")

	sent, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	received, err := f.svc.CreateTicket(ctx, owner, TicketCreateInput{
		Type:         domain.TicketTypeTrainingInquiry,
		TargetID:     strPtr(requester.UserID),
		Subject:      "Coaching slots",
		FirstMessage: "Do you coach?",
	})
	require.NoError(t, err)

	all, err := f.svc.ListTickets(ctx, requester, TicketListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, received.ID, all[0].Ticket.ID)
	require.Equal(t, domain.DirectionReceived, all[0].Direction)
	require.Equal(t, "Oscar", all[0].Counterpart.DisplayName)
	require.Equal(t, domain.DirectionSent, all[1].Direction)
	require.Equal(t, "Morning Runners", *all[1].EntityName)

	dir := domain.DirectionSent
	onlySent, err := f.svc.ListTickets(ctx, requester, TicketListFilter{Direction: &dir})
	require.NoError(t, err)
	require.Len(t, onlySent, 1)
	require.Equal(t, sent.ID, onlySent[0].Ticket.ID)

	typ := domain.TicketTypeTrainingInquiry
	byType, err := f.svc.ListTickets(ctx, requester, TicketListFilter{Type: &typ})
	require.NoError(t, err)
	require.Len(t, byType, 1)

	search, err := f.svc.ListTickets(ctx, requester, TicketListFilter{SearchTerm: strPtr("coach")})
	require.NoError(t, err)
	require.Len(t, search, 1)
	require.Equal(t, received.ID, search[0].Ticket.ID)

	none, err := f.svc.ListTickets(ctx, stranger, TicketListFilter{})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestPostMessageOrderingSurvivesClockSkew(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)

	f.clock.Advance(-time.Minute)
	_, err = f.svc.PostMessage(ctx, owner, ticket.ID, "Tuesdays")
	require.NoError(t, err)

	thread, err := f.svc.GetThread(ctx, requester, ticket.ID)
	require.NoError(t, err)
	require.True(t, thread.Messages[1].Message.CreatedAt.After(thread.Messages[0].Message.CreatedAt))
}

func TestConcurrentPostsKeepStrictThreadOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)

	const posters = 24
	var wg sync.WaitGroup
	errs := make(chan error, posters)
	for i := 0; i < posters; i++ {
		author := owner
		if i%2 == 1 {
			author = requester
		}
		wg.Add(1)
		go func(author Actor) {
			defer wg.Done()
			_, err := f.svc.PostMessage(ctx, author, ticket.ID, "ping")
			errs <- err
		}(author)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	thread, err := f.svc.GetThread(ctx, requester, ticket.ID)
	require.NoError(t, err)
	require.Len(t, thread.Messages, posters+1)
	for i := 1; i < len(thread.Messages); i++ {
		prev, cur := thread.Messages[i-1].Message, thread.Messages[i].Message
		require.True(t, cur.CreatedAt.After(prev.CreatedAt),
			"message %d at %s not after %s", i, cur.CreatedAt, prev.CreatedAt)
	}
}

func TestDedupKeysDoNotCollideAcrossSeparators(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	general := func(target string) TicketCreateInput {
		return TicketCreateInput{Type: domain.TicketTypeGeneral, TargetID: strPtr(target), Subject: "Hi", FirstMessage: "Hello"}
	}

	_, err := f.svc.CreateTicket(ctx, Actor{UserID: "x"}, general("target:y"))
	require.NoError(t, err)
	_, err = f.svc.CreateTicket(ctx, Actor{UserID: "x:target"}, general("y"))
	require.NoError(t, err, "a different requester must not inherit the first ticket")

	support := TicketCreateInput{Type: domain.TicketTypeSupport, Subject: "Login", FirstMessage: "Locked out"}
	_, err = f.svc.CreateTicket(ctx, requester, support)
	require.NoError(t, err)
	_, err = f.svc.CreateTicket(ctx, requester, general("queue"))
	require.NoError(t, err, "a target named queue is not the support queue")

	_, err = f.svc.CreateTicket(ctx, requester, support)
	requireCode(t, err, apperrors.ErrDuplicateOpenTicket)
}

func TestUnknownStatusIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ticket, err := f.svc.CreateTicket(ctx, requester, groupInquiry("Schedule?"))
	require.NoError(t, err)

	stored, err := f.store.Repositories().Tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	stored.Status = domain.TicketStatus("archived")
	require.NoError(t, f.store.Repositories().Tickets.Update(ctx, stored))

	_, err = f.svc.PostMessage(ctx, owner, ticket.ID, "Still there?")
	requireCode(t, err, apperrors.ErrInvalidTransition)
	_, err = f.svc.Dispute(ctx, requester, ticket.ID)
	requireCode(t, err, apperrors.ErrInvalidTransition)
}
