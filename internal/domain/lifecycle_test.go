package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTicketStatusNext(t *testing.T) {
	tests := []struct {
		from   TicketStatus
		event  TicketEvent
		want   TicketStatus
		wantOK bool
	}{
		{TicketStatusOpen, TicketEventReply, TicketStatusReplied, true},
		{TicketStatusReplied, TicketEventReply, TicketStatusReplied, true},
		{TicketStatusOpen, TicketEventResolve, TicketStatusResolved, true},
		{TicketStatusReplied, TicketEventResolve, TicketStatusResolved, true},
		{TicketStatusOpen, TicketEventDispute, TicketStatusDisputed, true},
		{TicketStatusReplied, TicketEventDispute, TicketStatusDisputed, true},
		{TicketStatusResolved, TicketEventReply, "", false},
		{TicketStatusResolved, TicketEventDispute, "", false},
		{TicketStatusDisputed, TicketEventResolve, "", false},
		{TicketStatus("bogus"), TicketEventReply, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, ok := tt.from.Next(tt.event)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	require.False(t, TicketStatusOpen.IsTerminal())
	require.False(t, TicketStatusReplied.IsTerminal())
	require.True(t, TicketStatusResolved.IsTerminal())
	require.True(t, TicketStatusDisputed.IsTerminal())
}

func TestDedupKey(t *testing.T) {
	target := "owner-1"
	other := "owner-2"
	group := &EntityRef{Type: EntityTypeGroup, ID: "g-1"}

	require.Equal(t, DedupKey("r", group, &target), DedupKey("r", group, &other),
		"entity-scoped keys ignore the target")
	require.NotEqual(t, DedupKey("r", group, nil), DedupKey("r", &EntityRef{Type: EntityTypeService, ID: "g-1"}, nil))
	require.NotEqual(t, DedupKey("r", nil, &target), DedupKey("r", nil, &other))
	require.Equal(t, "r1:rq", DedupKey("r", nil, nil))
	require.Equal(t, "r1:rt7:owner-1", DedupKey("r", nil, &target))
	require.Equal(t, "r1:re5:groupi3:g-1", DedupKey("r", group, nil))
}

func TestDedupKeyIsInjective(t *testing.T) {
	ptr := func(s string) *string { return &s }
	tests := []struct {
		name string
		a, b string
	}{
		{
			name: "separator inside ids",
			a:    DedupKey("x", nil, ptr("target:y")),
			b:    DedupKey("x:target", nil, ptr("y")),
		},
		{
			name: "target named like the queue",
			a:    DedupKey("r", nil, nil),
			b:    DedupKey("r", nil, ptr("queue")),
		},
		{
			name: "entity id shaped like a target",
			a:    DedupKey("r", &EntityRef{Type: EntityTypeGroup, ID: "t1:x"}, nil),
			b:    DedupKey("r", nil, ptr("x")),
		},
		{
			name: "length digits inside ids",
			a:    DedupKey("r1:r", nil, nil),
			b:    DedupKey("r", nil, ptr("1:r")),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotEqual(t, tt.a, tt.b)
		})
	}
}

func TestDirectionFor(t *testing.T) {
	target := "o"
	ticket := &Ticket{RequesterID: "r", TargetID: &target}
	require.Equal(t, DirectionSent, ticket.DirectionFor("r"))
	require.Equal(t, DirectionReceived, ticket.DirectionFor("o"))
}
