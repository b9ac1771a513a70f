package domain

// TicketEvent is an input to the lifecycle state machine.
type TicketEvent string

const (
	TicketEventReply   TicketEvent = "reply"
	TicketEventResolve TicketEvent = "resolve"
	TicketEventDispute TicketEvent = "dispute"
)

var transitions = map[TicketStatus]map[TicketEvent]TicketStatus{
	TicketStatusOpen: {
		TicketEventReply:   TicketStatusReplied,
		TicketEventResolve: TicketStatusResolved,
		TicketEventDispute: TicketStatusDisputed,
	},
	TicketStatusReplied: {
		TicketEventReply:   TicketStatusReplied,
		TicketEventResolve: TicketStatusResolved,
		TicketEventDispute: TicketStatusDisputed,
	},
	TicketStatusResolved: {},
	TicketStatusDisputed: {},
}

// Next returns the status reached by applying ev, or false when the
// transition is not in the table.
func (s TicketStatus) Next(ev TicketEvent) (TicketStatus, bool) {
	next, ok := transitions[s][ev]
	return next, ok
}

// IsTerminal reports whether no further transitions are possible.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketStatusResolved || s == TicketStatusDisputed
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}
