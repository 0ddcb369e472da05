package domain

// TicketStatus is the lifecycle state of a ticket. The allowed transitions
// form a forward-moving machine with one backward edge (a customer reply
// reopens work):
//
//	open → in_progress → waiting_for_customer → resolved → closed
//	open → closed
//	waiting_for_customer → in_progress
//
// closed is terminal; nothing leaves it.
type TicketStatus string

const (
	TicketOpen               TicketStatus = "open"
	TicketInProgress         TicketStatus = "in_progress"
	TicketWaitingForCustomer TicketStatus = "waiting_for_customer"
	TicketResolved           TicketStatus = "resolved"
	TicketClosed             TicketStatus = "closed"
)

// Valid reports whether s is one of the known ticket statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketWaitingForCustomer, TicketResolved, TicketClosed:
		return true
	}
	return false
}

// ticketTransitions maps each status to the set of statuses reachable from it.
var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketOpen:               {TicketInProgress, TicketClosed},
	TicketInProgress:         {TicketWaitingForCustomer, TicketResolved, TicketClosed},
	TicketWaitingForCustomer: {TicketInProgress, TicketResolved, TicketClosed},
	TicketResolved:           {TicketClosed},
	TicketClosed:             nil,
}

// CanTransition reports whether a ticket may move from `from` to `to`.
// A no-op transition (from == to) is always permitted.
func CanTransition(from, to TicketStatus) bool {
	if from == to {
		return true
	}
	for _, next := range ticketTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ChatStatus is the lifecycle state of a chat session. Both ended and
// abandoned are terminal.
type ChatStatus string

const (
	ChatActive    ChatStatus = "active"
	ChatEnded     ChatStatus = "ended"
	ChatAbandoned ChatStatus = "abandoned"
)

// Valid reports whether s is one of the known chat statuses.
func (s ChatStatus) Valid() bool {
	switch s {
	case ChatActive, ChatEnded, ChatAbandoned:
		return true
	}
	return false
}

// Terminal reports whether s accepts no further transitions.
func (s ChatStatus) Terminal() bool { return s == ChatEnded || s == ChatAbandoned }
