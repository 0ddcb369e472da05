package handlers

import (
	"net/http"
	"testing"

	"github.com/supportdesk/conversation-engine/internal/domain"
)

func TestAdminRoutes_RejectCustomers(t *testing.T) {
	r, _ := newAPI(t)

	w := doReq(t, r, http.MethodGet, "/admin/tickets", "cust-1", "customer", nil, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("customer on admin route: %d", w.Code)
	}
}

func TestAdminListTickets_FiltersAndSearch(t *testing.T) {
	r, _ := newAPI(t)
	createTicketVia(t, r, "cust-1", "Payment declined at checkout")
	createTicketVia(t, r, "cust-2", "Login loop on mobile")

	// Cross-customer listing.
	w := doReq(t, r, http.MethodGet, "/admin/tickets", "admin-7", "admin", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d (%s)", w.Code, w.Body.String())
	}
	var resp ListTicketsResponse
	decodeJSON(t, w, &resp)
	if resp.Pagination.Total != 2 {
		t.Fatalf("expected both customers' tickets, got %d", resp.Pagination.Total)
	}

	// Case-insensitive substring search.
	w = doReq(t, r, http.MethodGet, "/admin/tickets?search=PAYMENT", "admin-7", "admin", nil, nil)
	decodeJSON(t, w, &resp)
	if len(resp.Tickets) != 1 || resp.Tickets[0].CustomerID != "cust-1" {
		t.Fatalf("search miss: %+v", resp.Tickets)
	}

	w = doReq(t, r, http.MethodGet, "/admin/tickets?status=closed", "admin-7", "admin", nil, nil)
	decodeJSON(t, w, &resp)
	if len(resp.Tickets) != 0 {
		t.Fatalf("status filter not applied: %+v", resp.Tickets)
	}
}

func TestAdminPatchTicket_AppliesAndRejectsTransitions(t *testing.T) {
	r, _ := newAPI(t)
	tk := createTicketVia(t, r, "cust-1", "Payment declined")

	inProgress, urgent := "in_progress", "urgent"
	w := doReq(t, r, http.MethodPatch, "/admin/tickets/"+tk.ID, "admin-7", "admin", PatchTicketRequest{
		Status:   &inProgress,
		Priority: &urgent,
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d (%s)", w.Code, w.Body.String())
	}
	var updated domain.Ticket
	decodeJSON(t, w, &updated)
	if updated.Status != domain.TicketInProgress || updated.Priority != domain.PriorityUrgent {
		t.Fatalf("patch not applied: %+v", updated)
	}

	// in_progress cannot go back to open.
	open := "open"
	w = doReq(t, r, http.MethodPatch, "/admin/tickets/"+tk.ID, "admin-7", "admin", PatchTicketRequest{Status: &open}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("bad transition: %d", w.Code)
	}
	var resp ErrorResponse
	decodeJSON(t, w, &resp)
	if resp.Code != ErrCodeInvalidTransition {
		t.Fatalf("code=%q", resp.Code)
	}
	if resp.Details["from"] != "in_progress" || resp.Details["to"] != "open" {
		t.Fatalf("rejected pair missing: %v", resp.Details)
	}
}

func TestAdminPatchTicket_BadIDAndMissing(t *testing.T) {
	r, _ := newAPI(t)

	st := "in_progress"
	if w := doReq(t, r, http.MethodPatch, "/admin/tickets/nope", "admin-7", "admin", PatchTicketRequest{Status: &st}, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("non-UUID id: %d", w.Code)
	}
	w := doReq(t, r, http.MethodPatch, "/admin/tickets/00000000-0000-0000-0000-000000000000", "admin-7", "admin", PatchTicketRequest{Status: &st}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing ticket: %d", w.Code)
	}
}

func TestAdminAssignTicket_DefaultsToCaller(t *testing.T) {
	r, _ := newAPI(t)
	tk := createTicketVia(t, r, "cust-1", "Payment declined")

	// Empty admin_id assigns the calling admin.
	w := doReq(t, r, http.MethodPost, "/admin/tickets/"+tk.ID+"/assign", "admin-7", "admin", AssignRequest{}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("assign: %d (%s)", w.Code, w.Body.String())
	}
	var assigned domain.Ticket
	decodeJSON(t, w, &assigned)
	if assigned.AssignedAdminID == nil || *assigned.AssignedAdminID != "admin-7" {
		t.Fatalf("caller not assigned: %+v", assigned)
	}
	if assigned.AssignedAt == nil {
		t.Fatalf("assigned_at not stamped")
	}
	firstAssignedAt := *assigned.AssignedAt

	// Reassignment changes the admin but keeps the original stamp.
	w = doReq(t, r, http.MethodPost, "/admin/tickets/"+tk.ID+"/assign", "admin-7", "admin", AssignRequest{AdminID: "admin-9"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("reassign: %d", w.Code)
	}
	decodeJSON(t, w, &assigned)
	if *assigned.AssignedAdminID != "admin-9" {
		t.Fatalf("reassignment not applied: %+v", assigned)
	}
	if !assigned.AssignedAt.Equal(firstAssignedAt) {
		t.Fatalf("assigned_at moved on reassignment")
	}
}

func TestAdminAssignChat_ActiveOnly(t *testing.T) {
	r, _ := newAPI(t)
	sess := startChatVia(t, r, "cust-1", "hello").Session

	w := doReq(t, r, http.MethodPost, "/admin/chat/sessions/"+sess.ID+"/assign", "admin-7", "admin", AssignRequest{}, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("assign: %d (%s)", w.Code, w.Body.String())
	}

	w = doReq(t, r, http.MethodGet, "/chat/sessions/"+sess.ID, "admin-7", "admin", nil, nil)
	var got domain.ChatSession
	decodeJSON(t, w, &got)
	if got.AssignedAdminID == nil || *got.AssignedAdminID != "admin-7" {
		t.Fatalf("admin not paired: %+v", got)
	}

	// A terminal session rejects assignment.
	if w := doReq(t, r, http.MethodPost, "/admin/chat/sessions/"+sess.ID+"/end", "admin-7", "admin", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("end: %d", w.Code)
	}
	w = doReq(t, r, http.MethodPost, "/admin/chat/sessions/"+sess.ID+"/assign", "admin-7", "admin", AssignRequest{}, nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("assign after end: %d", w.Code)
	}
}

func TestAdminEndChat_AnySessionAndMissing(t *testing.T) {
	r, _ := newAPI(t)
	sess := startChatVia(t, r, "cust-1", "hello").Session

	w := doReq(t, r, http.MethodPost, "/admin/chat/sessions/"+sess.ID+"/end", "admin-7", "admin", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("admin end: %d (%s)", w.Code, w.Body.String())
	}
	var ended domain.ChatSession
	decodeJSON(t, w, &ended)
	if ended.Status != domain.ChatEnded {
		t.Fatalf("not ended: %+v", ended)
	}

	w = doReq(t, r, http.MethodPost, "/admin/chat/sessions/00000000-0000-0000-0000-000000000000/end", "admin-7", "admin", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing session: %d", w.Code)
	}
}

func TestAdminAnalytics_CountersAndRanges(t *testing.T) {
	r, _ := newAPI(t)
	createTicketVia(t, r, "cust-1", "Payment declined")
	startChatVia(t, r, "cust-1", "hello")

	w := doReq(t, r, http.MethodGet, "/admin/analytics", "admin-7", "admin", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("analytics: %d (%s)", w.Code, w.Body.String())
	}
	var resp AnalyticsResponse
	decodeJSON(t, w, &resp)
	if resp.Range != "7d" {
		t.Fatalf("default range: %q", resp.Range)
	}
	if resp.TicketsByStatus[domain.TicketOpen] != 1 {
		t.Fatalf("open tickets: %v", resp.TicketsByStatus)
	}
	if resp.ChatsByStatus[domain.ChatActive] != 1 {
		t.Fatalf("active chats: %v", resp.ChatsByStatus)
	}
	// The ticket's opening system message and the chat's initial message.
	if resp.MessageVolume[domain.ThreadTicket] < 1 || resp.MessageVolume[domain.ThreadChat] < 1 {
		t.Fatalf("message volume: %v", resp.MessageVolume)
	}

	w = doReq(t, r, http.MethodGet, "/admin/analytics?range=24h", "admin-7", "admin", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("24h range: %d", w.Code)
	}
	w = doReq(t, r, http.MethodGet, "/admin/analytics?range=1y", "admin-7", "admin", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bogus range: %d", w.Code)
	}
}
