package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/supportdesk/conversation-engine/internal/auth"
	"github.com/supportdesk/conversation-engine/internal/domain"
	"github.com/supportdesk/conversation-engine/internal/events"
	"github.com/supportdesk/conversation-engine/internal/http/middleware"
	"github.com/supportdesk/conversation-engine/internal/repo"
	"github.com/supportdesk/conversation-engine/internal/services"
)

// newAPI wires a router over a temp database the way the production router
// does, minus tracing and metrics.
func newAPI(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("handlers_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	producer := events.NewKafkaProducer(nil, "") // no-op
	ticketSvc := services.NewTicketService(db, producer)
	chatSvc := services.NewChatService(db, producer)
	syncSvc := services.NewSyncService(db)
	h := New(ticketSvc, chatSvc, syncSvc, &auth.OwnershipGate{DB: db}, db, 0)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("")
	api.Use(middleware.Authenticate(auth.HeaderResolver{}))
	api.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{},
		func(ctx context.Context, userID, threadID, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, threadID, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	api.POST("/tickets", h.CreateTicket)
	api.GET("/tickets", h.ListTickets)
	api.GET("/tickets/:id", h.GetTicket)
	api.POST("/tickets/:id/messages", h.PostTicketMessage)
	api.GET("/tickets/:id/messages", h.SyncTicketMessages)
	api.POST("/tickets/:id/read", h.MarkTicketRead)

	api.POST("/chat/sessions", h.StartChat)
	api.GET("/chat/sessions", h.ListChatSessions)
	api.GET("/chat/sessions/:id", h.GetChatSession)
	api.POST("/chat/sessions/:id/messages", h.PostChatMessage)
	api.GET("/chat/sessions/:id/messages", h.SyncChatMessages)
	api.POST("/chat/sessions/:id/read", h.MarkChatRead)
	api.POST("/chat/sessions/:id/end", h.EndChat)

	admin := api.Group("/admin")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/tickets", h.AdminListTickets)
	admin.PATCH("/tickets/:id", h.AdminPatchTicket)
	admin.POST("/tickets/:id/assign", h.AdminAssignTicket)
	admin.POST("/chat/sessions/:id/assign", h.AdminAssignChat)
	admin.POST("/chat/sessions/:id/end", h.AdminEndChat)
	admin.GET("/analytics", h.AdminAnalytics)

	return r, db
}

// doReq issues a request with identity headers. A string body is sent raw;
// anything else is JSON-encoded.
func doReq(t *testing.T, r *gin.Engine, method, path, userID, role string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, rd)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("unmarshal response: %v (body: %s)", err, w.Body.String())
	}
}

func errCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decodeJSON(t, w, &resp)
	return resp.Code
}

// createTicketVia opens a ticket through the API and returns it.
func createTicketVia(t *testing.T, r *gin.Engine, customerID, subject string) domain.Ticket {
	t.Helper()
	w := doReq(t, r, http.MethodPost, "/tickets", customerID, "customer", CreateTicketRequest{
		Subject:     subject,
		Description: "it is broken",
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create ticket: %d (%s)", w.Code, w.Body.String())
	}
	var tk domain.Ticket
	decodeJSON(t, w, &tk)
	return tk
}

func TestCreateTicket_Success(t *testing.T) {
	r, _ := newAPI(t)

	w := doReq(t, r, http.MethodPost, "/tickets", "cust-1", "customer", CreateTicketRequest{
		Subject:     "Cannot log in",
		Description: "Password reset emails never arrive.",
		Priority:    "high",
	}, nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d (%s)", w.Code, w.Body.String())
	}
	var tk domain.Ticket
	decodeJSON(t, w, &tk)
	if tk.ID == "" || !strings.HasPrefix(tk.TicketNumber, "TKT-") {
		t.Fatalf("identity fields missing: %+v", tk)
	}
	if tk.Status != domain.TicketOpen || tk.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected status/priority: %s/%s", tk.Status, tk.Priority)
	}
	if tk.CustomerID != "cust-1" {
		t.Fatalf("owner not recorded: %q", tk.CustomerID)
	}
}

func TestCreateTicket_Unauthenticated(t *testing.T) {
	r, _ := newAPI(t)

	w := doReq(t, r, http.MethodPost, "/tickets", "", "", CreateTicketRequest{
		Subject:     "s",
		Description: "d",
	}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCreateTicket_BadInput(t *testing.T) {
	r, _ := newAPI(t)

	// Malformed JSON fails binding.
	w := doReq(t, r, http.MethodPost, "/tickets", "cust-1", "customer", `{"subject":`, nil)
	if w.Code != http.StatusBadRequest || errCode(t, w) != ErrCodeBadRequest {
		t.Fatalf("malformed JSON: %d %s", w.Code, w.Body.String())
	}

	// Well-formed payload with a bad priority fails service validation.
	w = doReq(t, r, http.MethodPost, "/tickets", "cust-1", "customer", CreateTicketRequest{
		Subject:     "s",
		Description: "d",
		Priority:    "critical",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad priority: %d", w.Code)
	}
	var resp ErrorResponse
	decodeJSON(t, w, &resp)
	if resp.Code != ErrCodeValidation || resp.Details["priority"] == nil {
		t.Fatalf("unexpected validation envelope: %+v", resp)
	}
}

func TestGetTicket_OwnershipAndIDFormat(t *testing.T) {
	r, _ := newAPI(t)
	tk := createTicketVia(t, r, "cust-1", "Broken checkout")

	if w := doReq(t, r, http.MethodGet, "/tickets/not-a-uuid", "cust-1", "customer", nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("non-UUID id: %d", w.Code)
	}

	// A foreign ticket is a 404, never a 403.
	w := doReq(t, r, http.MethodGet, "/tickets/"+tk.ID, "cust-2", "customer", nil, nil)
	if w.Code != http.StatusNotFound || errCode(t, w) != ErrCodeNotFound {
		t.Fatalf("foreign ticket: %d %s", w.Code, w.Body.String())
	}

	if w := doReq(t, r, http.MethodGet, "/tickets/"+tk.ID, "cust-1", "customer", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("owner fetch: %d", w.Code)
	}

	// Admins are not ownership-scoped.
	if w := doReq(t, r, http.MethodGet, "/tickets/"+tk.ID, "admin-7", "admin", nil, nil); w.Code != http.StatusOK {
		t.Fatalf("admin fetch: %d", w.Code)
	}
}

func TestListTickets_Pagination(t *testing.T) {
	r, _ := newAPI(t)
	for i := 0; i < 3; i++ {
		createTicketVia(t, r, "cust-1", fmt.Sprintf("Issue %d", i))
	}
	createTicketVia(t, r, "cust-2", "Someone else's issue")

	w := doReq(t, r, http.MethodGet, "/tickets?page=1&page_size=2", "cust-1", "customer", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var resp ListTicketsResponse
	decodeJSON(t, w, &resp)
	if len(resp.Tickets) != 2 {
		t.Fatalf("page size not applied: %d", len(resp.Tickets))
	}
	if resp.Pagination.Total != 3 || resp.Pagination.TotalPages != 2 || !resp.Pagination.HasNext {
		t.Fatalf("unexpected pagination: %+v", resp.Pagination)
	}
	for _, tk := range resp.Tickets {
		if tk.CustomerID != "cust-1" {
			t.Fatalf("foreign ticket leaked into listing: %+v", tk)
		}
	}
}

func TestPostTicketMessage_CreatedAndReplayed(t *testing.T) {
	r, _ := newAPI(t)
	tk := createTicketVia(t, r, "cust-1", "Broken checkout")

	hdr := map[string]string{middleware.HeaderIdempotencyKey: "send-1"}
	w := doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", PostMessageRequest{
		Content: "Still broken today.",
	}, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("first send: %d (%s)", w.Code, w.Body.String())
	}
	var first PostMessageResponse
	decodeJSON(t, w, &first)
	if first.Message == nil || first.Message.Seq != 2 {
		// Seq 1 is the ticket's system opening message.
		t.Fatalf("unexpected message: %+v", first.Message)
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("fresh send must not be marked replayed")
	}

	// Same key: the stored message comes back, nothing new is appended.
	w = doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", PostMessageRequest{
		Content: "Still broken today.",
	}, hdr)
	if w.Code != http.StatusCreated {
		t.Fatalf("retry: %d", w.Code)
	}
	if w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("retry not marked replayed")
	}
	var second PostMessageResponse
	decodeJSON(t, w, &second)
	if second.Message.ID != first.Message.ID || second.Message.Seq != first.Message.Seq {
		t.Fatalf("replay returned a different message: %+v vs %+v", second.Message, first.Message)
	}
}

func TestPostTicketMessage_InternalByCustomerForbidden(t *testing.T) {
	r, _ := newAPI(t)
	tk := createTicketVia(t, r, "cust-1", "Broken checkout")

	w := doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", PostMessageRequest{
		Content:    "note to self",
		IsInternal: true,
	}, nil)
	if w.Code != http.StatusForbidden || errCode(t, w) != ErrCodeForbidden {
		t.Fatalf("internal flag by customer: %d %s", w.Code, w.Body.String())
	}

	// Admins may attach internal notes.
	w = doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/messages", "admin-7", "admin", PostMessageRequest{
		Content:    "checked the logs, looks like a cert issue",
		IsInternal: true,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("admin internal note: %d (%s)", w.Code, w.Body.String())
	}
}

func TestPostTicketMessage_ClosedTicketConflict(t *testing.T) {
	r, _ := newAPI(t)
	tk := createTicketVia(t, r, "cust-1", "Broken checkout")

	closed := "closed"
	w := doReq(t, r, http.MethodPatch, "/admin/tickets/"+tk.ID, "admin-7", "admin", PatchTicketRequest{Status: &closed}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("close ticket: %d (%s)", w.Code, w.Body.String())
	}

	w = doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", PostMessageRequest{
		Content: "hello?",
	}, nil)
	if w.Code != http.StatusConflict || errCode(t, w) != ErrCodeThreadClosed {
		t.Fatalf("send on closed ticket: %d %s", w.Code, w.Body.String())
	}
}

func TestPostTicketMessage_EmptyContent(t *testing.T) {
	r, _ := newAPI(t)
	tk := createTicketVia(t, r, "cust-1", "Broken checkout")

	// Whitespace-only content survives binding but dies in sanitization.
	w := doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", PostMessageRequest{
		Content: "   \n\n  ",
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("blank content: %d", w.Code)
	}
}

func TestSyncTicketMessages_CursorAndETag(t *testing.T) {
	r, _ := newAPI(t)
	tk := createTicketVia(t, r, "cust-1", "Broken checkout")

	for _, msg := range []string{"first", "second"} {
		w := doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", PostMessageRequest{Content: msg}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("send %q: %d", msg, w.Code)
		}
	}

	// Full replay from cursor zero: system message plus two sends.
	w := doReq(t, r, http.MethodGet, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync: %d (%s)", w.Code, w.Body.String())
	}
	var resp services.SyncResponse
	decodeJSON(t, w, &resp)
	if len(resp.Messages) != 3 || resp.NextCursor != 3 {
		t.Fatalf("unexpected page: %d messages, cursor %d", len(resp.Messages), resp.NextCursor)
	}
	if resp.Status != "open" || resp.ThreadType != domain.ThreadTicket {
		t.Fatalf("thread metadata wrong: %+v", resp)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("ETag missing")
	}

	// Unchanged thread: the echoed ETag short-circuits to 304.
	w = doReq(t, r, http.MethodGet, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	// Caught-up cursor: empty page, cursor echoed back.
	w = doReq(t, r, http.MethodGet, "/tickets/"+tk.ID+"/messages?cursor=3", "cust-1", "customer", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("caught-up sync: %d", w.Code)
	}
	decodeJSON(t, w, &resp)
	if len(resp.Messages) != 0 || resp.NextCursor != 3 {
		t.Fatalf("caught-up poll not stable: %d messages, cursor %d", len(resp.Messages), resp.NextCursor)
	}
}

func TestSyncTicketMessages_CustomerETagUnmovedByInternalNotes(t *testing.T) {
	r, _ := newAPI(t)
	tk := createTicketVia(t, r, "cust-1", "Broken checkout")

	w := doReq(t, r, http.MethodGet, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync: %d (%s)", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("ETag missing")
	}

	// Internal-only activity must not be observable through the customer's tag.
	w = doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/messages", "admin-7", "admin", PostMessageRequest{
		Content:    "internal triage note",
		IsInternal: true,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("internal note: %d", w.Code)
	}
	w = doReq(t, r, http.MethodGet, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304 after internal-only activity, got %d", w.Code)
	}

	// A public reply does move it.
	w = doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/messages", "admin-7", "admin", PostMessageRequest{Content: "we are on it"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("reply: %d", w.Code)
	}
	w = doReq(t, r, http.MethodGet, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", nil, map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("expected fresh page after public reply, got %d", w.Code)
	}
}

func TestSyncTicketMessages_InternalHiddenFromCustomer(t *testing.T) {
	r, _ := newAPI(t)
	tk := createTicketVia(t, r, "cust-1", "Broken checkout")

	w := doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/messages", "admin-7", "admin", PostMessageRequest{
		Content:    "internal triage note",
		IsInternal: true,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("internal note: %d", w.Code)
	}

	w = doReq(t, r, http.MethodGet, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", nil, nil)
	var custView services.SyncResponse
	decodeJSON(t, w, &custView)
	for _, m := range custView.Messages {
		if m.IsInternal {
			t.Fatalf("internal message leaked to customer: %+v", m)
		}
	}

	w = doReq(t, r, http.MethodGet, "/tickets/"+tk.ID+"/messages", "admin-7", "admin", nil, nil)
	var adminView services.SyncResponse
	decodeJSON(t, w, &adminView)
	if len(adminView.Messages) != len(custView.Messages)+1 {
		t.Fatalf("admin should see one extra message: %d vs %d", len(adminView.Messages), len(custView.Messages))
	}
}

func TestMarkTicketRead_FlowAndValidation(t *testing.T) {
	r, _ := newAPI(t)
	tk := createTicketVia(t, r, "cust-1", "Broken checkout")

	// The system opening message counts as unread.
	w := doReq(t, r, http.MethodGet, "/tickets/"+tk.ID+"/messages", "cust-1", "customer", nil, nil)
	var resp services.SyncResponse
	decodeJSON(t, w, &resp)
	if resp.UnreadCount != 1 {
		t.Fatalf("expected 1 unread, got %d", resp.UnreadCount)
	}

	w = doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/read", "cust-1", "customer", MarkReadRequest{UpToSeq: resp.NextCursor}, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("mark read: %d (%s)", w.Code, w.Body.String())
	}

	w = doReq(t, r, http.MethodGet, "/tickets/"+tk.ID+"/messages?cursor=1", "cust-1", "customer", nil, nil)
	decodeJSON(t, w, &resp)
	if resp.UnreadCount != 0 {
		t.Fatalf("unread not cleared: %d", resp.UnreadCount)
	}

	// Watermark payload must be positive.
	w = doReq(t, r, http.MethodPost, "/tickets/"+tk.ID+"/read", "cust-1", "customer", MarkReadRequest{UpToSeq: 0}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("zero watermark: %d", w.Code)
	}
}

func Test_sanitizeContent(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain", "plain"},
		{"  padded \n", "padded"},
		{"a\r\nb\rc", "a\nb\nc"},
		{"p1\n\n\n\n\np2", "p1\n\np2"},
		{" \n\t ", ""},
	}
	for _, tc := range cases {
		if got := sanitizeContent(tc.in); got != tc.want {
			t.Fatalf("sanitizeContent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
