package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/supportdesk/conversation-engine/internal/auth"
	"github.com/supportdesk/conversation-engine/internal/domain"
)

func TestAuthenticate_MissingIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Authenticate(auth.HeaderResolver{}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["code"] != "unauthorized" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAuthenticate_StashesIdentityAndUserID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var id auth.Identity
	var ok bool
	var uid any

	r := gin.New()
	r.Use(Authenticate(auth.HeaderResolver{}))
	r.GET("/", func(c *gin.Context) {
		id, ok = IdentityFrom(c)
		uid, _ = c.Get("userID")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("X-User-Role", "admin")
	req.Header.Set("X-User-Name", "Bob")
	r.ServeHTTP(w, req)

	if !ok {
		t.Fatalf("identity not stashed")
	}
	if id.UserID != "u1" || id.Role != domain.RoleAdmin || id.Name != "Bob" {
		t.Fatalf("unexpected identity: %+v", id)
	}
	if uid != "u1" {
		t.Fatalf("userID not stashed: %v", uid)
	}
}

func TestAuthenticate_UnknownRoleDefaultsToCustomer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var id auth.Identity

	r := gin.New()
	r.Use(Authenticate(auth.HeaderResolver{}))
	r.GET("/", func(c *gin.Context) {
		id, _ = IdentityFrom(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("X-User-Role", "superuser")
	r.ServeHTTP(w, req)

	if id.Role != domain.RoleCustomer {
		t.Fatalf("unknown role should default to customer, got %s", id.Role)
	}
}

func TestRequireAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Authenticate(auth.HeaderResolver{}), RequireAdmin())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(role string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User-ID", "u1")
		req.Header.Set("X-User-Role", role)
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("customer"); code != http.StatusForbidden {
		t.Fatalf("customer: expected 403, got %d", code)
	}
	if code := do("admin"); code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", code)
	}
}

func TestIdentityFrom_Absent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := IdentityFrom(c); ok {
		t.Fatalf("expected no identity on a bare context")
	}
}
