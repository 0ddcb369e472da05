// Package auth defines the engine's boundary to the external identity
// provider and authorization gate. The engine never authenticates users
// itself: a fronting gateway resolves the session and forwards the caller's
// identity, and the gate answers yes/no per action. Everything beyond the
// structural customer/admin visibility rule is delegated here.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/supportdesk/conversation-engine/internal/domain"
	"github.com/supportdesk/conversation-engine/internal/repo"
)

// ErrUnauthenticated is returned when no caller identity can be resolved.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden is returned when the gate denies an action. The message is
// deliberately generic; the reason for a denial never reaches the client.
var ErrForbidden = errors.New("forbidden")

// Identity is the resolved caller: a user id plus its role.
type Identity struct {
	UserID string
	Role   domain.Role
	// Name is a display name forwarded by the gateway, echoed on messages.
	Name string
}

// IsAdmin is a convenience accessor.
func (id Identity) IsAdmin() bool { return id.Role == domain.RoleAdmin }

// Resolver resolves an HTTP request to a caller identity.
type Resolver interface {
	Resolve(r *http.Request) (Identity, error)
}

// Action names passed to the gate.
const (
	ActionRead   = "read"
	ActionSend   = "send"
	ActionManage = "manage"
)

// Gate authorizes an action on a thread for a resolved identity. A denial is
// reported as ErrForbidden; thread-does-not-exist is reported as
// repo.ErrNotFound so missing and invisible threads are indistinguishable.
type Gate interface {
	Can(ctx context.Context, id Identity, action string, threadType domain.ThreadType, threadID string) error
}

// HeaderResolver trusts identity headers set by the fronting gateway
// (X-User-ID, X-User-Role, X-User-Name). It fails with ErrUnauthenticated
// when the user id is missing and defaults the role to customer when the
// role header is absent or unknown.
type HeaderResolver struct{}

// Resolve implements Resolver.
func (HeaderResolver) Resolve(r *http.Request) (Identity, error) {
	uid := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if uid == "" {
		return Identity{}, ErrUnauthenticated
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(r.Header.Get("X-User-Role"))))
	if !role.Valid() {
		role = domain.RoleCustomer
	}
	return Identity{
		UserID: uid,
		Role:   role,
		Name:   strings.TrimSpace(r.Header.Get("X-User-Name")),
	}, nil
}

// OwnershipGate is the default authorization gate: admins may act on any
// thread, customers only on threads they own. It consults the database for
// ownership, mapping misses to repo.ErrNotFound.
type OwnershipGate struct {
	DB *gorm.DB
}

// Can implements Gate.
func (g *OwnershipGate) Can(ctx context.Context, id Identity, action string, threadType domain.ThreadType, threadID string) error {
	if id.UserID == "" {
		return ErrUnauthenticated
	}
	if action == ActionManage && !id.IsAdmin() {
		return ErrForbidden
	}
	if id.IsAdmin() {
		// Existence check only, so handlers still 404 on bogus ids.
		var err error
		switch threadType {
		case domain.ThreadTicket:
			_, err = repo.GetTicket(ctx, g.DB, threadID)
		case domain.ThreadChat:
			_, err = repo.GetChatSession(ctx, g.DB, threadID)
		default:
			err = repo.ErrNotFound
		}
		return err
	}

	// Customers: ownership scoped lookup; a miss is indistinguishable from a
	// missing thread.
	var err error
	switch threadType {
	case domain.ThreadTicket:
		_, err = repo.GetCustomerTicket(ctx, g.DB, threadID, id.UserID)
	case domain.ThreadChat:
		_, err = repo.GetCustomerChatSession(ctx, g.DB, threadID, id.UserID)
	default:
		err = repo.ErrNotFound
	}
	return err
}
