package domain

// Role is the viewer class resolved by the identity provider. The engine only
// distinguishes customers from admins; finer-grained admin permissions live
// behind the authorization gate.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleCustomer || r == RoleAdmin }

// FilterVisible returns the messages a viewer with the given role may see.
// Customers never see internal messages; admins see everything. The function
// is pure and must be applied on every read path that can reach a customer,
// including error and fallback paths.
func FilterVisible(msgs []Message, role Role) []Message {
	if role == RoleAdmin {
		return msgs
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsInternal {
			continue
		}
		out = append(out, m)
	}
	return out
}

// CountsAsUnreadFor reports whether a message should contribute to the unread
// count of a viewer with the given role. A viewer's own side never counts:
// customer messages are not unread for customers, admin messages are not
// unread for admins. System messages count for both sides.
func (m *Message) CountsAsUnreadFor(role Role) bool {
	switch m.SenderType {
	case SenderCustomer:
		return role != RoleCustomer
	case SenderAdmin:
		return role != RoleAdmin
	default:
		return true
	}
}
