// Package domain defines the persistence models for support conversations:
// tickets, live chat sessions, their shared message log, and per-viewer read
// marks. These types are mapped with GORM and form the core data layer of the
// conversation engine.
package domain

import (
	"time"
)

// ThreadType discriminates which kind of conversation a message belongs to.
type ThreadType string

const (
	ThreadTicket ThreadType = "ticket"
	ThreadChat   ThreadType = "chat"
)

// SenderType identifies the author class of a message.
type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAdmin    SenderType = "admin"
	SenderSystem   SenderType = "system"
)

// Priority is the urgency classification of a ticket.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Ticket represents a customer support ticket. The ticket number is a
// human-readable identifier assigned at creation and never changed.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - TicketNumber: unique, human-readable reference (e.g. TKT-20260901-4F2A1C).
//   - CustomerID: owner of the ticket; indexed for customer-facing listings.
//   - AssignedAdminID: currently assigned admin, nil while unassigned.
//   - Subject / Description: set at creation, immutable afterwards.
//   - InternalNotes: admin-only free text, mutable (distinct from internal messages).
//   - AssignedAt / ResolvedAt / ClosedAt: each set exactly once on the first
//     matching transition.
type Ticket struct {
	ID              string       `json:"id"                gorm:"type:char(36);primaryKey"`
	TicketNumber    string       `json:"ticket_number"     gorm:"type:varchar(32);not null;uniqueIndex"`
	CustomerID      string       `json:"customer_id"       gorm:"type:varchar(64);not null;index:idx_customer_tickets"`
	AssignedAdminID *string      `json:"assigned_admin_id,omitempty" gorm:"type:varchar(64);index"`
	Subject         string       `json:"subject"           gorm:"type:varchar(255);not null"`
	Description     string       `json:"description"       gorm:"type:text;not null"`
	CategoryID      *string      `json:"category_id,omitempty" gorm:"type:char(36)"`
	Priority        Priority     `json:"priority"          gorm:"type:varchar(16);not null;default:'medium';check:priority IN ('low','medium','high','urgent')"`
	Status          TicketStatus `json:"status"            gorm:"type:varchar(32);not null;index;check:status IN ('open','in_progress','waiting_for_customer','resolved','closed')"`
	InternalNotes   string       `json:"-"                 gorm:"type:text"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	AssignedAt      *time.Time   `json:"assigned_at,omitempty"`
	ResolvedAt      *time.Time   `json:"resolved_at,omitempty"`
	ClosedAt        *time.Time   `json:"closed_at,omitempty"`
}

// TableName returns the database table name for Ticket.
func (Ticket) TableName() string { return "tickets" }

// Closed reports whether the ticket is in its terminal state.
func (t *Ticket) Closed() bool { return t.Status == TicketClosed }

// ChatSession represents a live chat conversation. The session ID doubles as
// the opaque token used by the sync protocol. UpdatedAt tracks the last
// message activity and drives abandonment detection.
type ChatSession struct {
	ID              string     `json:"id"                gorm:"type:char(36);primaryKey"`
	CustomerID      string     `json:"customer_id"       gorm:"type:varchar(64);not null;index:idx_customer_sessions"`
	AssignedAdminID *string    `json:"assigned_admin_id,omitempty" gorm:"type:varchar(64);index"`
	Subject         string     `json:"subject"           gorm:"type:varchar(255)"`
	Status          ChatStatus `json:"status"            gorm:"type:varchar(16);not null;index;check:status IN ('active','ended','abandoned')"`
	CreatedAt       time.Time  `json:"started_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// TableName returns the database table name for ChatSession.
func (ChatSession) TableName() string { return "chat_sessions" }

// Active reports whether the session still accepts messages.
func (s *ChatSession) Active() bool { return s.Status == ChatActive }

// Attachment describes a file referenced by a message. Attachments are stored
// inline as a JSON column; upload and storage of the blobs themselves is
// outside this service.
type Attachment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// Message is a single entry in a conversation's append-only log. Messages are
// immutable once created; moderation is expressed as a new system message,
// never as an edit or delete.
//
// Seq is a dense per-thread sequence assigned at append time. For a fixed
// ThreadID it is a strict total order equal to creation order, and it is the
// cursor unit of the sync protocol.
type Message struct {
	ID          string       `json:"id"           gorm:"type:char(36);primaryKey"`
	ThreadID    string       `json:"thread_id"    gorm:"type:char(36);not null;uniqueIndex:ux_thread_seq,priority:1"`
	ThreadType  ThreadType   `json:"thread_type"  gorm:"type:varchar(8);not null;check:thread_type IN ('ticket','chat')"`
	Seq         int64        `json:"seq"          gorm:"not null;uniqueIndex:ux_thread_seq,priority:2"`
	SenderType  SenderType   `json:"sender_type"  gorm:"type:varchar(16);not null;check:sender_type IN ('customer','admin','system')"`
	SenderID    *string      `json:"sender_id,omitempty" gorm:"type:varchar(64)"`
	SenderName  string       `json:"sender_name"  gorm:"type:varchar(128)"`
	Content     string       `json:"content"      gorm:"type:text;not null"`
	IsInternal  bool         `json:"is_internal"  gorm:"not null;default:false"`
	Attachments []Attachment `json:"attachments,omitempty" gorm:"serializer:json"`
	CreatedAt   time.Time    `json:"created_at"`
	ReadAt      *time.Time   `json:"read_at,omitempty"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// ReadMark records how far a viewer has read within a thread. LastReadSeq is
// a monotonic watermark; updates that would lower it are ignored.
type ReadMark struct {
	ID          string    `json:"id"            gorm:"type:char(36);primaryKey"`
	ThreadID    string    `json:"thread_id"     gorm:"type:char(36);not null;uniqueIndex:ux_readmark_thread_user,priority:1"`
	UserID      string    `json:"user_id"       gorm:"type:varchar(64);not null;uniqueIndex:ux_readmark_thread_user,priority:2"`
	LastReadSeq int64     `json:"last_read_seq" gorm:"not null;default:0"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the database table name for ReadMark.
func (ReadMark) TableName() string { return "read_marks" }
