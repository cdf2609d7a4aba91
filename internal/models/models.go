// Package models defines the core data structures for the check-in bot.
//
// It includes the pending-state record types, inbound event types, and the
// sentinel errors shared across modules.
package models

import (
	"errors"
	"time"
)

// Validation constants for input validation
const (
	// MaxNameLength defines the maximum accepted length for a collected full name.
	MaxNameLength = 200
	// MaxReasonLength defines the maximum accepted length for a visit reason.
	MaxReasonLength = 1000
	// ButtonsPerRow defines how many buttons are grouped into one action row.
	ButtonsPerRow = 5
)

// Error variables for better error handling and testability
var (
	// ErrReplyTimeout indicates no reply arrived within the collection window.
	ErrReplyTimeout = errors.New("no reply received within the collection window")
	// ErrCollectorArmed indicates a reply collector is already outstanding for the
	// same channel and user. This is a programming error in the calling flow.
	ErrCollectorArmed = errors.New("reply collector already armed for this channel and user")
	// ErrMalformedAction indicates an action token that does not decode into a
	// known kind with the expected number of fields.
	ErrMalformedAction = errors.New("malformed action token")
	// ErrNotFound indicates a pending record that no longer exists, typically
	// because a concurrent actor consumed it first.
	ErrNotFound = errors.New("pending record not found")
	// ErrVisitPending indicates a check-in attempt while an earlier visit for the
	// same user is still awaiting approval.
	ErrVisitPending = errors.New("a visit for this user is already pending")
	// ErrUpstream indicates a record-store call that failed or returned an
	// unexpected shape.
	ErrUpstream = errors.New("record store request failed")
	// ErrPermissionDenied indicates a command or control activation issued without
	// the required authority.
	ErrPermissionDenied = errors.New("permission denied")
)

// PendingVisit tracks one in-flight office check-in awaiting approval.
// It exists only in process memory; it is written to the record store when an
// approver approves it, and discarded on dismissal or process restart.
type PendingVisit struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Candidate is one user matched by a record-store name lookup.
type Candidate struct {
	UserID string `json:"discordID"`
	Name   string `json:"name"`
}

// ScheduleSelection tracks a multi-match schedule command awaiting the
// initiator's pick. Keyed by the ID of the message carrying the pick buttons;
// consumed at most once.
type ScheduleSelection struct {
	MessageID   string      `json:"message_id"`
	InitiatorID string      `json:"initiator_id"`
	Candidates  []Candidate `json:"candidates"`
	Date        string      `json:"date"`
}

// IncomingMessage represents an inbound text message from the chat transport.
type IncomingMessage struct {
	ChannelID string
	UserID    string
	Username  string
	Body      string
	Time      time.Time
}

// Activation represents an inbound control activation from the chat transport.
// Token is the opaque action token the control carried; MessageID identifies
// the message the control was attached to.
type Activation struct {
	ID        string
	ChannelID string
	MessageID string
	UserID    string
	Username  string
	Token     string
	Time      time.Time
}

// Button describes one interactive control attached to an outbound message.
type Button struct {
	Label string
	Token string
}

// ReceiptStatus describes what a ledger receipt records.
type ReceiptStatus string

const (
	// ReceiptSent records an outbound notification.
	ReceiptSent ReceiptStatus = "sent"
	// ReceiptVisitApproved records a visit approved and logged to the record store.
	ReceiptVisitApproved ReceiptStatus = "visit_approved"
	// ReceiptVisitDismissed records a visit dismissed without logging.
	ReceiptVisitDismissed ReceiptStatus = "visit_dismissed"
	// ReceiptUserRegistered records a completed registration.
	ReceiptUserRegistered ReceiptStatus = "user_registered"
)

// Receipt is one audit-ledger entry. The ledger is diagnostic only; it is not
// a recovery mechanism for pending state.
type Receipt struct {
	ID     string        `json:"id"`
	UserID string        `json:"user_id"`
	Status ReceiptStatus `json:"status"`
	Detail string        `json:"detail,omitempty"`
	Time   int64         `json:"time"`
}

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}
