// Package store provides the audit-ledger backends for the check-in bot.
//
// The ledger records outbound notifications and completed registrations,
// approvals, and dismissals for diagnostics via the status API. It is not a
// recovery mechanism: in-flight conversational state lives only in the
// pending store and is deliberately lost on restart.
package store

import (
	"sync"

	"github.com/google/uuid"
	"github.com/nxtoffice/checkinbot/internal/models"
)

// Store defines the ledger interface shared by all backends.
type Store interface {
	// AddReceipt appends one ledger entry. An empty ID is filled in.
	AddReceipt(r models.Receipt) error
	// Receipts returns all ledger entries, oldest first.
	Receipts() ([]models.Receipt, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options shared by the database-backed stores.
type Opts struct {
	// DSN is the database connection string.
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// InMemoryStore is the default ledger backend when no database is configured.
type InMemoryStore struct {
	mu       sync.Mutex
	receipts []models.Receipt
}

// NewInMemoryStore creates an empty in-memory ledger.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// AddReceipt appends one ledger entry.
func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

// Receipts returns all ledger entries, oldest first.
func (s *InMemoryStore) Receipts() ([]models.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Receipt, len(s.receipts))
	copy(out, s.receipts)
	return out, nil
}

// Close is a no-op for the in-memory ledger.
func (s *InMemoryStore) Close() error { return nil }
