// Package pending provides the process-lifetime store for in-flight workflow
// records: visits awaiting approval and schedule selections awaiting a pick.
//
// Entries live until consumed; there is no eviction and no persistence. A
// process restart abandons everything here, which is the intended contract.
package pending

import (
	"log/slog"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/nxtoffice/checkinbot/internal/models"
)

// Store holds all pending workflow records. Individual operations are
// serialized; no operation spans more than one key.
type Store struct {
	mu         sync.Mutex
	visits     *orderedmap.OrderedMap[string, models.PendingVisit]
	selections map[string]models.ScheduleSelection
}

// NewStore creates an empty pending-state store.
func NewStore() *Store {
	slog.Debug("Creating pending state store")
	return &Store{
		visits:     orderedmap.NewOrderedMap[string, models.PendingVisit](),
		selections: make(map[string]models.ScheduleSelection),
	}
}

// PutVisit records a new pending visit for a user. A second check-in while one
// is still pending is rejected with models.ErrVisitPending.
func (s *Store) PutVisit(userID, displayName string) (models.PendingVisit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.visits.Get(userID); ok {
		slog.Debug("Pending PutVisit rejected, visit already pending", "userID", userID, "createdAt", existing.CreatedAt)
		return existing, models.ErrVisitPending
	}
	visit := models.PendingVisit{
		UserID:      userID,
		DisplayName: displayName,
		CreatedAt:   time.Now(),
	}
	s.visits.Set(userID, visit)
	slog.Debug("Pending PutVisit stored", "userID", userID, "displayName", displayName)
	return visit, nil
}

// AttachReason sets the reason on an existing pending visit. Returns
// models.ErrNotFound if the visit was removed while the reason was collected.
func (s *Store) AttachReason(userID, reason string) (models.PendingVisit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	visit, ok := s.visits.Get(userID)
	if !ok {
		return models.PendingVisit{}, models.ErrNotFound
	}
	visit.Reason = reason
	s.visits.Set(userID, visit)
	slog.Debug("Pending AttachReason", "userID", userID)
	return visit, nil
}

// GetVisit returns the pending visit for a user, if any.
func (s *Store) GetVisit(userID string) (models.PendingVisit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits.Get(userID)
	return v, ok
}

// RemoveVisit removes and returns the pending visit for a user. Removing an
// absent key reports ok=false; two racing approvers see exactly one success.
func (s *Store) RemoveVisit(userID string) (models.PendingVisit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.visits.Get(userID)
	if !ok {
		slog.Debug("Pending RemoveVisit miss", "userID", userID)
		return models.PendingVisit{}, false
	}
	s.visits.Delete(userID)
	slog.Debug("Pending RemoveVisit", "userID", userID)
	return v, true
}

// Visits returns all pending visits in insertion order.
func (s *Store) Visits() []models.PendingVisit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PendingVisit, 0, s.visits.Len())
	for _, v := range s.visits.AllFromFront() {
		out = append(out, v)
	}
	return out
}

// VisitCount returns the number of pending visits.
func (s *Store) VisitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visits.Len()
}

// PutSelection stores a schedule selection keyed by the ID of the message
// carrying its pick buttons.
func (s *Store) PutSelection(sel models.ScheduleSelection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections[sel.MessageID] = sel
	slog.Debug("Pending PutSelection", "messageID", sel.MessageID, "candidates", len(sel.Candidates))
}

// TakeSelectionBy removes and returns the selection for a message ID, but only
// when userID is its initiator. The selection is consumed exactly once: a
// second take for the same ID gets models.ErrNotFound. A wrong user leaves the
// selection in place and gets models.ErrPermissionDenied.
func (s *Store) TakeSelectionBy(messageID, userID string) (models.ScheduleSelection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.selections[messageID]
	if !ok {
		slog.Debug("Pending TakeSelectionBy miss", "messageID", messageID)
		return models.ScheduleSelection{}, models.ErrNotFound
	}
	if sel.InitiatorID != userID {
		slog.Debug("Pending TakeSelectionBy denied", "messageID", messageID, "userID", userID)
		return models.ScheduleSelection{}, models.ErrPermissionDenied
	}
	delete(s.selections, messageID)
	slog.Debug("Pending TakeSelectionBy", "messageID", messageID)
	return sel, nil
}
