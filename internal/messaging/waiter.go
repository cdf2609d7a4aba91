package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nxtoffice/checkinbot/internal/models"
)

// collectorKey identifies one outstanding reply collector.
type collectorKey struct {
	channelID string
	userID    string
}

// Waiter suspends a workflow step until the addressed user sends the next
// message in a channel, or a timeout elapses. At most one collector may be
// armed per (channel, user); arming a second is a programming error in the
// calling flow and fails with models.ErrCollectorArmed rather than silently
// replacing the first.
type Waiter struct {
	mu         sync.Mutex
	collectors map[collectorKey]chan string
}

// NewWaiter creates a Waiter with no armed collectors.
func NewWaiter() *Waiter {
	return &Waiter{collectors: make(map[collectorKey]chan string)}
}

// Await blocks until one message from userID arrives in channelID, the timeout
// elapses (models.ErrReplyTimeout), or ctx is cancelled. Waits for distinct
// (channel, user) pairs are independent.
func (w *Waiter) Await(ctx context.Context, channelID, userID string, timeout time.Duration) (string, error) {
	key := collectorKey{channelID: channelID, userID: userID}

	w.mu.Lock()
	if _, exists := w.collectors[key]; exists {
		w.mu.Unlock()
		slog.Error("Waiter Await refused, collector already armed", "channelID", channelID, "userID", userID)
		return "", fmt.Errorf("await reply for user %s in channel %s: %w", userID, channelID, models.ErrCollectorArmed)
	}
	ch := make(chan string, 1)
	w.collectors[key] = ch
	w.mu.Unlock()

	slog.Debug("Waiter armed", "channelID", channelID, "userID", userID, "timeout", timeout)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case text := <-ch:
		slog.Debug("Waiter resolved", "channelID", channelID, "userID", userID)
		return text, nil
	case <-timer.C:
		w.disarm(key)
		// A delivery may have slipped in between timer fire and disarm.
		select {
		case text := <-ch:
			slog.Debug("Waiter resolved at timeout boundary", "channelID", channelID, "userID", userID)
			return text, nil
		default:
		}
		slog.Info("Waiter timed out", "channelID", channelID, "userID", userID, "timeout", timeout)
		return "", models.ErrReplyTimeout
	case <-ctx.Done():
		w.disarm(key)
		slog.Debug("Waiter cancelled", "channelID", channelID, "userID", userID, "error", ctx.Err())
		return "", ctx.Err()
	}
}

// Deliver offers an inbound message to the matching collector, if one is
// armed. It reports whether the message was claimed; unclaimed messages fall
// through to command dispatch. The collector is removed before the message is
// handed over, so exactly one message resolves each wait.
func (w *Waiter) Deliver(msg models.IncomingMessage) bool {
	key := collectorKey{channelID: msg.ChannelID, userID: msg.UserID}

	w.mu.Lock()
	ch, ok := w.collectors[key]
	if ok {
		delete(w.collectors, key)
	}
	w.mu.Unlock()

	if !ok {
		return false
	}
	ch <- msg.Body
	slog.Debug("Waiter delivered reply", "channelID", msg.ChannelID, "userID", msg.UserID)
	return true
}

// Armed reports whether a collector is outstanding for the pair.
func (w *Waiter) Armed(channelID, userID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.collectors[collectorKey{channelID: channelID, userID: userID}]
	return ok
}

func (w *Waiter) disarm(key collectorKey) {
	w.mu.Lock()
	delete(w.collectors, key)
	w.mu.Unlock()
}
