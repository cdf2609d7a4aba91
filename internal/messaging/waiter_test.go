package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nxtoffice/checkinbot/internal/models"
)

func TestAwaitReceivesDeliveredReply(t *testing.T) {
	w := NewWaiter()
	done := make(chan struct{})
	var got string
	var gotErr error
	go func() {
		defer close(done)
		got, gotErr = w.Await(context.Background(), "ch1", "u1", time.Second)
	}()

	// Wait for the collector to be armed before delivering.
	waitUntil(t, func() bool { return w.Armed("ch1", "u1") })
	if claimed := w.Deliver(models.IncomingMessage{ChannelID: "ch1", UserID: "u1", Body: "hello"}); !claimed {
		t.Fatal("Deliver did not claim the message")
	}
	<-done
	if gotErr != nil {
		t.Fatalf("Await returned error: %v", gotErr)
	}
	if got != "hello" {
		t.Errorf("Await returned %q, want %q", got, "hello")
	}
	if w.Armed("ch1", "u1") {
		t.Error("collector still armed after delivery")
	}
}

func TestAwaitTimesOut(t *testing.T) {
	w := NewWaiter()
	start := time.Now()
	_, err := w.Await(context.Background(), "ch1", "u1", 20*time.Millisecond)
	if !errors.Is(err, models.ErrReplyTimeout) {
		t.Fatalf("Await error = %v, want ErrReplyTimeout", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Await took far longer than its timeout")
	}
	if w.Armed("ch1", "u1") {
		t.Error("collector still armed after timeout")
	}
}

func TestAwaitSecondCollectorRefused(t *testing.T) {
	w := NewWaiter()
	release := make(chan struct{})
	go func() {
		_, _ = w.Await(context.Background(), "ch1", "u1", time.Second)
		close(release)
	}()
	waitUntil(t, func() bool { return w.Armed("ch1", "u1") })

	_, err := w.Await(context.Background(), "ch1", "u1", time.Second)
	if !errors.Is(err, models.ErrCollectorArmed) {
		t.Errorf("second Await error = %v, want ErrCollectorArmed", err)
	}

	w.Deliver(models.IncomingMessage{ChannelID: "ch1", UserID: "u1", Body: "done"})
	<-release
}

func TestAwaitIndependentKeys(t *testing.T) {
	w := NewWaiter()
	type result struct {
		text string
		err  error
	}
	results := make(chan result, 2)
	for _, userID := range []string{"u1", "u2"} {
		go func(id string) {
			text, err := w.Await(context.Background(), "ch-"+id, id, time.Second)
			results <- result{text, err}
		}(userID)
	}
	waitUntil(t, func() bool { return w.Armed("ch-u1", "u1") && w.Armed("ch-u2", "u2") })

	w.Deliver(models.IncomingMessage{ChannelID: "ch-u2", UserID: "u2", Body: "second"})
	w.Deliver(models.IncomingMessage{ChannelID: "ch-u1", UserID: "u1", Body: "first"})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("Await returned error: %v", r.err)
		}
		seen[r.text] = true
	}
	if !seen["first"] || !seen["second"] {
		t.Errorf("replies crossed wires: %v", seen)
	}
}

func TestDeliverUnclaimedWhenNoCollector(t *testing.T) {
	w := NewWaiter()
	if w.Deliver(models.IncomingMessage{ChannelID: "ch1", UserID: "u1", Body: "stray"}) {
		t.Error("Deliver claimed a message with no collector armed")
	}
}

func TestAwaitCancelled(t *testing.T) {
	w := NewWaiter()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := w.Await(ctx, "ch1", "u1", time.Minute)
		errCh <- err
	}()
	waitUntil(t, func() bool { return w.Armed("ch1", "u1") })
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Await error = %v, want context.Canceled", err)
	}
}

// waitUntil polls cond briefly, failing the test if it never becomes true.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
