package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nxtoffice/checkinbot/internal/models"
)

func scheduleCommand(body string) models.IncomingMessage {
	return models.IncomingMessage{ChannelID: "guild-ch", UserID: "boss", Username: "boss", Body: body}
}

func TestScheduleNoMatch(t *testing.T) {
	te := newTestEngine(t, Config{})
	te.engine.HandleMessage(context.Background(), scheduleCommand("!schedule Nobody on 02/10/26"))

	if !containsBody(te.svc.Sent(), "No registered user matches") {
		t.Error("zero matches must be reported as terminal")
	}
	if len(te.records.scheduleLogs) != 0 {
		t.Error("no schedule must be logged without a match")
	}
}

func TestScheduleSingleMatchProposesDirectly(t *testing.T) {
	te := newTestEngine(t, Config{})
	te.records.findUsersResult["Alice"] = []models.Candidate{{UserID: "u1", Name: "Alice"}}

	te.engine.HandleMessage(context.Background(), scheduleCommand("!schedule Alice on 02/10/26"))

	// The target got a confirm/decline control in their DM.
	proposed := false
	for _, s := range te.svc.Sent() {
		if s.ChannelID == "dm-u1" && len(s.Buttons) == 2 {
			proposed = true
			if s.Buttons[0].Token != "schedule-confirm|u1|02/10/26" {
				t.Errorf("confirm token = %q", s.Buttons[0].Token)
			}
			if s.Buttons[1].Token != "schedule-decline|u1|02/10/26" {
				t.Errorf("decline token = %q", s.Buttons[1].Token)
			}
		}
	}
	if !proposed {
		t.Fatal("target was not sent a confirm/decline control")
	}

	logs := te.records.scheduleLogs
	if len(logs) != 1 || logs[0].UserID != "u1" || logs[0].Date != "02/10/26" || logs[0].Status != "proposed" {
		t.Errorf("unexpected schedule logs: %+v", logs)
	}
}

func TestScheduleMultiMatchSelection(t *testing.T) {
	te := newTestEngine(t, Config{})
	te.records.findUsersResult["Ali"] = []models.Candidate{
		{UserID: "u1", Name: "Alice"},
		{UserID: "u2", Name: "Alina"},
		{UserID: "u3", Name: "Ali"},
	}

	te.engine.HandleMessage(context.Background(), scheduleCommand("!schedule Ali on 02/10/26"))

	// Exactly one button per candidate, in lookup order.
	var selection models.Button
	found := false
	var msgButtons []models.Button
	for _, s := range te.svc.Sent() {
		if len(s.Buttons) == 3 {
			found = true
			msgButtons = s.Buttons
			selection = s.Buttons[0]
		}
	}
	if !found {
		t.Fatal("selection control with 3 buttons not rendered")
	}
	if selection.Label != "Alice" || selection.Token != "schedule-pick|u1" {
		t.Errorf("first pick button = %+v", selection)
	}
	if msgButtons[2].Token != "schedule-pick|u3" {
		t.Errorf("third pick button token = %q", msgButtons[2].Token)
	}

	// Nothing proposed yet; resolution continues asynchronously.
	if len(te.records.scheduleLogs) != 0 {
		t.Error("multi-match must not log a schedule before the pick")
	}

	// The selection is parked under the rendered message's ID (mock issues msg-1).
	pick := models.Activation{
		ID: "i2", ChannelID: "guild-ch", MessageID: "msg-1",
		UserID: "boss", Username: "boss", Token: "schedule-pick|u2",
	}
	te.engine.HandleActivation(context.Background(), pick)

	logs := te.records.scheduleLogs
	if len(logs) != 1 || logs[0].UserID != "u2" || logs[0].Status != "proposed" {
		t.Fatalf("pick did not propose to the chosen candidate: %+v", logs)
	}

	// Reselection on the same control fails as not found.
	te.engine.HandleActivation(context.Background(), pick)
	if len(te.records.scheduleLogs) != 1 {
		t.Error("a consumed selection must not propose again")
	}
	if !containsBody(te.svc.Sent(), "already used") {
		t.Error("reselection must be reported as no longer available")
	}
}

func TestSchedulePickAcknowledgesClick(t *testing.T) {
	te := newTestEngine(t, Config{})
	te.records.findUsersResult["Ali"] = []models.Candidate{
		{UserID: "u1", Name: "Alice"},
		{UserID: "u2", Name: "Alina"},
	}
	te.engine.HandleMessage(context.Background(), scheduleCommand("!schedule Ali on 02/10/26"))

	te.engine.HandleActivation(context.Background(), models.Activation{
		ID: "i2", ChannelID: "guild-ch", MessageID: "msg-1",
		UserID: "boss", Username: "boss", Token: "schedule-pick|u2",
	})

	// A successful pick must answer the activation itself, not only edit the
	// selection message.
	acked := false
	for _, s := range te.svc.Sent() {
		if s.Ephemeral && strings.Contains(s.Body, "Scheduling **Alina**") {
			acked = true
		}
	}
	if !acked {
		t.Error("a successful pick must acknowledge the activation")
	}
}

func TestSchedulePickRestrictedToInitiator(t *testing.T) {
	te := newTestEngine(t, Config{})
	te.records.findUsersResult["Ali"] = []models.Candidate{
		{UserID: "u1", Name: "Alice"},
		{UserID: "u2", Name: "Alina"},
	}
	te.engine.HandleMessage(context.Background(), scheduleCommand("!schedule Ali on 02/10/26"))

	te.engine.HandleActivation(context.Background(), models.Activation{
		ID: "i2", ChannelID: "guild-ch", MessageID: "msg-1",
		UserID: "bystander", Username: "bystander", Token: "schedule-pick|u1",
	})
	if len(te.records.scheduleLogs) != 0 {
		t.Error("a non-initiator pick must not propose")
	}

	// The selection survives for the initiator.
	te.engine.HandleActivation(context.Background(), models.Activation{
		ID: "i3", ChannelID: "guild-ch", MessageID: "msg-1",
		UserID: "boss", Username: "boss", Token: "schedule-pick|u1",
	})
	if len(te.records.scheduleLogs) != 1 {
		t.Error("the initiator's pick must still resolve after a denied pick")
	}
}

func TestScheduleShorthandInScheduleChannel(t *testing.T) {
	te := newTestEngine(t, Config{ScheduleChannelID: "sched-ch"})
	te.records.findUsersResult["Alice"] = []models.Candidate{{UserID: "u1", Name: "Alice"}}

	te.engine.HandleMessage(context.Background(), models.IncomingMessage{
		ChannelID: "sched-ch", UserID: "boss", Username: "boss", Body: "Alice 02/10/26",
	})
	if len(te.records.scheduleLogs) != 1 {
		t.Fatalf("shorthand did not schedule: %+v", te.records.scheduleLogs)
	}

	// The shorthand is scoped: the same text elsewhere is ignored.
	te.engine.HandleMessage(context.Background(), models.IncomingMessage{
		ChannelID: "other-ch", UserID: "boss", Username: "boss", Body: "Alice 02/10/26",
	})
	if len(te.records.scheduleLogs) != 1 {
		t.Error("shorthand must only apply in the schedule channel")
	}
}

func TestScheduleConfirmBroadcasts(t *testing.T) {
	te := newTestEngine(t, Config{})
	te.engine.HandleActivation(context.Background(), models.Activation{
		ID: "i1", ChannelID: "dm-u1", UserID: "u1", Username: "alice",
		Token: "schedule-confirm|u1|02/10/26",
	})

	updates := te.records.statusUpdates
	if len(updates) != 1 || updates[0].Status != "confirmed" || updates[0].UserID != "u1" {
		t.Fatalf("unexpected status updates: %+v", updates)
	}
	broadcast := false
	for _, s := range te.svc.Sent() {
		if s.ChannelID == "notify" {
			broadcast = true
		}
	}
	if !broadcast {
		t.Error("confirmation must be broadcast to the notification channel")
	}
}

func TestScheduleConfirmRejectsOtherUsers(t *testing.T) {
	te := newTestEngine(t, Config{})
	te.engine.HandleActivation(context.Background(), models.Activation{
		ID: "i1", ChannelID: "dm-u1", UserID: "someone-else", Username: "x",
		Token: "schedule-confirm|u1|02/10/26",
	})
	if len(te.records.statusUpdates) != 0 {
		t.Error("only the addressee may confirm")
	}
}

func TestScheduleDeclineCollectsReason(t *testing.T) {
	te := newTestEngine(t, Config{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		te.engine.HandleActivation(context.Background(), models.Activation{
			ID: "i1", ChannelID: "dm-u1", UserID: "u1", Username: "alice",
			Token: "schedule-decline|u1|02/10/26",
		})
	}()

	waitFor(t, func() bool { return te.waiter.Armed("dm-u1", "u1") })
	te.reply("dm-u1", "u1", "on vacation")
	<-done

	updates := te.records.statusUpdates
	if len(updates) != 1 || updates[0].Status != "declined" || updates[0].Notes != "on vacation" {
		t.Fatalf("unexpected status updates: %+v", updates)
	}
	broadcast := false
	for _, s := range te.svc.Sent() {
		if s.ChannelID == "notify" {
			broadcast = true
		}
	}
	if !broadcast {
		t.Error("decline must be broadcast with its reason")
	}
}

func TestScheduleDeclineTimeoutReported(t *testing.T) {
	te := newTestEngine(t, Config{ReplyTimeout: 30 * time.Millisecond})
	done := make(chan struct{})
	go func() {
		defer close(done)
		te.engine.HandleActivation(context.Background(), models.Activation{
			ID: "i1", ChannelID: "dm-u1", UserID: "u1", Username: "alice",
			Token: "schedule-decline|u1|02/10/26",
		})
	}()
	<-done

	if len(te.records.statusUpdates) != 0 {
		t.Error("timed-out decline must not update the schedule")
	}
	if !containsBody(te.svc.Sent(), "didn't reply in time") {
		t.Error("decline timeout must be reported to the addressee")
	}
}

func TestInviteSendsCheckInButtons(t *testing.T) {
	te := newTestEngine(t, Config{ApproverIDs: []string{"boss"}})
	te.records.findUsersResult["alice"] = []models.Candidate{{UserID: "u1", Name: "Alice"}}

	te.engine.HandleMessage(context.Background(), models.IncomingMessage{
		ChannelID: "guild-ch", UserID: "boss", Username: "boss", Body: "!invite alice ghost",
	})

	buttonSent := false
	for _, s := range te.svc.Sent() {
		if s.ChannelID == "dm-u1" && len(s.Buttons) == 1 && s.Buttons[0].Token == "office-checkin" {
			buttonSent = true
		}
	}
	if !buttonSent {
		t.Error("invited user must receive the check-in control")
	}
	if !containsBody(te.svc.Sent(), "Not reached: ghost") {
		t.Error("unmatched names must be reported to the issuer")
	}
}

func TestInviteRequiresApprover(t *testing.T) {
	te := newTestEngine(t, Config{ApproverIDs: []string{"boss"}})
	te.engine.HandleMessage(context.Background(), models.IncomingMessage{
		ChannelID: "guild-ch", UserID: "intruder", Username: "intruder", Body: "!invite alice",
	})
	if !containsBody(te.svc.Sent(), "permission") {
		t.Error("non-approver invite must be denied")
	}
}
