package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nxtoffice/checkinbot/internal/action"
	"github.com/nxtoffice/checkinbot/internal/models"
)

// Schedule statuses written to the record store.
const (
	scheduleStatusProposed  = "proposed"
	scheduleStatusConfirmed = "confirmed"
	scheduleStatusDeclined  = "declined"
)

// runSchedule is the initiator side: a name lookup resolves to zero, one, or
// many candidates. One candidate proceeds directly; many renders a pick
// control and parks the selection until a schedule-pick activation; zero is
// terminal.
func (e *Engine) runSchedule(ctx context.Context, channelID, initiatorID, name, date string) {
	slog.Info("Schedule requested", "initiatorID", initiatorID, "name", name, "date", date)

	candidates, err := e.records.FindUsers(ctx, name)
	if err != nil {
		slog.Error("Schedule name lookup failed", "error", err, "name", name)
		e.send(ctx, channelID, "Couldn't reach the record service. Please reissue the command.")
		return
	}

	switch len(candidates) {
	case 0:
		e.send(ctx, channelID, fmt.Sprintf("No registered user matches **%s**.", name))
	case 1:
		e.proposeVisit(ctx, channelID, candidates[0], date)
	default:
		e.offerSelection(ctx, channelID, initiatorID, candidates, date)
	}
}

// offerSelection renders one button per candidate, grouped into fixed-size
// rows in lookup order, and parks the selection keyed by the rendered
// message's ID.
func (e *Engine) offerSelection(ctx context.Context, channelID, initiatorID string, candidates []models.Candidate, date string) {
	buttons := make([]models.Button, 0, len(candidates))
	for _, c := range candidates {
		buttons = append(buttons, models.Button{
			Label: c.Name,
			Token: action.MustEncode(action.KindSchedulePick, c.UserID),
		})
	}
	body := fmt.Sprintf("%d users match. Who should visit on **%s**?", len(candidates), date)
	messageID, err := e.svc.SendMessageWithButtons(ctx, channelID, body, buttons)
	if err != nil {
		slog.Error("Schedule selection render failed", "error", err, "channelID", channelID)
		e.send(ctx, channelID, "Couldn't show the candidate list. Please reissue the command.")
		return
	}
	e.pending.PutSelection(models.ScheduleSelection{
		MessageID:   messageID,
		InitiatorID: initiatorID,
		Candidates:  candidates,
		Date:        date,
	})
}

// handleSchedulePick resumes a parked multi-match selection. The selection is
// consumed exactly once, and only by its initiator: a pick by anyone else
// leaves it in place, and a second initiator pick reports not found.
func (e *Engine) handleSchedulePick(ctx context.Context, act models.Activation, pickedID string) {
	sel, err := e.pending.TakeSelectionBy(act.MessageID, act.UserID)
	if errors.Is(err, models.ErrPermissionDenied) {
		e.ack(ctx, act, "Only the person who issued the command can pick a candidate.", true)
		return
	}
	if err != nil {
		e.ack(ctx, act, "That selection was already used or has expired. Please reissue the command.", true)
		return
	}

	var picked *models.Candidate
	for i := range sel.Candidates {
		if sel.Candidates[i].UserID == pickedID {
			picked = &sel.Candidates[i]
			break
		}
	}
	if picked == nil {
		slog.Warn("Schedule pick not among stored candidates", "pickedID", pickedID, "messageID", act.MessageID)
		e.ack(ctx, act, "That candidate is no longer available. Please reissue the command.", true)
		return
	}

	resolved := fmt.Sprintf("Scheduling **%s** for **%s**.", picked.Name, sel.Date)
	if err := e.svc.UpdateMessage(ctx, act.ChannelID, act.MessageID, resolved, nil); err != nil {
		slog.Warn("Could not clear selection controls", "error", err, "messageID", act.MessageID)
	}
	e.ack(ctx, act, resolved, true)
	e.proposeVisit(ctx, act.ChannelID, *picked, sel.Date)
}

// proposeVisit notifies the target with a confirm/decline control and logs
// the proposal. The proposal itself is carried in the control token; it has no
// table entry because its lifetime is exactly until the addressee responds.
func (e *Engine) proposeVisit(ctx context.Context, channelID string, target models.Candidate, date string) {
	dm, err := e.svc.OpenDM(ctx, target.UserID)
	if err != nil {
		slog.Error("Schedule could not open DM with target", "error", err, "targetID", target.UserID)
		e.send(ctx, channelID, fmt.Sprintf("Couldn't message **%s**. Please reissue the command.", target.Name))
		return
	}

	body := fmt.Sprintf("📅 You are scheduled for an office visit on **%s**. Can you make it?", date)
	buttons := []models.Button{
		{Label: "Confirm", Token: action.MustEncode(action.KindScheduleConfirm, target.UserID, date)},
		{Label: "Decline", Token: action.MustEncode(action.KindScheduleDecline, target.UserID, date)},
	}
	if _, err := e.svc.SendMessageWithButtons(ctx, dm, body, buttons); err != nil {
		slog.Error("Schedule proposal send failed", "error", err, "targetID", target.UserID)
		e.send(ctx, channelID, fmt.Sprintf("Couldn't message **%s**. Please reissue the command.", target.Name))
		return
	}

	if err := e.records.LogSchedule(ctx, target.UserID, date, scheduleStatusProposed, ""); err != nil {
		slog.Error("Schedule logSchedule failed", "error", err, "targetID", target.UserID)
		e.send(ctx, channelID, fmt.Sprintf("**%s** was notified, but the schedule could not be recorded. Please reissue the command.", target.Name))
		return
	}

	e.record(target.UserID, models.ReceiptSent, "visit proposed for "+date)
	e.send(ctx, channelID, fmt.Sprintf("Proposed an office visit to **%s** on **%s**.", target.Name, date))
}

// handleScheduleConfirm is the addressee side's direct acknowledgment.
func (e *Engine) handleScheduleConfirm(ctx context.Context, act models.Activation, userID, date string) {
	if act.UserID != userID {
		e.ack(ctx, act, "Only the scheduled person can respond to this.", true)
		return
	}

	if err := e.records.UpdateScheduleStatus(ctx, userID, date, scheduleStatusConfirmed, ""); err != nil {
		slog.Error("Schedule confirm update failed", "error", err, "userID", userID)
		e.ack(ctx, act, "Couldn't record your confirmation. Please click the button again.", true)
		return
	}

	e.ack(ctx, act, fmt.Sprintf("✅ Confirmed for **%s**. See you at the office!", date), false)
	e.broadcast(ctx, fmt.Sprintf("**%s** confirmed the office visit on **%s**.", act.Username, date))
}

// handleScheduleDecline requires one extra reply-waiter round to collect the
// reason before broadcasting. A timeout here is reported to the addressee and
// never retried.
func (e *Engine) handleScheduleDecline(ctx context.Context, act models.Activation, userID, date string) {
	if act.UserID != userID {
		e.ack(ctx, act, "Only the scheduled person can respond to this.", true)
		return
	}

	e.ack(ctx, act, "Sorry to hear that. Please enter the reason for declining:", false)
	reply, err := e.waiter.Await(ctx, act.ChannelID, userID, e.cfg.ReplyTimeout)
	if err != nil {
		if errors.Is(err, models.ErrReplyTimeout) {
			e.send(ctx, act.ChannelID, "You didn't reply in time. Please click **Decline** again to give a reason.")
		} else {
			slog.Error("Schedule decline reason collection failed", "error", err, "userID", userID)
			e.send(ctx, act.ChannelID, "Something went wrong. Please click **Decline** again.")
		}
		return
	}
	reason := strings.TrimSpace(reply)

	if err := e.records.UpdateScheduleStatus(ctx, userID, date, scheduleStatusDeclined, reason); err != nil {
		slog.Error("Schedule decline update failed", "error", err, "userID", userID)
		e.send(ctx, act.ChannelID, "Couldn't record your response. Please click **Decline** again.")
		return
	}

	e.send(ctx, act.ChannelID, "Your response has been recorded. Thank you.")
	e.broadcast(ctx, fmt.Sprintf("**%s** declined the office visit on **%s**: %s", act.Username, date, reason))
}

// broadcast posts to the fixed notification destination.
func (e *Engine) broadcast(ctx context.Context, body string) {
	if e.cfg.NotifyChannelID == "" {
		slog.Warn("No notify channel configured, dropping broadcast")
		return
	}
	e.send(ctx, e.cfg.NotifyChannelID, body)
}

// runInvite DMs the check-in control to each named user. Approver-only.
func (e *Engine) runInvite(ctx context.Context, msg models.IncomingMessage, names []string) {
	if !e.isApprover(msg.UserID) {
		e.send(ctx, msg.ChannelID, "You don't have permission to invite users.")
		return
	}
	if len(names) == 0 {
		e.send(ctx, msg.ChannelID, "Usage: `!invite <names...>`")
		return
	}

	var invited, missed []string
	for _, name := range names {
		candidates, err := e.records.FindUsers(ctx, name)
		if err != nil {
			slog.Error("Invite lookup failed", "error", err, "name", name)
			e.send(ctx, msg.ChannelID, "Couldn't reach the record service. Please reissue the command.")
			return
		}
		if len(candidates) == 0 {
			missed = append(missed, name)
			continue
		}
		for _, c := range candidates {
			dm, err := e.svc.OpenDM(ctx, c.UserID)
			if err != nil {
				slog.Warn("Invite could not DM user", "error", err, "userID", c.UserID)
				missed = append(missed, c.Name)
				continue
			}
			e.sendCheckInButton(ctx, dm, "You've been invited to check in. Click the button when you arrive at the office.")
			invited = append(invited, c.Name)
		}
	}

	summary := fmt.Sprintf("Invited %d user(s).", len(invited))
	if len(missed) > 0 {
		summary += " Not reached: " + strings.Join(missed, ", ") + "."
	}
	e.send(ctx, msg.ChannelID, summary)
}
