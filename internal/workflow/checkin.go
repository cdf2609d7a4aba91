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

// runCheckIn handles an office-checkin activation. The pending visit is
// created before the reason prompt, so a duplicate activation is rejected
// while one is in flight, and the approval channel is only notified after the
// reason is attached.
func (e *Engine) runCheckIn(ctx context.Context, act models.Activation) {
	userID := act.UserID
	if _, err := e.pending.PutVisit(userID, act.Username); err != nil {
		if errors.Is(err, models.ErrVisitPending) {
			e.ack(ctx, act, "You already have a check-in waiting for approval. An approver will handle it shortly.", true)
			return
		}
		slog.Error("Check-in could not store pending visit", "error", err, "userID", userID)
		e.ack(ctx, act, "Something went wrong. Please click the button again.", true)
		return
	}
	slog.Info("Check-in started", "userID", userID)

	e.ack(ctx, act, "Please enter the reason for your visit:", false)
	reply, err := e.waiter.Await(ctx, act.ChannelID, userID, e.cfg.ReplyTimeout)
	if err != nil {
		// Release the partial state so the next click starts clean.
		e.pending.RemoveVisit(userID)
		if errors.Is(err, models.ErrReplyTimeout) {
			e.send(ctx, act.ChannelID, "You didn't reply in time, so the check-in was cancelled. Please click the button again.")
		} else {
			slog.Error("Check-in reason collection failed", "error", err, "userID", userID)
			e.send(ctx, act.ChannelID, "Something went wrong. Please click the button again.")
		}
		return
	}

	reason := strings.TrimSpace(reply)
	if len(reason) > models.MaxReasonLength {
		reason = reason[:models.MaxReasonLength]
	}
	visit, err := e.pending.AttachReason(userID, reason)
	if err != nil {
		// An approver consumed the visit while the reason was being typed.
		slog.Info("Check-in visit already handled during reason collection", "userID", userID)
		e.send(ctx, act.ChannelID, "Your check-in was already handled by an approver. Thank you!")
		return
	}

	e.notifyApprovers(ctx, visit)
	e.send(ctx, act.ChannelID, "✅ Thanks! Your check-in has been sent for approval.")
}

// notifyApprovers posts the visit to the approval channel with its controls.
func (e *Engine) notifyApprovers(ctx context.Context, visit models.PendingVisit) {
	if e.cfg.ApprovalChannelID == "" {
		slog.Warn("No approval channel configured, skipping notification", "userID", visit.UserID)
		return
	}
	body := fmt.Sprintf("🏢 **%s** is at the office.\nReason: %s", visit.DisplayName, visit.Reason)
	buttons := []models.Button{
		{Label: "Approve", Token: action.MustEncode(action.KindApproveOne, visit.UserID)},
		{Label: "Dismiss", Token: action.MustEncode(action.KindDismissOne, visit.UserID)},
		{Label: "Approve all", Token: action.MustEncode(action.KindApproveAll)},
		{Label: "Review pending", Token: action.MustEncode(action.KindApproveSelect)},
	}
	if _, err := e.svc.SendMessageWithButtons(ctx, e.cfg.ApprovalChannelID, body, buttons); err != nil {
		slog.Error("Failed to notify approval channel", "error", err, "userID", visit.UserID)
		return
	}
	e.record(visit.UserID, models.ReceiptSent, "approval requested: "+visit.Reason)
}

// handleApproveOne approves a single visit by the user ID carried in the
// action. An in-memory hit logs the visit; a miss falls back to the record
// store's unapproved list, and a miss there is reported as already handled,
// which is the tolerated approver race, not a failure.
func (e *Engine) handleApproveOne(ctx context.Context, act models.Activation, userID string) {
	if !e.isApprover(act.UserID) {
		e.ack(ctx, act, "You don't have permission to approve visits.", true)
		return
	}

	visit, ok := e.pending.RemoveVisit(userID)
	if ok {
		if err := e.records.LogVisit(ctx, visit.UserID, visit.DisplayName, visit.Reason, visit.CreatedAt); err != nil {
			slog.Error("Approve failed to log visit", "error", err, "userID", userID)
			e.ack(ctx, act, fmt.Sprintf("Couldn't log the visit for **%s**. Ask them to check in again.", visit.DisplayName), false)
			return
		}
		e.record(visit.UserID, models.ReceiptVisitApproved, visit.Reason)
		e.notifyVisitor(ctx, visit.UserID, "✅ Your office visit was approved and logged. Thank you!")
		e.ack(ctx, act, fmt.Sprintf("Approved **%s**.", visit.DisplayName), false)
		return
	}

	e.resolveUpstreamVisit(ctx, act, userID, true)
}

// handleDismissOne removes a single visit without logging it.
func (e *Engine) handleDismissOne(ctx context.Context, act models.Activation, userID string) {
	if !e.isApprover(act.UserID) {
		e.ack(ctx, act, "You don't have permission to dismiss visits.", true)
		return
	}

	visit, ok := e.pending.RemoveVisit(userID)
	if ok {
		e.record(visit.UserID, models.ReceiptVisitDismissed, visit.Reason)
		e.notifyVisitor(ctx, visit.UserID, "Your office check-in was dismissed. Contact an approver if this is unexpected.")
		e.ack(ctx, act, fmt.Sprintf("Dismissed **%s**.", visit.DisplayName), false)
		return
	}

	e.resolveUpstreamVisit(ctx, act, userID, false)
}

// resolveUpstreamVisit handles approve/dismiss for a visit absent from the
// in-memory table: present upstream means it predates this process and is
// mutated there; absent everywhere means another approver won the race.
func (e *Engine) resolveUpstreamVisit(ctx context.Context, act models.Activation, userID string, approve bool) {
	visits, err := e.records.GetUnapprovedVisits(ctx)
	if err != nil {
		slog.Error("Upstream unapproved lookup failed", "error", err, "userID", userID)
		e.ack(ctx, act, "Couldn't reach the record service. Please try again.", true)
		return
	}
	var name string
	found := false
	for _, v := range visits {
		if v.UserID == userID {
			name, found = v.Name, true
			break
		}
	}
	if !found {
		e.ack(ctx, act, "That visit was already handled by another approver.", true)
		return
	}

	if approve {
		err = e.records.ApproveVisit(ctx, userID)
	} else {
		err = e.records.DismissVisit(ctx, userID)
	}
	if err != nil {
		slog.Error("Upstream visit mutation failed", "error", err, "userID", userID, "approve", approve)
		e.ack(ctx, act, "Couldn't update the record service. Please try again.", true)
		return
	}
	if approve {
		e.record(userID, models.ReceiptVisitApproved, "upstream visit")
		e.ack(ctx, act, fmt.Sprintf("Approved **%s**.", name), false)
	} else {
		e.record(userID, models.ReceiptVisitDismissed, "upstream visit")
		e.ack(ctx, act, fmt.Sprintf("Dismissed **%s**.", name), false)
	}
}

// handleApproveAll iterates every pending visit in insertion order. Failures
// are reported per visit and do not stop the batch; there is no transactional
// all-or-nothing behavior. With nothing in memory it falls back to approving
// the record store's own unapproved backlog.
func (e *Engine) handleApproveAll(ctx context.Context, act models.Activation) {
	if !e.isApprover(act.UserID) {
		e.ack(ctx, act, "You don't have permission to approve visits.", true)
		return
	}

	visits := e.pending.Visits()
	if len(visits) == 0 {
		summary, err := e.records.ApproveAll(ctx)
		if err != nil {
			slog.Error("Upstream approveAll failed", "error", err)
			e.ack(ctx, act, "No pending visits here, and the record service approval failed. Please try again.", true)
			return
		}
		if summary == "" {
			summary = "No visits were waiting."
		}
		e.ack(ctx, act, "No pending visits in this session. Record service says: "+summary, false)
		return
	}

	approved := 0
	var failed []string
	for _, v := range visits {
		visit, ok := e.pending.RemoveVisit(v.UserID)
		if !ok {
			continue // raced with a single approval
		}
		if err := e.records.LogVisit(ctx, visit.UserID, visit.DisplayName, visit.Reason, visit.CreatedAt); err != nil {
			slog.Error("Batch approve failed for visit", "error", err, "userID", visit.UserID)
			failed = append(failed, visit.DisplayName)
			continue
		}
		e.record(visit.UserID, models.ReceiptVisitApproved, visit.Reason)
		e.notifyVisitor(ctx, visit.UserID, "✅ Your office visit was approved and logged. Thank you!")
		approved++
	}

	msg := fmt.Sprintf("Approved %d visit(s).", approved)
	if len(failed) > 0 {
		msg += " Failed to log: " + strings.Join(failed, ", ") + ". Ask them to check in again."
	}
	e.ack(ctx, act, msg, false)
}

// handleApproveSelect re-lists the pending visits with per-visit controls.
// When the in-memory table is empty it lists the record store's unapproved
// backlog instead, so approvers can see visits from a previous process run.
func (e *Engine) handleApproveSelect(ctx context.Context, act models.Activation) {
	if !e.isApprover(act.UserID) {
		e.ack(ctx, act, "You don't have permission to review visits.", true)
		return
	}

	visits := e.pending.Visits()
	if len(visits) == 0 {
		upstream, err := e.records.GetUnapprovedVisits(ctx)
		if err != nil {
			slog.Error("Upstream unapproved listing failed", "error", err)
			e.ack(ctx, act, "No pending visits here, and the record service could not be reached.", true)
			return
		}
		if len(upstream) == 0 {
			e.ack(ctx, act, "Nothing is waiting for approval.", true)
			return
		}
		e.listVisits(ctx, act, upstreamToVisits(upstream), "Unapproved visits from the record service:")
		return
	}
	e.listVisits(ctx, act, visits, "Visits waiting for approval:")
}

// listVisits renders one approve/dismiss button pair per visit.
func (e *Engine) listVisits(ctx context.Context, act models.Activation, visits []models.PendingVisit, heading string) {
	var b strings.Builder
	b.WriteString(heading)
	var buttons []models.Button
	for i, v := range visits {
		fmt.Fprintf(&b, "\n%d. **%s**", i+1, v.DisplayName)
		if v.Reason != "" {
			fmt.Fprintf(&b, ": %s", v.Reason)
		}
		buttons = append(buttons,
			models.Button{Label: "Approve " + v.DisplayName, Token: action.MustEncode(action.KindApproveOne, v.UserID)},
			models.Button{Label: "Dismiss " + v.DisplayName, Token: action.MustEncode(action.KindDismissOne, v.UserID)},
		)
	}
	if _, err := e.svc.SendMessageWithButtons(ctx, act.ChannelID, b.String(), buttons); err != nil {
		slog.Error("Failed to list visits", "error", err, "channelID", act.ChannelID)
	}
}

// notifyVisitor DMs the visitor about the outcome of their check-in.
func (e *Engine) notifyVisitor(ctx context.Context, userID, body string) {
	dm, err := e.svc.OpenDM(ctx, userID)
	if err != nil {
		slog.Warn("Could not DM visitor", "error", err, "userID", userID)
		return
	}
	e.send(ctx, dm, body)
}

func upstreamToVisits(candidates []models.Candidate) []models.PendingVisit {
	out := make([]models.PendingVisit, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, models.PendingVisit{UserID: c.UserID, DisplayName: c.Name})
	}
	return out
}
