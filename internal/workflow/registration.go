package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/nxtoffice/checkinbot/internal/action"
	"github.com/nxtoffice/checkinbot/internal/models"
)

// skipKeyword lets a user decline the optional email step.
const skipKeyword = "skip"

// runRegistration carries a user through the registration dialogue:
// name, NXT ID, optionally email, then a single logUser call. The record
// store is only written after every field is collected, so a timeout leaves
// no half-filled record server-side. Done renders the check-in control.
func (e *Engine) runRegistration(ctx context.Context, msg models.IncomingMessage) {
	userID := msg.UserID
	slog.Info("Registration started", "userID", userID)

	dm, err := e.svc.OpenDM(ctx, userID)
	if err != nil {
		slog.Error("Registration could not open DM", "error", err, "userID", userID)
		e.send(ctx, msg.ChannelID, "I couldn't send you a direct message. Please allow DMs from this server and run `!start` again.")
		return
	}

	exists, err := e.records.CheckUserExists(ctx, userID)
	if err != nil {
		slog.Error("Registration existence check failed", "error", err, "userID", userID)
		e.send(ctx, dm, "Something went wrong talking to the record service. Please run `!start` again.")
		return
	}
	if exists {
		slog.Debug("Registration short-circuit, user already registered", "userID", userID)
		e.sendCheckInButton(ctx, dm, "You're already registered! Click the button when you arrive at the office.")
		return
	}

	name, err := e.collect(ctx, dm, userID, "Hi! Please enter your **full name**:")
	if err != nil {
		e.reportRegistrationFailure(ctx, dm, err)
		return
	}
	if len(name) > models.MaxNameLength {
		e.send(ctx, dm, "That name is too long. Please run `!start` again.")
		return
	}

	nxtID, err := e.collect(ctx, dm, userID, "Please enter your **NXT ID**:")
	if err != nil {
		e.reportRegistrationFailure(ctx, dm, err)
		return
	}

	email := ""
	if e.cfg.CollectEmail {
		reply, err := e.collect(ctx, dm, userID, "Please enter your **email** (or reply `skip`):")
		if err != nil {
			e.reportRegistrationFailure(ctx, dm, err)
			return
		}
		if !strings.EqualFold(reply, skipKeyword) {
			email = reply
		}
	}

	if err := e.records.LogUser(ctx, userID, name, email, nxtID); err != nil {
		slog.Error("Registration logUser failed", "error", err, "userID", userID)
		e.send(ctx, dm, "I couldn't save your registration. Please run `!start` again.")
		return
	}

	e.record(userID, models.ReceiptUserRegistered, name)
	slog.Info("Registration complete", "userID", userID, "name", name)
	e.sendCheckInButton(ctx, dm, "All set! Click the button when you arrive at the office.")
}

// collect prompts once and waits once; each step is one prompt-then-wait
// round with no automatic retry.
func (e *Engine) collect(ctx context.Context, channelID, userID, prompt string) (string, error) {
	if err := e.svc.SendMessage(ctx, channelID, prompt); err != nil {
		return "", err
	}
	reply, err := e.waiter.Await(ctx, channelID, userID, e.cfg.ReplyTimeout)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(reply), nil
}

// reportRegistrationFailure emits the single terminal-failure message.
func (e *Engine) reportRegistrationFailure(ctx context.Context, channelID string, err error) {
	if errors.Is(err, models.ErrReplyTimeout) {
		e.send(ctx, channelID, "You didn't reply in time, so registration was cancelled. Please run `!start` again.")
		return
	}
	slog.Error("Registration failed", "error", err)
	e.send(ctx, channelID, "Something went wrong. Please run `!start` again.")
}

// sendCheckInButton renders the check-in control.
func (e *Engine) sendCheckInButton(ctx context.Context, channelID, body string) {
	buttons := []models.Button{{
		Label: "I am at office",
		Token: action.MustEncode(action.KindOfficeCheckin),
	}}
	if _, err := e.svc.SendMessageWithButtons(ctx, channelID, body, buttons); err != nil {
		slog.Error("Failed to send check-in button", "error", err, "channelID", channelID)
	}
}
