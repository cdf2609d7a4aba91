package workflow

import (
	"context"
	"log/slog"

	"github.com/nxtoffice/checkinbot/internal/action"
	"github.com/nxtoffice/checkinbot/internal/models"
)

// decodeActivation translates the raw token on an activation into a typed
// action. Raw tokens go no further than this.
func decodeActivation(act models.Activation) (action.Action, error) {
	return action.Decode(act.Token)
}

// dispatchAction routes a decoded action to its flow. Decode is exhaustive
// over every kind the engine emits, so the default arm is unreachable unless
// a new kind is added without a handler.
func (e *Engine) dispatchAction(ctx context.Context, act models.Activation, a action.Action) {
	slog.Debug("Engine dispatching action", "kind", a.Kind, "userID", act.UserID)
	switch a.Kind {
	case action.KindOfficeCheckin:
		e.runCheckIn(ctx, act)
	case action.KindApproveAll:
		e.handleApproveAll(ctx, act)
	case action.KindApproveSelect:
		e.handleApproveSelect(ctx, act)
	case action.KindApproveOne:
		e.handleApproveOne(ctx, act, a.UserID())
	case action.KindDismissOne:
		e.handleDismissOne(ctx, act, a.UserID())
	case action.KindSchedulePick:
		e.handleSchedulePick(ctx, act, a.UserID())
	case action.KindScheduleConfirm:
		e.handleScheduleConfirm(ctx, act, a.UserID(), a.Date())
	case action.KindScheduleDecline:
		e.handleScheduleDecline(ctx, act, a.UserID(), a.Date())
	default:
		slog.Error("Engine has no handler for action kind", "kind", a.Kind)
		e.ack(ctx, act, "That button is no longer valid. Please reissue the command.", true)
	}
}
