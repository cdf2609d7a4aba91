// Package workflow implements the four conversational state machines of the
// check-in bot: registration, check-in/approval, scheduling, and the
// schedule response. The engine consumes inbound transport events, suspends
// inside the reply waiter, keeps in-flight records in the pending store, and
// persists durable outcomes through the record-store client.
package workflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nxtoffice/checkinbot/internal/messaging"
	"github.com/nxtoffice/checkinbot/internal/models"
	"github.com/nxtoffice/checkinbot/internal/pending"
	"github.com/nxtoffice/checkinbot/internal/store"
)

// Command and date-format constants.
const (
	cmdStart    = "!start"
	cmdInvite   = "!invite"
	cmdSchedule = "!schedule"

	// DateLayout is the dd/mm/yy format carried in schedule commands and tokens.
	DateLayout = "02/01/06"

	// DefaultReplyTimeout bounds each reply-waiter round.
	DefaultReplyTimeout = 60 * time.Second
)

// RecordStore is the subset of the record-store client the engine calls.
// *recordstore.Client satisfies it; tests substitute a mock.
type RecordStore interface {
	LogUser(ctx context.Context, discordID, name, email, nxtID string) error
	LogVisit(ctx context.Context, discordID, name, reason string, timestamp time.Time) error
	FindUsers(ctx context.Context, name string) ([]models.Candidate, error)
	CheckUserExists(ctx context.Context, discordID string) (bool, error)
	GetUnapprovedVisits(ctx context.Context) ([]models.Candidate, error)
	ApproveVisit(ctx context.Context, discordID string) error
	DismissVisit(ctx context.Context, discordID string) error
	ApproveAll(ctx context.Context) (string, error)
	LogSchedule(ctx context.Context, discordID, date, status, notes string) error
	UpdateScheduleStatus(ctx context.Context, employeeDiscordID, date, status, notes string) error
}

// Config holds the engine's fixed destinations and policies.
type Config struct {
	// ApprovalChannelID is where check-in notifications and approval controls go.
	ApprovalChannelID string
	// NotifyChannelID is the fixed broadcast destination for schedule responses.
	NotifyChannelID string
	// ScheduleChannelID, when set, enables the channel-scoped "<name> <dd/mm/yy>"
	// schedule shorthand in that channel.
	ScheduleChannelID string
	// ApproverIDs lists users allowed to approve, dismiss, and invite. Empty
	// means unrestricted.
	ApproverIDs []string
	// ReplyTimeout bounds every reply-waiter round. Zero means DefaultReplyTimeout.
	ReplyTimeout time.Duration
	// CollectEmail adds the optional email step to registration.
	CollectEmail bool
}

// Engine drives the conversational workflows.
type Engine struct {
	cfg     Config
	svc     messaging.Service
	waiter  *messaging.Waiter
	pending *pending.Store
	records RecordStore
	ledger  store.Store
}

// NewEngine wires an engine from its collaborators. The pending store is
// passed in rather than created here so its process-lifetime volatility is an
// explicit, testable contract.
func NewEngine(cfg Config, svc messaging.Service, waiter *messaging.Waiter, pend *pending.Store, records RecordStore, ledger store.Store) *Engine {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	if ledger == nil {
		ledger = store.NewInMemoryStore()
	}
	return &Engine{
		cfg:     cfg,
		svc:     svc,
		waiter:  waiter,
		pending: pend,
		records: records,
		ledger:  ledger,
	}
}

// Pending exposes the pending store for the status API.
func (e *Engine) Pending() *pending.Store { return e.pending }

// Ledger exposes the audit ledger for the status API.
func (e *Engine) Ledger() store.Store { return e.ledger }

// Run consumes transport events until ctx is cancelled. Each event is handled
// in its own goroutine: flows suspend inside the reply waiter, and many
// independent flows may have overlapping outstanding waits.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("Engine running", "replyTimeout", e.cfg.ReplyTimeout, "approvers", len(e.cfg.ApproverIDs))
	for {
		select {
		case <-ctx.Done():
			slog.Info("Engine stopping", "error", ctx.Err())
			return ctx.Err()
		case msg := <-e.svc.Messages():
			go e.HandleMessage(ctx, msg)
		case act := <-e.svc.Activations():
			go e.HandleActivation(ctx, act)
		}
	}
}

// HandleMessage routes one inbound text message: first to any armed reply
// collector, then to command dispatch.
func (e *Engine) HandleMessage(ctx context.Context, msg models.IncomingMessage) {
	if e.waiter.Deliver(msg) {
		return
	}

	body := strings.TrimSpace(msg.Body)
	switch {
	case body == cmdStart:
		e.runRegistration(ctx, msg)
	case strings.HasPrefix(body, cmdInvite+" "):
		e.runInvite(ctx, msg, strings.Fields(strings.TrimPrefix(body, cmdInvite+" ")))
	case strings.HasPrefix(body, cmdSchedule+" "):
		name, date, ok := parseScheduleCommand(strings.TrimPrefix(body, cmdSchedule+" "))
		if !ok {
			e.send(ctx, msg.ChannelID, "Usage: `!schedule <name> on <dd/mm/yy>`")
			return
		}
		e.runSchedule(ctx, msg.ChannelID, msg.UserID, name, date)
	case e.cfg.ScheduleChannelID != "" && msg.ChannelID == e.cfg.ScheduleChannelID:
		if name, date, ok := parseScheduleShorthand(body); ok {
			e.runSchedule(ctx, msg.ChannelID, msg.UserID, name, date)
		}
	}
}

// HandleActivation decodes a control activation and routes it to its flow.
// Malformed tokens are reported to the activating user, never crash dispatch.
func (e *Engine) HandleActivation(ctx context.Context, act models.Activation) {
	a, err := decodeActivation(act)
	if err != nil {
		slog.Warn("Engine received malformed action token", "error", err, "userID", act.UserID)
		e.ack(ctx, act, "That button is no longer valid. Please reissue the command.", true)
		return
	}
	e.dispatchAction(ctx, act, a)
}

// send delivers a plain message, logging delivery failures. Every terminal
// flow outcome produces exactly one message through here or ack.
func (e *Engine) send(ctx context.Context, channelID, body string) {
	if err := e.svc.SendMessage(ctx, channelID, body); err != nil {
		slog.Error("Engine failed to send message", "error", err, "channelID", channelID)
	}
}

// ack answers a control activation, logging delivery failures.
func (e *Engine) ack(ctx context.Context, act models.Activation, body string, ephemeral bool) {
	if err := e.svc.Acknowledge(ctx, act, body, ephemeral); err != nil {
		slog.Error("Engine failed to acknowledge activation", "error", err, "activationID", act.ID)
	}
}

// record appends a ledger receipt. Ledger failures are diagnostic only and
// never surface to users.
func (e *Engine) record(userID string, status models.ReceiptStatus, detail string) {
	err := e.ledger.AddReceipt(models.Receipt{
		UserID: userID,
		Status: status,
		Detail: detail,
		Time:   time.Now().Unix(),
	})
	if err != nil {
		slog.Error("Engine ledger write failed", "error", err, "userID", userID, "status", status)
	}
}

// isApprover reports whether a user may approve, dismiss, and invite.
func (e *Engine) isApprover(userID string) bool {
	if len(e.cfg.ApproverIDs) == 0 {
		return true
	}
	for _, id := range e.cfg.ApproverIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// parseScheduleCommand splits "<name> on <date>" and validates the date.
func parseScheduleCommand(rest string) (name, date string, ok bool) {
	idx := strings.LastIndex(rest, " on ")
	if idx <= 0 {
		return "", "", false
	}
	name = strings.TrimSpace(rest[:idx])
	date = strings.TrimSpace(rest[idx+len(" on "):])
	if name == "" || !validDate(date) {
		return "", "", false
	}
	return name, date, true
}

// parseScheduleShorthand splits the channel-scoped "<name> <dd/mm/yy>" form.
func parseScheduleShorthand(body string) (name, date string, ok bool) {
	idx := strings.LastIndex(body, " ")
	if idx <= 0 {
		return "", "", false
	}
	name = strings.TrimSpace(body[:idx])
	date = strings.TrimSpace(body[idx+1:])
	if name == "" || !validDate(date) {
		return "", "", false
	}
	return name, date, true
}

func validDate(date string) bool {
	_, err := time.Parse(DateLayout, date)
	return err == nil
}
