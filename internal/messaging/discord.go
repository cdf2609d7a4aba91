// Package messaging: Discord-backed implementation of the Service interface.
//
// This is deliberately a thin wrapper; message delivery, control rendering,
// and presence are the platform's concern, not redesigned here.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/nxtoffice/checkinbot/internal/models"
)

// eventBuffer bounds the inbound event channels so a stalled consumer drops
// events instead of blocking the gateway handler.
const eventBuffer = 256

// DiscordService implements Service over a discordgo session.
type DiscordService struct {
	session     *discordgo.Session
	messages    chan models.IncomingMessage
	activations chan models.Activation

	// interactions holds not-yet-acknowledged interactions keyed by
	// activation ID, so Acknowledge can respond to the originating click.
	mu           sync.Mutex
	interactions map[string]*discordgo.Interaction
}

// NewDiscordService creates a DiscordService from a bot token. The session is
// not opened until Start.
func NewDiscordService(token string) (*DiscordService, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	svc := &DiscordService{
		session:      session,
		messages:     make(chan models.IncomingMessage, eventBuffer),
		activations:  make(chan models.Activation, eventBuffer),
		interactions: make(map[string]*discordgo.Interaction),
	}
	session.AddHandler(svc.onMessageCreate)
	session.AddHandler(svc.onInteractionCreate)
	return svc, nil
}

// Start opens the gateway connection.
func (d *DiscordService) Start(ctx context.Context) error {
	slog.Debug("DiscordService opening gateway connection")
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord gateway: %w", err)
	}
	slog.Info("DiscordService connected", "user", d.session.State.User.Username)
	return nil
}

// Stop closes the gateway connection.
func (d *DiscordService) Stop() error {
	slog.Debug("DiscordService closing gateway connection")
	return d.session.Close()
}

// Messages returns the channel of inbound text messages.
func (d *DiscordService) Messages() <-chan models.IncomingMessage {
	return d.messages
}

// Activations returns the channel of inbound control activations.
func (d *DiscordService) Activations() <-chan models.Activation {
	return d.activations
}

// SendMessage sends a plain text message to a channel.
func (d *DiscordService) SendMessage(ctx context.Context, channelID, body string) error {
	if _, err := d.session.ChannelMessageSend(channelID, body); err != nil {
		slog.Error("DiscordService SendMessage failed", "error", err, "channelID", channelID)
		return fmt.Errorf("failed to send message to %s: %w", channelID, err)
	}
	return nil
}

// SendMessageWithButtons sends a message with buttons grouped into rows of
// models.ButtonsPerRow and returns the sent message's ID.
func (d *DiscordService) SendMessageWithButtons(ctx context.Context, channelID, body string, buttons []models.Button) (string, error) {
	msg, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    body,
		Components: buildRows(buttons),
	})
	if err != nil {
		slog.Error("DiscordService SendMessageWithButtons failed", "error", err, "channelID", channelID, "buttons", len(buttons))
		return "", fmt.Errorf("failed to send message with controls to %s: %w", channelID, err)
	}
	return msg.ID, nil
}

// UpdateMessage replaces the text and buttons of an existing message.
func (d *DiscordService) UpdateMessage(ctx context.Context, channelID, messageID, body string, buttons []models.Button) error {
	rows := buildRows(buttons)
	_, err := d.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    channelID,
		ID:         messageID,
		Content:    &body,
		Components: &rows,
	})
	if err != nil {
		slog.Error("DiscordService UpdateMessage failed", "error", err, "channelID", channelID, "messageID", messageID)
		return fmt.Errorf("failed to update message %s: %w", messageID, err)
	}
	return nil
}

// OpenDM opens (or reuses) a direct-message channel with a user.
func (d *DiscordService) OpenDM(ctx context.Context, userID string) (string, error) {
	ch, err := d.session.UserChannelCreate(userID)
	if err != nil {
		slog.Error("DiscordService OpenDM failed", "error", err, "userID", userID)
		return "", fmt.Errorf("failed to open DM with %s: %w", userID, err)
	}
	return ch.ID, nil
}

// Acknowledge answers a control activation. The first acknowledgment of an
// activation responds to the interaction itself; later ones (or acknowledgments
// after the interaction window) fall back to a plain channel message.
func (d *DiscordService) Acknowledge(ctx context.Context, act models.Activation, body string, ephemeral bool) error {
	d.mu.Lock()
	interaction, ok := d.interactions[act.ID]
	if ok {
		delete(d.interactions, act.ID)
	}
	d.mu.Unlock()

	if !ok {
		return d.SendMessage(ctx, act.ChannelID, body)
	}

	var flags discordgo.MessageFlags
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	err := d.session.InteractionRespond(interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: body, Flags: flags},
	})
	if err != nil {
		slog.Error("DiscordService Acknowledge failed, falling back to channel message", "error", err, "activationID", act.ID)
		return d.SendMessage(ctx, act.ChannelID, body)
	}
	return nil
}

func (d *DiscordService) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	msg := models.IncomingMessage{
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		Username:  m.Author.Username,
		Body:      m.Content,
		Time:      time.Now(),
	}
	select {
	case d.messages <- msg:
	default:
		slog.Warn("DiscordService dropping inbound message, buffer full", "channelID", m.ChannelID)
	}
}

func (d *DiscordService) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	user := i.User
	if user == nil && i.Member != nil {
		user = i.Member.User
	}
	if user == nil {
		return
	}
	var messageID string
	if i.Message != nil {
		messageID = i.Message.ID
	}

	d.mu.Lock()
	d.interactions[i.ID] = i.Interaction
	d.mu.Unlock()

	act := models.Activation{
		ID:        i.ID,
		ChannelID: i.ChannelID,
		MessageID: messageID,
		UserID:    user.ID,
		Username:  user.Username,
		Token:     i.MessageComponentData().CustomID,
		Time:      time.Now(),
	}
	select {
	case d.activations <- act:
	default:
		slog.Warn("DiscordService dropping activation, buffer full", "channelID", i.ChannelID)
		d.mu.Lock()
		delete(d.interactions, i.ID)
		d.mu.Unlock()
	}
}

// buildRows groups buttons into Discord action rows of models.ButtonsPerRow.
func buildRows(buttons []models.Button) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += models.ButtonsPerRow {
		end := start + models.ButtonsPerRow
		if end > len(buttons) {
			end = len(buttons)
		}
		row := discordgo.ActionsRow{}
		for _, b := range buttons[start:end] {
			row.Components = append(row.Components, discordgo.Button{
				Label:    b.Label,
				Style:    discordgo.PrimaryButton,
				CustomID: b.Token,
			})
		}
		rows = append(rows, row)
	}
	return rows
}
