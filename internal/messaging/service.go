// Package messaging defines the pluggable chat-transport abstraction and the
// reply waiter used by conversational workflows.
package messaging

import (
	"context"

	"github.com/nxtoffice/checkinbot/internal/models"
)

// Service defines a pluggable chat-transport abstraction. The workflow engine
// only ever talks to this interface; the Discord implementation is a thin
// wrapper around the platform client.
type Service interface {
	// SendMessage sends a plain text message to a channel.
	SendMessage(ctx context.Context, channelID, body string) error

	// SendMessageWithButtons sends a message with interactive buttons grouped
	// into rows of models.ButtonsPerRow. Returns the ID of the sent message,
	// which callers may use to key pending state.
	SendMessageWithButtons(ctx context.Context, channelID, body string, buttons []models.Button) (string, error)

	// UpdateMessage replaces the text and buttons of an existing message.
	UpdateMessage(ctx context.Context, channelID, messageID, body string, buttons []models.Button) error

	// OpenDM opens (or reuses) a direct-message channel with a user and
	// returns its channel ID.
	OpenDM(ctx context.Context, userID string) (string, error)

	// Acknowledge answers a control activation with a message. With ephemeral
	// set, only the activating user sees it.
	Acknowledge(ctx context.Context, act models.Activation, body string, ephemeral bool) error

	// Start connects to the platform and begins delivering inbound events.
	Start(ctx context.Context) error

	// Stop disconnects and stops delivering events.
	Stop() error

	// Messages returns the channel of inbound text messages.
	Messages() <-chan models.IncomingMessage

	// Activations returns the channel of inbound control activations.
	Activations() <-chan models.Activation
}
