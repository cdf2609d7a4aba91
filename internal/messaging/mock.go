package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/nxtoffice/checkinbot/internal/models"
)

// SentMessage records one outbound message captured by the mock service.
type SentMessage struct {
	ChannelID string
	Body      string
	Buttons   []models.Button
	Ephemeral bool
}

// MockService is an in-memory Service implementation for tests. It records
// every outbound message and lets tests inject inbound events.
type MockService struct {
	mu     sync.Mutex
	sent   []SentMessage
	nextID int

	// SendErr, when set, is returned by every send operation.
	SendErr error

	messages    chan models.IncomingMessage
	activations chan models.Activation
}

// NewMockService creates an empty MockService.
func NewMockService() *MockService {
	return &MockService{
		messages:    make(chan models.IncomingMessage, 16),
		activations: make(chan models.Activation, 16),
	}
}

func (m *MockService) SendMessage(ctx context.Context, channelID, body string) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.record(SentMessage{ChannelID: channelID, Body: body})
	return nil
}

func (m *MockService) SendMessageWithButtons(ctx context.Context, channelID, body string, buttons []models.Button) (string, error) {
	if m.SendErr != nil {
		return "", m.SendErr
	}
	m.mu.Lock()
	m.nextID++
	id := fmt.Sprintf("msg-%d", m.nextID)
	m.sent = append(m.sent, SentMessage{ChannelID: channelID, Body: body, Buttons: buttons})
	m.mu.Unlock()
	return id, nil
}

func (m *MockService) UpdateMessage(ctx context.Context, channelID, messageID, body string, buttons []models.Button) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.record(SentMessage{ChannelID: channelID, Body: body, Buttons: buttons})
	return nil
}

// OpenDM returns a synthetic DM channel ID derived from the user ID.
func (m *MockService) OpenDM(ctx context.Context, userID string) (string, error) {
	return "dm-" + userID, nil
}

func (m *MockService) Acknowledge(ctx context.Context, act models.Activation, body string, ephemeral bool) error {
	if m.SendErr != nil {
		return m.SendErr
	}
	m.record(SentMessage{ChannelID: act.ChannelID, Body: body, Ephemeral: ephemeral})
	return nil
}

func (m *MockService) Start(ctx context.Context) error { return nil }
func (m *MockService) Stop() error                     { return nil }

func (m *MockService) Messages() <-chan models.IncomingMessage { return m.messages }
func (m *MockService) Activations() <-chan models.Activation   { return m.activations }

// InjectMessage makes an inbound message available on the Messages channel.
func (m *MockService) InjectMessage(msg models.IncomingMessage) {
	m.messages <- msg
}

// InjectActivation makes an inbound activation available on the Activations channel.
func (m *MockService) InjectActivation(act models.Activation) {
	m.activations <- act
}

// Sent returns a copy of all recorded outbound messages.
func (m *MockService) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// LastSent returns the most recent outbound message, if any.
func (m *MockService) LastSent() (SentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

func (m *MockService) record(s SentMessage) {
	m.mu.Lock()
	m.sent = append(m.sent, s)
	m.mu.Unlock()
}
