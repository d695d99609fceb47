// Package notify fans decision and alert notifications out to configured
// channels. Senders are best-effort; a failing channel never blocks the
// others.
package notify

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/btnalit/routeros-aiops/internal/models"
)

// Message priorities.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Message is one outbound notification.
type Message struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Priority string            `json:"priority,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// Sender delivers a message on one channel.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Dispatcher routes messages to named channels.
type Dispatcher interface {
	// Send delivers msg to the named channels. An empty channel list means
	// every registered channel.
	Send(ctx context.Context, channels []string, msg Message) error
	// Channels lists the registered channel names.
	Channels() []string
}

// Hub is the standard dispatcher, routing by channel name.
type Hub struct {
	mu      sync.Mutex
	senders map[string]Sender
}

// NewHub returns an empty dispatcher.
func NewHub() *Hub {
	return &Hub{senders: make(map[string]Sender)}
}

// Register adds a named channel. Registering an existing name replaces it.
func (h *Hub) Register(name string, sender Sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.senders[name] = sender
}

func (h *Hub) Channels() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.senders))
	for name := range h.senders {
		names = append(names, name)
	}
	return names
}

// Send delivers to each requested channel, collecting failures. Unknown
// channel names are an error; partial delivery reports which channels
// failed.
func (h *Hub) Send(ctx context.Context, channels []string, msg Message) error {
	if msg.Priority == "" {
		msg.Priority = PriorityNormal
	}

	h.mu.Lock()
	targets := make(map[string]Sender)
	if len(channels) == 0 {
		for name, s := range h.senders {
			targets[name] = s
		}
	} else {
		for _, name := range channels {
			if s, ok := h.senders[name]; ok {
				targets[name] = s
			} else {
				log.Warn().Str("channel", name).Msg("unknown notification channel")
			}
		}
	}
	h.mu.Unlock()

	var failed []string
	for name, sender := range targets {
		if err := sender.Send(ctx, msg); err != nil {
			log.Error().Err(err).Str("channel", name).Str("type", msg.Type).Msg("notification delivery failed")
			failed = append(failed, name)
		}
	}
	if len(failed) > 0 {
		return models.E(models.KindDependency, "delivery failed on channels: %s", strings.Join(failed, ", "))
	}
	return nil
}

// LogSender writes notifications to the structured log. Always registered
// so decisions remain observable without any external channel.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	event := log.Info()
	if msg.Priority == PriorityHigh {
		event = log.Warn()
	}
	event.Str("type", msg.Type).Str("title", msg.Title).Str("priority", msg.Priority).Msg(msg.Body)
	return nil
}
