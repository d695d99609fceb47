package notify

import (
	"context"
	"sync"
)

// Sent records one delivered fake message.
type Sent struct {
	Channels []string
	Message  Message
}

// Fake is a scriptable dispatcher for tests.
type Fake struct {
	mu       sync.Mutex
	err      error
	Messages []Sent
}

// NewFakeDispatcher returns a dispatcher recording every send.
func NewFakeDispatcher() *Fake {
	return &Fake{}
}

// Fail makes every Send return err.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *Fake) Send(ctx context.Context, channels []string, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages = append(f.Messages, Sent{Channels: channels, Message: msg})
	return f.err
}

func (f *Fake) Channels() []string {
	return []string{"fake"}
}

// Last returns the most recent message, or nil.
func (f *Fake) Last() *Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Messages) == 0 {
		return nil
	}
	return &f.Messages[len(f.Messages)-1]
}
