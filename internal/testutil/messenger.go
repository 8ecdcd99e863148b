package testutil

import (
	"context"
	"sync"
)

// RecordingMessenger is a RecordingTransport that also records the
// standalone sends and typing signals a chat transport performs.
type RecordingMessenger struct {
	RecordingTransport

	sendMu  sync.Mutex
	Sent    []string
	Typings int
	SendErr error // returned by every Send when set
}

func (m *RecordingMessenger) Send(_ context.Context, text string) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	m.Sent = append(m.Sent, text)
	return nil
}

func (m *RecordingMessenger) Typing(context.Context) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	m.Typings++
	return nil
}

// LastSent returns the most recent standalone message, or "".
func (m *RecordingMessenger) LastSent() string {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if len(m.Sent) == 0 {
		return ""
	}
	return m.Sent[len(m.Sent)-1]
}
