package testutil

import (
	"context"
	"sync"

	"github.com/parley0/parley/internal/stream"
)

// RecordingLive records every edit made to a live message. Error queues let
// tests script per-call delivery failures.
type RecordingLive struct {
	mu           sync.Mutex
	Updates      []string
	Finals       []string
	UpdateErrs   []error // popped one per Update call
	FinalizeErrs []error // popped one per Finalize call
}

func (l *RecordingLive) Update(_ context.Context, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.UpdateErrs) > 0 {
		err := l.UpdateErrs[0]
		l.UpdateErrs = l.UpdateErrs[1:]
		if err != nil {
			return err
		}
	}
	l.Updates = append(l.Updates, text)
	return nil
}

func (l *RecordingLive) Finalize(_ context.Context, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.FinalizeErrs) > 0 {
		err := l.FinalizeErrs[0]
		l.FinalizeErrs = l.FinalizeErrs[1:]
		if err != nil {
			return err
		}
	}
	l.Finals = append(l.Finals, text)
	return nil
}

// EditCount returns the number of successful deliveries.
func (l *RecordingLive) EditCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Updates) + len(l.Finals)
}

// LastText returns the most recently delivered text, final edits included.
func (l *RecordingLive) LastText() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := len(l.Finals); n > 0 {
		return l.Finals[n-1]
	}
	if n := len(l.Updates); n > 0 {
		return l.Updates[n-1]
	}
	return ""
}

// RecordingTransport hands out RecordingLive messages and counts creations.
type RecordingTransport struct {
	mu         sync.Mutex
	CreateErrs []error        // popped one per NewLiveMessage call
	Prepared   *RecordingLive // when set, returned instead of a fresh message
	Messages   []*RecordingLive
}

func (t *RecordingTransport) NewLiveMessage(context.Context) (stream.LiveMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.CreateErrs) > 0 {
		err := t.CreateErrs[0]
		t.CreateErrs = t.CreateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	live := t.Prepared
	if live == nil {
		live = &RecordingLive{}
	}
	t.Messages = append(t.Messages, live)
	return live, nil
}

// Last returns the most recently created live message, or nil.
func (t *RecordingTransport) Last() *RecordingLive {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Messages) == 0 {
		return nil
	}
	return t.Messages[len(t.Messages)-1]
}
