package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/parley0/parley/internal/stream"
)

// consoleMessenger renders the relay's chat-transport surface on a
// terminal. Live messages redraw the current line in place while the
// partial text fits on one line, and settle to plain printed output on
// finalize.
type consoleMessenger struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsoleMessenger(out io.Writer) *consoleMessenger {
	return &consoleMessenger{out: out}
}

func (m *consoleMessenger) Send(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := fmt.Fprintln(m.out, text)
	return err
}

func (m *consoleMessenger) Typing(context.Context) error {
	return nil
}

func (m *consoleMessenger) NewLiveMessage(context.Context) (stream.LiveMessage, error) {
	return &consoleLive{m: m}, nil
}

// consoleLive is one in-place-updating answer line.
type consoleLive struct {
	m       *consoleMessenger
	drawn  int  // width of the currently drawn preview line
	gaveUp bool // preview went multi-line, stop redrawing
}

func (l *consoleLive) Update(_ context.Context, text string) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()

	// A terminal can only rewrite the last line. Once the preview spans
	// lines, stop previewing and let Finalize print the full text.
	if l.gaveUp || strings.ContainsRune(text, '\n') {
		l.gaveUp = true
		return nil
	}

	pad := ""
	if n := l.drawn - len(text); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	if _, err := fmt.Fprintf(l.m.out, "\r%s%s", text, pad); err != nil {
		return err
	}
	l.drawn = len(text)
	return nil
}

func (l *consoleLive) Finalize(_ context.Context, text string) error {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()

	if l.drawn > 0 {
		if _, err := fmt.Fprintf(l.m.out, "\r%s\r", strings.Repeat(" ", l.drawn)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(l.m.out, text)
	return err
}
