// Package stream turns an incremental completion response into a live-edited
// user-visible message and a terminal classification: final text, or a tool
// invocation request.
//
// The aggregator owns four accumulators (content, tool name, tool arguments,
// finish reason), each extended by concatenation on every chunk. While the
// stream is open it renders a view of the accumulated state and edits the
// live placeholder message no more often than a fixed interval; once the
// stream closes it edits unconditionally one final time with rich formatting.
// All deliveries go through a bounded retry policy (see retry.go).
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/parley0/parley/internal/completion"
	"github.com/parley0/parley/internal/log"
)

// DefaultEditInterval is the minimum wall time between mid-stream edits.
const DefaultEditInterval = 500 * time.Millisecond

// LiveMessage is the single placeholder message being edited in place.
type LiveMessage interface {
	// Update replaces the message text mid-stream. Plain formatting: the
	// text is still growing and further edits will race rich rendering.
	Update(ctx context.Context, text string) error

	// Finalize replaces the message text one last time. No further edits
	// follow, so implementations may apply rich formatting.
	Finalize(ctx context.Context, text string) error
}

// Transport creates the live placeholder message. Creation is a network
// call and goes through the same retry policy as edits.
type Transport interface {
	NewLiveMessage(ctx context.Context) (LiveMessage, error)
}

// Outcome is the terminal classification of one streamed response.
// Exactly one of Text and ToolCall is meaningful: a non-nil ToolCall takes
// precedence and Text is then empty.
type Outcome struct {
	Text     string
	ToolCall *completion.ToolCall
}

// Config contains the aggregator's parameters.
type Config struct {
	Logger log.Logger // required

	// EditInterval is the minimum time between mid-stream edits.
	// Zero uses DefaultEditInterval.
	EditInterval time.Duration

	// Retry bounds delivery of placeholder creation and edits.
	// Zero-value uses DefaultRetryPolicy.
	Retry RetryPolicy
}

// Aggregator drives completion streams. Safe for concurrent use; all
// per-response state is local to Run.
type Aggregator struct {
	editInterval time.Duration
	retry        RetryPolicy
	logger       log.Logger
}

// New creates an Aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	interval := cfg.EditInterval
	if interval <= 0 {
		interval = DefaultEditInterval
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy()
	}

	return &Aggregator{
		editInterval: interval,
		retry:        retry,
		logger:       cfg.Logger,
	}, nil
}

// Run consumes the stream to completion, live-editing a placeholder message
// created on t, and returns the terminal classification.
//
// Transient stream errors propagate to the caller; delivery errors are
// retried per the policy and only surfaced once the attempt budget is spent.
func (a *Aggregator) Run(ctx context.Context, s completion.Stream, t Transport) (*Outcome, error) {
	defer func() { _ = s.Close() }()

	var live LiveMessage
	err := a.retry.do(ctx, a.logger, func(ctx context.Context) error {
		var err error
		live, err = t.NewLiveMessage(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create placeholder: %w", err)
	}

	var (
		content  strings.Builder
		toolName strings.Builder
		toolArgs strings.Builder
		finish   completion.FinishReason

		lastRendered string
		lastEdit     time.Time
	)

	for {
		chunk, err := s.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("receive chunk: %w", err)
		}

		// Fragments accumulate independently; a response mixing content
		// and tool fragments is out of contract but must not break here.
		content.WriteString(chunk.Content)
		toolName.WriteString(chunk.ToolName)
		toolArgs.WriteString(chunk.ToolArgs)
		if chunk.Finish != completion.FinishNone {
			finish = chunk.Finish
		}

		view := renderView(content.String(), toolName.String(), toolArgs.String())
		if view == "" || view == lastRendered {
			continue
		}
		if time.Since(lastEdit) < a.editInterval {
			continue
		}
		if err := a.retry.do(ctx, a.logger, func(ctx context.Context) error {
			return live.Update(ctx, view)
		}); err != nil {
			return nil, fmt.Errorf("update live message: %w", err)
		}
		lastRendered = view
		lastEdit = time.Now()
	}

	// One unconditional final edit now that no further edits can race it.
	if view := strings.TrimSpace(renderView(content.String(), toolName.String(), toolArgs.String())); view != "" {
		if err := a.retry.do(ctx, a.logger, func(ctx context.Context) error {
			return live.Finalize(ctx, view)
		}); err != nil {
			return nil, fmt.Errorf("finalize live message: %w", err)
		}
	}

	if finish == completion.FinishToolCall {
		a.logger.Debug("stream concluded with tool call",
			"tool", toolName.String(),
			"args_len", toolArgs.Len())
		return &Outcome{ToolCall: &completion.ToolCall{
			Name:      toolName.String(),
			Arguments: toolArgs.String(),
		}}, nil
	}

	return &Outcome{Text: strings.TrimSpace(content.String())}, nil
}

// renderView computes the user-visible text for the accumulated state:
// content verbatim when present, otherwise a human-readable placeholder for
// the tool call in progress, otherwise nothing.
func renderView(content, toolName, toolArgs string) string {
	if content != "" {
		return content
	}
	if toolName != "" {
		return toolName + "(" + toolArgs + ")"
	}
	return ""
}
