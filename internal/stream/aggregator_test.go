package stream_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/parley0/parley/internal/completion"
	"github.com/parley0/parley/internal/log"
	"github.com/parley0/parley/internal/stream"
	"github.com/parley0/parley/internal/testutil"
)

func newAggregator(t *testing.T) *stream.Aggregator {
	t.Helper()
	agg, err := stream.New(stream.Config{
		Logger:       log.NewNop(),
		EditInterval: time.Nanosecond,
		Retry:        stream.RetryPolicy{MaxAttempts: 3, TimeoutBackoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return agg
}

func TestContentOnlyStreamYieldsConcatenatedText(t *testing.T) {
	t.Parallel()

	agg := newAggregator(t)
	transport := &testutil.RecordingTransport{}
	s := testutil.NewScriptedStream(
		completion.Chunk{Content: "The capital "},
		completion.Chunk{Content: "of France "},
		completion.Chunk{Content: "is Paris. "},
		completion.Chunk{Finish: completion.FinishStop},
	)

	out, err := agg.Run(context.Background(), s, transport)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ToolCall != nil {
		t.Fatalf("unexpected tool call: %+v", out.ToolCall)
	}
	if want := "The capital of France is Paris."; out.Text != want {
		t.Errorf("Text = %q, want %q", out.Text, want)
	}
	if !s.Closed {
		t.Error("stream should be closed after Run")
	}

	live := transport.Last()
	if live == nil {
		t.Fatal("no live message created")
	}
	if got := live.LastText(); got != "The capital of France is Paris." {
		t.Errorf("final edit = %q", got)
	}
	if len(live.Finals) != 1 {
		t.Errorf("final edits = %d, want exactly 1", len(live.Finals))
	}
}

func TestToolCallStreamYieldsInvocation(t *testing.T) {
	t.Parallel()

	agg := newAggregator(t)
	transport := &testutil.RecordingTransport{}
	s := testutil.NewScriptedStream(
		completion.Chunk{ToolName: "search"},
		completion.Chunk{ToolArgs: `{"query"`},
		completion.Chunk{ToolArgs: `: "weather`},
		completion.Chunk{ToolArgs: ` in Paris"}`},
		completion.Chunk{Finish: completion.FinishToolCall},
	)

	out, err := agg.Run(context.Background(), s, transport)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ToolCall == nil {
		t.Fatal("expected a tool call outcome")
	}
	if out.ToolCall.Name != "search" {
		t.Errorf("tool name = %q, want search", out.ToolCall.Name)
	}

	// The concatenated payload must parse as structured data.
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(out.ToolCall.Arguments), &args); err != nil {
		t.Fatalf("arguments do not parse: %v (payload %q)", err, out.ToolCall.Arguments)
	}
	if args.Query != "weather in Paris" {
		t.Errorf("query = %q", args.Query)
	}
}

func TestToolCallRendersProgressPlaceholder(t *testing.T) {
	t.Parallel()

	agg := newAggregator(t)
	transport := &testutil.RecordingTransport{}
	s := testutil.NewScriptedStream(
		completion.Chunk{ToolName: "search"},
		completion.Chunk{ToolArgs: `{"query": "go"}`},
		completion.Chunk{Finish: completion.FinishToolCall},
	)

	if _, err := agg.Run(context.Background(), s, transport); err != nil {
		t.Fatalf("Run: %v", err)
	}

	live := transport.Last()
	if want := `search({"query": "go"})`; live.LastText() != want {
		t.Errorf("rendered view = %q, want %q", live.LastText(), want)
	}
}

func TestEditSuppressionOnUnchangedView(t *testing.T) {
	t.Parallel()

	agg := newAggregator(t)
	transport := &testutil.RecordingTransport{}
	// Empty fragments after the first one: the rendered view never changes,
	// so no further mid-stream edits may be delivered.
	s := testutil.NewScriptedStream(
		completion.Chunk{Content: "hello"},
		completion.Chunk{},
		completion.Chunk{},
		completion.Chunk{},
		completion.Chunk{Finish: completion.FinishStop},
	)

	if _, err := agg.Run(context.Background(), s, transport); err != nil {
		t.Fatalf("Run: %v", err)
	}

	live := transport.Last()
	if len(live.Updates) != 1 {
		t.Errorf("mid-stream edits = %d, want 1 (%v)", len(live.Updates), live.Updates)
	}
	if len(live.Finals) != 1 {
		t.Errorf("final edits = %d, want 1", len(live.Finals))
	}
}

func TestEmptyStreamSuppressesAllEdits(t *testing.T) {
	t.Parallel()

	agg := newAggregator(t)
	transport := &testutil.RecordingTransport{}
	s := testutil.NewScriptedStream(
		completion.Chunk{},
		completion.Chunk{Finish: completion.FinishStop},
	)

	out, err := agg.Run(context.Background(), s, transport)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != "" {
		t.Errorf("Text = %q, want empty", out.Text)
	}

	if got := transport.Last().EditCount(); got != 0 {
		t.Errorf("edits = %d, want 0 for an empty render", got)
	}
}

func TestMixedFragmentsAccumulateIndependently(t *testing.T) {
	t.Parallel()

	agg := newAggregator(t)
	transport := &testutil.RecordingTransport{}
	// Out-of-contract response mixing content and tool fragments: both
	// accumulators keep growing and the finish reason decides the outcome.
	s := testutil.NewScriptedStream(
		completion.Chunk{Content: "thinking"},
		completion.Chunk{ToolName: "search"},
		completion.Chunk{Content: " aloud"},
		completion.Chunk{ToolArgs: `{"query": "x"}`},
		completion.Chunk{Finish: completion.FinishToolCall},
	)

	out, err := agg.Run(context.Background(), s, transport)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.ToolCall == nil {
		t.Fatal("finish reason says tool call, expected tool call outcome")
	}
	if out.ToolCall.Name != "search" || out.ToolCall.Arguments != `{"query": "x"}` {
		t.Errorf("tool call = %+v", out.ToolCall)
	}
}

func TestPlaceholderCreationRetries(t *testing.T) {
	t.Parallel()

	agg := newAggregator(t)
	transport := &testutil.RecordingTransport{
		CreateErrs: []error{errors.New("request timed out"), nil},
	}
	s := testutil.NewScriptedStream(testutil.TextScript("ok")...)

	out, err := agg.Run(context.Background(), s, transport)
	if err != nil {
		t.Fatalf("Run should survive one transient creation failure: %v", err)
	}
	if out.Text != "ok" {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestPlaceholderCreationExhaustsRetries(t *testing.T) {
	t.Parallel()

	boom := errors.New("request timed out")
	agg := newAggregator(t)
	transport := &testutil.RecordingTransport{
		CreateErrs: []error{boom, boom, boom},
	}
	s := testutil.NewScriptedStream(testutil.TextScript("ok")...)

	if _, err := agg.Run(context.Background(), s, transport); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v surfaced after budget", err, boom)
	}
}

func TestNotModifiedEditIsSwallowed(t *testing.T) {
	t.Parallel()

	agg := newAggregator(t)
	// Script the live message's errors before handing it to the run.
	live := &testutil.RecordingLive{UpdateErrs: []error{stream.ErrNotModified}}
	transport := &testutil.RecordingTransport{Prepared: live}
	s := testutil.NewScriptedStream(testutil.TextScript("fine")...)

	out, err := agg.Run(context.Background(), s, transport)
	if err != nil {
		t.Fatalf("not-modified must not surface: %v", err)
	}
	if out.Text != "fine" {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestRetryAfterDuringEditIsHonored(t *testing.T) {
	t.Parallel()

	agg := newAggregator(t)
	live := &testutil.RecordingLive{
		UpdateErrs: []error{&stream.RetryAfterError{After: time.Millisecond}, nil},
	}
	transport := &testutil.RecordingTransport{Prepared: live}

	s := testutil.NewScriptedStream(testutil.TextScript("done")...)
	out, err := agg.Run(context.Background(), s, transport)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != "done" {
		t.Errorf("Text = %q", out.Text)
	}
	if len(transport.Last().Updates) == 0 {
		t.Error("edit should have been delivered after the rate-limit wait")
	}
}

func TestStreamErrorPropagates(t *testing.T) {
	t.Parallel()

	agg := newAggregator(t)
	transport := &testutil.RecordingTransport{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := testutil.NewScriptedStream(completion.Chunk{Content: "never seen"})

	if _, err := agg.Run(ctx, s, transport); err == nil {
		t.Error("expected canceled context to surface")
	}
}
