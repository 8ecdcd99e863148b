// Package completion defines the boundary to the hosted completion endpoint.
//
// The endpoint is consumed exclusively in streaming mode: a request yields an
// ordered sequence of Chunks whose fragments must be concatenated by the
// caller (see internal/stream). The OpenAI-compatible implementation lives in
// openai.go; everything else in the repo depends only on the interfaces here.
package completion

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/parley0/parley/internal/convo"
)

// FinishReason marks why a streamed response concluded.
type FinishReason string

const (
	// FinishNone means the stream is still open.
	FinishNone FinishReason = ""

	// FinishStop is a plain final answer.
	FinishStop FinishReason = "stop"

	// FinishToolCall means the model is requesting a tool invocation.
	FinishToolCall FinishReason = "tool_call"

	// FinishLength means the response hit the model's output limit.
	FinishLength FinishReason = "length"
)

// Chunk is one incremental unit of model output. All fragment fields are
// partial: a consumer must concatenate them across chunks, never replace.
// Finish is set at most once, on the closing chunk.
type Chunk struct {
	Content  string       // partial display text
	ToolName string       // partial tool-call name
	ToolArgs string       // partial JSON argument fragment; parseable only once complete
	Finish   FinishReason // non-empty exactly once, at stream end
}

// ToolCall is a completed tool invocation request recovered from a stream.
// Arguments is the full concatenation of every ToolArgs fragment.
type ToolCall struct {
	Name      string
	Arguments string
}

// ToolDef describes one tool in the manifest advertised to the model.
type ToolDef struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// Request is one streamed completion call.
type Request struct {
	Turns []convo.Turn // full prompt context, in order
	Tools []ToolDef    // empty disables tool calling (e.g. summarization)
}

// Stream yields Chunks in arrival order. Recv returns io.EOF once the
// response is complete.
type Stream interface {
	Recv(ctx context.Context) (Chunk, error)
	Close() error
}

// Streamer opens completion streams. Implementations must be safe for
// concurrent use by handlers serving different users.
type Streamer interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}
