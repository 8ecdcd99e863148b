// Package tool maps model-requested actions to executable capabilities.
//
// Each tool supports two invocation styles behind one interface: the
// manifest style, where the model emits a named function call with a JSON
// argument payload, and the tag style, where the model writes an inline
// bracket tag (for example <search>query</search>) in otherwise free text.
// The Registry dispatches either style and converts every failure mode into
// a textual Tool Result so the conversation can continue.
package tool

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// Invocation is a completed tool request recovered from a model response:
// a tool name and its fully-accumulated argument payload.
type Invocation struct {
	Name      string
	Arguments string
}

// Result is the textual payload produced by dispatching an invocation.
type Result struct {
	Text string

	// Unknown is set when no registered tool matched the requested name.
	// The text then carries the explanation re-injected into the
	// conversation so the model can self-correct.
	Unknown bool
}

// Tool is one executable capability.
type Tool interface {
	// Name is the manifest identifier the model calls the tool by.
	Name() string

	// Description tells the model when to call the tool.
	Description() string

	// Parameters is the JSON-schema of the manifest argument object.
	Parameters() *jsonschema.Schema

	// Argument extracts the tool's argument from a manifest-style JSON
	// payload.
	Argument(payload string) (string, error)

	// Detect scans free text for the tool's inline tag and returns the
	// extracted argument on a match.
	Detect(text string) (string, bool)

	// Execute performs the action. Expected failures (unreachable page,
	// empty search) are reported in the returned text; the error return is
	// for unexpected conditions and is converted to an error Result at the
	// dispatch boundary either way.
	Execute(ctx context.Context, arg string) (string, error)
}
