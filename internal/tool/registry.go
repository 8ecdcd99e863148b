package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/parley0/parley/internal/completion"
	"github.com/parley0/parley/internal/log"
)

// Reference caps for tool result payloads.
const (
	// DefaultResultCap is the maximum length of a delivered tool result.
	DefaultResultCap = 4000

	// DefaultTruncateTo is the length oversized results are cut back to,
	// leaving room for the re-appended closing marker.
	DefaultTruncateTo = 3950
)

const (
	resultOpen  = "<result>"
	resultClose = "</result>"
)

// RegistryConfig contains all required parameters for the Registry.
type RegistryConfig struct {
	Tools  []Tool     // required; registration order is the dispatch tie-break
	Logger log.Logger // required

	// ResultCap and TruncateTo override the reference truncation caps.
	// Zero uses the defaults.
	ResultCap  int
	TruncateTo int
}

// Registry dispatches tool invocations. Unknown names, argument parse
// failures and execution errors are all converted into Results; Dispatch
// and Scan never fail the caller.
type Registry struct {
	tools      []Tool
	logger     log.Logger
	resultCap  int
	truncateTo int
}

// NewRegistry creates a Registry.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if len(cfg.Tools) == 0 {
		return nil, errors.New("at least one tool is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	resultCap := cfg.ResultCap
	if resultCap <= 0 {
		resultCap = DefaultResultCap
	}
	truncateTo := cfg.TruncateTo
	if truncateTo <= 0 || truncateTo > resultCap {
		truncateTo = DefaultTruncateTo
	}

	return &Registry{
		tools:      cfg.Tools,
		logger:     cfg.Logger,
		resultCap:  resultCap,
		truncateTo: truncateTo,
	}, nil
}

// Defs returns the tool manifest advertised to the completion endpoint.
func (r *Registry) Defs() []completion.ToolDef {
	defs := make([]completion.ToolDef, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, completion.ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return defs
}

// Dispatch executes a manifest-style invocation. Every failure mode becomes
// a textual Result: an unknown name yields an explanatory turn for the model
// to self-correct on, and execution errors are described rather than raised.
func (r *Registry) Dispatch(ctx context.Context, inv Invocation) Result {
	t := r.lookup(inv.Name)
	if t == nil {
		r.logger.Warn("unknown tool requested", "tool", inv.Name)
		return Result{
			Text:    fmt.Sprintf("ERROR : Unknown function %s", inv.Name),
			Unknown: true,
		}
	}

	arg, err := t.Argument(inv.Arguments)
	if err != nil {
		r.logger.Warn("tool argument parse failed", "tool", inv.Name, "error", err)
		return Result{Text: fmt.Sprintf("ERROR : invalid arguments for %s: %v", inv.Name, err)}
	}

	return r.run(ctx, t, arg, false)
}

// Scan tries each registered tool's detector against free text, in
// registration order, and executes the first match. Only one invocation is
// serviced per call even if the text matches several patterns. The returned
// Result is wrapped in a well-formed result tag.
func (r *Registry) Scan(ctx context.Context, text string) (Invocation, Result, bool) {
	for _, t := range r.tools {
		arg, ok := t.Detect(text)
		if !ok {
			continue
		}
		res := r.run(ctx, t, arg, true)
		return Invocation{Name: t.Name(), Arguments: arg}, res, true
	}
	return Invocation{}, Result{}, false
}

func (r *Registry) lookup(name string) Tool {
	for _, t := range r.tools {
		if t.Name() == name {
			return t
		}
	}
	return nil
}

// run executes the tool, containing failures at this boundary.
func (r *Registry) run(ctx context.Context, t Tool, arg string, tagged bool) Result {
	r.logger.Info("dispatching tool", "tool", t.Name(), "arg_len", len(arg))

	out, err := t.Execute(ctx, arg)
	if err != nil {
		r.logger.Warn("tool execution failed", "tool", t.Name(), "error", err)
		out = fmt.Sprintf("ERROR : %s failed: %v", t.Name(), err)
	}

	if tagged {
		return Result{Text: r.wrapTagged(out)}
	}
	return Result{Text: r.clamp(out)}
}

// wrapTagged wraps a result in the tag the model was prompted to expect,
// re-appending the closing tag after truncation so the wrapper stays
// well-formed.
func (r *Registry) wrapTagged(text string) string {
	wrapped := resultOpen + "\n" + text + "\n" + resultClose
	if len(wrapped) <= r.resultCap {
		return wrapped
	}
	cut := r.truncateTo - len(resultClose)
	if cut < len(resultOpen) {
		cut = len(resultOpen)
	}
	return wrapped[:cut] + resultClose
}

// clamp shortens an oversized manifest-style result, marking the cut
// explicitly instead of dropping text silently.
func (r *Registry) clamp(text string) string {
	if len(text) <= r.resultCap {
		return text
	}
	return text[:r.truncateTo] + "\n[truncated]"
}
