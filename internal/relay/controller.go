// Package relay orchestrates one incoming user message into a delivered
// answer: budget check and summarization, completion rounds through the
// streaming aggregator, tool dispatch, and the transport-facing handler
// with access control.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/parley0/parley/internal/completion"
	"github.com/parley0/parley/internal/convo"
	"github.com/parley0/parley/internal/log"
	"github.com/parley0/parley/internal/stream"
	"github.com/parley0/parley/internal/tool"
)

// Reference policy bounds for one incoming message.
const (
	// DefaultTokenCeiling is the conversation estimate above which the
	// history is summarized before the message is processed.
	DefaultTokenCeiling = 4000

	// DefaultMaxRounds bounds completion rounds in the manifest style.
	DefaultMaxRounds = 20

	// DefaultMaxAutoReplies bounds consecutive automated tool replies in
	// the tag style.
	DefaultMaxAutoReplies = 5
)

// RunawayNotice is delivered when the round ceiling is reached without a
// final answer.
const RunawayNotice = "Stopping due to repeated automated replies."

// InvocationStyle selects how the model requests tools.
type InvocationStyle string

const (
	// StyleManifest advertises tools through the completion endpoint's
	// function manifest; calls arrive as structured stream fragments.
	StyleManifest InvocationStyle = "manifest"

	// StyleTags instructs the model via prompt text to emit inline
	// directives, which the registry's detectors scan out of the reply.
	StyleTags InvocationStyle = "tags"
)

// Messenger is the chat-transport surface for one user interaction. Its
// NewLiveMessage method makes it the aggregator's transport as well.
type Messenger interface {
	// Send posts a standalone message: greetings, rejections, notices.
	Send(ctx context.Context, text string) error

	// Typing signals that a response is being prepared.
	Typing(ctx context.Context) error

	// NewLiveMessage creates the placeholder the streamed answer edits.
	NewLiveMessage(ctx context.Context) (stream.LiveMessage, error)
}

// ControllerConfig contains all required parameters for the Controller.
type ControllerConfig struct {
	Store      *convo.Store        // required
	Streamer   completion.Streamer // required
	Aggregator *stream.Aggregator  // required
	Registry   *tool.Registry      // required
	Logger     log.Logger          // required

	// Style selects the invocation style. Empty means StyleManifest.
	Style InvocationStyle

	// TokenCeiling, MaxRounds and MaxAutoReplies override the reference
	// policy bounds. Zero uses the defaults.
	TokenCeiling   int
	MaxRounds      int
	MaxAutoReplies int

	// SummaryPrompt overrides DefaultSummaryPrompt.
	SummaryPrompt string

	// Breaker guards the completion endpoint. Nil installs one with
	// default thresholds.
	Breaker *CircuitBreaker
}

// Controller turns one user message into possibly several completion and
// tool round-trips, bounded by the round ceiling and the token budget.
type Controller struct {
	store    *convo.Store
	streamer completion.Streamer
	agg      *stream.Aggregator
	registry *tool.Registry
	breaker  *CircuitBreaker
	logger   log.Logger

	style          InvocationStyle
	tokenCeiling   int
	maxRounds      int
	maxAutoReplies int
	summaryPrompt  string
}

// NewController creates a Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("conversation store is required")
	}
	if cfg.Streamer == nil {
		return nil, errors.New("streamer is required")
	}
	if cfg.Aggregator == nil {
		return nil, errors.New("aggregator is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	style := cfg.Style
	if style == "" {
		style = StyleManifest
	}
	if style != StyleManifest && style != StyleTags {
		return nil, fmt.Errorf("unknown invocation style %q", style)
	}
	tokenCeiling := cfg.TokenCeiling
	if tokenCeiling <= 0 {
		tokenCeiling = DefaultTokenCeiling
	}
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	maxAutoReplies := cfg.MaxAutoReplies
	if maxAutoReplies <= 0 {
		maxAutoReplies = DefaultMaxAutoReplies
	}
	summaryPrompt := cfg.SummaryPrompt
	if summaryPrompt == "" {
		summaryPrompt = DefaultSummaryPrompt
	}
	breaker := cfg.Breaker
	if breaker == nil {
		breaker = NewCircuitBreaker(CircuitConfig{})
	}

	return &Controller{
		store:          cfg.Store,
		streamer:       cfg.Streamer,
		agg:            cfg.Aggregator,
		registry:       cfg.Registry,
		breaker:        breaker,
		logger:         cfg.Logger,
		style:          style,
		tokenCeiling:   tokenCeiling,
		maxRounds:      maxRounds,
		maxAutoReplies: maxAutoReplies,
		summaryPrompt:  summaryPrompt,
	}, nil
}

// Reset truncates the user's conversation back to the seed set.
func (c *Controller) Reset(userID string) {
	c.store.Reset(userID)
}

// Respond processes one user message to a final delivered answer. The
// answer text is returned after having been delivered through the live
// message; tool and delivery failures are contained per the retry and
// dispatch policies, and only contract violations or exhausted transients
// escape.
func (c *Controller) Respond(ctx context.Context, userID, text string, m Messenger) (string, error) {
	if userID == "" {
		return "", ErrMissingUser
	}
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}

	if est := c.store.TokenEstimate(userID); est > c.tokenCeiling {
		c.logger.Info("token budget exceeded, summarizing",
			"user", userID, "estimate", est, "ceiling", c.tokenCeiling)
		if err := c.summarize(ctx, userID, m); err != nil {
			return "", fmt.Errorf("summarize conversation: %w", err)
		}
	}

	if err := c.store.Append(userID, convo.RoleUser, text, convo.KindManual); err != nil {
		return "", err
	}

	if c.style == StyleTags {
		return c.tagLoop(ctx, userID, m)
	}
	return c.manifestLoop(ctx, userID, m)
}

// manifestLoop runs completion rounds with tools advertised through the
// manifest, dispatching structured tool calls until the model produces
// final text or the round ceiling is hit.
func (c *Controller) manifestLoop(ctx context.Context, userID string, m Messenger) (string, error) {
	defs := c.registry.Defs()

	for round := 1; round <= c.maxRounds; round++ {
		out, err := c.round(ctx, userID, defs, m)
		if err != nil {
			return "", err
		}

		if out.ToolCall == nil {
			if out.Text == "" {
				return "", ErrEmptyAnswer
			}
			if err := c.store.Append(userID, convo.RoleAssistant, out.Text, convo.KindManual); err != nil {
				return "", err
			}
			return out.Text, nil
		}

		call := out.ToolCall
		record := fmt.Sprintf("%s(%s)", call.Name, call.Arguments)
		if err := c.store.Append(userID, convo.RoleAssistant, record, convo.KindManual); err != nil {
			return "", err
		}
		res := c.registry.Dispatch(ctx, tool.Invocation{Name: call.Name, Arguments: call.Arguments})
		if err := c.store.Append(userID, convo.RoleAssistant, res.Text, convo.KindAuto); err != nil {
			return "", err
		}
		c.logger.Debug("tool round completed",
			"user", userID, "round", round, "tool", call.Name, "unknown", res.Unknown)
	}

	return c.runaway(ctx, userID, m)
}

// tagLoop runs completion rounds without a manifest, scanning each reply
// for inline tool directives until one contains none or the consecutive
// automated-reply ceiling is hit.
func (c *Controller) tagLoop(ctx context.Context, userID string, m Messenger) (string, error) {
	for auto := 0; ; {
		out, err := c.round(ctx, userID, nil, m)
		if err != nil {
			return "", err
		}

		text := out.Text
		if out.ToolCall != nil {
			// The endpoint emitted a structured call despite no manifest
			// being advertised. Fold it into text form so the scan path
			// still services it.
			text = fmt.Sprintf("%s(%s)", out.ToolCall.Name, out.ToolCall.Arguments)
		}
		if text == "" {
			return "", ErrEmptyAnswer
		}
		if err := c.store.Append(userID, convo.RoleAssistant, text, convo.KindManual); err != nil {
			return "", err
		}

		inv, res, ok := c.registry.Scan(ctx, text)
		if !ok {
			return text, nil
		}
		if err := c.store.Append(userID, convo.RoleAssistant, res.Text, convo.KindAuto); err != nil {
			return "", err
		}
		auto++
		c.logger.Debug("inline tool serviced", "user", userID, "tool", inv.Name, "auto", auto)
		if auto >= c.maxAutoReplies {
			return c.runaway(ctx, userID, m)
		}
	}
}

// round drives one streamed completion through the aggregator, recording
// the outcome on the circuit breaker.
func (c *Controller) round(ctx context.Context, userID string, defs []completion.ToolDef, m Messenger) (*stream.Outcome, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, err
	}

	s, err := c.streamer.Stream(ctx, completion.Request{
		Turns: c.store.History(userID),
		Tools: defs,
	})
	if err != nil {
		c.breaker.Failure()
		return nil, fmt.Errorf("open completion stream: %w", err)
	}

	out, err := c.agg.Run(ctx, s, m)
	if err != nil {
		c.breaker.Failure()
		return nil, err
	}
	c.breaker.Success()
	return out, nil
}

// summarize replaces the full non-seed history with one model-generated
// condensation. It is a single streamed round with no tools, and it must
// run to completion: the truncation it performs is what makes room for the
// message that triggered it.
func (c *Controller) summarize(ctx context.Context, userID string, m Messenger) error {
	turns := append(c.store.History(userID), convo.Turn{
		Role:    convo.RoleUser,
		Content: c.summaryPrompt,
		Kind:    convo.KindAuto,
	})

	if err := c.breaker.Allow(); err != nil {
		return err
	}
	s, err := c.streamer.Stream(ctx, completion.Request{Turns: turns})
	if err != nil {
		c.breaker.Failure()
		return fmt.Errorf("open completion stream: %w", err)
	}
	out, err := c.agg.Run(ctx, s, m)
	if err != nil {
		c.breaker.Failure()
		return err
	}
	c.breaker.Success()

	if out.ToolCall != nil || out.Text == "" {
		return ErrEmptyAnswer
	}

	c.store.Reset(userID)
	return c.store.Append(userID, convo.RoleAssistant, out.Text, convo.KindAuto)
}

// runaway terminates a loop that hit its ceiling with an explicit
// user-visible notice instead of silence.
func (c *Controller) runaway(ctx context.Context, userID string, m Messenger) (string, error) {
	c.logger.Warn("round ceiling reached without final answer", "user", userID)
	if err := c.store.Append(userID, convo.RoleAssistant, RunawayNotice, convo.KindManual); err != nil {
		return "", err
	}
	if err := m.Send(ctx, RunawayNotice); err != nil {
		c.logger.Warn("stop notice delivery failed", "user", userID, "error", err)
	}
	return RunawayNotice, nil
}
