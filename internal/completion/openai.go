package completion

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/parley0/parley/internal/convo"
	"github.com/parley0/parley/internal/log"
)

// OpenAIConfig configures the OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey  string // required
	Model   string // required, e.g. "gpt-4o"
	BaseURL string // optional override for compatible endpoints
	Logger  log.Logger

	// Limiter applies proactive rate limiting before each call.
	// Nil uses a default of 10 req/s with a burst of 30.
	Limiter *rate.Limiter
}

// OpenAIClient is a Streamer backed by the OpenAI chat-completions API
// (or any compatible endpoint via BaseURL).
type OpenAIClient struct {
	api     *openai.Client
	model   string
	limiter *rate.Limiter
	logger  log.Logger
}

// NewOpenAI creates an OpenAI-backed Streamer.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}

	return &OpenAIClient{
		api:     openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		limiter: limiter,
		logger:  cfg.Logger,
	}, nil
}

// Stream opens a streaming completion for the given request.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) (Stream, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	apiReq := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: toMessages(req.Turns),
		Stream:   true,
	}
	if len(req.Tools) > 0 {
		apiReq.Functions = toFunctions(req.Tools)
		apiReq.FunctionCall = "auto"
	}

	c.logger.Debug("opening completion stream",
		"model", c.model,
		"turns", len(req.Turns),
		"tools", len(req.Tools))

	s, err := c.api.CreateChatCompletionStream(ctx, apiReq)
	if err != nil {
		return nil, fmt.Errorf("create completion stream: %w", err)
	}
	return &openaiStream{inner: s}, nil
}

// openaiStream adapts the vendor stream to the Chunk model.
type openaiStream struct {
	inner *openai.ChatCompletionStream
}

func (s *openaiStream) Recv(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}

	resp, err := s.inner.Recv()
	if err != nil {
		return Chunk{}, err // io.EOF at normal end of stream
	}
	if len(resp.Choices) == 0 {
		return Chunk{}, nil
	}

	choice := resp.Choices[0]
	chunk := Chunk{
		Content: choice.Delta.Content,
		Finish:  toFinishReason(choice.FinishReason),
	}
	if fc := choice.Delta.FunctionCall; fc != nil {
		chunk.ToolName = fc.Name
		chunk.ToolArgs = fc.Arguments
	}
	return chunk, nil
}

func (s *openaiStream) Close() error {
	return s.inner.Close()
}

func toMessages(turns []convo.Turn) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    toRole(t.Role),
			Content: t.Content,
		})
	}
	return msgs
}

func toRole(r convo.Role) string {
	switch r {
	case convo.RoleSystem:
		return openai.ChatMessageRoleSystem
	case convo.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

func toFunctions(defs []ToolDef) []openai.FunctionDefinition {
	fns := make([]openai.FunctionDefinition, 0, len(defs))
	for _, d := range defs {
		fns = append(fns, openai.FunctionDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		})
	}
	return fns
}

func toFinishReason(r openai.FinishReason) FinishReason {
	switch r {
	case "":
		return FinishNone
	case openai.FinishReasonFunctionCall, openai.FinishReasonToolCalls:
		return FinishToolCall
	case openai.FinishReasonLength:
		return FinishLength
	case openai.FinishReasonStop:
		return FinishStop
	default:
		return FinishReason(r)
	}
}
