package relay

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/parley0/parley/internal/log"
)

// Fixed transport-facing replies.
const (
	// NotWhitelisted is sent to callers outside the allowlist.
	NotWhitelisted = "Sorry, you are not whitelisted."

	// ResetReply acknowledges a reset command.
	ResetReply = "Ok"

	// DefaultGreeting answers the start command.
	DefaultGreeting = "Hello! Ask me anything. Use /reset to start a fresh conversation."

	// apology is sent when a turn fails after local retries are exhausted.
	apology = "Sorry, something went wrong. Please try again later."
)

// Commands recognized before a message enters the controller.
const (
	cmdStart = "/start"
	cmdReset = "/reset"
)

// HandlerConfig contains all required parameters for the Handler.
type HandlerConfig struct {
	Controller *Controller // required
	Logger     log.Logger  // required

	// AllowedUserIDs restricts who may talk to the relay. Empty allows
	// every caller.
	AllowedUserIDs []string

	// Greeting overrides DefaultGreeting.
	Greeting string
}

// Handler is the transport-facing entry point: access control, command
// handling, and hand-off of plain messages to the Controller.
type Handler struct {
	ctrl     *Controller
	logger   log.Logger
	allowed  map[string]struct{}
	greeting string
}

// NewHandler creates a Handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Controller == nil {
		return nil, errors.New("controller is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	var allowed map[string]struct{}
	if len(cfg.AllowedUserIDs) > 0 {
		allowed = make(map[string]struct{}, len(cfg.AllowedUserIDs))
		for _, id := range cfg.AllowedUserIDs {
			allowed[id] = struct{}{}
		}
	}
	greeting := cfg.Greeting
	if greeting == "" {
		greeting = DefaultGreeting
	}

	return &Handler{
		ctrl:     cfg.Controller,
		logger:   cfg.Logger,
		allowed:  allowed,
		greeting: greeting,
	}, nil
}

// Handle processes one incoming message. Unauthorized callers get the
// fixed rejection and no state is touched. Failures past the contained
// retry and dispatch policies are reported to the user as an apology and
// returned to the transport.
func (h *Handler) Handle(ctx context.Context, userID, text string, m Messenger) error {
	if userID == "" {
		return ErrMissingUser
	}

	logger := h.logger.With("user", userID, "request_id", uuid.NewString())

	if !h.isAllowed(userID) {
		logger.Info("rejected caller outside allowlist")
		return m.Send(ctx, NotWhitelisted)
	}

	switch strings.TrimSpace(text) {
	case "":
		return ErrEmptyMessage
	case cmdStart:
		return m.Send(ctx, h.greeting)
	case cmdReset:
		h.ctrl.Reset(userID)
		return m.Send(ctx, ResetReply)
	}

	if err := m.Typing(ctx); err != nil {
		logger.Debug("typing signal failed", "error", err)
	}

	if _, err := h.ctrl.Respond(ctx, userID, text, m); err != nil {
		logger.Error("turn failed", "error", err)
		if sendErr := m.Send(ctx, apology); sendErr != nil {
			logger.Warn("apology delivery failed", "error", sendErr)
		}
		return err
	}
	logger.Debug("turn completed")
	return nil
}

func (h *Handler) isAllowed(userID string) bool {
	if h.allowed == nil {
		return true
	}
	_, ok := h.allowed[userID]
	return ok
}
