// Package bot turns a user message into exactly one assistant message via
// an external text-generation call. The pipeline never raises an error to
// its caller: any failure becomes a fixed apology message, so a
// conversation is never left without a reply.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/nebulachat/nebula/internal/log"
	"github.com/nebulachat/nebula/internal/store"
)

// ApologyMessage is appended verbatim when the text-generation call fails.
const ApologyMessage = "Sorry, I encountered an error. Please try again."

// DefaultTimeout bounds a single text-generation call. The original design
// had no bound at all; an explicit timeout keeps a stuck call from pinning
// the pipeline goroutine forever.
const DefaultTimeout = 60 * time.Second

// ErrEmptyResponse indicates the model produced no usable text.
var ErrEmptyResponse = errors.New("model returned empty response")

// Responder generates a reply for a single-turn prompt.
type Responder interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GenkitResponder is the production Responder: a single user-role turn
// against the configured Genkit model, rate limited and bounded by a
// per-call timeout.
type GenkitResponder struct {
	g         *genkit.Genkit
	modelName string
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    log.Logger
}

// ResponderConfig contains the GenkitResponder's dependencies.
type ResponderConfig struct {
	Genkit    *genkit.Genkit
	ModelName string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	Logger    log.Logger

	// Timeout bounds each generation call. Zero uses DefaultTimeout.
	Timeout time.Duration

	// Limiter throttles calls to the external service. Nil installs a
	// default of 2 req/s with a burst of 5.
	Limiter *rate.Limiter
}

// NewGenkitResponder creates the production responder.
func NewGenkitResponder(cfg ResponderConfig) (*GenkitResponder, error) {
	if cfg.Genkit == nil {
		return nil, errors.New("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("model name is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = rate.NewLimiter(2, 5)
	}
	return &GenkitResponder{
		g:         cfg.Genkit,
		modelName: cfg.ModelName,
		timeout:   timeout,
		limiter:   limiter,
		logger:    cfg.Logger,
	}, nil
}

// Generate runs one single-turn completion.
func (r *GenkitResponder) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	resp, err := genkit.Generate(ctx, r.g,
		ai.WithModelName(r.modelName),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart(prompt))),
	)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Pipeline appends the assistant reply for a user message. It is invoked
// as a background task after the user message is committed; its completion
// is never awaited by the mutation that triggered it.
type Pipeline struct {
	responder Responder
	db        *store.DB
	logger    log.Logger
}

// NewPipeline creates a reply pipeline.
func NewPipeline(responder Responder, db *store.DB, logger log.Logger) (*Pipeline, error) {
	if responder == nil {
		return nil, errors.New("responder is required")
	}
	if db == nil {
		return nil, errors.New("data store is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Pipeline{responder: responder, db: db, logger: logger}, nil
}

// Reply generates and persists the assistant message for prompt. On any
// failure (call error, timeout, empty output) it persists the apology
// instead. The returned message is the one appended; the error is non-nil
// only when even the append failed (the conversation vanished, which the
// demo never does outside of Wipe).
//
// No retry, no backoff: one user message, one assistant message.
func (p *Pipeline) Reply(ctx context.Context, conversationID, prompt string) (store.Message, error) {
	content, err := p.responder.Generate(ctx, prompt)
	if err != nil {
		p.logger.Warn("text generation failed, replying with apology",
			"conversation_id", conversationID, "error", err)
		content = ApologyMessage
	}

	msg, err := p.db.AppendMessage(conversationID, store.RoleAssistant, content)
	if err != nil {
		p.logger.Error("appending assistant message", "conversation_id", conversationID, "error", err)
		return store.Message{}, err
	}

	p.logger.Debug("assistant reply persisted",
		"conversation_id", conversationID, "message_id", msg.ID)
	return msg, nil
}
