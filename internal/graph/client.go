// Package graph is the sync client: it simulates a GraphQL
// query/mutation/subscription API over the local data store and drives the
// bot response pipeline after each user message.
//
// A Client is bound to one user id, read from the session store at
// construction. It does not observe later session changes; construct a new
// client after sign-in/sign-out.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nebulachat/nebula/internal/auth"
	"github.com/nebulachat/nebula/internal/bot"
	"github.com/nebulachat/nebula/internal/log"
	"github.com/nebulachat/nebula/internal/store"
)

// Op identifies one operation of the closed set the client serves.
// String-matching dispatch is gone on purpose: an operation outside this
// set fails explicitly instead of resolving empty.
type Op string

// The supported operations. Values keep the original wire names.
const (
	OpListConversations  Op = "getChats"
	OpListMessages       Op = "getMessages"
	OpCreateConversation Op = "createChat"
	OpSendMessage        Op = "sendMessage"
)

// Sentinel errors for client operations.
var (
	// ErrNoSession indicates no active session existed at construction.
	ErrNoSession = errors.New("no active session")

	// ErrUnknownOperation indicates an operation outside the supported set,
	// or a mutation passed to Query (and vice versa).
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrMissingVariable indicates a required operation variable is absent.
	ErrMissingVariable = errors.New("missing variable")
)

// Vars carries operation variables.
type Vars struct {
	ConversationID string
	Content        string
}

// Result is an operation result. Only the fields relevant to the operation
// are populated.
type Result struct {
	Conversations []store.Conversation
	Messages      []store.Message
	Conversation  *store.Conversation
	Message       *store.Message
}

// Config contains the Client's dependencies.
type Config struct {
	Store    *store.DB
	Sessions *auth.Store
	Pipeline *bot.Pipeline
	Logger   log.Logger

	// BackgroundCtx outlives individual mutations: pipeline goroutines run
	// under it, not under the mutation's context. Nil uses
	// context.Background().
	BackgroundCtx context.Context //nolint:containedctx // App lifecycle context, not a request context

	// WG tracks pipeline goroutines for graceful shutdown.
	WG *sync.WaitGroup
}

// Client executes queries and mutations over the local data store and
// maintains push-style subscriptions. Safe for concurrent use.
type Client struct {
	db       *store.DB
	pipeline *bot.Pipeline
	logger   log.Logger
	userID   string

	bgCtx context.Context //nolint:containedctx // App lifecycle context, not a request context
	wg    *sync.WaitGroup

	mu        sync.Mutex
	subs      map[string]subscriber
	nextSubID uint64

	// Per-conversation completion chain. Each pipeline run waits for the
	// previous run on the same conversation, so assistant replies land in
	// the order the user messages were sent, not in model completion
	// order.
	convTail map[string]chan struct{}
}

// New creates a client bound to the current session's user id. Fails with
// ErrNoSession when no session is active.
func New(cfg Config) (*Client, error) {
	if cfg.Store == nil {
		return nil, errors.New("data store is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.WG == nil {
		return nil, errors.New("wait group is required")
	}

	session := cfg.Sessions.CurrentSession()
	if session == nil {
		return nil, ErrNoSession
	}

	bgCtx := cfg.BackgroundCtx
	if bgCtx == nil {
		bgCtx = context.Background()
	}

	return &Client{
		db:       cfg.Store,
		pipeline: cfg.Pipeline,
		logger:   cfg.Logger,
		userID:   session.UserID,
		bgCtx:    bgCtx,
		wg:       cfg.WG,
		subs:     make(map[string]subscriber),
		convTail: make(map[string]chan struct{}),
	}, nil
}

// UserID returns the user id the client was bound to at construction.
func (c *Client) UserID() string { return c.userID }

// Query executes a read operation.
func (c *Client) Query(_ context.Context, op Op, vars Vars) (*Result, error) {
	switch op {
	case OpListConversations:
		return &Result{Conversations: c.db.ConversationsByUser(c.userID)}, nil

	case OpListMessages:
		if vars.ConversationID == "" {
			return nil, fmt.Errorf("%w: conversation id", ErrMissingVariable)
		}
		return &Result{Messages: c.db.MessagesByConversation(vars.ConversationID)}, nil

	default:
		return nil, fmt.Errorf("%w: query %q", ErrUnknownOperation, op)
	}
}

// Mutate executes a write operation. Both collections are serialized to
// durable storage before Mutate returns.
//
// OpSendMessage resolves with the created user message and spawns the bot
// response pipeline as a background task: the assistant reply does not
// exist yet when Mutate returns; it arrives through the conversation's
// subscription.
func (c *Client) Mutate(_ context.Context, op Op, vars Vars) (*Result, error) {
	switch op {
	case OpCreateConversation:
		conv, err := c.db.CreateConversation(c.userID)
		if err != nil {
			return nil, err
		}
		return &Result{Conversation: &conv}, nil

	case OpSendMessage:
		if vars.ConversationID == "" {
			return nil, fmt.Errorf("%w: conversation id", ErrMissingVariable)
		}
		if vars.Content == "" {
			return nil, fmt.Errorf("%w: content", ErrMissingVariable)
		}
		msg, err := c.db.AppendMessage(vars.ConversationID, store.RoleUser, vars.Content)
		if err != nil {
			return nil, err
		}
		c.notify(vars.ConversationID)

		// The prompt is passed by value: the pipeline never re-reads the
		// conversation, so the committed write happens-before the call.
		// The queue ticket is taken here, while Mutate still holds the
		// send order.
		prev, done := c.enqueue(vars.ConversationID)
		c.wg.Add(1)
		go c.replyAsync(vars.ConversationID, vars.Content, prev, done)

		return &Result{Message: &msg}, nil

	default:
		return nil, fmt.Errorf("%w: mutation %q", ErrUnknownOperation, op)
	}
}

// replyAsync runs the pipeline for one user message and notifies the
// conversation's subscriber. Runs under the background context, after the
// previous run on the same conversation has finished.
func (c *Client) replyAsync(conversationID, prompt string, prev <-chan struct{}, done chan struct{}) {
	defer c.wg.Done()
	defer close(done)

	if prev != nil {
		<-prev
	}

	if _, err := c.pipeline.Reply(c.bgCtx, conversationID, prompt); err != nil {
		// Conversation vanished before the reply landed; nothing to notify.
		return
	}
	c.notify(conversationID)
}

// enqueue appends a ticket to the conversation's completion chain and
// returns the ticket of the run it must wait for.
func (c *Client) enqueue(conversationID string) (prev <-chan struct{}, done chan struct{}) {
	done = make(chan struct{})
	c.mu.Lock()
	if tail, ok := c.convTail[conversationID]; ok {
		prev = tail
	}
	c.convTail[conversationID] = done
	c.mu.Unlock()
	return prev, done
}
