// Package chat runs conversation turns: it persists the user message, builds
// the memory-enriched model request, streams the completion, persists the
// answer, and hands the exchange to the background workers.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/recall/pkg/completion"
	"github.com/papercomputeco/recall/pkg/contextwindow"
	"github.com/papercomputeco/recall/pkg/conversation"
	"github.com/papercomputeco/recall/pkg/llm"
	"github.com/papercomputeco/recall/pkg/prompt"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/worker"
)

// DefaultTemperature is the sampling temperature when none is configured.
const DefaultTemperature = 0.7

// TurnState is the position of a turn in its lifecycle.
type TurnState string

const (
	StateIdle                     TurnState = "idle"
	StateAwaitingUserPersist      TurnState = "awaiting_user_persist"
	StateAwaitingCompletion       TurnState = "awaiting_completion"
	StateAwaitingAssistantPersist TurnState = "awaiting_assistant_persist"
	StateFailed                   TurnState = "failed"
)

// StreamSink receives the assistant text as it is generated. Returning an
// error aborts the turn.
type StreamSink interface {
	OnDelta(text string) error
}

// SinkFunc adapts a function to a StreamSink.
type SinkFunc func(text string) error

func (f SinkFunc) OnDelta(text string) error { return f(text) }

// PromptBuilder builds the system prompt for a turn.
type PromptBuilder interface {
	BuildSystemPrompt(ctx context.Context, basePrompt, userID, query string) string
}

// Enqueuer accepts background jobs without blocking.
type Enqueuer interface {
	Enqueue(job worker.Job) bool
}

// TurnRequest is one user message sent to a conversation.
type TurnRequest struct {
	OwnerID        string
	ConversationID string
	Message        conversation.Message
}

// TurnResult describes a finished, or failed, turn.
type TurnResult struct {
	State            TurnState
	ConversationID   string
	Title            string
	UserMessage      *conversation.Message
	AssistantMessage *conversation.Message
	Response         *llm.ChatResponse
}

// Config configures an Orchestrator.
type Config struct {
	Store    storage.Driver
	Provider completion.Provider

	// Enricher builds the system prompt. Nil sends the base prompt as is.
	Enricher PromptBuilder

	// Prompt supplies the base system prompt. Defaults to prompt.Static("").
	Prompt prompt.Source

	// Workers runs the memory commit for each finished turn. Optional.
	Workers Enqueuer

	Model string

	// Temperature defaults to DefaultTemperature when nil.
	Temperature *float64

	// MaxContextMessages bounds the non-system history sent to the model.
	// Defaults to contextwindow.DefaultMaxMessages.
	MaxContextMessages int

	Logger *slog.Logger
}

// Orchestrator runs turns. It is safe for concurrent use.
type Orchestrator struct {
	store       storage.Driver
	provider    completion.Provider
	enricher    PromptBuilder
	prompt      prompt.Source
	workers     Enqueuer
	model       string
	temperature float64
	maxContext  int
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(c Config) (*Orchestrator, error) {
	if c.Store == nil {
		return nil, errors.New("message store is required")
	}
	if c.Provider == nil {
		return nil, errors.New("completion provider is required")
	}

	o := &Orchestrator{
		store:       c.Store,
		provider:    c.Provider,
		enricher:    c.Enricher,
		prompt:      c.Prompt,
		workers:     c.Workers,
		model:       c.Model,
		temperature: DefaultTemperature,
		maxContext:  c.MaxContextMessages,
		logger:      c.Logger,
	}

	if c.Temperature != nil {
		o.temperature = *c.Temperature
	}
	if o.prompt == nil {
		o.prompt = prompt.Static("")
	}
	if o.maxContext == 0 {
		o.maxContext = contextwindow.DefaultMaxMessages
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "chat")

	return o, nil
}

// Store returns the message store the orchestrator writes to.
func (o *Orchestrator) Store() storage.Driver {
	return o.store
}

// SendTurn persists the user message and streams the assistant answer to
// sink. On failure after the user message was stored, the message stays in
// the conversation so the caller can Regenerate without resubmitting.
func (o *Orchestrator) SendTurn(ctx context.Context, req TurnRequest, sink StreamSink) (*TurnResult, error) {
	const op = "chat.SendTurn"

	result := &TurnResult{State: StateIdle, ConversationID: req.ConversationID}

	msg := req.Message.Clone()
	msg.Role = conversation.RoleUser
	if msg.IsEmpty() {
		return o.fail(result, validationError(op, "message has no text and no attachments"))
	}
	msg.Normalize()

	o.transition(result, StateAwaitingUserPersist)
	appended, err := o.store.AppendMessages(ctx, req.ConversationID, req.OwnerID, []conversation.Message{msg})
	if err != nil {
		return o.fail(result, wrap(op, fmt.Errorf("persisting user message: %w", err)))
	}

	conv := appended.Conversation
	user, idx := storedUserMessage(appended, msg)
	result.UserMessage = user
	result.Title = conv.Title

	// A retried turn that was already answered replays the stored answer.
	if len(appended.Appended) == 0 && idx >= 0 && idx+1 < len(conv.Messages) &&
		conv.Messages[idx+1].Role == conversation.RoleAssistant {
		return o.replay(op, conv.Messages[idx+1], sink, result)
	}

	if conv.HasDefaultTitle() {
		title := conversation.GenerateTitle(user.Text())
		if title != conversation.DefaultTitle {
			if err := o.store.SetTitle(ctx, conv.ID, req.OwnerID, title); err != nil {
				return o.fail(result, wrap(op, fmt.Errorf("setting title: %w", err)))
			}
			conv.Title = title
			result.Title = title
		}
	}

	return o.complete(ctx, op, conv, req.OwnerID, user, sink, result)
}

// Regenerate streams a new assistant answer for a conversation whose last
// message is a user message.
func (o *Orchestrator) Regenerate(ctx context.Context, ownerID, conversationID string, sink StreamSink) (*TurnResult, error) {
	const op = "chat.Regenerate"

	result := &TurnResult{State: StateIdle, ConversationID: conversationID}

	conv, err := o.store.GetConversation(ctx, conversationID, ownerID)
	if err != nil {
		return o.fail(result, wrap(op, err))
	}
	result.Title = conv.Title

	if len(conv.Messages) == 0 || conv.Messages[len(conv.Messages)-1].Role != conversation.RoleUser {
		return o.fail(result, validationError(op, "last message is not a user message"))
	}

	user := conv.Messages[len(conv.Messages)-1].Clone()
	result.UserMessage = &user

	return o.complete(ctx, op, conv, ownerID, &user, sink, result)
}

func (o *Orchestrator) complete(
	ctx context.Context,
	op string,
	conv *conversation.Conversation,
	ownerID string,
	user *conversation.Message,
	sink StreamSink,
	result *TurnResult,
) (*TurnResult, error) {
	o.transition(result, StateAwaitingCompletion)

	req := o.buildRequest(ctx, ownerID, conv.Messages)

	var (
		acc     completion.Accumulator
		sinkErr error
	)
	resp, err := o.provider.Stream(ctx, req, func(chunk llm.StreamChunk) error {
		acc.Add(chunk)
		if sink == nil || chunk.Delta == "" {
			return nil
		}
		if err := sink.OnDelta(chunk.Delta); err != nil {
			sinkErr = err
			return err
		}
		return nil
	})
	switch {
	case sinkErr != nil:
		return o.fail(result, fmt.Errorf("%s: writing stream: %w", op, sinkErr))
	case err != nil && ctx.Err() != nil:
		return o.fail(result, wrap(op, ctx.Err()))
	case err != nil:
		if !errors.Is(err, completion.ErrUpstream) {
			err = fmt.Errorf("%w: %w", completion.ErrUpstream, err)
		}
		return o.fail(result, wrap(op, err))
	}

	text := ""
	if resp != nil {
		text = resp.Message.GetText()
	}
	if text == "" {
		text = acc.Text()
	}
	if resp == nil {
		resp = acc.Response()
	}
	result.Response = resp

	o.transition(result, StateAwaitingAssistantPersist)

	// The completion already finished: losing the client now must not lose
	// the answer.
	persistCtx := context.WithoutCancel(ctx)

	assistant := conversation.NewTextMessage(conversation.RoleAssistant, text)
	appended, err := o.store.AppendMessages(persistCtx, conv.ID, ownerID, []conversation.Message{assistant})
	if err != nil {
		return o.fail(result, wrap(op, fmt.Errorf("persisting assistant message: %w", err)))
	}
	if len(appended.Appended) > 0 {
		assistant = appended.Appended[0]
	}
	result.AssistantMessage = &assistant

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	o.enqueue(worker.Job{
		OwnerID:          ownerID,
		ConversationID:   conv.ID,
		UserMessage:      user.Clone(),
		AssistantMessage: assistant.Clone(),
		Model:            model,
		Provider:         o.provider.Name(),
	})

	o.transition(result, StateIdle)
	return result, nil
}

func (o *Orchestrator) replay(op string, assistant conversation.Message, sink StreamSink, result *TurnResult) (*TurnResult, error) {
	o.logger.Debug("replaying answered turn",
		"conversation_id", result.ConversationID,
		"message_id", assistant.ID,
	)

	if sink != nil {
		if err := sink.OnDelta(assistant.Text()); err != nil {
			return o.fail(result, fmt.Errorf("%s: writing stream: %w", op, err))
		}
	}

	assistant = assistant.Clone()
	result.AssistantMessage = &assistant
	result.State = StateIdle
	return result, nil
}

func (o *Orchestrator) buildRequest(ctx context.Context, ownerID string, history []conversation.Message) *llm.ChatRequest {
	msgs := contextwindow.Trim(ToLLMMessages(history), o.maxContext)

	system := o.prompt.Prompt()
	if o.enricher != nil {
		system = o.enricher.BuildSystemPrompt(ctx, system, ownerID, latestUserText(history))
	}

	temperature := o.temperature
	return &llm.ChatRequest{
		Model:       o.model,
		Messages:    append([]llm.Message{llm.NewTextMessage(llm.RoleSystem, system)}, msgs...),
		Temperature: &temperature,
	}
}

func (o *Orchestrator) enqueue(job worker.Job) {
	if o.workers == nil {
		return
	}
	if !o.workers.Enqueue(job) {
		o.logger.Warn("memory commit dropped", "conversation_id", job.ConversationID)
	}
}

func (o *Orchestrator) transition(result *TurnResult, state TurnState) {
	o.logger.Debug("turn state",
		"conversation_id", result.ConversationID,
		"from", result.State,
		"to", state,
	)
	result.State = state
}

func (o *Orchestrator) fail(result *TurnResult, err error) (*TurnResult, error) {
	o.logger.Debug("turn failed",
		"conversation_id", result.ConversationID,
		"state", result.State,
		"error", err,
	)
	result.State = StateFailed
	return result, err
}

// storedUserMessage returns the durable copy of msg and its index in the
// conversation. A retried message was deduplicated by the store, so it is
// looked up by id or client id.
func storedUserMessage(res *storage.AppendResult, msg conversation.Message) (*conversation.Message, int) {
	if len(res.Appended) > 0 {
		m := res.Appended[0]
		return &m, conversation.IndexOf(res.Conversation.Messages, m.ID)
	}

	msgs := res.Conversation.Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if (msg.ID != "" && msgs[i].ID == msg.ID) || (msg.ClientID != "" && msgs[i].ClientID == msg.ClientID) {
			m := msgs[i].Clone()
			return &m, i
		}
	}
	return &msg, -1
}
