// Package chat drives a generation session: it sends the conversation to the
// backend, reveals the streamed reply, runs function calls the model asks for
// and issues the follow-up request, persisting every finished message.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"tinychat/backend"
	"tinychat/config"
	"tinychat/directive"
	"tinychat/model"
	"tinychat/stream"
	"tinychat/typewriter"
)

// Backend is the part of the backend client a session needs
type Backend interface {
	OpenStream(ctx context.Context, req backend.ChatRequest) (io.ReadCloser, error)
	Complete(ctx context.Context, req backend.ChatRequest) (string, error)
	ExecuteFunction(ctx context.Context, name string, args map[string]any) (*backend.FunctionResponse, error)
}

// Store is the part of the conversation store a session needs
type Store interface {
	Load(id string) (*model.Conversation, error)
	Append(id string, msg model.Message) error
	TruncateFrom(id string, position int) error
	Rename(id, title string) error
}

// Options tune a session
type Options struct {
	Generation      backend.GenerationSettings
	TypewriterDelay time.Duration
	MaxFunctionHops int
	FunctionTimeout time.Duration
	TitleMaxTokens  int

	// OnTitle is called from a background goroutine once a title is stored
	OnTitle func(conversationID, title string)
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Generation:      backend.DefaultGenerationSettings(),
		TypewriterDelay: config.DefaultTypewriterDelay,
		MaxFunctionHops: config.DefaultMaxFunctionHops,
		FunctionTimeout: config.DefaultFunctionTimeout,
		TitleMaxTokens:  config.DefaultTitleMaxTokens,
	}
}

// OptionsFromConfig maps the resolved configuration onto session options
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Generation: backend.GenerationSettings{
			MaxTokens:    cfg.MaxTokens,
			Temperature:  cfg.Temperature,
			TopP:         cfg.TopP,
			TopK:         cfg.TopK,
			SystemPrompt: cfg.SystemPrompt,
		},
		TypewriterDelay: cfg.TypewriterDelay,
		MaxFunctionHops: cfg.MaxFunctionHops,
		FunctionTimeout: cfg.FunctionTimeout,
		TitleMaxTokens:  cfg.TitleMaxTokens,
	}
}

// Orchestrator runs generation sessions. At most one session per
// conversation is active at a time.
type Orchestrator struct {
	backend Backend
	store   Store
	opts    Options

	mu     sync.Mutex
	active map[string]context.CancelFunc

	titles sync.WaitGroup
}

type exchangeFunc func(ctx context.Context, sc SessionContext, display Display) Step

// New creates an Orchestrator. Zero hop, timeout and title settings fall back
// to their defaults.
func New(b Backend, s Store, opts Options) *Orchestrator {
	if opts.MaxFunctionHops <= 0 {
		opts.MaxFunctionHops = config.DefaultMaxFunctionHops
	}
	if opts.FunctionTimeout <= 0 {
		opts.FunctionTimeout = config.DefaultFunctionTimeout
	}
	if opts.TitleMaxTokens <= 0 {
		opts.TitleMaxTokens = config.DefaultTitleMaxTokens
	}
	return &Orchestrator{
		backend: b,
		store:   s,
		opts:    opts,
		active:  make(map[string]context.CancelFunc),
	}
}

// Submit appends a user message to the conversation and streams the reply,
// following function calls until the model answers in plain text.
func (o *Orchestrator) Submit(ctx context.Context, conversationID, text string, display Display) Outcome {
	return o.submit(ctx, conversationID, text, display, o.streamExchange)
}

// Complete is Submit without streaming: each reply arrives in one piece.
func (o *Orchestrator) Complete(ctx context.Context, conversationID, text string, display Display) Outcome {
	return o.submit(ctx, conversationID, text, display, o.completeExchange)
}

func (o *Orchestrator) submit(ctx context.Context, conversationID, text string, display Display, exchange exchangeFunc) Outcome {
	text = strings.TrimSpace(text)
	if text == "" {
		return rejected(ErrEmptyMessage)
	}
	if display == nil {
		display = NopDisplay{}
	}

	ctx, release, err := o.acquire(ctx, conversationID)
	if err != nil {
		return rejected(err)
	}
	defer release()

	conv, err := o.store.Load(conversationID)
	if err != nil {
		return rejected(fmt.Errorf("failed to load conversation: %w", err))
	}

	msg := model.NewUserMessage(text)
	if err := o.store.Append(conversationID, msg); err != nil {
		display.Error(errorText(FailureStorage, err))
		return Outcome{Kind: OutcomeFailed, Failure: FailureStorage, Err: err, State: StateFailed}
	}

	sc := SessionContext{
		ConversationID: conversationID,
		Title:          conv.Title,
		History:        conv.Messages,
		State:          StateIdle,
	}
	return o.run(ctx, sc.withMessage(msg), display, exchange)
}

// Regenerate drops everything after the newest user message and streams a
// new reply to it.
func (o *Orchestrator) Regenerate(ctx context.Context, conversationID string, display Display) Outcome {
	if display == nil {
		display = NopDisplay{}
	}

	ctx, release, err := o.acquire(ctx, conversationID)
	if err != nil {
		return rejected(err)
	}
	defer release()

	conv, err := o.store.Load(conversationID)
	if err != nil {
		return rejected(fmt.Errorf("failed to load conversation: %w", err))
	}

	idx := conv.LastUserIndex()
	if idx < 0 {
		return rejected(ErrNothingToRegenerate)
	}
	if idx+1 < len(conv.Messages) {
		if err := o.store.TruncateFrom(conversationID, idx+1); err != nil {
			display.Error(errorText(FailureStorage, err))
			return Outcome{Kind: OutcomeFailed, Failure: FailureStorage, Err: err, State: StateFailed}
		}
	}

	sc := SessionContext{
		ConversationID: conversationID,
		Title:          conv.Title,
		History:        conv.Messages[:idx+1:idx+1],
		State:          StateIdle,
	}
	return o.run(ctx, sc, display, o.streamExchange)
}

// Cancel aborts the active session of a conversation. It reports whether
// there was one.
func (o *Orchestrator) Cancel(conversationID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cancel, ok := o.active[conversationID]
	if ok {
		cancel()
	}
	return ok
}

// Active reports whether a session is running for the conversation
func (o *Orchestrator) Active(conversationID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[conversationID]
	return ok
}

// Wait blocks until background title generation has finished
func (o *Orchestrator) Wait() {
	o.titles.Wait()
}

func (o *Orchestrator) acquire(parent context.Context, conversationID string) (context.Context, func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.active[conversationID]; busy {
		return nil, nil, ErrSessionActive
	}

	ctx, cancel := context.WithCancel(parent)
	o.active[conversationID] = cancel

	release := func() {
		o.mu.Lock()
		delete(o.active, conversationID)
		o.mu.Unlock()
		cancel()
	}
	return ctx, release, nil
}

func (o *Orchestrator) run(ctx context.Context, sc SessionContext, display Display, exchange exchangeFunc) Outcome {
	for {
		step := exchange(ctx, sc, display)
		if step.Kind == StepStop {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Chat] Session %s ended: %s (state=%s, hops=%d)",
					sc.ConversationID, step.Outcome, step.Outcome.State, step.Outcome.Hops)
			}
			return step.Outcome
		}
		sc = step.Session
	}
}

// streamExchange sends one streaming request and reveals the reply
func (o *Orchestrator) streamExchange(ctx context.Context, sc SessionContext, display Display) Step {
	sc.State = StateRequesting

	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	body, err := o.backend.OpenStream(streamCtx, backend.NewChatRequest(sc.History, o.opts.Generation))
	if err != nil {
		if ctx.Err() != nil {
			return o.abort(sc, "", display)
		}
		return o.fail(sc, FailureTransport, err, display)
	}
	defer body.Close()
	unblock := context.AfterFunc(streamCtx, func() { body.Close() })
	defer unblock()

	sc.State = StateStreaming
	display.Begin()

	tw := typewriter.New(o.opts.TypewriterDelay)
	pumpDone := make(chan error, 1)
	go func() {
		defer tw.Close()
		pumpDone <- pump(body, tw)
	}()

	var (
		text      string
		detection directive.Detection
		found     bool
	)
	for partial := range tw.Reveal(streamCtx) {
		text = partial
		if strings.HasSuffix(partial, directive.EndTag) {
			if detection, found = directive.Detect(partial); found {
				break
			}
		}
		display.Update(directive.Visible(partial))
	}

	if found {
		dropped := tw.Discard()
		cancelStream()
		<-pumpDone
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] Function call %s detected, dropped %d queued fragments",
				detection.Call.Name, dropped)
		}
		return o.handleDirective(ctx, sc, text, detection, display)
	}

	if ctx.Err() != nil {
		<-pumpDone
		return o.abort(sc, text, display)
	}

	if err := <-pumpDone; err != nil {
		return o.fail(sc, FailureStream, err, display)
	}
	return o.finish(sc, text, display)
}

// pump reads the body and queues every delta content on the typewriter
func pump(body io.Reader, tw *typewriter.Typewriter) error {
	dec := stream.NewDecoder(body)
	var parser stream.Parser

	for !parser.Closed() {
		chunk, err := dec.Next()
		if err != nil {
			if dec.Done() {
				break
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}
		tw.Enqueue(parser.Feed(chunk)...)
	}

	if config.DebugLog != nil {
		fragments, skipped := parser.Stats()
		config.DebugLog.Printf("[Chat] Stream finished: %d fragments, %d skipped, closed=%v",
			fragments, skipped, parser.Closed())
	}
	return nil
}

// completeExchange sends one non-streaming request
func (o *Orchestrator) completeExchange(ctx context.Context, sc SessionContext, display Display) Step {
	sc.State = StateRequesting

	reply, err := o.backend.Complete(ctx, backend.NewChatRequest(sc.History, o.opts.Generation))
	if err != nil {
		if ctx.Err() != nil {
			return o.abort(sc, "", display)
		}
		if errors.Is(err, backend.ErrUnexpectedResponse) {
			return o.fail(sc, FailureStream, err, display)
		}
		return o.fail(sc, FailureTransport, err, display)
	}

	sc.State = StateStreaming
	display.Begin()
	if d, ok := directive.Detect(reply); ok {
		return o.handleDirective(ctx, sc, reply, d, display)
	}
	display.Update(reply)
	return o.finish(sc, reply, display)
}

// finish stores a plain-text reply and completes the session
func (o *Orchestrator) finish(sc SessionContext, text string, display Display) Step {
	final := strings.TrimSpace(text)
	if final == "" {
		return o.fail(sc, FailureStream, ErrEmptyResponse, display)
	}

	msg := model.NewAssistantMessage(final)
	if err := o.store.Append(sc.ConversationID, msg); err != nil {
		return o.fail(sc, FailureStorage, err, display)
	}
	sc = sc.withMessage(msg)
	sc.State = StateCompleted
	display.Done(final)

	o.maybeGenerateTitle(sc)
	return stop(sc, Outcome{Kind: OutcomeOK, Text: final})
}

// handleDirective stores the reply that asked for a function, runs the
// function, stores its result and sets up the follow-up request.
func (o *Orchestrator) handleDirective(ctx context.Context, sc SessionContext, text string, d directive.Detection, display Display) Step {
	msg := model.NewAssistantMessage(strings.TrimSpace(text))
	if err := o.store.Append(sc.ConversationID, msg); err != nil {
		return o.fail(sc, FailureStorage, err, display)
	}
	sc = sc.withMessage(msg)
	display.Update(d.Before)

	if sc.Hop >= o.opts.MaxFunctionHops {
		if config.DebugLog != nil {
			config.DebugLog.Printf("[Chat] Not running %s: limit of %d function calls reached",
				d.Call.Name, o.opts.MaxFunctionHops)
		}
		sc.State = StateCompleted
		display.Done(d.Before)
		o.maybeGenerateTitle(sc)
		return stop(sc, Outcome{Kind: OutcomeOK, Text: d.Before, HopLimitReached: true})
	}

	sc.State = StateFunctionPending
	display.FunctionCall(d.Call)

	result := o.callFunction(ctx, d.Call)
	if err := o.store.Append(sc.ConversationID, result); err != nil {
		return o.fail(sc, FailureStorage, err, display)
	}
	sc = sc.withMessage(result)
	sc.Hop++
	display.FunctionResult(result)

	if ctx.Err() != nil {
		sc.State = StateAborted
		return stop(sc, Outcome{Kind: OutcomeCancelled, Text: d.Before})
	}

	sc.State = StateRequesting
	return continueWith(sc)
}

// abort keeps whatever was revealed before the user cancelled
func (o *Orchestrator) abort(sc SessionContext, partial string, display Display) Step {
	sc.State = StateAborted
	visible := strings.TrimSpace(directive.Visible(partial))

	if visible != "" {
		msg := model.NewAssistantMessage(visible)
		if err := o.store.Append(sc.ConversationID, msg); err != nil {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Chat] Failed to save partial reply: %v", err)
			}
		} else {
			sc = sc.withMessage(msg)
		}
	}

	display.Done(visible)
	return stop(sc, Outcome{Kind: OutcomeCancelled, Text: visible})
}

func (o *Orchestrator) fail(sc SessionContext, kind FailureKind, err error, display Display) Step {
	sc.State = StateFailed
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Chat] Session %s failed (%s): %v", sc.ConversationID, kind, err)
	}
	display.Error(errorText(kind, err))
	return stop(sc, Outcome{Kind: OutcomeFailed, Failure: kind, Err: err})
}
