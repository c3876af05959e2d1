package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-chat/internal/apperr"
	"github.com/capitalize-ai/persona-chat/internal/identity"
	"github.com/capitalize-ai/persona-chat/internal/llm"
	"github.com/capitalize-ai/persona-chat/internal/model"
	"github.com/capitalize-ai/persona-chat/internal/ratelimit"
	"github.com/capitalize-ai/persona-chat/pkg/logger"
	"github.com/capitalize-ai/persona-chat/pkg/metrics"
)

const maxTitleLength = 256

// ThreadDeps are the collaborators of ThreadService. Publisher may be nil.
type ThreadDeps struct {
	Store     ThreadStore
	Identity  IdentityResolver
	Limiter   RateLimiter
	Titles    TitleSummarizer
	LLM       llm.Client
	Tools     Toolbox
	Publisher DeltaPublisher
}

// ThreadService runs the thread actions and queries.
type ThreadService struct {
	store     ThreadStore
	identity  IdentityResolver
	limiter   RateLimiter
	titles    TitleSummarizer
	llm       llm.Client
	tools     Toolbox
	publisher DeltaPublisher
	cfg       Config
	logger    *logger.Logger
	now       func() time.Time
}

// NewThreadService creates a thread service.
func NewThreadService(deps ThreadDeps, cfg Config, log *logger.Logger) *ThreadService {
	return &ThreadService{
		store:     deps.Store,
		identity:  deps.Identity,
		limiter:   deps.Limiter,
		titles:    deps.Titles,
		llm:       deps.LLM,
		tools:     deps.Tools,
		publisher: deps.Publisher,
		cfg:       cfg.withDefaults(),
		logger:    log,
		now:       time.Now,
	}
}

// CreateThread starts a thread for an authenticated user and answers its first prompt.
func (s *ThreadService) CreateThread(ctx context.Context, creds identity.Credentials, prompt string) (*model.CreateThreadResponse, error) {
	ctx, span := tracer.Start(ctx, "ThreadService.CreateThread")
	defer span.End()

	if err := s.gate(ctx, ratelimit.CreateThread, creds); err != nil {
		return nil, fail(span, err)
	}
	user, err := s.identity.Authenticated(ctx, creds)
	if err != nil {
		return nil, fail(span, err)
	}

	thread, text, err := s.startThread(ctx, span, user, prompt)
	if err != nil {
		return nil, fail(span, err)
	}
	return &model.CreateThreadResponse{ThreadID: thread.ID, Text: text}, nil
}

// CreateAnonymousThread starts a thread for an anonymous visitor. The returned
// UserID is the id the client must send on later calls.
func (s *ThreadService) CreateAnonymousThread(ctx context.Context, creds identity.Credentials, prompt string) (*model.CreateThreadResponse, error) {
	ctx, span := tracer.Start(ctx, "ThreadService.CreateAnonymousThread")
	defer span.End()

	if err := s.gate(ctx, ratelimit.CreateThread, creds); err != nil {
		return nil, fail(span, err)
	}
	user, created, err := s.identity.Anonymous(ctx, creds)
	if err != nil {
		return nil, fail(span, err)
	}
	if created {
		s.logger.Info("anonymous user created", zap.String("user_id", user.ID))
	}

	thread, text, err := s.startThread(ctx, span, user, prompt)
	if err != nil {
		return nil, fail(span, err)
	}
	return &model.CreateThreadResponse{ThreadID: thread.ID, UserID: user.ID, Text: text}, nil
}

// ContinueThread answers a new prompt, or a prompt saved earlier with SaveMessage,
// in an authenticated user's thread.
func (s *ThreadService) ContinueThread(ctx context.Context, creds identity.Credentials, threadID string, req *model.ContinueThreadRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "ThreadService.ContinueThread", trace.WithAttributes(attribute.String("thread_id", threadID)))
	defer span.End()

	if err := s.gate(ctx, ratelimit.SendMessage, creds); err != nil {
		return "", fail(span, err)
	}
	user, err := s.identity.Authenticated(ctx, creds)
	if err != nil {
		return "", fail(span, err)
	}
	thread, err := s.ownedThread(ctx, threadID, user)
	if err != nil {
		return "", fail(span, err)
	}

	var prompt *model.Message
	if req.PromptMessageID != "" {
		prompt, err = s.store.GetMessage(ctx, thread.ID, req.PromptMessageID)
		if err != nil {
			return "", fail(span, apperr.Wrap(apperr.ContinueThreadFailed, "failed to load prompt message", err))
		}
		if prompt.Role != model.RoleUser {
			return "", fail(span, apperr.New(apperr.ContinueThreadFailed, "prompt message is not a user message"))
		}
	} else {
		prompt, err = s.saveUserMessage(ctx, thread, user, req.Prompt, apperr.ContinueThreadFailed)
		if err != nil {
			return "", fail(span, err)
		}
	}

	text, err := s.respond(ctx, thread, user, prompt, apperr.ContinueThreadFailed)
	if err != nil {
		return "", fail(span, err)
	}
	return text, nil
}

// ContinueAnonymousThread answers a prompt in an anonymous visitor's thread. Only
// an existing visitor can own a thread, so an unknown one is never created here.
func (s *ThreadService) ContinueAnonymousThread(ctx context.Context, creds identity.Credentials, threadID, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "ThreadService.ContinueAnonymousThread", trace.WithAttributes(attribute.String("thread_id", threadID)))
	defer span.End()

	if err := s.gate(ctx, ratelimit.SendMessage, creds); err != nil {
		return "", fail(span, err)
	}
	user, err := s.identity.LookupAnonymous(ctx, creds)
	if err != nil {
		return "", fail(span, err)
	}
	if user == nil {
		return "", fail(span, apperr.New(apperr.AiThreadNotFound, "thread not found"))
	}
	thread, err := s.ownedThread(ctx, threadID, user)
	if err != nil {
		return "", fail(span, err)
	}

	msg, err := s.saveUserMessage(ctx, thread, user, prompt, apperr.ContinueThreadFailed)
	if err != nil {
		return "", fail(span, err)
	}
	text, err := s.respond(ctx, thread, user, msg, apperr.ContinueThreadFailed)
	if err != nil {
		return "", fail(span, err)
	}
	return text, nil
}

// SaveMessage stores a prompt without answering it. The client then calls
// ContinueThread with the returned message id.
func (s *ThreadService) SaveMessage(ctx context.Context, creds identity.Credentials, threadID, prompt string) (string, error) {
	user, err := s.identity.Authenticated(ctx, creds)
	if err != nil {
		return "", err
	}
	thread, err := s.ownedThread(ctx, threadID, user)
	if err != nil {
		return "", err
	}
	msg, err := s.saveUserMessage(ctx, thread, user, prompt, apperr.SendAiMessageFailed)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

// GetThreads lists an authenticated user's threads, newest first.
func (s *ThreadService) GetThreads(ctx context.Context, creds identity.Credentials, opts model.PaginationOpts) (*model.Page[model.Thread], error) {
	user, err := s.identity.Authenticated(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s.listThreads(ctx, user.ID, opts)
}

// GetAnonymousThreads lists an anonymous visitor's threads. An unknown visitor
// has none.
func (s *ThreadService) GetAnonymousThreads(ctx context.Context, creds identity.Credentials, opts model.PaginationOpts) (*model.Page[model.Thread], error) {
	user, err := s.identity.LookupAnonymous(ctx, creds)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return &model.Page[model.Thread]{Page: []model.Thread{}, IsDone: true}, nil
	}
	return s.listThreads(ctx, user.ID, opts)
}

func (s *ThreadService) listThreads(ctx context.Context, userID string, opts model.PaginationOpts) (*model.Page[model.Thread], error) {
	page, err := s.store.ListThreadsByUser(ctx, userID, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.GetAiThreadsFailed, "failed to list threads", err)
	}
	return page, nil
}

// GetMessages returns a page of a thread's messages plus the requested stream state.
// Threads the caller does not own are reported as not found.
func (s *ThreadService) GetMessages(ctx context.Context, creds identity.Credentials, threadID string, opts model.PaginationOpts, args model.StreamArgs) (*model.ListMessagesResponse, error) {
	user, err := s.identity.Authenticated(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s.listMessages(ctx, threadID, user, opts, args)
}

// GetAnonymousMessages is GetMessages for anonymous visitors.
func (s *ThreadService) GetAnonymousMessages(ctx context.Context, creds identity.Credentials, threadID string, opts model.PaginationOpts, args model.StreamArgs) (*model.ListMessagesResponse, error) {
	user, err := s.identity.LookupAnonymous(ctx, creds)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.New(apperr.AiThreadNotFound, "thread not found")
	}
	return s.listMessages(ctx, threadID, user, opts, args)
}

func (s *ThreadService) listMessages(ctx context.Context, threadID string, user *model.User, opts model.PaginationOpts, args model.StreamArgs) (*model.ListMessagesResponse, error) {
	thread, err := s.ownedThread(ctx, threadID, user)
	if err != nil {
		return nil, err
	}

	page, err := s.store.ListMessages(ctx, thread.ID, opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.GetAiThreadMessagesFailed, "failed to list messages", err)
	}
	resp := &model.ListMessagesResponse{Page: *page}

	switch args.Kind {
	case model.StreamKindList:
		streaming, err := s.store.ListStreamingMessages(ctx, thread.ID)
		if err != nil {
			return nil, apperr.Wrap(apperr.GetAiThreadMessagesFailed, "failed to list streams", err)
		}
		resp.Streams = &model.SyncStreamsResult{Kind: model.StreamKindList, Messages: streaming}
	case model.StreamKindDeltas:
		deltas, err := s.store.ListDeltas(ctx, thread.ID, args.Cursors)
		if err != nil {
			return nil, apperr.Wrap(apperr.GetAiThreadMessagesFailed, "failed to list deltas", err)
		}
		resp.Streams = &model.SyncStreamsResult{Kind: model.StreamKindDeltas, Deltas: deltas}
	}
	return resp, nil
}

// UpdateThread renames or archives a thread.
func (s *ThreadService) UpdateThread(ctx context.Context, creds identity.Credentials, threadID string, req *model.UpdateThreadRequest) (*model.Thread, error) {
	user, err := s.identity.Authenticated(ctx, creds)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedThread(ctx, threadID, user); err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > maxTitleLength {
			return nil, apperr.New(apperr.InvalidArgument, "title must be 1 to 256 characters")
		}
		req.Title = &title
	}
	if req.Status != nil && *req.Status != model.ThreadActive && *req.Status != model.ThreadArchived {
		return nil, apperr.New(apperr.InvalidArgument, "status must be active or archived")
	}

	return s.store.UpdateThread(ctx, threadID, req)
}

// DeleteThread removes a thread and its messages.
func (s *ThreadService) DeleteThread(ctx context.Context, creds identity.Credentials, threadID string) error {
	user, err := s.identity.Authenticated(ctx, creds)
	if err != nil {
		return err
	}
	if _, err := s.ownedThread(ctx, threadID, user); err != nil {
		return err
	}
	if err := s.store.DeleteThread(ctx, threadID); err != nil {
		return err
	}
	s.logger.Info("thread deleted", zap.String("thread_id", threadID), zap.String("user_id", user.ID))
	return nil
}

// gate consumes one unit of operation for the caller. It runs before identity
// resolution so a rejected call writes nothing.
func (s *ThreadService) gate(ctx context.Context, operation string, creds identity.Credentials) error {
	return s.limiter.Check(ctx, operation, s.identity.RateKey(ctx, creds))
}

// startThread titles and creates a thread, then answers its first prompt. The
// thread is only created once a title exists.
func (s *ThreadService) startThread(ctx context.Context, span trace.Span, user *model.User, prompt string) (*model.Thread, string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, "", apperr.New(apperr.InvalidArgument, "prompt is required")
	}

	title, err := s.titles.Summarize(ctx, prompt)
	if err != nil {
		return nil, "", err
	}

	thread, err := s.store.CreateThread(ctx, user.ID, title)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.CreateThreadFailed, "failed to create thread", err)
	}
	span.SetAttributes(attribute.String("thread_id", thread.ID))
	metrics.ThreadsTotal.WithLabelValues(ownerKind(user)).Inc()
	s.logger.Info("thread created",
		zap.String("thread_id", thread.ID),
		zap.String("user_id", user.ID),
		zap.Bool("anonymous", user.IsAnonymous),
	)

	msg, err := s.saveUserMessage(ctx, thread, user, prompt, apperr.CreateThreadFailed)
	if err != nil {
		return thread, "", err
	}
	text, err := s.respond(ctx, thread, user, msg, apperr.GenerateAiTextFailed)
	if err != nil {
		return thread, "", err
	}
	return thread, text, nil
}

// ownedThread loads a thread and checks that user owns it. A thread owned by
// someone else is reported exactly like a missing one.
func (s *ThreadService) ownedThread(ctx context.Context, threadID string, user *model.User) (*model.Thread, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, apperr.Wrap(apperr.AiThreadNotFound, "thread not found", err)
	}
	if thread.UserID != user.ID {
		return nil, apperr.New(apperr.AiThreadNotFound, "thread not found")
	}
	return thread, nil
}

func (s *ThreadService) saveUserMessage(ctx context.Context, thread *model.Thread, user *model.User, prompt string, tag apperr.Tag) (*model.Message, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, apperr.New(apperr.InvalidArgument, "prompt is required")
	}
	msg := &model.Message{
		ThreadID: thread.ID,
		UserID:   user.ID,
		Role:     model.RoleUser,
		Content:  prompt,
		Parts:    []model.Part{{Type: model.PartText, Text: prompt}},
		Status:   model.MessageSuccess,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, apperr.Wrap(tag, "failed to save prompt", err)
	}
	metrics.MessagesTotal.WithLabelValues(string(model.RoleUser), string(model.MessageSuccess)).Inc()
	return msg, nil
}

func ownerKind(u *model.User) string {
	if u.IsAnonymous {
		return "anonymous"
	}
	return "authenticated"
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(apperr.TagOf(err)))
	return err
}
