package app

import (
	"context"
	"errors"
	"strings"

	"docuchat/internal/model"
	"docuchat/internal/repository"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrMessageEmpty    = errors.New("message content is empty")
)

// QueryEngine answers a question against the user's documents.
type QueryEngine interface {
	Query(ctx context.Context, input QueryInput) (*QueryResult, error)
	QueryStream(ctx context.Context, input QueryInput, onChunk func(string) error) (*QueryResult, error)
}

// HistoryCache is the session history cache the chat layer reads through.
type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID uint) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, sessionID uint, messages []model.Message) error
	Invalidate(ctx context.Context, sessionID uint) error
	Forget(ctx context.Context, sessionID uint) error
	IsDirty(ctx context.Context, sessionID uint) (bool, error)
}

type ChatService struct {
	sessionRepo  *repository.SessionRepository
	messageRepo  *repository.MessageRepository
	historyCache HistoryCache
	engine       QueryEngine
}

func NewChatService(
	sessionRepo *repository.SessionRepository,
	messageRepo *repository.MessageRepository,
	historyCache HistoryCache,
	engine QueryEngine,
) *ChatService {
	return &ChatService{
		sessionRepo:  sessionRepo,
		messageRepo:  messageRepo,
		historyCache: historyCache,
		engine:       engine,
	}
}

type CreateSessionInput struct {
	UserID uint
	Title  string
}

type SendMessageInput struct {
	UserID      uint
	SessionID   uint
	Content     string
	DocumentIDs []uint
	Mode        string
	MaxSources  int
	Provider    string
	Model       string
}

type SendMessageResult struct {
	Messages []model.Message `json:"messages"`
	Query    *QueryResult    `json:"query"`
}

func (s *ChatService) CreateSession(input CreateSessionInput) (*model.Session, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "New Chat"
	}

	session := &model.Session{
		UserID: input.UserID,
		Title:  title,
	}
	if err := s.sessionRepo.Create(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *ChatService) ListSessions(userID uint) ([]model.Session, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sessionRepo.ListByUserID(userID)
}

// DeleteSession removes the session with its messages and cached history.
func (s *ChatService) DeleteSession(userID, sessionID uint) error {
	if userID == 0 || sessionID == 0 {
		return ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := s.messageRepo.DeleteBySessionID(sessionID); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteByIDAndUserID(sessionID, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.Forget(context.Background(), sessionID)
	}
	return nil
}

// SendMessage persists the question, answers it from the user's documents
// and persists the grounded answer with its sources.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	userMessage, err := s.beginExchange(ctx, input)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.Query(ctx, s.queryInput(input))
	if err != nil {
		return nil, err
	}
	assistantMessage, err := s.finishExchange(ctx, input, result)
	if err != nil {
		return nil, err
	}

	return &SendMessageResult{
		Messages: []model.Message{*userMessage, *assistantMessage},
		Query:    result,
	}, nil
}

// StreamMessage is SendMessage with the answer streamed through onChunk.
// The assistant message persists once the stream has completed.
func (s *ChatService) StreamMessage(ctx context.Context, input SendMessageInput, onChunk func(string) error) (*SendMessageResult, error) {
	userMessage, err := s.beginExchange(ctx, input)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.QueryStream(ctx, s.queryInput(input), onChunk)
	if err != nil {
		return nil, err
	}
	assistantMessage, err := s.finishExchange(ctx, input, result)
	if err != nil {
		return nil, err
	}

	return &SendMessageResult{
		Messages: []model.Message{*userMessage, *assistantMessage},
		Query:    result,
	}, nil
}

func (s *ChatService) GetHistory(userID, sessionID uint, limit int) ([]model.Message, error) {
	if userID == 0 || sessionID == 0 {
		return nil, ErrInvalidInput
	}

	session, err := s.sessionRepo.GetByIDAndUserID(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	ctx := context.Background()
	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, sessionID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, sessionID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListBySessionID(sessionID, limit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, sessionID); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, sessionID, messages)
		}
	}
	return messages, nil
}

// beginExchange validates the request, persists the user message and
// invalidates the cached history.
func (s *ChatService) beginExchange(ctx context.Context, input SendMessageInput) (*model.Message, error) {
	if input.UserID == 0 || input.SessionID == 0 {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	session, err := s.sessionRepo.GetByIDAndUserID(input.SessionID, input.UserID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	userMessage := &model.Message{
		SessionID: input.SessionID,
		UserID:    input.UserID,
		Role:      model.RoleUser,
		Content:   content,
	}
	if err := s.messageRepo.Create(userMessage); err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		_ = s.historyCache.Invalidate(ctx, input.SessionID)
	}
	return userMessage, nil
}

// finishExchange persists the assistant answer with its retrieval metadata.
func (s *ChatService) finishExchange(ctx context.Context, input SendMessageInput, result *QueryResult) (*model.Message, error) {
	assistantMessage := &model.Message{
		SessionID:  input.SessionID,
		UserID:     input.UserID,
		Role:       model.RoleAssistant,
		Content:    result.Answer,
		Provider:   result.Provider,
		Model:      result.Model,
		Mode:       result.Mode,
		Confidence: result.Confidence,
	}
	assistantMessage.SetSources(toMessageSources(result.Sources))
	if err := s.messageRepo.Create(assistantMessage); err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		_ = s.historyCache.Invalidate(ctx, input.SessionID)
	}
	return assistantMessage, nil
}

func (s *ChatService) queryInput(input SendMessageInput) QueryInput {
	return QueryInput{
		UserID:      input.UserID,
		Question:    strings.TrimSpace(input.Content),
		DocumentIDs: input.DocumentIDs,
		Mode:        input.Mode,
		MaxSources:  input.MaxSources,
		Provider:    input.Provider,
		Model:       input.Model,
	}
}

func toMessageSources(sources []QuerySource) []model.MessageSource {
	out := make([]model.MessageSource, 0, len(sources))
	for _, src := range sources {
		out = append(out, model.MessageSource{
			DocumentID:   src.DocumentID,
			DocumentName: src.DocumentName,
			Page:         src.Page,
			ChunkContent: src.Snippet,
			Relevance:    src.Relevance,
		})
	}
	return out
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
