package chat

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/npezzotti/brandchat/internal/database"
	"github.com/npezzotti/brandchat/internal/stats"
	"github.com/teris-io/shortid"
)

const (
	DefaultPageSize       = 50
	MaxPageSize           = 100
	MaxContentLength      = 4000
	MaxClientMessageIdLen = 64

	// createAttempts bounds how often a lost creation race is re-resolved
	// before giving up.
	createAttempts = 3
)

type Options struct {
	// RequireParticipant rejects reads and writes from principals that are
	// neither the user nor the brand of the conversation.
	RequireParticipant bool
	DefaultPageSize    int
	MaxPageSize        int
}

// Service implements conversation resolution, the message log and read
// tracking on top of a BrandChatRepository. It holds no per-request state
// and is safe for concurrent use.
type Service struct {
	log                *log.Logger
	db                 database.BrandChatRepository
	stats              stats.StatsProvider
	newId              func() (string, error)
	requireParticipant bool
	defaultPageSize    int
	maxPageSize        int
}

func NewService(logger *log.Logger, db database.BrandChatRepository, statsProvider stats.StatsProvider, opts Options) *Service {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = MaxPageSize
	}
	if opts.DefaultPageSize > opts.MaxPageSize {
		opts.DefaultPageSize = opts.MaxPageSize
	}
	if logger == nil {
		logger = log.Default()
	}

	s := &Service{
		log:                logger,
		db:                 db,
		stats:              statsProvider,
		newId:              shortid.Generate,
		requireParticipant: opts.RequireParticipant,
		defaultPageSize:    opts.DefaultPageSize,
		maxPageSize:        opts.MaxPageSize,
	}

	if s.stats != nil {
		for _, name := range []string{
			stats.ConversationsCreated,
			stats.ConversationsResolved,
			stats.MessagesPosted,
			stats.MessagesReplayed,
			stats.MessageFetches,
		} {
			s.stats.RegisterMetric(name)
		}
	}

	return s
}

func (s *Service) incr(name string) {
	if s.stats != nil {
		s.stats.Incr(name)
	}
}

// GetOrCreateConversation returns the conversation between userID and
// brandID, creating it on first contact. created reports whether this call
// inserted the row. Concurrent callers for the same pair all resolve to the
// same conversation: a caller that loses the insert race re-reads the row
// the winner committed.
func (s *Service) GetOrCreateConversation(ctx context.Context, userID, brandID string) (database.Conversation, bool, error) {
	userID, brandID = strings.TrimSpace(userID), strings.TrimSpace(brandID)
	if userID == "" || brandID == "" {
		return database.Conversation{}, false, badRequest("missing userId or brandId")
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		conv, err := s.db.GetConversationByPair(ctx, userID, brandID)
		if err == nil {
			s.incr(stats.ConversationsResolved)
			return conv, false, nil
		}
		if !errors.Is(err, database.ErrNotFound) {
			return database.Conversation{}, false, internal("get conversation", err)
		}

		id, err := s.newId()
		if err != nil {
			return database.Conversation{}, false, internal("generate conversation id", err)
		}

		conv, err = s.db.CreateConversation(ctx, database.CreateConversationParams{
			Id:      id,
			UserId:  userID,
			BrandId: brandID,
		})
		switch {
		case err == nil:
			s.incr(stats.ConversationsCreated)
			return conv, true, nil
		case errors.Is(err, database.ErrConflict):
			s.log.Printf("conversation %s/%s: create conflict, re-resolving: %v", userID, brandID, err)
		case errors.Is(err, database.ErrReferenceNotFound):
			return database.Conversation{}, false, notFound("user or brand not found")
		default:
			return database.Conversation{}, false, internal("create conversation", err)
		}
	}

	return database.Conversation{}, false, &Error{Kind: Conflict, Message: "conversation could not be resolved"}
}

// OpenConversation resolves the conversation between the principal's user
// and brandID. Only the user party opens conversations.
func (s *Service) OpenConversation(ctx context.Context, p Principal, brandID string) (database.Conversation, bool, error) {
	if p.UserID == "" {
		return database.Conversation{}, false, ErrUnauthorized
	}
	if p.Role == database.SenderBrand {
		return database.Conversation{}, false, &Error{Kind: Forbidden, Message: "brands cannot open conversations"}
	}

	return s.GetOrCreateConversation(ctx, p.UserID, brandID)
}

// conversationFor loads a conversation and checks that p may access it.
func (s *Service) conversationFor(ctx context.Context, p Principal, conversationID string) (database.Conversation, error) {
	if strings.TrimSpace(conversationID) == "" {
		return database.Conversation{}, badRequest("missing conversation id")
	}

	conv, err := s.db.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Conversation{}, notFound("conversation not found")
		}
		return database.Conversation{}, internal("get conversation", err)
	}

	if s.requireParticipant && !p.participates(conv) {
		return database.Conversation{}, &Error{Kind: Forbidden, Message: "not a participant of this conversation"}
	}

	return conv, nil
}

func (s *Service) GetConversation(ctx context.Context, p Principal, conversationID string) (database.Conversation, error) {
	if !p.Valid() {
		return database.Conversation{}, ErrUnauthorized
	}

	return s.conversationFor(ctx, p, conversationID)
}

// ListConversations returns the principal's inbox, most recently active first.
func (s *Service) ListConversations(ctx context.Context, p Principal) ([]database.ConversationSummary, error) {
	if !p.Valid() {
		return nil, ErrUnauthorized
	}

	var (
		convs []database.ConversationSummary
		err   error
	)
	if p.Role == database.SenderBrand {
		convs, err = s.db.ListConversationsForBrand(ctx, p.BrandID)
	} else {
		convs, err = s.db.ListConversationsForUser(ctx, p.UserID)
	}
	if err != nil {
		return nil, internal("list conversations", err)
	}

	return convs, nil
}

// PostMessage appends content to the conversation as the principal's party.
// A non-empty clientMessageID makes the call idempotent: repeating it
// returns the originally stored message with replayed set.
func (s *Service) PostMessage(ctx context.Context, p Principal, conversationID, content, clientMessageID string) (database.Message, bool, error) {
	if p.UserID == "" {
		return database.Message{}, false, badRequest("missing sender")
	}
	if !p.Valid() {
		return database.Message{}, false, badRequest("invalid sender")
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return database.Message{}, false, badRequest("missing content")
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return database.Message{}, false, badRequest("content too long")
	}

	var clientID *string
	if id := strings.TrimSpace(clientMessageID); id != "" {
		if len(id) > MaxClientMessageIdLen {
			return database.Message{}, false, badRequest("client message id too long")
		}
		clientID = &id
	}

	if _, err := s.conversationFor(ctx, p, conversationID); err != nil {
		return database.Message{}, false, err
	}

	msg, replayed, err := s.db.CreateMessage(ctx, database.CreateMessageParams{
		ConversationId:  conversationID,
		SenderId:        p.UserID,
		SenderType:      p.Role,
		Content:         content,
		ClientMessageId: clientID,
	})
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Message{}, false, notFound("conversation not found")
		}
		return database.Message{}, false, internal("create message", err)
	}

	if replayed {
		s.incr(stats.MessagesReplayed)
	} else {
		s.incr(stats.MessagesPosted)
	}

	return msg, replayed, nil
}

// ParseCursor converts an opaque cursor into a message id. The empty
// cursor is zero, meaning the start of the log.
func ParseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}

	id, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid cursor")
	}
	return id, nil
}

// FormatCursor is the inverse of ParseCursor.
func FormatCursor(messageID int64) string {
	return strconv.FormatInt(messageID, 10)
}

// ListMessages returns up to limit messages strictly after cursor, oldest
// first. A zero limit selects the default page size. Every successful
// listing also advances the principal's read marker.
func (s *Service) ListMessages(ctx context.Context, p Principal, conversationID string, limit int, cursor string) ([]database.Message, error) {
	if p.UserID == "" {
		return nil, ErrUnauthorized
	}
	if !p.Valid() {
		return nil, badRequest("invalid sender")
	}

	if limit == 0 {
		limit = s.defaultPageSize
	}
	if limit < 0 || limit > s.maxPageSize {
		return nil, badRequest("limit must be between 1 and " + strconv.Itoa(s.maxPageSize))
	}

	cursorID, err := ParseCursor(cursor)
	if err != nil {
		return nil, err
	}

	if _, err := s.conversationFor(ctx, p, conversationID); err != nil {
		return nil, err
	}

	msgs, err := s.db.ListMessagesAndMarkRead(ctx, database.ListMessagesParams{
		ConversationId: conversationID,
		Reader:         p.Role,
		Limit:          limit,
		Cursor:         cursorID,
	})
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			return nil, notFound("conversation not found")
		case errors.Is(err, database.ErrCursorNotFound):
			return nil, badRequest("invalid cursor")
		default:
			return nil, internal("list messages", err)
		}
	}

	s.incr(stats.MessageFetches)
	return msgs, nil
}

// MarkRead moves the principal's read marker to now. Repeating it is harmless.
func (s *Service) MarkRead(ctx context.Context, p Principal, conversationID string) (time.Time, error) {
	if !p.Valid() {
		return time.Time{}, ErrUnauthorized
	}

	if _, err := s.conversationFor(ctx, p, conversationID); err != nil {
		return time.Time{}, err
	}

	readAt, err := s.db.MarkRead(ctx, conversationID, p.Role)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return time.Time{}, notFound("conversation not found")
		}
		return time.Time{}, internal("mark read", err)
	}

	return readAt, nil
}
