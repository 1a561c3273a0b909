package database

import (
	"context"
	"time"
)

type BrandChatRepository interface {
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserById(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListBrandsForMember(ctx context.Context, userId string) ([]Brand, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	GetConversationByPair(ctx context.Context, userId, brandId string) (Conversation, error)
	CreateConversation(ctx context.Context, params CreateConversationParams) (Conversation, error)
	ListConversationsForUser(ctx context.Context, userId string) ([]ConversationSummary, error)
	ListConversationsForBrand(ctx context.Context, brandId string) ([]ConversationSummary, error)
	CreateMessage(ctx context.Context, params CreateMessageParams) (msg Message, replayed bool, err error)
	ListMessagesAndMarkRead(ctx context.Context, params ListMessagesParams) ([]Message, error)
	MarkRead(ctx context.Context, conversationId string, party SenderType) (time.Time, error)
	ListActiveBanners(ctx context.Context) ([]Banner, error)
}
