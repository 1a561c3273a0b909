package database

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

type MockBrandChatRepository struct {
	mock.Mock
}

func (m *MockBrandChatRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockBrandChatRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockBrandChatRepository) GetUserById(ctx context.Context, id string) (User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockBrandChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockBrandChatRepository) ListBrandsForMember(ctx context.Context, userId string) ([]Brand, error) {
	args := m.Called(ctx, userId)
	if brands, ok := args.Get(0).([]Brand); ok {
		return brands, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockBrandChatRepository) GetConversation(ctx context.Context, id string) (Conversation, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockBrandChatRepository) GetConversationByPair(ctx context.Context, userId, brandId string) (Conversation, error) {
	args := m.Called(ctx, userId, brandId)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockBrandChatRepository) CreateConversation(ctx context.Context, params CreateConversationParams) (Conversation, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Conversation), args.Error(1)
}
func (m *MockBrandChatRepository) ListConversationsForUser(ctx context.Context, userId string) ([]ConversationSummary, error) {
	args := m.Called(ctx, userId)
	if convs, ok := args.Get(0).([]ConversationSummary); ok {
		return convs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockBrandChatRepository) ListConversationsForBrand(ctx context.Context, brandId string) ([]ConversationSummary, error) {
	args := m.Called(ctx, brandId)
	if convs, ok := args.Get(0).([]ConversationSummary); ok {
		return convs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockBrandChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, bool, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(Message), args.Bool(1), args.Error(2)
}
func (m *MockBrandChatRepository) ListMessagesAndMarkRead(ctx context.Context, params ListMessagesParams) ([]Message, error) {
	args := m.Called(ctx, params)
	if msgs, ok := args.Get(0).([]Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockBrandChatRepository) MarkRead(ctx context.Context, conversationId string, party SenderType) (time.Time, error) {
	args := m.Called(ctx, conversationId, party)
	return args.Get(0).(time.Time), args.Error(1)
}
func (m *MockBrandChatRepository) ListActiveBanners(ctx context.Context) ([]Banner, error) {
	args := m.Called(ctx)
	if banners, ok := args.Get(0).([]Banner); ok {
		return banners, args.Error(1)
	}
	return nil, args.Error(1)
}
