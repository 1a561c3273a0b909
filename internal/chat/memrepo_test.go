package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/npezzotti/brandchat/internal/database"
)

// memRepository is an in-memory BrandChatRepository with the same
// uniqueness and ordering rules as the postgres schema.
type memRepository struct {
	mu       sync.Mutex
	users    map[string]database.User
	brands   map[string]database.Brand
	convs    map[string]database.Conversation
	messages []database.Message
	nextId   int64
	now      func() time.Time
}

var _ database.BrandChatRepository = (*memRepository)(nil)

func newMemRepository() *memRepository {
	return &memRepository{
		users:  make(map[string]database.User),
		brands: make(map[string]database.Brand),
		convs:  make(map[string]database.Conversation),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *memRepository) addUser(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id] = database.User{Id: id, EmailAddress: id + "@example.com", Name: "User " + id}
}

func (r *memRepository) addBrand(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.brands[id] = database.Brand{Id: id, Slug: id, Name: id}
}

func (r *memRepository) conversationCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.convs)
}

func (r *memRepository) Ping(ctx context.Context) error { return nil }

func (r *memRepository) CreateUser(ctx context.Context, params database.CreateUserParams) (database.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.EmailAddress == params.EmailAddress {
			return database.User{}, database.ErrConflict
		}
	}
	u := database.User{Id: params.Id, EmailAddress: params.EmailAddress, Name: params.Name, PasswordHash: params.PasswordHash}
	r.users[u.Id] = u
	return u, nil
}

func (r *memRepository) GetUserById(ctx context.Context, id string) (database.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return database.User{}, database.ErrNotFound
	}
	return u, nil
}

func (r *memRepository) GetUserByEmail(ctx context.Context, email string) (database.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.EmailAddress == email {
			return u, nil
		}
	}
	return database.User{}, database.ErrNotFound
}

func (r *memRepository) ListBrandsForMember(ctx context.Context, userId string) ([]database.Brand, error) {
	return nil, nil
}

func (r *memRepository) GetConversation(ctx context.Context, id string) (database.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return database.Conversation{}, database.ErrNotFound
	}
	return c, nil
}

func (r *memRepository) GetConversationByPair(ctx context.Context, userId, brandId string) (database.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.UserId == userId && c.BrandId == brandId {
			return c, nil
		}
	}
	return database.Conversation{}, database.ErrNotFound
}

func (r *memRepository) CreateConversation(ctx context.Context, params database.CreateConversationParams) (database.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[params.UserId]; !ok {
		return database.Conversation{}, database.ErrReferenceNotFound
	}
	if _, ok := r.brands[params.BrandId]; !ok {
		return database.Conversation{}, database.ErrReferenceNotFound
	}
	if _, ok := r.convs[params.Id]; ok {
		return database.Conversation{}, database.ErrConflict
	}
	for _, c := range r.convs {
		if c.UserId == params.UserId && c.BrandId == params.BrandId {
			return database.Conversation{}, database.ErrConflict
		}
	}

	now := r.now()
	c := database.Conversation{
		Id:        params.Id,
		UserId:    params.UserId,
		BrandId:   params.BrandId,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.convs[c.Id] = c
	return c, nil
}

func (r *memRepository) summaries(match func(database.Conversation) bool, party database.SenderType) []database.ConversationSummary {
	var out []database.ConversationSummary
	for _, c := range r.convs {
		if !match(c) {
			continue
		}
		var msgs []database.Message
		for _, m := range r.messages {
			if m.ConversationId == c.Id {
				msgs = append(msgs, m)
			}
		}
		out = append(out, database.ConversationSummary{
			Conversation: c,
			UnreadCount:  UnreadCount(msgs, c.ReadMarker(party), party),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case a == nil && b == nil:
			return out[i].CreatedAt.After(out[j].CreatedAt)
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return out
}

func (r *memRepository) ListConversationsForUser(ctx context.Context, userId string) ([]database.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaries(func(c database.Conversation) bool { return c.UserId == userId }, database.SenderUser), nil
}

func (r *memRepository) ListConversationsForBrand(ctx context.Context, brandId string) ([]database.ConversationSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaries(func(c database.Conversation) bool { return c.BrandId == brandId }, database.SenderBrand), nil
}

func (r *memRepository) CreateMessage(ctx context.Context, params database.CreateMessageParams) (database.Message, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[params.ConversationId]
	if !ok {
		return database.Message{}, false, database.ErrNotFound
	}

	if params.ClientMessageId != nil {
		for _, m := range r.messages {
			if m.ConversationId == c.Id && m.SenderType == params.SenderType && m.SenderId == params.SenderId &&
				m.ClientMessageId != nil && *m.ClientMessageId == *params.ClientMessageId {
				return m, true, nil
			}
		}
	}

	createdAt := r.now()
	if c.LastMessageAt != nil && !createdAt.After(*c.LastMessageAt) {
		createdAt = c.LastMessageAt.Add(time.Microsecond)
	}

	r.nextId++
	m := database.Message{
		Id:              r.nextId,
		ConversationId:  c.Id,
		SenderId:        params.SenderId,
		SenderType:      params.SenderType,
		Content:         params.Content,
		ClientMessageId: params.ClientMessageId,
		CreatedAt:       createdAt,
		SenderName:      r.senderName(params.SenderId),
	}
	r.messages = append(r.messages, m)

	content := m.Content
	c.LastMessage = &content
	c.LastMessageAt = &createdAt
	c.UpdatedAt = createdAt
	r.convs[c.Id] = c

	return m, false, nil
}

func (r *memRepository) senderName(senderId string) string {
	if u, ok := r.users[senderId]; ok && u.Name != "" {
		return u.Name
	}
	if b, ok := r.brands[senderId]; ok {
		return b.Name
	}
	return ""
}

func (r *memRepository) markRead(c database.Conversation, party database.SenderType) time.Time {
	readAt := r.now()
	if prev := c.ReadMarker(party); prev != nil && prev.After(readAt) {
		readAt = *prev
	}
	if c.LastMessageAt != nil && c.LastMessageAt.After(readAt) {
		readAt = *c.LastMessageAt
	}
	if party == database.SenderBrand {
		c.BrandLastReadAt = &readAt
	} else {
		c.UserLastReadAt = &readAt
	}
	r.convs[c.Id] = c
	return readAt
}

func (r *memRepository) ListMessagesAndMarkRead(ctx context.Context, params database.ListMessagesParams) ([]database.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[params.ConversationId]
	if !ok {
		return nil, database.ErrNotFound
	}

	var after *database.Message
	if params.Cursor != 0 {
		for i := range r.messages {
			if r.messages[i].Id == params.Cursor && r.messages[i].ConversationId == c.Id {
				after = &r.messages[i]
				break
			}
		}
		if after == nil {
			return nil, database.ErrCursorNotFound
		}
	}

	var page []database.Message
	for _, m := range r.messages {
		if m.ConversationId != c.Id {
			continue
		}
		if after != nil {
			if m.CreatedAt.Before(after.CreatedAt) || (m.CreatedAt.Equal(after.CreatedAt) && m.Id <= after.Id) {
				continue
			}
		}
		page = append(page, m)
	}
	sort.Slice(page, func(i, j int) bool {
		if page[i].CreatedAt.Equal(page[j].CreatedAt) {
			return page[i].Id < page[j].Id
		}
		return page[i].CreatedAt.Before(page[j].CreatedAt)
	})
	if len(page) > params.Limit {
		page = page[:params.Limit]
	}

	r.markRead(c, params.Reader)
	return page, nil
}

func (r *memRepository) MarkRead(ctx context.Context, conversationId string, party database.SenderType) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[conversationId]
	if !ok {
		return time.Time{}, database.ErrNotFound
	}
	return r.markRead(c, party), nil
}

func (r *memRepository) ListActiveBanners(ctx context.Context) ([]database.Banner, error) {
	return nil, nil
}
