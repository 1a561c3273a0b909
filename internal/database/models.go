package database

import "time"

type SenderType string

const (
	SenderUser  SenderType = "USER"
	SenderBrand SenderType = "BRAND"
)

func (s SenderType) Valid() bool {
	return s == SenderUser || s == SenderBrand
}

type User struct {
	Id           string
	EmailAddress string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Brand struct {
	Id          string
	Slug        string
	Name        string
	Logo        string
	Description string
	Verified    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Conversation struct {
	Id              string
	UserId          string
	BrandId         string
	LastMessage     *string
	LastMessageAt   *time.Time
	UserLastReadAt  *time.Time
	BrandLastReadAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ReadMarker returns the read position of the given party.
func (c Conversation) ReadMarker(party SenderType) *time.Time {
	if party == SenderBrand {
		return c.BrandLastReadAt
	}
	return c.UserLastReadAt
}

// ConversationSummary is a conversation as seen from one party's inbox.
type ConversationSummary struct {
	Conversation
	CounterpartName  string
	CounterpartLogo  string
	CounterpartEmail string
	UnreadCount      int
}

type Message struct {
	Id              int64
	ConversationId  string
	SenderId        string
	SenderType      SenderType
	Content         string
	ClientMessageId *string
	CreatedAt       time.Time
	SenderName      string
}

type Banner struct {
	Id        int
	Title     string
	ImageUrl  string
	LinkUrl   string
	Position  int
	Active    bool
	CreatedAt time.Time
}

type CreateUserParams struct {
	Id           string
	EmailAddress string
	Name         string
	PasswordHash string
}

type CreateBrandParams struct {
	Id          string
	Slug        string
	Name        string
	Logo        string
	Description string
	Verified    bool
}

type CreateConversationParams struct {
	Id      string
	UserId  string
	BrandId string
}

type CreateMessageParams struct {
	ConversationId  string
	SenderId        string
	SenderType      SenderType
	Content         string
	ClientMessageId *string
}

type ListMessagesParams struct {
	ConversationId string
	Reader         SenderType
	Limit          int
	// Cursor is the id of the last message already seen; zero starts from the beginning.
	Cursor int64
}
