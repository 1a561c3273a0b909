package types

import (
	"time"
)

type User struct {
	Id           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	EmailAddress string    `json:"email,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

type Brand struct {
	Id          string `json:"id"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Logo        string `json:"logo,omitempty"`
	Description string `json:"description,omitempty"`
	Verified    bool   `json:"verified"`
}

// Session is the current principal as returned by the session endpoint.
type Session struct {
	User   User    `json:"user"`
	Role   string  `json:"role"`
	Brands []Brand `json:"brands"`
}

type Conversation struct {
	Id              string     `json:"id"`
	UserId          string     `json:"userId"`
	BrandId         string     `json:"brandId"`
	LastMessage     *string    `json:"lastMessage"`
	LastMessageAt   *time.Time `json:"lastMessageAt"`
	UserLastReadAt  *time.Time `json:"userLastReadAt"`
	BrandLastReadAt *time.Time `json:"brandLastReadAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// ConversationSummary is an inbox entry: the conversation plus the other
// party's display details and the caller's unread count.
type ConversationSummary struct {
	Conversation
	CounterpartName  string `json:"counterpartName"`
	CounterpartLogo  string `json:"counterpartLogo,omitempty"`
	CounterpartEmail string `json:"counterpartEmail,omitempty"`
	UnreadCount      int    `json:"unreadCount"`
}

// Message ids are serialized as strings; a message id is also the cursor
// for the next page.
type Message struct {
	Id              string    `json:"id"`
	ConversationId  string    `json:"conversationId"`
	SenderId        string    `json:"senderId"`
	SenderType      string    `json:"senderType"`
	SenderName      string    `json:"senderName,omitempty"`
	Content         string    `json:"content"`
	ClientMessageId string    `json:"clientMessageId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type ReadReceipt struct {
	ConversationId string    `json:"conversationId"`
	ReadAt         time.Time `json:"readAt"`
}

type Banner struct {
	Id       int    `json:"id"`
	Title    string `json:"title"`
	ImageUrl string `json:"imageUrl"`
	LinkUrl  string `json:"linkUrl,omitempty"`
	Position int    `json:"position"`
}
