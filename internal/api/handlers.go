package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/npezzotti/brandchat/internal/chat"
	"github.com/npezzotti/brandchat/internal/database"
	"github.com/npezzotti/brandchat/internal/types"
)

type CreateConversationRequest struct {
	BrandId string `json:"brandId"`
}

type PostMessageRequest struct {
	Content         string `json:"content"`
	ClientMessageId string `json:"clientMessageId"`
}

func (s *BrandChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	if apiErr, ok := v.(*ApiError); ok && apiErr.Err != nil {
		s.log.Printf("%d: %v", apiErr.StatusCode, apiErr.Err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *BrandChatApp) writeError(w http.ResponseWriter, err error) {
	errResp := apiErrorFrom(err)
	s.writeJson(w, errResp.StatusCode, errResp)
}

func toBrand(b database.Brand) types.Brand {
	return types.Brand{
		Id:          b.Id,
		Slug:        b.Slug,
		Name:        b.Name,
		Logo:        b.Logo,
		Description: b.Description,
		Verified:    b.Verified,
	}
}

func toConversation(c database.Conversation) types.Conversation {
	return types.Conversation{
		Id:              c.Id,
		UserId:          c.UserId,
		BrandId:         c.BrandId,
		LastMessage:     c.LastMessage,
		LastMessageAt:   c.LastMessageAt,
		UserLastReadAt:  c.UserLastReadAt,
		BrandLastReadAt: c.BrandLastReadAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func toMessage(m database.Message) types.Message {
	msg := types.Message{
		Id:             chat.FormatCursor(m.Id),
		ConversationId: m.ConversationId,
		SenderId:       m.SenderId,
		SenderType:     string(m.SenderType),
		SenderName:     m.SenderName,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
	if m.ClientMessageId != nil {
		msg.ClientMessageId = *m.ClientMessageId
	}
	return msg
}

func (s *BrandChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Println("health check:", err)
		http.Error(w, "database unavailable", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *BrandChatApp) createConversation(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, created, err := s.chat.OpenConversation(r.Context(), p, req.BrandId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJson(w, status, toConversation(conv))
}

func (s *BrandChatApp) listConversations(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbConvs, err := s.chat.ListConversations(r.Context(), p)
	if err != nil {
		s.writeError(w, err)
		return
	}

	convs := make([]types.ConversationSummary, 0, len(dbConvs))
	for _, c := range dbConvs {
		convs = append(convs, types.ConversationSummary{
			Conversation:     toConversation(c.Conversation),
			CounterpartName:  c.CounterpartName,
			CounterpartLogo:  c.CounterpartLogo,
			CounterpartEmail: c.CounterpartEmail,
			UnreadCount:      c.UnreadCount,
		})
	}

	s.writeJson(w, http.StatusOK, convs)
}

func (s *BrandChatApp) getConversation(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, err := s.chat.GetConversation(r.Context(), p, r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, toConversation(conv))
}

func (s *BrandChatApp) listMessages(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errResp := newApiError(http.StatusBadRequest, "invalid limit")
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		limit = n
	}

	dbMsgs, err := s.chat.ListMessages(r.Context(), p, r.PathValue("id"), limit, r.URL.Query().Get("cursor"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	msgs := make([]types.Message, 0, len(dbMsgs))
	for _, m := range dbMsgs {
		msgs = append(msgs, toMessage(m))
	}

	s.writeJson(w, http.StatusOK, msgs)
}

func (s *BrandChatApp) postMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	clientMessageId := strings.TrimSpace(req.ClientMessageId)
	if clientMessageId == "" {
		clientMessageId = strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	}

	msg, replayed, err := s.chat.PostMessage(r.Context(), p, r.PathValue("id"), req.Content, clientMessageId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
	}
	s.writeJson(w, status, toMessage(msg))
}

func (s *BrandChatApp) markRead(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.PathValue("id")
	readAt, err := s.chat.MarkRead(r.Context(), p, conversationId)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, types.ReadReceipt{ConversationId: conversationId, ReadAt: readAt})
}

func (s *BrandChatApp) listBanners(w http.ResponseWriter, r *http.Request) {
	dbBanners, err := s.db.ListActiveBanners(r.Context())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	banners := make([]types.Banner, 0, len(dbBanners))
	for _, b := range dbBanners {
		banners = append(banners, types.Banner{
			Id:       b.Id,
			Title:    b.Title,
			ImageUrl: b.ImageUrl,
			LinkUrl:  b.LinkUrl,
			Position: b.Position,
		})
	}

	s.writeJson(w, http.StatusOK, banners)
}
