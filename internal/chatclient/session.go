package chatclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/brandchat/internal/types"
)

type State string

const (
	Sent    State = "sent"
	Pending State = "pending"
	Failed  State = "failed"
)

const tempIdPrefix = "temp-"

// Entry is a message as shown locally: either confirmed by the server or
// an optimistic copy that is still pending or failed to send.
type Entry struct {
	types.Message
	State State
}

// Session holds the local view of one conversation. Server messages are
// authoritative; optimistic entries are kept after them until the server
// reports a message with the same client message id.
type Session struct {
	client         *Client
	conversationId string
	pageSize       int
	now            func() time.Time

	mu      sync.Mutex
	server  []types.Message
	seen    map[string]struct{}
	local   []Entry
	cursor  string
	changed chan struct{}
}

func NewSession(client *Client, conversationId string) *Session {
	return &Session{
		client:         client,
		conversationId: conversationId,
		pageSize:       50,
		now:            time.Now,
		seen:           make(map[string]struct{}),
		changed:        make(chan struct{}, 1),
	}
}

func (s *Session) ConversationId() string {
	return s.conversationId
}

// Changed is signalled whenever the merged view may differ from the last
// call to Messages.
func (s *Session) Changed() <-chan struct{} {
	return s.changed
}

func (s *Session) notify() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Messages returns the merged view: server messages in server order
// followed by local entries the server has not yet listed.
func (s *Session) Messages() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.server)+len(s.local))
	for _, m := range s.server {
		out = append(out, Entry{Message: m, State: Sent})
	}
	return append(out, s.local...)
}

// Refresh fetches every message after the last one already known, page by
// page, and merges them into the view.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	cursor := s.cursor
	s.mu.Unlock()

	var fetched []types.Message
	for {
		page, err := s.client.ListMessages(ctx, s.conversationId, s.pageSize, cursor)
		if err != nil {
			return err
		}
		fetched = append(fetched, page...)
		if len(page) < s.pageSize {
			break
		}
		cursor = page[len(page)-1].Id
	}

	s.mu.Lock()
	added := s.mergeLocked(fetched)
	s.mu.Unlock()

	if added {
		s.notify()
	}
	return nil
}

// mergeLocked appends unseen server messages and drops local entries the
// server now knows about.
func (s *Session) mergeLocked(msgs []types.Message) bool {
	added := false
	for _, m := range msgs {
		if _, ok := s.seen[m.Id]; ok {
			continue
		}
		s.seen[m.Id] = struct{}{}
		s.server = append(s.server, m)
		s.cursor = m.Id
		added = true
	}

	if len(s.local) == 0 {
		return added
	}

	kept := s.local[:0]
	for _, e := range s.local {
		if s.isSeenLocked(e.Message) {
			added = true
			continue
		}
		kept = append(kept, e)
	}
	s.local = kept

	return added
}

func (s *Session) isSeenLocked(m types.Message) bool {
	if _, ok := s.seen[m.Id]; ok {
		return true
	}
	if m.ClientMessageId == "" {
		return false
	}
	for _, sm := range s.server {
		if sm.ClientMessageId == m.ClientMessageId {
			return true
		}
	}
	return false
}

// Send shows content immediately as a pending entry and posts it. On
// success the pending entry is replaced by the stored message; on failure
// it is marked failed and can be retried.
func (s *Session) Send(ctx context.Context, content string) (Entry, error) {
	key := uuid.NewString()
	entry := Entry{
		Message: types.Message{
			Id:              tempIdPrefix + key,
			ConversationId:  s.conversationId,
			Content:         content,
			ClientMessageId: key,
			CreatedAt:       s.now().UTC(),
		},
		State: Pending,
	}

	s.mu.Lock()
	s.local = append(s.local, entry)
	s.mu.Unlock()
	s.notify()

	return s.deliver(ctx, entry)
}

// Retry re-sends a failed entry with its original client message id, so a
// send that reached the server before failing is not duplicated.
func (s *Session) Retry(ctx context.Context, tempId string) (Entry, error) {
	s.mu.Lock()
	idx := s.localIndexLocked(tempId)
	if idx < 0 {
		s.mu.Unlock()
		return Entry{}, fmt.Errorf("no local message %q", tempId)
	}
	if s.local[idx].State != Failed {
		s.mu.Unlock()
		return Entry{}, fmt.Errorf("message %q is %s", tempId, s.local[idx].State)
	}
	s.local[idx].State = Pending
	entry := s.local[idx]
	s.mu.Unlock()
	s.notify()

	return s.deliver(ctx, entry)
}

func (s *Session) deliver(ctx context.Context, entry Entry) (Entry, error) {
	msg, _, err := s.client.SendMessage(ctx, s.conversationId, entry.Content, entry.ClientMessageId)

	s.mu.Lock()
	defer func() {
		s.mu.Unlock()
		s.notify()
	}()

	if err != nil {
		if idx := s.localIndexLocked(entry.Id); idx >= 0 {
			s.local[idx].State = Failed
			entry = s.local[idx]
		}
		return entry, err
	}

	sent := Entry{Message: msg, State: Sent}
	idx := s.localIndexLocked(entry.Id)
	switch {
	case idx < 0:
	case s.isSeenLocked(msg):
		s.local = append(s.local[:idx], s.local[idx+1:]...)
	default:
		// The cursor is left alone so the next refresh still picks up
		// messages from the other side posted before this one.
		s.local[idx] = sent
	}

	return sent, nil
}

func (s *Session) localIndexLocked(tempId string) int {
	for i, e := range s.local {
		if e.Id == tempId {
			return i
		}
	}
	return -1
}

// IsAPIError reports whether err is a server response with the given status.
func IsAPIError(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
