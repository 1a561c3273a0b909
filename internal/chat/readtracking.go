package chat

import (
	"time"

	"github.com/npezzotti/brandchat/internal/database"
)

// UnreadCount counts the messages party has not read yet: those sent by the
// other side after party's read marker. A nil marker means nothing was read.
func UnreadCount(messages []database.Message, marker *time.Time, party database.SenderType) int {
	n := 0
	for _, m := range messages {
		if m.SenderType == party {
			continue
		}
		if marker == nil || m.CreatedAt.After(*marker) {
			n++
		}
	}
	return n
}
