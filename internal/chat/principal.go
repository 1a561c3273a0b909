package chat

import "github.com/npezzotti/brandchat/internal/database"

// Principal is the verified identity a request acts as. Role selects the
// conversation party; BrandID is set when acting for a brand.
type Principal struct {
	UserID  string
	Role    database.SenderType
	BrandID string
}

func (p Principal) Valid() bool {
	if p.UserID == "" || !p.Role.Valid() {
		return false
	}
	return p.Role != database.SenderBrand || p.BrandID != ""
}

// participates reports whether p is the user or the brand side of conv.
func (p Principal) participates(conv database.Conversation) bool {
	if p.Role == database.SenderBrand {
		return conv.BrandId == p.BrandID
	}
	return conv.UserId == p.UserID
}
