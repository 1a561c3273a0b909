package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const conversationColumns = "c.id, c.user_id, c.brand_id, c.last_message, c.last_message_at, " +
	"c.user_last_read_at, c.brand_last_read_at, c.created_at, c.updated_at"

// messageColumns reads from the messages table aliased as m. The sender name
// is the posting user's name, or the brand's name when a brand posted as
// itself.
const messageColumns = "m.id, m.conversation_id, m.sender_id, m.sender_type, m.content, m.client_message_id, m.created_at, " +
	"COALESCE((SELECT u.name FROM users u WHERE u.id = m.sender_id), " +
	"(SELECT b.name FROM brands b WHERE b.id = m.sender_id), '')"

type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(row scanner, extra ...any) (Conversation, error) {
	var c Conversation
	dest := append([]any{
		&c.Id,
		&c.UserId,
		&c.BrandId,
		&c.LastMessage,
		&c.LastMessageAt,
		&c.UserLastReadAt,
		&c.BrandLastReadAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	}, extra...)

	err := row.Scan(dest...)
	return c, err
}

func scanMessage(row scanner) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.ConversationId,
		&m.SenderId,
		&m.SenderType,
		&m.Content,
		&m.ClientMessageId,
		&m.CreatedAt,
		&m.SenderName,
	)
	return m, err
}

func (db *PgBrandChatRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (id, email, password_hash, name, created_at, updated_at) "+
			"VALUES ($1, $2, $3, NULLIF($4, ''), $5, $5) "+
			"RETURNING id, email, COALESCE(name, ''), created_at, updated_at",
		params.Id,
		params.EmailAddress,
		params.PasswordHash,
		params.Name,
		now,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.EmailAddress,
		&u.Name,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, classifyError(err)
}

func (db *PgBrandChatRepository) GetUserById(ctx context.Context, id string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, email, COALESCE(name, ''), created_at, updated_at FROM users "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.EmailAddress,
		&u.Name,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, classifyError(err)
}

func (db *PgBrandChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, email, COALESCE(name, ''), password_hash, created_at, updated_at FROM users "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var u User
	err := row.Scan(
		&u.Id,
		&u.EmailAddress,
		&u.Name,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)

	return u, classifyError(err)
}

func (db *PgBrandChatRepository) ListBrandsForMember(ctx context.Context, userId string) ([]Brand, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT b.id, b.slug, b.name, COALESCE(b.logo, ''), COALESCE(b.description, ''), b.verified, b.created_at, b.updated_at "+
			"FROM brand_members bm JOIN brands b ON b.id = bm.brand_id "+
			"WHERE bm.user_id = $1 ORDER BY b.name",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := make([]Brand, 0)
	for rows.Next() {
		var b Brand
		if err := rows.Scan(&b.Id, &b.Slug, &b.Name, &b.Logo, &b.Description, &b.Verified, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan brand: %w", err)
		}
		brands = append(brands, b)
	}

	return brands, rows.Err()
}

func (db *PgBrandChatRepository) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations c WHERE c.id = $1",
		id,
	)

	c, err := scanConversation(row)
	return c, classifyError(err)
}

func (db *PgBrandChatRepository) GetConversationByPair(ctx context.Context, userId, brandId string) (Conversation, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+conversationColumns+" FROM conversations c WHERE c.user_id = $1 AND c.brand_id = $2",
		userId,
		brandId,
	)

	c, err := scanConversation(row)
	return c, classifyError(err)
}

// CreateConversation inserts a new conversation for the pair. When another
// writer created the pair first, ErrConflict is returned and nothing is written.
func (db *PgBrandChatRepository) CreateConversation(ctx context.Context, params CreateConversationParams) (Conversation, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO conversations AS c (id, user_id, brand_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $4) "+
			"ON CONFLICT ON CONSTRAINT conversations_user_brand_key DO NOTHING "+
			"RETURNING "+conversationColumns,
		params.Id,
		params.UserId,
		params.BrandId,
		now,
	)

	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, fmt.Errorf("%w: conversations_user_brand_key", ErrConflict)
	}

	return c, classifyError(err)
}

func (db *PgBrandChatRepository) ListConversationsForUser(ctx context.Context, userId string) ([]ConversationSummary, error) {
	query := "SELECT " + conversationColumns + ", b.name, COALESCE(b.logo, ''), '', " +
		"(SELECT count(*) FROM messages m WHERE m.conversation_id = c.id AND m.sender_type <> 'USER' " +
		"AND (c.user_last_read_at IS NULL OR m.created_at > c.user_last_read_at)) " +
		"FROM conversations c JOIN brands b ON b.id = c.brand_id " +
		"WHERE c.user_id = $1 " +
		"ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC"

	return db.listConversations(ctx, query, userId)
}

func (db *PgBrandChatRepository) ListConversationsForBrand(ctx context.Context, brandId string) ([]ConversationSummary, error) {
	query := "SELECT " + conversationColumns + ", COALESCE(u.name, ''), '', u.email, " +
		"(SELECT count(*) FROM messages m WHERE m.conversation_id = c.id AND m.sender_type <> 'BRAND' " +
		"AND (c.brand_last_read_at IS NULL OR m.created_at > c.brand_last_read_at)) " +
		"FROM conversations c JOIN users u ON u.id = c.user_id " +
		"WHERE c.brand_id = $1 " +
		"ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC"

	return db.listConversations(ctx, query, brandId)
}

func (db *PgBrandChatRepository) listConversations(ctx context.Context, query string, arg string) ([]ConversationSummary, error) {
	rows, err := db.conn.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]ConversationSummary, 0)
	for rows.Next() {
		var s ConversationSummary
		c, err := scanConversation(rows, &s.CounterpartName, &s.CounterpartLogo, &s.CounterpartEmail, &s.UnreadCount)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		s.Conversation = c
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return summaries, nil
}

// nextMessageTime returns the creation time for a new message so that
// timestamps stay strictly increasing within a conversation even when the
// clock stalls or steps backwards.
func nextMessageTime(now time.Time, lastMessageAt *time.Time) time.Time {
	t := now.UTC().Truncate(time.Microsecond)
	if lastMessageAt != nil && !t.After(*lastMessageAt) {
		t = lastMessageAt.UTC().Add(time.Microsecond)
	}
	return t
}

// CreateMessage appends a message and refreshes the conversation preview in
// one transaction. The conversation row is locked for the duration, which
// serializes concurrent posts to the same conversation. When the sender
// already posted a message with the same client id, that message is returned
// with replayed set and nothing is written.
func (db *PgBrandChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, bool, error) {
	var (
		msg      Message
		replayed bool
	)

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var lastMessageAt *time.Time
		err := tx.QueryRowContext(ctx,
			"SELECT last_message_at FROM conversations WHERE id = $1 FOR UPDATE",
			params.ConversationId,
		).Scan(&lastMessageAt)
		if err != nil {
			return classifyError(err)
		}

		if params.ClientMessageId != nil {
			existing, err := scanMessage(tx.QueryRowContext(ctx,
				"SELECT "+messageColumns+" FROM messages m "+
					"WHERE conversation_id = $1 AND sender_type = $2 AND sender_id = $3 AND client_message_id = $4",
				params.ConversationId,
				params.SenderType,
				params.SenderId,
				*params.ClientMessageId,
			))
			if err == nil {
				msg, replayed = existing, true
				return nil
			}
			if !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("lookup client message id: %w", err)
			}
		}

		createdAt := nextMessageTime(time.Now(), lastMessageAt)
		msg, err = scanMessage(tx.QueryRowContext(ctx,
			"INSERT INTO messages AS m (conversation_id, sender_id, sender_type, content, client_message_id, created_at) "+
				"VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+messageColumns,
			params.ConversationId,
			params.SenderId,
			params.SenderType,
			params.Content,
			params.ClientMessageId,
			createdAt,
		))
		if err != nil {
			return classifyError(err)
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE conversations SET last_message = $2, last_message_at = $3, updated_at = $3 WHERE id = $1",
			params.ConversationId,
			msg.Content,
			msg.CreatedAt,
		)
		return err
	})
	if err != nil {
		return Message{}, false, err
	}

	return msg, replayed, nil
}

func readMarkerColumn(party SenderType) string {
	if party == SenderBrand {
		return "brand_last_read_at"
	}
	return "user_last_read_at"
}

func markReadTx(ctx context.Context, tx *sql.Tx, conversationId string, party SenderType) (time.Time, error) {
	col := readMarkerColumn(party)
	var readAt time.Time
	err := tx.QueryRowContext(ctx,
		"UPDATE conversations SET "+col+" = GREATEST("+
			"COALESCE("+col+", '-infinity'::timestamptz), "+
			"now(), "+
			"COALESCE(last_message_at, '-infinity'::timestamptz)) "+
			"WHERE id = $1 RETURNING "+col,
		conversationId,
	).Scan(&readAt)

	return readAt, classifyError(err)
}

// ListMessagesAndMarkRead returns up to Limit messages after Cursor in
// ascending (created_at, id) order and advances the reader's read marker
// within the same transaction.
func (db *PgBrandChatRepository) ListMessagesAndMarkRead(ctx context.Context, params ListMessagesParams) ([]Message, error) {
	var messages []Message

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var (
			rows *sql.Rows
			err  error
		)

		if params.Cursor > 0 {
			var cursorAt time.Time
			err = tx.QueryRowContext(ctx,
				"SELECT created_at FROM messages WHERE id = $1 AND conversation_id = $2",
				params.Cursor,
				params.ConversationId,
			).Scan(&cursorAt)
			if errors.Is(err, sql.ErrNoRows) {
				return ErrCursorNotFound
			}
			if err != nil {
				return err
			}

			rows, err = tx.QueryContext(ctx,
				"SELECT "+messageColumns+" FROM messages m "+
					"WHERE m.conversation_id = $1 AND (m.created_at, m.id) > ($2, $3) "+
					"ORDER BY m.created_at, m.id LIMIT $4",
				params.ConversationId,
				cursorAt,
				params.Cursor,
				params.Limit,
			)
		} else {
			rows, err = tx.QueryContext(ctx,
				"SELECT "+messageColumns+" FROM messages m "+
					"WHERE m.conversation_id = $1 ORDER BY m.created_at, m.id LIMIT $2",
				params.ConversationId,
				params.Limit,
			)
		}
		if err != nil {
			return err
		}

		messages = make([]Message, 0, params.Limit)
		for rows.Next() {
			msg, err := scanMessage(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan message: %w", err)
			}
			messages = append(messages, msg)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		_, err = markReadTx(ctx, tx, params.ConversationId, params.Reader)
		return err
	})
	if err != nil {
		return nil, err
	}

	return messages, nil
}

func (db *PgBrandChatRepository) MarkRead(ctx context.Context, conversationId string, party SenderType) (time.Time, error) {
	var readAt time.Time
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		readAt, err = markReadTx(ctx, tx, conversationId, party)
		return err
	})

	return readAt, err
}

func (db *PgBrandChatRepository) ListActiveBanners(ctx context.Context) ([]Banner, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, title, image_url, COALESCE(link_url, ''), position, active, created_at FROM banners "+
			"WHERE active ORDER BY position, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	banners := make([]Banner, 0)
	for rows.Next() {
		var b Banner
		if err := rows.Scan(&b.Id, &b.Title, &b.ImageUrl, &b.LinkUrl, &b.Position, &b.Active, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan banner: %w", err)
		}
		banners = append(banners, b)
	}

	return banners, rows.Err()
}
