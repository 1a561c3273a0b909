package database

import (
	"context"
	"time"
)

// The upserts below back the demo data loader. They are not part of
// BrandChatRepository.

func (db *PgBrandChatRepository) UpsertUser(ctx context.Context, params CreateUserParams) (User, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (id, email, password_hash, name, created_at, updated_at) "+
			"VALUES ($1, $2, $3, NULLIF($4, ''), $5, $5) "+
			"ON CONFLICT (email) DO UPDATE SET updated_at = users.updated_at "+
			"RETURNING id, email, COALESCE(name, ''), created_at, updated_at",
		params.Id,
		params.EmailAddress,
		params.PasswordHash,
		params.Name,
		now,
	)

	var u User
	err := row.Scan(&u.Id, &u.EmailAddress, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	return u, classifyError(err)
}

func (db *PgBrandChatRepository) UpsertBrand(ctx context.Context, params CreateBrandParams) (Brand, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO brands (id, slug, name, logo, description, verified, created_at, updated_at) "+
			"VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $7) "+
			"ON CONFLICT (slug) DO UPDATE SET updated_at = brands.updated_at "+
			"RETURNING id, slug, name, COALESCE(logo, ''), COALESCE(description, ''), verified, created_at, updated_at",
		params.Id,
		params.Slug,
		params.Name,
		params.Logo,
		params.Description,
		params.Verified,
		now,
	)

	var b Brand
	err := row.Scan(&b.Id, &b.Slug, &b.Name, &b.Logo, &b.Description, &b.Verified, &b.CreatedAt, &b.UpdatedAt)
	return b, classifyError(err)
}

func (db *PgBrandChatRepository) AddBrandMember(ctx context.Context, brandId, userId string) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO brand_members (brand_id, user_id, created_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT DO NOTHING",
		brandId,
		userId,
		time.Now().UTC(),
	)
	return classifyError(err)
}

func (db *PgBrandChatRepository) UpsertBanner(ctx context.Context, b Banner) error {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO banners (title, image_url, link_url, position, active, created_at) "+
			"VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6) "+
			"ON CONFLICT (title) DO UPDATE SET image_url = EXCLUDED.image_url, link_url = EXCLUDED.link_url, "+
			"position = EXCLUDED.position, active = EXCLUDED.active",
		b.Title,
		b.ImageUrl,
		b.LinkUrl,
		b.Position,
		b.Active,
		time.Now().UTC(),
	)
	return classifyError(err)
}
