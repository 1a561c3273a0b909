package database

import (
	"context"
	"database/sql"
	"time"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 25
	connMaxIdleTime = 5 * time.Minute
)

type PgBrandChatRepository struct {
	conn *sql.DB
}

func NewPgBrandChatRepository(ctx context.Context, dsn string) (*PgBrandChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &PgBrandChatRepository{conn: db}, nil
}

func (db *PgBrandChatRepository) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// DB exposes the connection pool for pool statistics.
func (db *PgBrandChatRepository) DB() *sql.DB {
	return db.conn
}

func (db *PgBrandChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back when fn or the commit fails.
func (db *PgBrandChatRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
