package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/brandchat/internal/cache"
	"github.com/npezzotti/brandchat/internal/chat"
	"github.com/npezzotti/brandchat/internal/config"
	"github.com/npezzotti/brandchat/internal/database"
	"github.com/npezzotti/brandchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var testSigningKey = []byte("test-signing-key")

func newTestApp(t *testing.T, db database.BrandChatRepository, modify ...func(cfg *config.Config)) *BrandChatApp {
	cfg := &config.Config{
		ServerAddr:         "localhost:8080",
		SigningKey:         testSigningKey,
		AllowedOrigins:     []string{"http://localhost:3000"},
		RequireParticipant: true,
		SessionTTL:         time.Hour,
	}
	for _, fn := range modify {
		fn(cfg)
	}

	logger := testutil.TestLogger(t)
	svc := chat.NewService(logger, db, nil, chat.Options{RequireParticipant: cfg.RequireParticipant})
	return NewBrandChatApp(http.NewServeMux(), logger, svc, db, nil, cache.NewMemoryRevocationStore(), cfg)
}

func TestNewBrandChatApp(t *testing.T) {
	mux := http.NewServeMux()
	logger := testutil.TestLogger(t)
	db := &database.MockBrandChatRepository{}
	revoked := cache.NewMemoryRevocationStore()
	svc := chat.NewService(logger, db, nil, chat.Options{})
	cfg := &config.Config{
		ServerAddr:     "localhost:8080",
		DatabaseDSN:    "dsn",
		SigningKey:     []byte("secret"),
		AllowedOrigins: []string{"http://localhost:3000"},
		SessionTTL:     2 * time.Hour,
	}

	app := NewBrandChatApp(mux, logger, svc, db, nil, revoked, cfg)

	assert.NotNil(t, app, "expected app to be initialized")
	assert.NotNil(t, app.srv, "expected server to be initialized")
	assert.Equal(t, app.log, logger, "expected logger to be set")
	assert.Equal(t, app.db, db, "expected db to be set")
	assert.Equal(t, app.chat, svc, "expected chat service to be set")
	assert.Equal(t, app.revoked, revoked, "expected revocation store to be set")
	assert.Equal(t, app.signingKey, cfg.SigningKey, "expected signing key to be set")
	assert.Equal(t, 2*time.Hour, app.sessionTTL, "expected session ttl to match config")
	assert.Equal(t, app.srv.Addr, cfg.ServerAddr, "expected server address to match config")
}

func TestNewBrandChatApp_Defaults(t *testing.T) {
	app := NewBrandChatApp(http.NewServeMux(), nil, nil, &database.MockBrandChatRepository{}, nil, nil, &config.Config{})

	assert.NotNil(t, app.log, "expected default logger")
	assert.NotNil(t, app.revoked, "expected in-memory revocation store")
	assert.Equal(t, defaultSessionTTL, app.sessionTTL)
}

func TestRoutes(t *testing.T) {
	db := &database.MockBrandChatRepository{}
	defer db.AssertExpectations(t)
	db.On("Ping", mock.Anything).Return(nil).Once()

	app := newTestApp(t, db)
	h := app.Handler()

	tcases := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{name: "health", method: http.MethodGet, path: "/healthz", status: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", status: http.StatusOK},
		{name: "conversations require auth", method: http.MethodGet, path: "/api/conversations", status: http.StatusUnauthorized},
		{name: "messages require auth", method: http.MethodGet, path: "/api/conversations/c1/messages", status: http.StatusUnauthorized},
		{name: "unknown route", method: http.MethodGet, path: "/api/unknown", status: http.StatusNotFound},
		{name: "wrong method", method: http.MethodDelete, path: "/api/conversations", status: http.StatusMethodNotAllowed},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			h.ServeHTTP(rr, req)
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	app := newTestApp(t, &database.MockBrandChatRepository{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/conversations", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "x-sender-type")
	app.Handler().ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
}
