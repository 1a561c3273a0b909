package api

import (
	"errors"
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
	"github.com/stretchr/testify/require"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	logger, buf := testutil.BufferedLogger()
	app := &BrandChatApp{
		log: logger,
	}

	// handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic: test panic")
	assert.NotContains(t, rr.Body.String(), "test panic", "expected panic details to stay out of the response")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &BrandChatApp{}

	// simple handler that does not panic
	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

// principalEcho writes the resolved principal as "user|role|brand".
var principalEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(p.UserID + "|" + string(p.Role) + "|" + p.BrandID))
})

func Test_authMiddleware(t *testing.T) {
	mockRepo := &database.MockBrandChatRepository{}
	app := newTestApp(t, mockRepo)

	logger, buf := testutil.BufferedLogger()
	app.log = logger

	token, err := app.createJwtForSession("user-1", time.Hour)
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(createJwtCookie(token, time.Hour))
		app.authMiddleware(principalEcho).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "user-1|USER|", rr.Body.String())
		assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
	})

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		app.authMiddleware(principalEcho).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("identity header ignored when untrusted", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(headerUserId, "user-1")
		app.authMiddleware(principalEcho).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)

		// Add an invalid token cookie
		req.AddCookie(&http.Cookie{
			Name:  tokenCookieKey,
			Value: "invalid-token",
		})
		app.authMiddleware(principalEcho).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Contains(t, buf.String(), "failed to extract user id from token")
	})

	t.Run("invalid sender type", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(createJwtCookie(token, time.Hour))
		req.Header.Set(headerSenderType, "ADMIN")
		app.authMiddleware(principalEcho).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func Test_authMiddleware_BrandRole(t *testing.T) {
	brandA := database.Brand{Id: "brand-a"}
	brandB := database.Brand{Id: "brand-b"}

	tcases := []struct {
		name    string
		brands  []database.Brand
		brandId string
		mockErr error
		status  int
		body    string
	}{
		{name: "single membership", brands: []database.Brand{brandA}, status: http.StatusOK, body: "user-1|BRAND|brand-a"},
		{name: "selected membership", brands: []database.Brand{brandA, brandB}, brandId: "brand-b", status: http.StatusOK, body: "user-1|BRAND|brand-b"},
		{name: "ambiguous membership", brands: []database.Brand{brandA, brandB}, status: http.StatusBadRequest},
		{name: "no membership", brands: []database.Brand{}, status: http.StatusForbidden},
		{name: "foreign brand", brands: []database.Brand{brandA}, brandId: "brand-b", status: http.StatusForbidden},
		{name: "lookup failure", mockErr: errors.New("db down"), status: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			mockRepo := &database.MockBrandChatRepository{}
			defer mockRepo.AssertExpectations(t)
			mockRepo.On("ListBrandsForMember", mock.Anything, "user-1").Return(tc.brands, tc.mockErr).Once()

			app := newTestApp(t, mockRepo)
			token, err := app.createJwtForSession("user-1", time.Hour)
			require.NoError(t, err)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(createJwtCookie(token, time.Hour))
			req.Header.Set(headerSenderType, "brand")
			if tc.brandId != "" {
				req.Header.Set(headerBrandId, tc.brandId)
			}
			app.authMiddleware(principalEcho).ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rr.Body.String())
			}
		})
	}
}

func Test_authMiddleware_TrustedHeaders(t *testing.T) {
	app := newTestApp(t, &database.MockBrandChatRepository{}, func(cfg *config.Config) {
		cfg.TrustIdentityHeaders = true
	})

	tcases := []struct {
		name    string
		headers map[string]string
		status  int
		body    string
	}{
		{name: "user header", headers: map[string]string{headerUserId: "u1"}, status: http.StatusOK, body: "u1|USER|"},
		{name: "brand headers", headers: map[string]string{headerUserId: "rep", headerSenderType: "BRAND", headerBrandId: "b1"}, status: http.StatusOK, body: "rep|BRAND|b1"},
		{name: "brand without id", headers: map[string]string{headerUserId: "rep", headerSenderType: "BRAND"}, status: http.StatusBadRequest},
		{name: "brand only", headers: map[string]string{headerBrandId: "b1"}, status: http.StatusOK, body: "b1|BRAND|b1"},
		{name: "brand only as brand", headers: map[string]string{headerBrandId: "b1", headerSenderType: "brand"}, status: http.StatusOK, body: "b1|BRAND|b1"},
		{name: "brand only as user", headers: map[string]string{headerBrandId: "b1", headerSenderType: "USER"}, status: http.StatusBadRequest},
		{name: "no identity", headers: map[string]string{}, status: http.StatusUnauthorized},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			app.authMiddleware(principalEcho).ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rr.Body.String())
			}
		})
	}
}

func Test_apiErrorFrom(t *testing.T) {
	tcases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{name: "bad request", err: &chat.Error{Kind: chat.BadRequest, Message: "missing content"}, status: http.StatusBadRequest, msg: "missing content"},
		{name: "unauthorized", err: chat.ErrUnauthorized, status: http.StatusUnauthorized, msg: "unauthorized"},
		{name: "forbidden", err: &chat.Error{Kind: chat.Forbidden, Message: "not a participant of this conversation"}, status: http.StatusForbidden, msg: "not a participant of this conversation"},
		{name: "not found", err: &chat.Error{Kind: chat.NotFound, Message: "conversation not found"}, status: http.StatusNotFound, msg: "conversation not found"},
		{name: "conflict", err: chat.ErrConflict, status: http.StatusConflict, msg: "conflict"},
		{name: "internal hides cause", err: &chat.Error{Kind: chat.Internal, Message: "create message", Err: errors.New("pq: deadlock")}, status: http.StatusInternalServerError, msg: "internal server error"},
		{name: "unclassified", err: errors.New("boom"), status: http.StatusInternalServerError, msg: "internal server error"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := apiErrorFrom(tc.err)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.msg, apiErr.Message)
		})
	}
}

func Test_authMiddleware_Revocation(t *testing.T) {
	tcases := []struct {
		name      string
		revoked   bool
		lookupErr error
		status    int
	}{
		{name: "active session", status: http.StatusOK},
		{name: "revoked session", revoked: true, status: http.StatusUnauthorized},
		{name: "store unavailable", lookupErr: errors.New("redis down"), status: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			store := &cache.MockRevocationStore{}
			defer store.AssertExpectations(t)
			store.On("IsRevoked", mock.Anything, mock.AnythingOfType("string")).Return(tc.revoked, tc.lookupErr).Once()

			app := newTestApp(t, &database.MockBrandChatRepository{})
			app.revoked = store
			token, err := app.createJwtForSession("user-1", time.Hour)
			require.NoError(t, err)

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(createJwtCookie(token, time.Hour))
			app.authMiddleware(principalEcho).ServeHTTP(rr, req)

			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestLogout_RevokeFailure(t *testing.T) {
	store := &cache.MockRevocationStore{}
	defer store.AssertExpectations(t)
	store.On("IsRevoked", mock.Anything, mock.AnythingOfType("string")).Return(false, nil).Once()
	store.On("Revoke", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("time.Duration")).Return(errors.New("redis down")).Once()

	app := newTestApp(t, &database.MockBrandChatRepository{})
	app.revoked = store
	token, err := app.createJwtForSession("user-1", time.Hour)
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil)
	req.AddCookie(createJwtCookie(token, time.Hour))
	app.authMiddleware(app.logout).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Nil(t, findCookie(rr, tokenCookieKey), "expected the session cookie to be kept")
}

func TestBrandOnlyIdentity_ListsInbox(t *testing.T) {
	mockRepo := &database.MockBrandChatRepository{}
	defer mockRepo.AssertExpectations(t)
	mockRepo.On("ListConversationsForBrand", mock.Anything, "b1").Return([]database.ConversationSummary{
		{Conversation: database.Conversation{Id: "c1", UserId: "u1", BrandId: "b1"}, CounterpartName: "Buyer"},
	}, nil).Once()

	app := newTestApp(t, mockRepo, func(cfg *config.Config) {
		cfg.TrustIdentityHeaders = true
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set(headerBrandId, "b1")
	app.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"id":"c1"`)
}

func TestBrandOnlyIdentity_RejectedWhenUntrusted(t *testing.T) {
	app := newTestApp(t, &database.MockBrandChatRepository{})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set(headerBrandId, "b1")
	app.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
