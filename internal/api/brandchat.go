package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/brandchat/internal/cache"
	"github.com/npezzotti/brandchat/internal/chat"
	"github.com/npezzotti/brandchat/internal/config"
	"github.com/npezzotti/brandchat/internal/database"
	"github.com/npezzotti/brandchat/internal/stats"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type BrandChatApp struct {
	log                  *log.Logger
	db                   database.BrandChatRepository
	chat                 *chat.Service
	stats                stats.StatsProvider
	revoked              cache.RevocationStore
	srv                  *http.Server
	signingKey           []byte
	sessionTTL           time.Duration
	trustIdentityHeaders bool
}

func NewBrandChatApp(mux *http.ServeMux, logger *log.Logger, svc *chat.Service, db database.BrandChatRepository, statsProvider stats.StatsProvider, revoked cache.RevocationStore, cfg *config.Config) *BrandChatApp {
	if logger == nil {
		logger = log.Default()
	}
	if revoked == nil {
		revoked = cache.NewMemoryRevocationStore()
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}

	s := &BrandChatApp{
		log:                  logger,
		db:                   db,
		chat:                 svc,
		stats:                statsProvider,
		revoked:              revoked,
		signingKey:           cfg.SigningKey,
		sessionTTL:           sessionTTL,
		trustIdentityHeaders: cfg.TrustIdentityHeaders,
	}

	if s.stats != nil {
		s.stats.RegisterMetric(stats.ActiveSessions)
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/me", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))

	mux.HandleFunc("POST /api/conversations", s.authMiddleware(s.createConversation))
	mux.HandleFunc("GET /api/conversations", s.authMiddleware(s.listConversations))
	mux.HandleFunc("GET /api/conversations/{id}", s.authMiddleware(s.getConversation))
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.authMiddleware(s.listMessages))
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.authMiddleware(s.postMessage))
	mux.HandleFunc("POST /api/conversations/{id}/read", s.authMiddleware(s.markRead))

	mux.HandleFunc("GET /api/banners", s.listBanners)

	var h http.Handler = metricsMiddleware(mux)

	h = handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", headerSenderType, headerBrandId, headerUserId, headerIdempotencyKey}),
		handlers.AllowCredentials(),
	)(h)

	h = s.errorHandler(h)
	h = handlers.CombinedLoggingHandler(s.log.Writer(), h)

	s.srv = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the fully wrapped request handler.
func (s *BrandChatApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *BrandChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *BrandChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
