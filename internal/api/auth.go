package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/npezzotti/brandchat/internal/chat"
	"github.com/npezzotti/brandchat/internal/database"
	"github.com/npezzotti/brandchat/internal/stats"
	"github.com/npezzotti/brandchat/internal/types"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultSessionTTL = 24 * time.Hour
	tokenCookieKey    = "session_token"
	minPasswordLength = 8

	userIdClaim = "user-id"
	expClaim    = "exp"
	jtiClaim    = "jti"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	sessionKey   contextKey = "session"
)

// sessionToken identifies the signed token a request was authenticated with.
type sessionToken struct {
	Id        string
	ExpiresAt time.Time
}

func WithPrincipal(ctx context.Context, p chat.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFrom(ctx context.Context) (chat.Principal, bool) {
	p, ok := ctx.Value(principalKey).(chat.Principal)
	return p, ok
}

func withSessionToken(ctx context.Context, t sessionToken) context.Context {
	return context.WithValue(ctx, sessionKey, t)
}

func sessionTokenFrom(ctx context.Context) (sessionToken, bool) {
	t, ok := ctx.Value(sessionKey).(sessionToken)
	return t, ok
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AuthResponse struct {
	Success bool       `json:"success"`
	User    types.User `json:"user"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func toUser(u database.User) types.User {
	return types.User{
		Id:           u.Id,
		Name:         u.Name,
		EmailAddress: u.EmailAddress,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (s *BrandChatApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	email := normalizeEmail(req.Email)
	if !validEmail(email) {
		errResp := newApiError(http.StatusBadRequest, "invalid email")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if len(req.Password) < minPasswordLength {
		errResp := newApiError(http.StatusBadRequest, fmt.Sprintf("password must be at least %d characters", minPasswordLength))
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := hashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newUser, err := s.db.CreateUser(r.Context(), database.CreateUserParams{
		Id:           uuid.NewString(),
		EmailAddress: email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: pwdHash,
	})
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrConflict) {
			errResp = newApiError(http.StatusConflict, "email already in use")
		} else {
			s.log.Println("create user:", err)
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.startSession(w, newUser.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, AuthResponse{Success: true, User: toUser(newUser)})
}

func (s *BrandChatApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	email := normalizeEmail(lr.Email)
	if email == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetUserByEmail(r.Context(), email)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = newApiError(http.StatusUnauthorized, "invalid credentials")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !verifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := newApiError(http.StatusUnauthorized, "invalid credentials")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.startSession(w, dbUser.Id); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, AuthResponse{Success: true, User: toUser(dbUser)})
}

func (s *BrandChatApp) startSession(w http.ResponseWriter, userId string) error {
	token, err := s.createJwtForSession(userId, s.sessionTTL)
	if err != nil {
		return fmt.Errorf("create session token: %w", err)
	}

	http.SetCookie(w, createJwtCookie(token, s.sessionTTL))
	if s.stats != nil {
		s.stats.Incr(stats.ActiveSessions)
	}
	return nil
}

func (s *BrandChatApp) session(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetUserById(r.Context(), p.UserID)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrNotFound) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbBrands, err := s.db.ListBrandsForMember(r.Context(), p.UserID)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	brands := make([]types.Brand, 0, len(dbBrands))
	for _, b := range dbBrands {
		brands = append(brands, toBrand(b))
	}

	s.writeJson(w, http.StatusOK, types.Session{
		User:   toUser(user),
		Role:   string(p.Role),
		Brands: brands,
	})
}

func (s *BrandChatApp) logout(w http.ResponseWriter, r *http.Request) {
	if t, ok := sessionTokenFrom(r.Context()); ok {
		if err := s.revoked.Revoke(r.Context(), t.Id, time.Until(t.ExpiresAt)); err != nil {
			s.log.Println("revoke session:", err)
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if s.stats != nil {
			s.stats.Decr(stats.ActiveSessions)
		}
	}

	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, expiredJwtCookie())
	w.WriteHeader(http.StatusNoContent)
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		MaxAge:   int(exp.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func expiredJwtCookie() *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}

func (s *BrandChatApp) createJwtForSession(userId string, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId,
		jtiClaim:    uuid.NewString(),
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(s.signingKey)
}

func (s *BrandChatApp) verifyToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}

// parseSessionToken verifies tokenString and returns the user it was issued
// to along with its id and expiry.
func (s *BrandChatApp) parseSessionToken(tokenString string) (string, sessionToken, error) {
	token, err := s.verifyToken(tokenString)
	if err != nil {
		return "", sessionToken{}, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", sessionToken{}, fmt.Errorf("invalid token claims")
	}

	userId, ok := claims[userIdClaim].(string)
	if !ok || userId == "" {
		return "", sessionToken{}, fmt.Errorf("invalid user id claim")
	}

	jti, ok := claims[jtiClaim].(string)
	if !ok || jti == "" {
		return "", sessionToken{}, fmt.Errorf("invalid token id claim")
	}

	exp, ok := claims[expClaim].(float64)
	if !ok {
		return "", sessionToken{}, fmt.Errorf("invalid exp claim")
	}

	return userId, sessionToken{Id: jti, ExpiresAt: time.Unix(int64(exp), 0)}, nil
}
