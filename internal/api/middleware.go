package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/npezzotti/brandchat/internal/chat"
	"github.com/npezzotti/brandchat/internal/database"
)

const (
	headerSenderType     = "x-sender-type"
	headerBrandId        = "x-brand-id"
	headerUserId         = "x-user-id"
	headerIdempotencyKey = "Idempotency-Key"
)

func (s *BrandChatApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware resolves the caller's Principal and stores it in the
// request context. The user comes from the session cookie, or from the
// x-user-id header when identity headers are trusted. The role comes from
// x-sender-type; acting as a brand requires membership of that brand. In
// trusted mode a brand may also identify itself with x-brand-id alone.
func (s *BrandChatApp) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var (
			userId  string
			trusted bool
		)
		if tokenCookie, err := r.Cookie(tokenCookieKey); err == nil && tokenCookie.Value != "" {
			id, token, err := s.parseSessionToken(tokenCookie.Value)
			if err != nil {
				s.log.Printf("failed to extract user id from token: %v", err)
				errResp := NewUnauthorizedError()
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}

			revoked, err := s.revoked.IsRevoked(ctx, token.Id)
			if err != nil {
				s.log.Printf("check token revocation: %v", err)
				errResp := NewInternalServerError(err)
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
			if revoked {
				errResp := NewUnauthorizedError()
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}

			userId = id
			ctx = withSessionToken(ctx, token)
		} else if s.trustIdentityHeaders {
			userId = strings.TrimSpace(r.Header.Get(headerUserId))
			trusted = true
		}

		var (
			p       chat.Principal
			errResp *ApiError
		)
		switch {
		case userId != "":
			p, errResp = s.resolvePrincipal(r, userId, trusted)
		case trusted && strings.TrimSpace(r.Header.Get(headerBrandId)) != "":
			p, errResp = brandOnlyPrincipal(r)
		default:
			errResp = NewUnauthorizedError()
		}
		if errResp != nil {
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next(w, r.WithContext(WithPrincipal(ctx, p)))
	}
}

func (s *BrandChatApp) resolvePrincipal(r *http.Request, userId string, trusted bool) (chat.Principal, *ApiError) {
	p := chat.Principal{UserID: userId, Role: database.SenderUser}

	if v := strings.TrimSpace(r.Header.Get(headerSenderType)); v != "" {
		p.Role = database.SenderType(strings.ToUpper(v))
		if !p.Role.Valid() {
			return chat.Principal{}, newApiError(http.StatusBadRequest, "invalid sender type")
		}
	}

	if p.Role != database.SenderBrand {
		return p, nil
	}

	brandId := strings.TrimSpace(r.Header.Get(headerBrandId))
	if trusted {
		if brandId == "" {
			return chat.Principal{}, newApiError(http.StatusBadRequest, "missing brand id")
		}
		p.BrandID = brandId
		return p, nil
	}

	brands, err := s.db.ListBrandsForMember(r.Context(), userId)
	if err != nil {
		s.log.Printf("list brands for member: %v", err)
		return chat.Principal{}, NewInternalServerError(err)
	}

	switch {
	case len(brands) == 0:
		return chat.Principal{}, newApiError(http.StatusForbidden, "not a brand member")
	case brandId == "" && len(brands) == 1:
		p.BrandID = brands[0].Id
		return p, nil
	case brandId == "":
		return chat.Principal{}, newApiError(http.StatusBadRequest, "missing brand id")
	}

	for _, b := range brands {
		if b.Id == brandId {
			p.BrandID = b.Id
			return p, nil
		}
	}
	return chat.Principal{}, newApiError(http.StatusForbidden, "not a brand member")
}

// brandOnlyPrincipal lets a brand identify itself with x-brand-id alone when
// identity headers are trusted. The brand id doubles as the sender id.
func brandOnlyPrincipal(r *http.Request) (chat.Principal, *ApiError) {
	if v := strings.TrimSpace(r.Header.Get(headerSenderType)); v != "" && database.SenderType(strings.ToUpper(v)) != database.SenderBrand {
		return chat.Principal{}, newApiError(http.StatusBadRequest, "invalid sender type")
	}

	brandId := strings.TrimSpace(r.Header.Get(headerBrandId))
	return chat.Principal{UserID: brandId, Role: database.SenderBrand, BrandID: brandId}, nil
}
